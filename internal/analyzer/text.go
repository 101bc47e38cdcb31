package analyzer

import "strings"

// tokens splits text into lowercased words with surrounding
// punctuation stripped.
func tokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		tok := strings.Trim(f, ".,;:!?()[]{}\"'")
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// sentenceCount counts sentence terminators, treating runs of
// terminators as one. A trailing unterminated fragment counts as a
// sentence when the text is non-empty.
func sentenceCount(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	count := 0
	inRun := false
	terminated := false
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if !inRun {
				count++
				inRun = true
			}
			terminated = true
		} else {
			inRun = false
			if !strings.ContainsRune(" \n\t\r", r) {
				terminated = false
			}
		}
	}
	if !terminated {
		count++
	}
	return count
}
