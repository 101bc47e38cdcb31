// Package segment splits consolidated script text into per-question
// answers using the numbering the student wrote on the page.
package segment

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/scriptmark/scriptmark/internal/model"
)

// markerRe matches an answer marker at the start of a line: a question
// number of up to three digits followed by a dot or closing paren and
// whitespace, e.g. "3. " or "12) ".
var markerRe = regexp.MustCompile(`(?m)^\s*(\d{1,3})[.)]\s`)

// Answers maps question numbers to the answer text found for them.
// Page texts are joined in page order before scanning, so an answer
// that runs across a page break stays intact.
//
// A question with no marker of its own falls back to the full combined
// text: badly or partially numbered scripts still get marked against
// whatever the student wrote, at the cost of precision. Only an empty
// script yields empty answers.
func Answers(pageTexts []string, questions []model.Question) map[int]string {
	combined := strings.TrimSpace(strings.Join(pageTexts, "\n\n"))

	out := make(map[int]string, len(questions))
	if combined == "" {
		for _, q := range questions {
			out[q.Number] = ""
		}
		return out
	}

	spans := findSpans(combined)
	for _, q := range questions {
		if span, ok := spans[q.Number]; ok {
			out[q.Number] = strings.TrimSpace(span)
		} else {
			out[q.Number] = combined
		}
	}
	return out
}

// findSpans maps each marker's question number to the text between
// that marker and the next one (or end of text). If the same number is
// marked twice, the later occurrence wins; students commonly restart
// an answer further down the page.
func findSpans(text string) map[int]string {
	matches := markerRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	spans := make(map[int]string, len(matches))
	for i, m := range matches {
		num, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}

		start := m[1] // just past the marker and its trailing whitespace
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		spans[num] = text[start:end]
	}
	return spans
}
