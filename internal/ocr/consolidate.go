package ocr

import (
	"sort"
	"strings"
)

// alternativeDelimiter separates the primary reading from divergent
// alternative readings in consolidated page text. Downstream answer
// segmentation treats the whole block as one text, so alternatives
// still contribute their content to marking.
const alternativeDelimiter = "\n\n--- Alternative Extraction ---\n\n"

// similarityThreshold is the Jaccard similarity above which an
// alternative reading is considered a duplicate of the primary one
// and dropped instead of appended.
const similarityThreshold = 0.7

// Consolidated is the merged reading of one page across providers.
type Consolidated struct {
	Text       string
	Provider   string  // provider that produced the primary reading
	Confidence float64 // mean confidence of contributing results
}

// Consolidate merges per-provider readings of one page into a single
// text. The longest reading wins as the primary text (ties broken by
// provider ID so the outcome is independent of arrival order); other
// readings are appended as alternatives only when they differ enough
// from the primary to plausibly carry extra content.
func Consolidate(results []Result) Consolidated {
	nonEmpty := make([]Result, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Text) != "" {
			nonEmpty = append(nonEmpty, r)
		}
	}
	if len(nonEmpty) == 0 {
		return Consolidated{}
	}

	sort.Slice(nonEmpty, func(i, j int) bool {
		li, lj := len(nonEmpty[i].Text), len(nonEmpty[j].Text)
		if li != lj {
			return li > lj
		}
		return nonEmpty[i].ProviderID < nonEmpty[j].ProviderID
	})

	base := nonEmpty[0]
	var sb strings.Builder
	sb.WriteString(base.Text)

	confSum := base.Confidence
	contributing := 1

	for _, alt := range nonEmpty[1:] {
		confSum += alt.Confidence
		contributing++
		if jaccard(base.Text, alt.Text) < similarityThreshold {
			sb.WriteString(alternativeDelimiter)
			sb.WriteString(alt.Text)
		}
	}

	return Consolidated{
		Text:       sb.String(),
		Provider:   base.ProviderID,
		Confidence: confSum / float64(contributing),
	}
}

// jaccard computes token-set Jaccard similarity between two texts.
// Tokens are lowercased whitespace-separated words with surrounding
// punctuation stripped.
func jaccard(a, b string) float64 {
	sa := tokenSet(a)
	sb := tokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	inter := 0
	for tok := range sa {
		if _, ok := sb[tok]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(text)) {
		tok := strings.Trim(f, ".,;:!?()[]{}\"'")
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}
