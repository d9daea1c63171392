package tts

import "strings"

// SpokenWordsPerMinute is the delivery rate used for budgeting scripts
// and estimating clip length when the container has no duration.
const SpokenWordsPerMinute = 165.0

// EstimateSpokenSeconds predicts how long a script takes to speak at
// the standard rate.
func EstimateSpokenSeconds(script string) float64 {
	words := len(strings.Fields(script))
	return float64(words) / SpokenWordsPerMinute * 60
}

// TrimToBudget cuts a script at sentence boundaries so it speaks inside
// budgetSeconds. The first sentence always survives, so the budget can
// never silence the feedback entirely.
func TrimToBudget(script string, budgetSeconds int) string {
	if budgetSeconds <= 0 {
		return strings.TrimSpace(script)
	}

	budgetWords := int(float64(budgetSeconds) / 60 * SpokenWordsPerMinute)
	if budgetWords < 1 {
		budgetWords = 1
	}

	sentences := splitSentences(script)
	var kept []string
	used := 0
	for i, sentence := range sentences {
		n := len(strings.Fields(sentence))
		if i > 0 && used+n > budgetWords {
			break
		}
		kept = append(kept, sentence)
		used += n
	}

	return strings.TrimSpace(strings.Join(kept, " "))
}

func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
