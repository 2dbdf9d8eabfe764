package chunker

import "strings"

// EstimateTokens gives a rough token count from the word count (~1.33
// tokens per English word). Exact tokenization is not required for chunking.
func EstimateTokens(text string) int {
	return tokensForWords(len(strings.Fields(text)))
}

func tokensForWords(words int) int {
	if words <= 0 {
		return 0
	}
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
