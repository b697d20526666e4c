package rag

import "strings"

// stopwords excluded from lexical matching.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "i": true, "my": true, "some": true,
}

// tokenize splits text into lowercased, punctuation-trimmed, deduplicated
// terms with stopwords removed.
func tokenize(text string) []string {
	words := strings.Fields(text)
	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned == "" || stopwords[cleaned] || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		terms = append(terms, cleaned)
	}
	return terms
}

// lexicalSimilarity scores how much of the query a text covers: the fraction
// of query terms present in the text, in [0, 1]. Term presence uses prefix
// matching so simple inflections ("grill" / "grilled") still count.
func lexicalSimilarity(queryTerms []string, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}

	textTerms := tokenize(text)
	matched := 0
	for _, q := range queryTerms {
		for _, t := range textTerms {
			if t == q || (len(q) >= 4 && strings.HasPrefix(t, q)) || (len(t) >= 4 && strings.HasPrefix(q, t)) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
