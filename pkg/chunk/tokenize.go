package chunk

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase index tokens. Splits occur on
// non-alphanumeric boundaries, underscores included, so a snake_case word
// contributes only its parts. CamelCase words contribute their constituent
// parts alongside the whole word.
func Tokenize(text string) []string {
	seen := make(map[string]bool)
	var tokens []string

	add := func(tok string) {
		if tok == "" || seen[tok] {
			return
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}

	for _, word := range splitNonAlnum(text) {
		add(strings.ToLower(word))
		for _, part := range splitCamel(word) {
			add(strings.ToLower(part))
		}
	}
	return tokens
}

// splitNonAlnum cuts text at every non-alphanumeric rune (underscores
// included, which handles snake_case).
func splitNonAlnum(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// splitCamel cuts a word at lower-to-upper transitions. "parseHTTPHeader"
// yields parse, HTTP, Header.
func splitCamel(word string) []string {
	var parts []string
	runes := []rune(word)
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := unicode.IsLower(prev) && unicode.IsUpper(cur)
		// End of an acronym run: HTTPServer -> HTTP | Server.
		if !boundary && i+1 < len(runes) {
			boundary = unicode.IsUpper(prev) && unicode.IsUpper(cur) && unicode.IsLower(runes[i+1])
		}
		if boundary {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	if start > 0 {
		parts = append(parts, string(runes[start:]))
	}
	return parts
}
