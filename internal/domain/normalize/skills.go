package normalize

import (
	"strings"
	"unicode"
)

// ExtractSkills returns the vocabulary terms that occur in text as whole
// words, case-insensitively. The result is sorted because vocabulary is.
func ExtractSkills(text string, vocabulary []string) []string {
	if text == "" || len(vocabulary) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	var out []string
	for _, term := range vocabulary {
		if term != "" && containsWord(lower, term) {
			out = append(out, term)
		}
	}
	return out
}

// containsWord reports whether term occurs in text bounded by non-word
// characters on both sides. Symbols inside the term ("c++", "node.js") are
// matched literally.
func containsWord(text, term string) bool {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r := rune(text[i-1])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r := rune(text[i])
	return !isWordRune(r) && r != '+' && r != '#'
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
