package content

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	sentencePattern = regexp.MustCompile(`\S+\s+\S+[.!?]`)
	sentenceEnd     = regexp.MustCompile(`[.!?](?:\s+|$)`)
)

// SplitSentences cuts text after terminal punctuation that is followed by
// whitespace or the end of input. Text without a space, or without at least
// one "word word." run, is returned whole. Dotted tokens such as "가.나." are
// not cut on their own; they stay attached to the text that follows.
func SplitSentences(text string) []string {
	if !strings.Contains(text, " ") || !sentencePattern.MatchString(text) {
		return []string{text}
	}

	var out []string
	pos := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		end := m[0] + 1
		s := strings.TrimSpace(text[pos:end])
		if s == "" || dottedToken(s) {
			continue
		}
		out = append(out, s)
		pos = end
	}
	if pos < len(text) {
		if rest := strings.TrimSpace(text[pos:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

// dottedToken reports whether s is a single word with punctuation inside it,
// like "가.나." or "e.g.".
func dottedToken(s string) bool {
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return false
	}
	return strings.ContainsAny(s[:len(s)-1], ".!?")
}

func normalizeForDedup(s string) string {
	s = norm.NFC.String(strings.ToLower(s))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// RemoveDuplicates keeps the first occurrence of each text and drops any text
// whose normalized form sits inside a longer text of the same list.
func RemoveDuplicates(texts []string) []string {
	normalized := make([]string, len(texts))
	for i, t := range texts {
		normalized[i] = normalizeForDedup(t)
	}

	out := make([]string, 0, len(texts))
	seen := make(map[string]struct{}, len(texts))
	for i, n := range normalized {
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		contained := false
		for j, other := range normalized {
			if i == j || other == n {
				continue
			}
			if strings.Contains(other, n) {
				contained = true
				break
			}
		}
		if contained {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, texts[i])
	}
	return out
}
