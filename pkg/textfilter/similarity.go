package textfilter

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize canonicalizes text for comparison: NFKC composition, case
// folding, punctuation dropped and whitespace collapsed to single spaces.
func Normalize(text string) string {
	folded := folder.String(norm.NFKC.String(text))
	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			if r != '\'' {
				b.WriteRune(r)
			}
		default:
			space = true
		}
	}
	return b.String()
}

// Tokens returns the normalized words of text.
func Tokens(text string) []string {
	return strings.Fields(Normalize(text))
}

// Similarity is the Jaccard index of the token sets of a and b, in [0, 1].
// Two texts without any tokens are identical.
func Similarity(a, b string) float64 {
	return jaccard(tokenSet(a), tokenSet(b))
}

// Dedupe drops every text whose similarity to an earlier kept text is at
// least threshold. Kept texts stay in first-seen order.
func Dedupe(texts []string, threshold float64) []string {
	kept := make([]string, 0, len(texts))
	sets := make([]map[string]struct{}, 0, len(texts))
	for _, text := range texts {
		set := tokenSet(text)
		duplicate := false
		for _, prev := range sets {
			if jaccard(set, prev) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, text)
			sets = append(sets, set)
		}
	}
	return kept
}

func tokenSet(text string) map[string]struct{} {
	toks := Tokens(text)
	set := make(map[string]struct{}, len(toks))
	for _, tok := range toks {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}
