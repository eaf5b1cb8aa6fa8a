// Package textfilter normalizes and screens player-facing choice text: a
// profanity filter for generated candidates and a similarity measure used to
// drop near-duplicate choices.
package textfilter

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// replacements maps each filtered word to a family-friendly alternative.
var replacements = map[string]string{
	"fuck":         "fudge",
	"shit":         "shoot",
	"damn":         "dang",
	"hell":         "heck",
	"ass":          "butt",
	"bitch":        "jerk",
	"bastard":      "jerk",
	"crap":         "crud",
	"piss":         "ticked",
	"cock":         "[censored]",
	"dick":         "jerk",
	"pussy":        "[censored]",
	"tits":         "[censored]",
	"whore":        "[censored]",
	"slut":         "[censored]",
	"fag":          "[censored]",
	"retard":       "[censored]",
	"nigger":       "[censored]",
	"nigga":        "[censored]",
	"spic":         "[censored]",
	"chink":        "[censored]",
	"kike":         "[censored]",
	"motherfucker": "mother-trucker",
	"goddamn":      "gosh-dang",
	"asshole":      "jerk",
	"dumbass":      "dummy",
	"jackass":      "jerk",
	"smartass":     "smarty",
	"bullshit":     "baloney",
	"horseshit":    "nonsense",
	"dipshit":      "dummy",
	"shithead":     "jerk",
	"dickhead":     "jerk",
	"prick":        "jerk",
	"douche":       "jerk",
	"douchebag":    "jerk",
}

// ProfanityFilter detects and replaces profanity, including simple plurals.
// It is safe for concurrent use.
type ProfanityFilter struct {
	re *regexp.Regexp
}

// NewProfanityFilter compiles the word list into a single matcher.
func NewProfanityFilter() *ProfanityFilter {
	words := make([]string, 0, len(replacements))
	for w := range replacements {
		words = append(words, regexp.QuoteMeta(w))
	}
	// Longest first so "asshole" wins over "ass".
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	return &ProfanityFilter{
		re: regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)(e?s)?\b`),
	}
}

// Clean replaces profanity in text, keeping the case and plural suffix of
// each match.
func (pf *ProfanityFilter) Clean(text string) string {
	return pf.re.ReplaceAllStringFunc(text, func(match string) string {
		m := pf.re.FindStringSubmatch(match)
		if m == nil {
			return match
		}
		word, suffix := m[1], m[2]
		replacement, ok := replacements[strings.ToLower(word)]
		if !ok {
			return match
		}
		return preserveCase(word, replacement) + suffix
	})
}

// ContainsProfanity checks text after normalization, so full-width and
// composed forms are caught too.
func (pf *ProfanityFilter) ContainsProfanity(text string) bool {
	return pf.re.MatchString(Normalize(text))
}

// preserveCase applies the case pattern of original to replacement.
func preserveCase(original, replacement string) string {
	if original == "" {
		return replacement
	}
	if strings.ToUpper(original) == original {
		return strings.ToUpper(replacement)
	}
	if strings.ToLower(original) == original {
		return strings.ToLower(replacement)
	}

	titleCaser := cases.Title(language.English)
	if titleCaser.String(strings.ToLower(original)) == original {
		return titleCaser.String(replacement)
	}

	// Mixed case: copy the case of each position, lowercase the rest.
	originalRunes := []rune(original)
	out := make([]rune, 0, len(replacement))
	for _, r := range replacement {
		out = append(out, unicode.ToLower(r))
	}
	for i := range out {
		if i < len(originalRunes) && unicode.IsUpper(originalRunes[i]) {
			out[i] = unicode.ToUpper(out[i])
		}
	}
	return string(out)
}
