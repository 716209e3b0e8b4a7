package rules

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/truenorth-finance/truenorth/internal/model"
)

// Step is one named stage of keyword normalization.
type Step struct {
	Name  string
	Apply func(string) string
}

func strip(pattern string) func(string) string {
	re := regexp.MustCompile(pattern)
	return func(s string) string { return re.ReplaceAllString(s, "") }
}

var (
	punctuation = regexp.MustCompile(`[^\w\s]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// Pipeline is the ordered normalization applied by SuggestKeyword. Later
// steps assume earlier ones already removed their noise.
var Pipeline = []Step{
	{"uppercase", strings.ToUpper},
	{"dates", strip(`\d{2}/\d{2}`)},
	{"amounts", strip(`\$[\d,.]+`)},
	{"references", strip(`REF:\s*\S+`)},
	{"payment-words", strip(`\b(VISA|EFTPOS|DEBIT|CREDIT|PURCHASE|PTY|LTD)\b`)},
	{"long-numbers", strip(`\d{4,}`)},
	{"locations", strip(`\b(SYDNEY|MELBOURNE|BRISBANE|PERTH|ADELAIDE|CANBERRA|HOBART|DARWIN|AUS|NSW|VIC|QLD|WA|SA|TAS|ACT|NT)\b.*$`)},
	{"punctuation", func(s string) string { return punctuation.ReplaceAllString(s, " ") }},
	{"whitespace", func(s string) string { return strings.TrimSpace(whitespace.ReplaceAllString(s, " ")) }},
}

// normalize runs desc through every Pipeline step.
func normalize(desc string) string {
	s := desc
	for _, step := range Pipeline {
		s = step.Apply(s)
	}
	return s
}

// SuggestKeyword derives a merchant keyword from a noisy bank description,
// e.g. "VISA PURCHASE COLES 4577 BANORA POINT" -> "COLES".
//
// A first word of four or more characters is taken as the merchant on its
// own. Shorter first words are joined with the next word ("JB HI FI" ->
// "JB HI"). If nothing survives normalization the first 15 characters of
// the description are used.
func SuggestKeyword(desc string) string {
	var words []string
	for _, w := range strings.Split(normalize(desc), " ") {
		if utf8.RuneCountInString(w) >= 2 {
			words = append(words, w)
		}
	}

	switch {
	case len(words) == 0:
		return model.DescriptionPrefix(desc)
	case utf8.RuneCountInString(words[0]) >= 4 || len(words) == 1:
		return words[0]
	default:
		return words[0] + " " + words[1]
	}
}
