// Package normalizers provides the text normalizations used to key listings,
// cities and agencies for duplicate detection.
package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("fold_accents", FoldAccents)
	Register("punctuation_to_space", PunctuationToSpace)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("nphone", NormalizePhone)
	Register("naddress", NormalizeAddress)
	Register("ncity", NormalizeCity)
	Register("nagency", NormalizeAgency)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names are a no-op.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

func Lowercase(s string) string {
	return strings.ToLower(s)
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

// FoldAccents strips combining marks: "Cantù" -> "Cantu".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// PunctuationToSpace replaces punctuation and symbols with a space so
// "Roma,10" and "Roma 10" tokenize the same way.
func PunctuationToSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
}

func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizePhone keeps digits only and drops the Italian +39/0039 prefix.
func NormalizePhone(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	digits := result.String()
	if strings.HasPrefix(strings.TrimSpace(s), "+39") {
		digits = strings.TrimPrefix(digits, "39")
	} else if strings.HasPrefix(digits, "0039") {
		digits = strings.TrimPrefix(digits, "0039")
	}
	return digits
}

func NormalizeCity(s string) string {
	return ApplyChain(s, "fold_accents", "lowercase", "punctuation_to_space", "collapse_whitespace")
}

var agencySuffixes = map[string]bool{
	"srl":  true,
	"srls": true,
	"spa":  true,
	"snc":  true,
	"sas":  true,
	"ltd":  true,
	"llc":  true,
	"inc":  true,
}

// NormalizeAgency keys an agency name. Dotted legal forms ("S.r.l.") are
// collapsed before the suffix is dropped.
func NormalizeAgency(s string) string {
	s = FoldAccents(strings.ToLower(s))
	s = strings.ReplaceAll(s, ".", "")
	tokens := strings.Fields(PunctuationToSpace(s))
	for len(tokens) > 1 && agencySuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}
