package normalizers

import (
	"strings"
	"unicode"
)

// Two-token forms left behind when a dotted abbreviation is split on ".".
var streetTypePairs = map[[2]string]string{
	{"p", "zza"}: "piazza",
	{"p", "za"}:  "piazza",
	{"p", "le"}:  "piazzale",
	{"v", "le"}:  "viale",
	{"c", "so"}:  "corso",
	{"l", "go"}:  "largo",
	{"v", "lo"}:  "vicolo",
}

var streetTypes = map[string]string{
	"v":    "via",
	"vle":  "viale",
	"pza":  "piazza",
	"pzza": "piazza",
	"ple":  "piazzale",
	"cso":  "corso",
	"lgo":  "largo",
	"vlo":  "vicolo",
	"vic":  "vicolo",
	"str":  "strada",
	"loc":  "localita",
	"fraz": "frazione",
	"st":   "street",
	"ave":  "avenue",
	"av":   "avenue",
	"rd":   "road",
	"blvd": "boulevard",
	"dr":   "drive",
	"ln":   "lane",
	"ct":   "court",
	"pl":   "place",
	"sq":   "square",
	"hwy":  "highway",
}

// NormalizeAddress folds case and accents, turns punctuation into spaces and
// expands street-type abbreviations: "P.zza Duomo, 1" -> "piazza duomo 1".
func NormalizeAddress(s string) string {
	s = FoldAccents(strings.ToLower(s))
	tokens := strings.Fields(PunctuationToSpace(s))

	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		if i+1 < len(tokens) {
			if full, ok := streetTypePairs[[2]string{tokens[i], tokens[i+1]}]; ok {
				out = append(out, full)
				i++
				continue
			}
		}
		if full, ok := streetTypes[tokens[i]]; ok {
			out = append(out, full)
			continue
		}
		out = append(out, tokens[i])
	}
	return strings.Join(out, " ")
}

var countryTokens = map[string]bool{
	"italia": true,
	"italy":  true,
}

// AddressKey is the normalized address with trailing city, postcode and
// country tokens removed, so "Via Roma 10, Milano" and "via roma 10" agree.
// At least two tokens are kept, so "Via Milano" in Milano stays intact.
func AddressKey(address, city string) string {
	tokens := strings.Fields(NormalizeAddress(address))
	cityTokens := strings.Fields(NormalizeCity(city))

	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		switch {
		case countryTokens[last], isPostcode(last):
			tokens = tokens[:len(tokens)-1]
			continue
		case len(cityTokens) > 0 && len(tokens)-len(cityTokens) >= 2 && hasSuffix(tokens, cityTokens):
			tokens = tokens[:len(tokens)-len(cityTokens)]
			continue
		}
		break
	}
	return strings.Join(tokens, " ")
}

// isPostcode matches a five digit Italian CAP.
func isPostcode(token string) bool {
	if len(token) != 5 {
		return false
	}
	for _, r := range token {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func hasSuffix(tokens, suffix []string) bool {
	offset := len(tokens) - len(suffix)
	for i, s := range suffix {
		if tokens[offset+i] != s {
			return false
		}
	}
	return true
}
