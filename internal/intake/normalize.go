package intake

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legal forms dropped from the end of company names
var legalSuffixes = map[string]struct{}{
	"co": {}, "corp": {}, "corporation": {}, "company": {}, "inc": {}, "incorporated": {},
	"ltd": {}, "limited": {}, "llc": {}, "llp": {}, "plc": {}, "gmbh": {}, "ag": {},
	"sa": {}, "sarl": {}, "sarlau": {}, "sas": {}, "sasu": {}, "suarl": {}, "snc": {},
	"srl": {}, "spa": {}, "bv": {}, "nv": {}, "cie": {}, "group": {}, "groupe": {},
}

// business prefixes dropped from the start of company names
var legalPrefixes = map[string]struct{}{
	"ste": {}, "societe": {}, "ets": {}, "etablissements": {}, "the": {},
}

var caseFolder = cases.Fold()

// foldName lowercases, strips accents and collapses punctuation to single spaces.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = caseFolder.String(out)
	var b strings.Builder
	b.Grow(len(out))
	for _, r := range out {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte(' ')
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// nameKey holds the comparable forms of a party name.
type nameKey struct {
	full string
	core string
}

func newNameKey(name string) nameKey {
	full := foldName(name)
	tokens := strings.Fields(full)
	for len(tokens) > 1 {
		if _, ok := legalPrefixes[tokens[0]]; !ok {
			break
		}
		tokens = tokens[1:]
	}
	for len(tokens) > 1 {
		if _, ok := legalSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return nameKey{full: full, core: strings.Join(tokens, " ")}
}

// normalizeTaxID uppercases and removes separators.
func normalizeTaxID(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		switch {
		case unicode.IsSpace(r), r == '-', r == '.', r == '/':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
