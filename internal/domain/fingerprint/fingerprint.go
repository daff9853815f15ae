// Package fingerprint derives the cross-source identity of a job posting from
// its normalized title, company, and apply URL host and path.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"unicode"

	"github.com/okian/jobrank/internal/domain/model"
)

const sep = "\x1f"

// levelMarkers are trailing title tokens that denote a grade of the same role.
var levelMarkers = map[string]struct{}{ //nolint:gochecknoglobals // lookup table
	"i": {}, "ii": {}, "iii": {}, "iv": {}, "v": {},
	"1": {}, "2": {}, "3": {}, "4": {}, "5": {},
	"l1": {}, "l2": {}, "l3": {}, "l4": {}, "l5": {},
}

var companySuffixes = map[string]struct{}{ //nolint:gochecknoglobals // lookup table
	"inc": {}, "llc": {}, "ltd": {}, "limited": {}, "gmbh": {}, "corp": {},
	"corporation": {}, "co": {}, "plc": {}, "ag": {}, "sa": {}, "bv": {},
}

// Of returns the fingerprint of p.
func Of(p model.JobPosting) model.Fingerprint { //nolint:gocritic // postings are values
	key := Title(p.Title) + sep + Company(p.Company) + sep + HostPath(p.ApplyURL)
	sum := sha256.Sum256([]byte(key))
	return model.Fingerprint(hex.EncodeToString(sum[:16]))
}

// Title lower-cases, strips punctuation, and drops trailing level markers
// such as "II" or "Level 3". At least one token is always kept.
func Title(s string) string {
	tokens := tokenize(s)
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		if _, ok := levelMarkers[last]; ok {
			tokens = tokens[:len(tokens)-1]
			if n := len(tokens); n > 1 && tokens[n-1] == "level" {
				tokens = tokens[:n-1]
			}
			continue
		}
		break
	}
	return strings.Join(tokens, " ")
}

// Company lower-cases, strips punctuation, and drops trailing legal-form
// suffixes.
func Company(s string) string {
	tokens := tokenize(s)
	for len(tokens) > 1 {
		if _, ok := companySuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// HostPath reduces a URL to lower-cased host (without www.) and path
// (without trailing slash). Unparseable input is returned lower-cased.
func HostPath(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.TrimRight(u.EscapedPath(), "/")
	return host + path
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
}
