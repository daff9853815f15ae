package normalize

import (
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CleanText collapses runs of whitespace (including NBSP) into single spaces.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// StripHTML returns the visible text of an HTML fragment. Input without
// markup is returned unchanged.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script,style").Remove()
	// block elements would otherwise glue adjacent words together
	doc.Find("p,br,li,div,h1,h2,h3,h4,tr").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return doc.Text()
}

// CanonicalURL lower-cases scheme and host, drops the fragment and common
// tracking parameters, and sorts the query.
func CanonicalURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Hostname() == "" {
		return "", false
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") ||
			lk == "gclid" || lk == "fbclid" || lk == "msclkid" ||
			lk == "mc_cid" || lk == "mc_eid" ||
			lk == "mkt_tok" || lk == "ref" {
			q.Del(k)
		}
	}
	for k := range q {
		vals := q[k]
		slices.Sort(vals)
		q[k] = vals
	}
	u.RawQuery = q.Encode()
	return u.String(), true
}
