// Package normalize turns raw source records into canonical job postings.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/jobrank/internal/domain/model"
)

// Canonical raw record keys. Adapters should emit these; a few common
// aliases are accepted as well.
const (
	KeyExternalID  = "external_id"
	KeyTitle       = "title"
	KeyCompany     = "company"
	KeyDescription = "description"
	KeySkills      = "skills"
	KeyApplyURL    = "apply_url"
	KeyPostedAt    = "posted_at"
)

var aliases = map[string][]string{ //nolint:gochecknoglobals // lookup table
	KeyExternalID:  {KeyExternalID, "id", "guid"},
	KeyTitle:       {KeyTitle, "text", "name", "position"},
	KeyCompany:     {KeyCompany, "company_name", "employer"},
	KeyDescription: {KeyDescription, "description_plain", "summary", "content"},
	KeySkills:      {KeySkills, "tags"},
	KeyApplyURL:    {KeyApplyURL, "url", "link", "hosted_url"},
	KeyPostedAt:    {KeyPostedAt, "created_at", "published", "date"},
}

// unixMillisThreshold separates epoch seconds from epoch milliseconds.
const unixMillisThreshold = 1e11

// Normalizer converts raw records into JobPostings. It holds only the
// read-only skill vocabulary and is safe for concurrent use.
type Normalizer struct {
	vocabulary []string
}

// New creates a Normalizer whose skill extraction is hinted by vocabulary.
func New(vocabulary []string) *Normalizer {
	return &Normalizer{vocabulary: model.NormalizeTerms(vocabulary)}
}

// ForProfile creates a Normalizer hinted by the profile's vocabulary.
func ForProfile(p *model.CandidateProfile) *Normalizer {
	if p == nil {
		return New(nil)
	}
	return New(p.Vocabulary())
}

// Normalize converts rec from sourceID. It fails with an *Error when title,
// company or apply_url is absent or malformed.
func (n *Normalizer) Normalize(rec model.RawRecord, sourceID string) (model.JobPosting, error) {
	title := CleanText(StripHTML(lookupString(rec, KeyTitle)))
	if title == "" {
		return model.JobPosting{}, &Error{SourceID: sourceID, Field: KeyTitle, Err: ErrMissingField}
	}
	company := CleanText(StripHTML(lookupString(rec, KeyCompany)))
	if company == "" {
		return model.JobPosting{}, &Error{SourceID: sourceID, Field: KeyCompany, Err: ErrMissingField}
	}
	rawURL := lookupString(rec, KeyApplyURL)
	if strings.TrimSpace(rawURL) == "" {
		return model.JobPosting{}, &Error{SourceID: sourceID, Field: KeyApplyURL, Err: ErrMissingField}
	}
	applyURL, ok := CanonicalURL(rawURL)
	if !ok {
		return model.JobPosting{}, &Error{SourceID: sourceID, Field: KeyApplyURL, Err: fmt.Errorf("%w: %q", ErrMalformed, rawURL)}
	}

	description := CleanText(StripHTML(lookupString(rec, KeyDescription)))

	externalID := strings.TrimSpace(lookupString(rec, KeyExternalID))
	if externalID == "" {
		sum := sha256.Sum256([]byte(applyURL))
		externalID = "url-" + hex.EncodeToString(sum[:8])
	}

	explicit := model.NormalizeTerms(lookupStrings(rec, KeySkills))
	extracted := ExtractSkills(title+" "+description, n.vocabulary)

	return model.JobPosting{
		SourceID:    sourceID,
		ExternalID:  externalID,
		Title:       title,
		Company:     company,
		Description: description,
		Skills:      model.UnionTerms(explicit, extracted),
		ApplyURL:    applyURL,
		PostedAt:    lookupTime(rec, KeyPostedAt),
		SeenOn:      []string{sourceID},
	}, nil
}

func lookup(rec model.RawRecord, key string) (any, bool) {
	for _, k := range aliases[key] {
		if v, ok := rec[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupString(rec model.RawRecord, key string) string {
	v, ok := lookup(rec, key)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case int, int64, float64:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

func lookupStrings(rec model.RawRecord, key string) []string {
	v, ok := lookup(rec, key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Split(t, ",")
	default:
		return nil
	}
}

var timeLayouts = []string{ //nolint:gochecknoglobals // accepted layouts
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func lookupTime(rec model.RawRecord, key string) *time.Time {
	v, ok := lookup(rec, key)
	if !ok {
		return nil
	}
	var ts time.Time
	switch t := v.(type) {
	case time.Time:
		ts = t
	case *time.Time:
		if t == nil {
			return nil
		}
		ts = *t
	case int64:
		ts = fromEpoch(float64(t))
	case int:
		ts = fromEpoch(float64(t))
	case float64:
		ts = fromEpoch(t)
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			ts = fromEpoch(n)
			break
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				ts = parsed
				break
			}
		}
	}
	if ts.IsZero() {
		return nil
	}
	ts = ts.UTC()
	return &ts
}

func fromEpoch(v float64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	if v >= unixMillisThreshold {
		return time.UnixMilli(int64(v))
	}
	return time.Unix(int64(v), 0)
}
