// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"slices"
	"strings"
)

// ErrEmptyProfile is returned when a profile carries no usable skills.
var ErrEmptyProfile = errors.New("candidate profile has no skills")

// ExperienceEntry is one prior position on a candidate's record.
type ExperienceEntry struct {
	Title  string   `json:"title" yaml:"title"`
	Months int      `json:"months" yaml:"months"`
	Skills []string `json:"skills,omitempty" yaml:"skills"`
}

// CandidateProfile is the structured candidate input. It is immutable once
// built; accessors return copies.
type CandidateProfile struct {
	skills     []string
	titles     []string
	experience []ExperienceEntry
}

// NewCandidateProfile normalizes skills and titles (lower case, trimmed,
// unique, sorted) and rejects profiles without skills.
func NewCandidateProfile(skills, titles []string, experience []ExperienceEntry) (*CandidateProfile, error) {
	p := &CandidateProfile{
		skills: NormalizeTerms(skills),
		titles: NormalizeTerms(titles),
	}
	for _, e := range experience {
		p.experience = append(p.experience, ExperienceEntry{
			Title:  strings.TrimSpace(e.Title),
			Months: max(e.Months, 0),
			Skills: NormalizeTerms(e.Skills),
		})
	}
	if len(p.skills) == 0 {
		return nil, ErrEmptyProfile
	}
	return p, nil
}

// Skills returns the candidate's skills.
func (p *CandidateProfile) Skills() []string { return slices.Clone(p.skills) }

// Titles returns the candidate's prior job titles.
func (p *CandidateProfile) Titles() []string { return slices.Clone(p.titles) }

// Experience returns the ordered experience entries.
func (p *CandidateProfile) Experience() []ExperienceEntry {
	out := make([]ExperienceEntry, len(p.experience))
	for i, e := range p.experience {
		out[i] = ExperienceEntry{Title: e.Title, Months: e.Months, Skills: slices.Clone(e.Skills)}
	}
	return out
}

// HasSkill reports whether skill (any casing) is in the profile.
func (p *CandidateProfile) HasSkill(skill string) bool {
	_, ok := slices.BinarySearch(p.skills, strings.ToLower(strings.TrimSpace(skill)))
	return ok
}

// Vocabulary is the union of profile skills and skills named in experience
// entries; the normalizer uses it as the hint set for skill extraction.
func (p *CandidateProfile) Vocabulary() []string {
	all := slices.Clone(p.skills)
	for _, e := range p.experience {
		all = append(all, e.Skills...)
	}
	return NormalizeTerms(all)
}

// TotalMonths sums the experience durations.
func (p *CandidateProfile) TotalMonths() int {
	total := 0
	for _, e := range p.experience {
		total += e.Months
	}
	return total
}

// NormalizeTerms lower-cases, trims, de-duplicates and sorts terms, dropping
// empty ones.
func NormalizeTerms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// UnionTerms merges two normalized term sets into a new sorted set.
func UnionTerms(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}
