// Package profile loads a CandidateProfile from YAML or JSON.
package profile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/okian/jobrank/internal/domain/model"
)

// ErrDecode wraps malformed profile documents.
var ErrDecode = errors.New("decode profile")

// Document is the on-disk and on-the-wire profile shape.
type Document struct {
	Skills     []string                `json:"skills" yaml:"skills"`
	Titles     []string                `json:"titles" yaml:"titles"`
	Experience []model.ExperienceEntry `json:"experience" yaml:"experience"`
}

// Profile builds the immutable profile.
func (d *Document) Profile() (*model.CandidateProfile, error) {
	return model.NewCandidateProfile(d.Skills, d.Titles, d.Experience)
}

// Decode reads a profile document from r.
func Decode(r io.Reader) (*model.CandidateProfile, error) {
	var d Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return d.Profile()
}

// Load reads the profile at path.
func Load(path string) (*model.CandidateProfile, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
