// Package gemini scores postings against a candidate profile with Google
// Gemini.
package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/template"

	"google.golang.org/genai"

	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/internal/domain/scoring"
	"github.com/okian/jobrank/pkg/logger"
)

const (
	defaultModel          = "gemini-2.5-flash"
	maxDescriptionRunes   = 6000
	percentScoreThreshold = 1
)

//go:embed prompt.tmpl
var promptText string

var promptTemplate = template.Must(template.New("prompt").Funcs(template.FuncMap{ //nolint:gochecknoglobals // parsed once
	"join": strings.Join,
}).Parse(promptText))

// ErrNoAPIKey is returned by New without an API key.
var ErrNoAPIKey = errors.New("gemini api key is required")

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("gemini api returned empty response")

// generator is the subset of *genai.Models the scorer needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Scorer is a scoring.Scorer backed by the Gemini API.
type Scorer struct {
	gen    generator
	model  string
	logger logger.Logger
}

// New creates a Scorer for the Gemini API backend.
func New(ctx context.Context, apiKey, modelName string) (*Scorer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newScorer(client.Models, modelName), nil
}

func newScorer(gen generator, modelName string) *Scorer {
	if modelName = strings.TrimSpace(modelName); modelName == "" {
		modelName = defaultModel
	}
	return &Scorer{gen: gen, model: modelName, logger: logger.Get().Named("gemini")}
}

// Model returns the model name in use.
func (s *Scorer) Model() string { return s.model }

type verdict struct {
	RelevanceScore *float64 `json:"relevance_score"`
	Rationale      string   `json:"rationale"`
	RequiredSkills []string `json:"required_skills"`
}

// Score asks the model for a relevance verdict. Rate limits, server errors,
// network failures and unparsable output are transient; other client errors
// are permanent.
func (s *Scorer) Score(ctx context.Context, posting model.JobPosting, profile *model.CandidateProfile) (scoring.Result, error) { //nolint:gocritic // postings are values
	if profile == nil {
		return scoring.Result{}, scoring.Permanent(errors.New("profile is nil"))
	}
	prompt, err := buildPrompt(posting, profile)
	if err != nil {
		return scoring.Result{}, scoring.Permanent(err)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      ptr[float32](0),
		ResponseMIMEType: "application/json",
	}
	resp, err := s.gen.GenerateContent(ctx, s.model, genai.Text(prompt), cfg)
	if err != nil {
		return scoring.Result{}, classify(err)
	}

	text := responseText(resp)
	if text == "" {
		return scoring.Result{}, scoring.Transient(ErrEmptyResponse)
	}
	res, err := parseVerdict(text)
	if err != nil {
		s.logger.Debug(ctx, "unparsable gemini response",
			logger.String("external_id", posting.ExternalID),
			logger.Error(err),
		)
		return scoring.Result{}, scoring.Transient(err)
	}
	return res, nil
}

type promptData struct {
	Skills      []string
	Titles      []string
	Experience  []model.ExperienceEntry
	Posting     model.JobPosting
	Description string
}

func buildPrompt(posting model.JobPosting, profile *model.CandidateProfile) (string, error) { //nolint:gocritic // postings are values
	desc := posting.Description
	if r := []rune(desc); len(r) > maxDescriptionRunes {
		desc = string(r[:maxDescriptionRunes]) + "..."
	}
	var b strings.Builder
	err := promptTemplate.Execute(&b, promptData{
		Skills:      profile.Skills(),
		Titles:      profile.Titles(),
		Experience:  profile.Experience(),
		Posting:     posting,
		Description: desc,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}
	return strings.TrimSpace(b.String())
}

// extractJSON strips markdown fences and surrounding chatter.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

func parseVerdict(text string) (scoring.Result, error) {
	var v verdict
	if err := json.Unmarshal([]byte(extractJSON(text)), &v); err != nil {
		return scoring.Result{}, fmt.Errorf("decode verdict: %w", err)
	}
	if v.RelevanceScore == nil {
		return scoring.Result{}, errors.New("verdict has no relevance_score")
	}
	score := *v.RelevanceScore
	// Some answers come back on a 0-100 scale.
	if score > percentScoreThreshold && score <= 100 {
		score /= 100
	}

	rationale := strings.TrimSpace(v.Rationale)
	if skills := model.NormalizeTerms(v.RequiredSkills); len(skills) > 0 {
		if rationale != "" {
			rationale += "; "
		}
		rationale += "required: " + strings.Join(skills, ", ")
	}
	return scoring.Result{Score: score, Rationale: rationale}, nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests,
			apiErr.Code == http.StatusRequestTimeout,
			apiErr.Code >= http.StatusInternalServerError:
			return scoring.Transient(fmt.Errorf("generate content: %w", err))
		case apiErr.Code >= http.StatusBadRequest:
			return scoring.Permanent(fmt.Errorf("generate content: %w", err))
		}
	}
	return scoring.Transient(fmt.Errorf("generate content: %w", err))
}

func ptr[T any](v T) *T { return &v }
