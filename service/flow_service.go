package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"lifedash-backend/logger"
	"lifedash-backend/models"

	"github.com/google/generative-ai-go/genai"
)

var (
	ErrFlowFailed    = errors.New("AI flow failed")
	ErrInvalidOutput = errors.New("invalid model output")
)

// EffectSet marks which optional effects a chat turn carries
type EffectSet uint8

const (
	EffectScores EffectSet = 1 << iota
	EffectActions
	EffectMemory
)

// Has reports whether every effect in e is present
func (s EffectSet) Has(e EffectSet) bool {
	return s&e == e
}

// AssistantEffects is the tagged set of side effects of a chat turn.
// Only the fields whose effect is present are meaningful.
type AssistantEffects struct {
	Present  EffectSet   `json:"-"`
	Scores   ScoreUpdate `json:"scoreUpdates,omitempty"`
	Feedback string      `json:"feedback,omitempty"`
	Actions  []string    `json:"newActions,omitempty"`
	Memory   string      `json:"newMemory,omitempty"`
}

// Flows are the single-call AI contracts used by the dashboard
type Flows interface {
	Onboard(ctx context.Context, userValues string) (*OnboardingResult, error)
	ScoreJournal(ctx context.Context, req JournalRequest) (*JournalResult, error)
	SuggestActions(ctx context.Context, req SuggestActionsRequest) ([]string, error)
	Chat(ctx context.Context, req ChatRequest) (*ChatResult, error)
	ClarificationQuestions(ctx context.Context, req ClarificationRequest) ([]string, error)
}

// OnboardingResult represents the baseline produced from the user's values
type OnboardingResult struct {
	Scores               models.Scores
	DashboardDescription string
}

// JournalRequest represents a journal entry to score
type JournalRequest struct {
	Entry  string
	Scores models.Scores
}

// JournalResult represents the rescored domains
type JournalResult struct {
	Scores   models.Scores
	Feedback string
}

// SuggestActionsRequest represents a request for new action items
type SuggestActionsRequest struct {
	WeakAreas  []models.Domain
	UserValues string
	Scores     models.Scores
}

// ChatRequest represents one conversational turn
type ChatRequest struct {
	Message    string
	History    []models.ChatTurn
	Scores     models.Scores
	UserValues string
	Memories   []string
}

// ChatResult represents the assistant's reply and its effects
type ChatResult struct {
	Response string
	Effects  AssistantEffects
}

// ClarificationRequest represents input to ask follow-up questions about
type ClarificationRequest struct {
	UserInput string
	Context   string
}

// FlowService runs the prompt templates against a Generator
type FlowService struct {
	generator Generator
	prompts   map[string]*prompt
	retry     RetryPolicy
	log       *logger.Logger
}

// FlowServiceOption is a functional option for FlowService
type FlowServiceOption func(*FlowService)

// FlowWithGenerator sets the model backend
func FlowWithGenerator(g Generator) FlowServiceOption {
	return func(s *FlowService) {
		s.generator = g
	}
}

// FlowWithRetryPolicy sets the retry policy for model calls
func FlowWithRetryPolicy(p RetryPolicy) FlowServiceOption {
	return func(s *FlowService) {
		s.retry = p
	}
}

// FlowWithLogger sets the logger
func FlowWithLogger(log *logger.Logger) FlowServiceOption {
	return func(s *FlowService) {
		s.log = log
	}
}

// NewFlowService creates a flow service with the embedded prompt templates
func NewFlowService(opts ...FlowServiceOption) (*FlowService, error) {
	prompts, err := loadPrompts(promptsYAML)
	if err != nil {
		return nil, err
	}

	s := &FlowService{
		prompts: prompts,
		retry:   DefaultRetryPolicy(),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "flows")
	return s, nil
}

var (
	schemaScore = &genai.Schema{Type: genai.TypeNumber, Description: "score from 0 to 100"}

	onboardingSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"socialScore":          schemaScore,
			"spiritualScore":       schemaScore,
			"personalScore":        schemaScore,
			"professionalScore":    schemaScore,
			"dashboardDescription": {Type: genai.TypeString},
		},
		Required: []string{"socialScore", "spiritualScore", "personalScore", "professionalScore", "dashboardDescription"},
	}

	journalSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"updatedSocialScore":       schemaScore,
			"updatedSpiritualScore":    schemaScore,
			"updatedPersonalScore":     schemaScore,
			"updatedProfessionalScore": schemaScore,
			"feedback":                 {Type: genai.TypeString},
		},
		Required: []string{"updatedSocialScore", "updatedSpiritualScore", "updatedPersonalScore", "updatedProfessionalScore", "feedback"},
	}

	stringList = &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}

	suggestActionsSchema = &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{"suggestedActions": stringList},
		Required:   []string{"suggestedActions"},
	}

	chatSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"response": {Type: genai.TypeString},
			"scoreUpdates": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"social":       schemaScore,
					"personal":     schemaScore,
					"professional": schemaScore,
					"spiritual":    schemaScore,
				},
			},
			"feedback":   {Type: genai.TypeString},
			"newActions": stringList,
			"newMemory":  {Type: genai.TypeString},
		},
		Required: []string{"response"},
	}

	clarificationSchema = &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{"questions": stringList},
		Required:   []string{"questions"},
	}
)

type onboardingOutput struct {
	SocialScore          *float64 `json:"socialScore"`
	SpiritualScore       *float64 `json:"spiritualScore"`
	PersonalScore        *float64 `json:"personalScore"`
	ProfessionalScore    *float64 `json:"professionalScore"`
	DashboardDescription string   `json:"dashboardDescription"`
}

type journalOutput struct {
	UpdatedSocialScore       *float64 `json:"updatedSocialScore"`
	UpdatedSpiritualScore    *float64 `json:"updatedSpiritualScore"`
	UpdatedPersonalScore     *float64 `json:"updatedPersonalScore"`
	UpdatedProfessionalScore *float64 `json:"updatedProfessionalScore"`
	Feedback                 string   `json:"feedback"`
}

type suggestActionsOutput struct {
	SuggestedActions []string `json:"suggestedActions"`
}

type chatOutput struct {
	Response     string       `json:"response"`
	ScoreUpdates *ScoreUpdate `json:"scoreUpdates"`
	Feedback     string       `json:"feedback"`
	NewActions   []string     `json:"newActions"`
	NewMemory    string       `json:"newMemory"`
}

type clarificationOutput struct {
	Questions []string `json:"questions"`
}

// Onboard produces baseline scores and a dashboard description
func (s *FlowService) Onboard(ctx context.Context, userValues string) (*OnboardingResult, error) {
	var out onboardingOutput
	var scores models.Scores
	err := s.run(ctx, promptOnboarding, onboardingSchema, struct{ UserValues string }{userValues}, &out, func() error {
		var err error
		scores, err = requireScores(out.SocialScore, out.PersonalScore, out.ProfessionalScore, out.SpiritualScore)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out.DashboardDescription) == "" {
			return fmt.Errorf("%w: dashboardDescription is empty", ErrInvalidOutput)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &OnboardingResult{Scores: scores, DashboardDescription: out.DashboardDescription}, nil
}

// ScoreJournal rescores all four domains from a journal entry
func (s *FlowService) ScoreJournal(ctx context.Context, req JournalRequest) (*JournalResult, error) {
	var out journalOutput
	var scores models.Scores
	err := s.run(ctx, promptJournal, journalSchema, req, &out, func() error {
		var err error
		scores, err = requireScores(out.UpdatedSocialScore, out.UpdatedPersonalScore, out.UpdatedProfessionalScore, out.UpdatedSpiritualScore)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out.Feedback) == "" {
			return fmt.Errorf("%w: feedback is empty", ErrInvalidOutput)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &JournalResult{Scores: scores, Feedback: out.Feedback}, nil
}

// SuggestActions asks for action items targeting the weak areas
func (s *FlowService) SuggestActions(ctx context.Context, req SuggestActionsRequest) ([]string, error) {
	areas := make([]string, len(req.WeakAreas))
	for i, d := range req.WeakAreas {
		areas[i] = string(d)
	}
	data := struct {
		WeakAreas  string
		UserValues string
		Scores     models.Scores
	}{strings.Join(areas, ", "), req.UserValues, req.Scores}

	var out suggestActionsOutput
	err := s.run(ctx, promptSuggestActions, suggestActionsSchema, data, &out, func() error {
		if out.SuggestedActions == nil {
			return fmt.Errorf("%w: suggestedActions missing", ErrInvalidOutput)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.SuggestedActions, nil
}

// Chat runs one conversational turn
func (s *FlowService) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	var out chatOutput
	err := s.run(ctx, promptChat, chatSchema, req, &out, func() error {
		if strings.TrimSpace(out.Response) == "" {
			return fmt.Errorf("%w: response is empty", ErrInvalidOutput)
		}
		if out.ScoreUpdates != nil {
			for name, v := range map[string]*float64{
				"social":       out.ScoreUpdates.Social,
				"personal":     out.ScoreUpdates.Personal,
				"professional": out.ScoreUpdates.Professional,
				"spiritual":    out.ScoreUpdates.Spiritual,
			} {
				if v == nil {
					continue
				}
				if err := checkScore(name, *v); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &ChatResult{Response: out.Response}
	if out.ScoreUpdates != nil && !out.ScoreUpdates.IsEmpty() {
		result.Effects.Present |= EffectScores
		result.Effects.Scores = *out.ScoreUpdates
		result.Effects.Feedback = out.Feedback
	}
	if actions := nonBlank(out.NewActions); len(actions) > 0 {
		result.Effects.Present |= EffectActions
		result.Effects.Actions = actions
	}
	if strings.TrimSpace(out.NewMemory) != "" {
		result.Effects.Present |= EffectMemory
		result.Effects.Memory = out.NewMemory
	}
	return result, nil
}

// ClarificationQuestions asks for open-ended follow-up questions
func (s *FlowService) ClarificationQuestions(ctx context.Context, req ClarificationRequest) ([]string, error) {
	var out clarificationOutput
	err := s.run(ctx, promptClarification, clarificationSchema, req, &out, func() error {
		if len(nonBlank(out.Questions)) == 0 {
			return fmt.Errorf("%w: no questions", ErrInvalidOutput)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nonBlank(out.Questions), nil
}

// run renders the prompt, calls the model with retry, decodes into out and
// validates. Output that fails to decode or validate is not retried.
func (s *FlowService) run(ctx context.Context, name string, schema *genai.Schema, data any, out any, validate func() error) error {
	if s.generator == nil {
		return fmt.Errorf("%w: %s: generator not set", ErrFlowFailed, name)
	}

	p, ok := s.prompts[name]
	if !ok {
		return fmt.Errorf("%w: unknown prompt %q", ErrFlowFailed, name)
	}
	text, err := p.render(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFlowFailed, err)
	}

	err = s.retry.Do(ctx, func(ctx context.Context) error {
		raw, err := s.generator.Generate(ctx, GenerateRequest{
			Prompt:      text,
			Schema:      schema,
			Temperature: p.temperature,
		})
		if err != nil {
			s.log.Warn("generation attempt failed", "flow", name, "error", err)
			return err
		}
		if err := decodeOutput(raw, out); err != nil {
			return permanent(err)
		}
		return permanent(validate())
	})
	if err != nil {
		s.log.Error("flow failed", "flow", name, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrFlowFailed, name, err)
	}
	return nil
}

// decodeOutput tolerates a fenced code block around the JSON document
func decodeOutput(raw string, out any) error {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return nil
}

func requireScores(social, personal, professional, spiritual *float64) (models.Scores, error) {
	values := []struct {
		name string
		v    *float64
	}{
		{"social", social},
		{"personal", personal},
		{"professional", professional},
		{"spiritual", spiritual},
	}
	for _, f := range values {
		if f.v == nil {
			return models.Scores{}, fmt.Errorf("%w: %s score missing", ErrInvalidOutput, f.name)
		}
		if err := checkScore(f.name, *f.v); err != nil {
			return models.Scores{}, err
		}
	}
	return models.Scores{Social: *social, Personal: *personal, Professional: *professional, Spiritual: *spiritual}, nil
}

func checkScore(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
		return fmt.Errorf("%w: %s score %v outside [0,100]", ErrInvalidOutput, name, v)
	}
	return nil
}

func nonBlank(items []string) []string {
	var out []string
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
