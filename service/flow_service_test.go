package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"lifedash-backend/models"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func newTestFlows(t *testing.T, gen *fakeGenerator) *FlowService {
	t.Helper()
	flows, err := NewFlowService(
		FlowWithGenerator(gen),
		FlowWithRetryPolicy(RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}),
	)
	require.NoError(t, err)
	return flows
}

func TestOnboard(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`{"socialScore":60,"personalScore":55,"professionalScore":50,"spiritualScore":50,"dashboardDescription":"A fresh start."}`,
	}}
	flows := newTestFlows(t, gen)

	got, err := flows.Onboard(context.Background(), "I want better health and friendships")

	require.NoError(t, err)
	assert.Equal(t, models.Scores{Social: 60, Personal: 55, Professional: 50, Spiritual: 50}, got.Scores)
	assert.Equal(t, "A fresh start.", got.DashboardDescription)
	require.Len(t, gen.requests, 1)
	assert.Contains(t, gen.requests[0].Prompt, "I want better health and friendships")
	assert.Equal(t, genai.TypeObject, gen.requests[0].Schema.Type)
}

func TestOnboardRejectsInvalidOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `Sure! Here are your scores`},
		{"missing score", `{"socialScore":60,"personalScore":55,"professionalScore":50,"dashboardDescription":"x"}`},
		{"out of range", `{"socialScore":160,"personalScore":55,"professionalScore":50,"spiritualScore":50,"dashboardDescription":"x"}`},
		{"negative", `{"socialScore":-1,"personalScore":55,"professionalScore":50,"spiritualScore":50,"dashboardDescription":"x"}`},
		{"empty description", `{"socialScore":60,"personalScore":55,"professionalScore":50,"spiritualScore":50,"dashboardDescription":" "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{responses: []string{tt.raw, tt.raw, tt.raw}}
			flows := newTestFlows(t, gen)

			got, err := flows.Onboard(context.Background(), "values")

			assert.Nil(t, got)
			assert.ErrorIs(t, err, ErrFlowFailed)
			assert.ErrorIs(t, err, ErrInvalidOutput)
			assert.Equal(t, 1, gen.calls, "invalid output is not retried")
		})
	}
}

func TestFlowRetriesTransientErrors(t *testing.T) {
	gen := &fakeGenerator{
		errs: []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, errors.New("connection reset")},
		responses: []string{"", "",
			`{"updatedSocialScore":40,"updatedPersonalScore":70,"updatedProfessionalScore":60,"updatedSpiritualScore":30,"feedback":"Nice walk."}`,
		},
	}
	flows := newTestFlows(t, gen)

	got, err := flows.ScoreJournal(context.Background(), JournalRequest{Entry: "went for a walk", Scores: models.DefaultScores()})

	require.NoError(t, err)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, models.Scores{Social: 40, Personal: 70, Professional: 60, Spiritual: 30}, got.Scores)
	assert.Equal(t, "Nice walk.", got.Feedback)
}

func TestFlowDoesNotRetryAuthErrors(t *testing.T) {
	gen := &fakeGenerator{errs: []error{&googleapi.Error{Code: http.StatusUnauthorized}}}
	flows := newTestFlows(t, gen)

	_, err := flows.ScoreJournal(context.Background(), JournalRequest{Entry: "x"})

	assert.ErrorIs(t, err, ErrFlowFailed)
	assert.Equal(t, 1, gen.calls)
}

func TestFlowFailsAfterExhaustingRetries(t *testing.T) {
	boom := errors.New("unavailable")
	gen := &fakeGenerator{errs: []error{boom, boom, boom}}
	flows := newTestFlows(t, gen)

	_, err := flows.SuggestActions(context.Background(), SuggestActionsRequest{})

	assert.ErrorIs(t, err, ErrFlowFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, gen.calls)
}

func TestSuggestActionsJoinsWeakAreas(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"```json\n{\"suggestedActions\":[\"Call a friend\",\"Read 10 pages\"]}\n```"}}
	flows := newTestFlows(t, gen)

	got, err := flows.SuggestActions(context.Background(), SuggestActionsRequest{
		WeakAreas:  []models.Domain{models.DomainSpiritual, models.DomainSocial},
		UserValues: "health",
		Scores:     models.Scores{Social: 40, Personal: 70, Professional: 60, Spiritual: 30},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Call a friend", "Read 10 pages"}, got)
	assert.Contains(t, gen.requests[0].Prompt, "Weak Areas: spiritual, social")
	assert.Contains(t, gen.requests[0].Prompt, "Spiritual Score: 30")
}

func TestChatEffects(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		present EffectSet
		check   func(t *testing.T, r *ChatResult)
	}{
		{
			name:    "reply only",
			raw:     `{"response":"Tell me more."}`,
			present: 0,
		},
		{
			name:    "partial score update",
			raw:     `{"response":"Great!","scoreUpdates":{"social":45},"feedback":"Social up."}`,
			present: EffectScores,
			check: func(t *testing.T, r *ChatResult) {
				require.NotNil(t, r.Effects.Scores.Social)
				assert.Equal(t, 45.0, *r.Effects.Scores.Social)
				assert.Nil(t, r.Effects.Scores.Personal)
				assert.Equal(t, "Social up.", r.Effects.Feedback)
			},
		},
		{
			name:    "actions and memory",
			raw:     `{"response":"Ok","newActions":["Stretch"," "],"newMemory":"Training for a marathon"}`,
			present: EffectActions | EffectMemory,
			check: func(t *testing.T, r *ChatResult) {
				assert.Equal(t, []string{"Stretch"}, r.Effects.Actions)
				assert.Equal(t, "Training for a marathon", r.Effects.Memory)
			},
		},
		{
			name:    "blank actions and memory are absent",
			raw:     `{"response":"Ok","newActions":[""],"newMemory":"  ","scoreUpdates":{}}`,
			present: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flows := newTestFlows(t, &fakeGenerator{responses: []string{tt.raw}})

			got, err := flows.Chat(context.Background(), ChatRequest{Message: "hi"})

			require.NoError(t, err)
			assert.Equal(t, tt.present, got.Effects.Present)
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestChatRendersContext(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"response":"Hello"}`}}
	flows := newTestFlows(t, gen)

	_, err := flows.Chat(context.Background(), ChatRequest{
		Message:    "How am I doing?",
		History:    []models.ChatTurn{{Role: models.RoleUser, Content: "I ran 5k"}, {Role: models.RoleAssistant, Content: "Well done"}},
		Scores:     models.Scores{Social: 62.5, Personal: 50, Professional: 50, Spiritual: 50},
		UserValues: "health",
		Memories:   []string{"Training for a marathon"},
	})

	require.NoError(t, err)
	prompt := gen.requests[0].Prompt
	assert.Contains(t, prompt, "user: I ran 5k")
	assert.Contains(t, prompt, "assistant: Well done")
	assert.Contains(t, prompt, "- Training for a marathon")
	assert.Contains(t, prompt, "Social: 62.5")
	assert.Contains(t, prompt, "How am I doing?")
}

func TestChatRejectsOutOfRangeUpdate(t *testing.T) {
	flows := newTestFlows(t, &fakeGenerator{responses: []string{`{"response":"Ok","scoreUpdates":{"spiritual":101}}`}})

	_, err := flows.Chat(context.Background(), ChatRequest{Message: "hi"})

	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestChatRequiresResponse(t *testing.T) {
	flows := newTestFlows(t, &fakeGenerator{responses: []string{`{"newMemory":"x"}`}})

	_, err := flows.Chat(context.Background(), ChatRequest{Message: "hi"})

	assert.ErrorIs(t, err, ErrFlowFailed)
}

func TestClarificationQuestions(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"questions":["What does health mean to you?",""]}`}}
	flows := newTestFlows(t, gen)

	got, err := flows.ClarificationQuestions(context.Background(), ClarificationRequest{UserInput: "health", Context: "onboarding"})

	require.NoError(t, err)
	assert.Equal(t, []string{"What does health mean to you?"}, got)
	assert.Contains(t, gen.requests[0].Prompt, "Context: onboarding")
}

func TestFlowWithoutGenerator(t *testing.T) {
	flows, err := NewFlowService()
	require.NoError(t, err)

	_, err = flows.Onboard(context.Background(), "x")

	assert.ErrorIs(t, err, ErrFlowFailed)
}

func TestLoadPromptsRequiresAllFlows(t *testing.T) {
	_, err := loadPrompts([]byte("onboarding:\n  template: hi\n"))

	assert.Error(t, err)
}
