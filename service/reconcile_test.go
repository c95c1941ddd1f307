package service

import (
	"testing"
	"time"

	"lifedash-backend/models"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() uuid.UUID {
	n := 0
	return func() uuid.UUID {
		n++
		var id uuid.UUID
		id[15] = byte(n)
		return id
	}
}

func historyOf(n int) models.ScoreHistory {
	h := make(models.ScoreHistory, n)
	for i := range h {
		h[i] = models.ScoreHistoryEntry{Date: testNow.AddDate(0, 0, -n+i), Scores: models.DefaultScores()}
	}
	return h
}

func TestAppendHistoryNeverExceedsCap(t *testing.T) {
	for _, start := range []int{0, 1, 28, 29, 30, 31, 45} {
		history := historyOf(start)
		for i := 0; i < 3; i++ {
			history = AppendHistory(history, models.DefaultScores(), testNow.Add(time.Duration(i)*time.Hour))
			assert.LessOrEqual(t, len(history), MaxHistoryEntries, "start=%d", start)
		}
	}
}

func TestAppendHistoryDropsOldest(t *testing.T) {
	history := historyOf(MaxHistoryEntries)
	newest := models.Scores{Social: 1, Personal: 2, Professional: 3, Spiritual: 4}

	got := AppendHistory(history, newest, testNow)

	require.Len(t, got, MaxHistoryEntries)
	assert.Equal(t, history[1].Date, got[0].Date)
	assert.Equal(t, newest, got[len(got)-1].Scores)
	assert.Equal(t, testNow, got[len(got)-1].Date)
	// the input is not modified
	assert.Len(t, history, MaxHistoryEntries)
}

func TestScoreUpdateIsFieldWise(t *testing.T) {
	current := models.Scores{Social: 40, Personal: 50, Professional: 60, Spiritual: 70}
	v := 45.0

	got := ScoreUpdate{Social: &v}.Apply(current)

	assert.Equal(t, models.Scores{Social: 45, Personal: 50, Professional: 60, Spiritual: 70}, got)
}

func TestFullUpdateOverwritesAll(t *testing.T) {
	next := models.Scores{Social: 1, Personal: 2, Professional: 3, Spiritual: 4}

	got := FullUpdate(next).Apply(models.DefaultScores())

	assert.Equal(t, next, got)
}

func TestMergeActions(t *testing.T) {
	existingID := uuid.New()
	existing := models.ActionItems{{ID: existingID, Text: "Walk daily", Completed: true}}

	tests := []struct {
		name        string
		suggestions []string
		wantTexts   []string
		wantAdded   int
	}{
		{
			name:        "existing text adds nothing",
			suggestions: []string{"Walk daily"},
			wantTexts:   []string{"Walk daily"},
		},
		{
			name:        "case sensitive",
			suggestions: []string{"walk daily"},
			wantTexts:   []string{"walk daily", "Walk daily"},
			wantAdded:   1,
		},
		{
			name:        "batch duplicates collapse and order is kept",
			suggestions: []string{"Call a friend", "Call a friend", "Read 10 pages"},
			wantTexts:   []string{"Call a friend", "Read 10 pages", "Walk daily"},
			wantAdded:   2,
		},
		{
			name:        "blank suggestions ignored",
			suggestions: []string{"", "  ", "Stretch"},
			wantTexts:   []string{"Stretch", "Walk daily"},
			wantAdded:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, added := MergeActions(existing, tt.suggestions, sequentialIDs())

			texts := make([]string, len(merged))
			for i, item := range merged {
				texts[i] = item.Text
			}
			if diff := cmp.Diff(tt.wantTexts, texts); diff != "" {
				t.Errorf("texts mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantAdded, added)

			last := merged[len(merged)-1]
			assert.Equal(t, existingID, last.ID)
			assert.True(t, last.Completed)
			for _, item := range merged[:added] {
				assert.False(t, item.Completed)
				assert.NotEqual(t, uuid.Nil, item.ID)
			}
		})
	}
}

func TestCapSuggestions(t *testing.T) {
	got := CapSuggestions([]string{"a", " ", "b", "c", "d"})

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestWeakAreas(t *testing.T) {
	tests := []struct {
		name   string
		scores models.Scores
		want   []models.Domain
	}{
		{
			name:   "two lowest",
			scores: models.Scores{Social: 40, Personal: 70, Professional: 60, Spiritual: 30},
			want:   []models.Domain{models.DomainSpiritual, models.DomainSocial},
		},
		{
			name:   "all tied keeps canonical order",
			scores: models.DefaultScores(),
			want:   []models.Domain{models.DomainSocial, models.DomainPersonal},
		},
		{
			name:   "partial tie",
			scores: models.Scores{Social: 80, Personal: 20, Professional: 50, Spiritual: 50},
			want:   []models.Domain{models.DomainPersonal, models.DomainProfessional},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeakAreas(tt.scores))
		})
	}
}

func TestToggleAction(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	items := models.ActionItems{{ID: a, Text: "one"}, {ID: b, Text: "two", Completed: true}}

	got, err := ToggleAction(items, b)
	require.NoError(t, err)
	assert.False(t, got[1].Completed)
	assert.False(t, got[0].Completed)
	assert.True(t, items[1].Completed, "input must not change")

	_, err = ToggleAction(items, uuid.New())
	assert.ErrorIs(t, err, ErrActionNotFound)
}
