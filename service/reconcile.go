package service

import (
	"sort"
	"strings"
	"time"

	"lifedash-backend/models"

	"github.com/google/uuid"
)

const (
	// MaxHistoryEntries caps the score history; the oldest entries are dropped
	MaxHistoryEntries = 30

	// MaxSuggestedActions is how many journal suggestions are kept
	MaxSuggestedActions = 3

	weakAreaCount = 2
)

// ScoreUpdate carries the domains a chat turn changed. Nil fields keep the
// current value.
type ScoreUpdate struct {
	Social       *float64 `json:"social,omitempty"`
	Personal     *float64 `json:"personal,omitempty"`
	Professional *float64 `json:"professional,omitempty"`
	Spiritual    *float64 `json:"spiritual,omitempty"`
}

// FullUpdate returns an update that overwrites all four domains
func FullUpdate(s models.Scores) ScoreUpdate {
	return ScoreUpdate{
		Social:       &s.Social,
		Personal:     &s.Personal,
		Professional: &s.Professional,
		Spiritual:    &s.Spiritual,
	}
}

// IsEmpty reports whether no domain is set
func (u ScoreUpdate) IsEmpty() bool {
	return u.Social == nil && u.Personal == nil && u.Professional == nil && u.Spiritual == nil
}

// Apply overwrites current field by field
func (u ScoreUpdate) Apply(current models.Scores) models.Scores {
	if u.Social != nil {
		current.Social = *u.Social
	}
	if u.Personal != nil {
		current.Personal = *u.Personal
	}
	if u.Professional != nil {
		current.Professional = *u.Professional
	}
	if u.Spiritual != nil {
		current.Spiritual = *u.Spiritual
	}
	return current
}

// AppendHistory appends one entry, keeping at most MaxHistoryEntries
func AppendHistory(history models.ScoreHistory, scores models.Scores, at time.Time) models.ScoreHistory {
	keep := history
	if len(keep) > MaxHistoryEntries-1 {
		keep = keep[len(keep)-(MaxHistoryEntries-1):]
	}

	out := make(models.ScoreHistory, 0, len(keep)+1)
	out = append(out, keep...)
	return append(out, models.ScoreHistoryEntry{Date: at, Scores: scores})
}

// MergeActions prepends the suggestions whose text is not already present,
// in suggestion order. Matching is exact and case-sensitive; duplicates
// inside the batch are collapsed too. Blank suggestions are ignored.
func MergeActions(existing models.ActionItems, suggestions []string, newID func() uuid.UUID) (models.ActionItems, int) {
	seen := make(map[string]struct{}, len(existing)+len(suggestions))
	for _, item := range existing {
		seen[item.Text] = struct{}{}
	}

	var fresh models.ActionItems
	for _, text := range suggestions {
		if strings.TrimSpace(text) == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		fresh = append(fresh, models.ActionItem{ID: newID(), Text: text})
	}

	merged := make(models.ActionItems, 0, len(fresh)+len(existing))
	merged = append(merged, fresh...)
	merged = append(merged, existing...)
	return merged, len(fresh)
}

// CapSuggestions keeps the first MaxSuggestedActions non-blank suggestions
func CapSuggestions(suggestions []string) []string {
	out := make([]string, 0, MaxSuggestedActions)
	for _, s := range suggestions {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
		if len(out) == MaxSuggestedActions {
			break
		}
	}
	return out
}

// WeakAreas returns the two lowest-scoring domains. Ties keep the order
// social, personal, professional, spiritual.
func WeakAreas(scores models.Scores) []models.Domain {
	domains := append([]models.Domain(nil), models.Domains...)
	sort.SliceStable(domains, func(i, j int) bool {
		return scores.Get(domains[i]) < scores.Get(domains[j])
	})
	return domains[:weakAreaCount]
}

// ToggleAction flips the completion flag of exactly one item
func ToggleAction(items models.ActionItems, id uuid.UUID) (models.ActionItems, error) {
	out := append(models.ActionItems(nil), items...)
	for i := range out {
		if out[i].ID == id {
			out[i].Completed = !out[i].Completed
			return out, nil
		}
	}
	return nil, ErrActionNotFound
}
