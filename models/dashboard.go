package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Domain names a life domain
type Domain string

const (
	DomainSocial       Domain = "social"
	DomainPersonal     Domain = "personal"
	DomainProfessional Domain = "professional"
	DomainSpiritual    Domain = "spiritual"
)

// Domains lists the four life domains in their canonical order
var Domains = []Domain{DomainSocial, DomainPersonal, DomainProfessional, DomainSpiritual}

// DefaultScore is the score seeded for every domain before onboarding
const DefaultScore = 50

// Scores represents the four domain scores, conceptually bounded to [0,100]
type Scores struct {
	Social       float64 `json:"social"`
	Personal     float64 `json:"personal"`
	Professional float64 `json:"professional"`
	Spiritual    float64 `json:"spiritual"`
}

// DefaultScores returns the pre-onboarding scores
func DefaultScores() Scores {
	return Scores{
		Social:       DefaultScore,
		Personal:     DefaultScore,
		Professional: DefaultScore,
		Spiritual:    DefaultScore,
	}
}

// Get returns the score for a domain
func (s Scores) Get(d Domain) float64 {
	switch d {
	case DomainSocial:
		return s.Social
	case DomainPersonal:
		return s.Personal
	case DomainProfessional:
		return s.Professional
	case DomainSpiritual:
		return s.Spiritual
	default:
		return 0
	}
}

// Value implements driver.Valuer for JSONB
func (s Scores) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *Scores) Scan(value interface{}) error {
	return scanJSON(value, s)
}

// ScoreHistoryEntry represents a dated snapshot of the scores
type ScoreHistoryEntry struct {
	Date   time.Time `json:"date"`
	Scores Scores    `json:"scores"`
}

// ScoreHistory is the insertion-ordered list of score snapshots
type ScoreHistory []ScoreHistoryEntry

// Value implements driver.Valuer for JSONB
func (h ScoreHistory) Value() (driver.Value, error) {
	if h == nil {
		h = ScoreHistory{}
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner for JSONB
func (h *ScoreHistory) Scan(value interface{}) error {
	*h = make(ScoreHistory, 0)
	return scanJSON(value, h)
}

// ActionItem represents a suggested action the user can check off
type ActionItem struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
}

// ActionItems is the newest-first list of action items
type ActionItems []ActionItem

// Value implements driver.Valuer for JSONB
func (a ActionItems) Value() (driver.Value, error) {
	if a == nil {
		a = ActionItems{}
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner for JSONB
func (a *ActionItems) Scan(value interface{}) error {
	*a = make(ActionItems, 0)
	return scanJSON(value, a)
}

// Memories is the append-only list of durable facts about the user
type Memories []string

// Value implements driver.Valuer for JSONB
func (m Memories) Value() (driver.Value, error) {
	if m == nil {
		m = Memories{}
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB
func (m *Memories) Scan(value interface{}) error {
	*m = make(Memories, 0)
	return scanJSON(value, m)
}

// OnboardingState represents the write-once onboarding metadata
type OnboardingState struct {
	Completed            bool   `json:"completed"`
	UserValues           string `json:"userValues"`
	DashboardDescription string `json:"dashboardDescription,omitempty"`
}

// Value implements driver.Valuer for JSONB
func (o OnboardingState) Value() (driver.Value, error) {
	return json.Marshal(o)
}

// Scan implements sql.Scanner for JSONB
func (o *OnboardingState) Scan(value interface{}) error {
	return scanJSON(value, o)
}

// UserDocument aggregates everything persisted for one user except chat messages.
// Fields written by no patch yet are nil.
type UserDocument struct {
	UserID       uuid.UUID        `json:"userId"`
	Scores       *Scores          `json:"scores,omitempty"`
	ScoreHistory ScoreHistory     `json:"scoreHistory,omitempty"`
	ActionItems  ActionItems      `json:"actionItems,omitempty"`
	Memories     Memories         `json:"memories,omitempty"`
	Onboarding   *OnboardingState `json:"onboarding,omitempty"`
	Version      int64            `json:"version"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// DocumentPatch is a shallow merge: nil fields are left untouched, non-nil
// fields replace the stored field wholesale.
type DocumentPatch struct {
	Scores       *Scores
	ScoreHistory ScoreHistory
	ActionItems  ActionItems
	Memories     Memories
	Onboarding   *OnboardingState
}

// IsEmpty reports whether the patch writes nothing
func (p DocumentPatch) IsEmpty() bool {
	return p.Scores == nil && p.ScoreHistory == nil && p.ActionItems == nil &&
		p.Memories == nil && p.Onboarding == nil
}

// Apply returns a copy of doc with the patch merged in
func (p DocumentPatch) Apply(doc UserDocument) UserDocument {
	if p.Scores != nil {
		s := *p.Scores
		doc.Scores = &s
	}
	if p.ScoreHistory != nil {
		doc.ScoreHistory = append(ScoreHistory{}, p.ScoreHistory...)
	}
	if p.ActionItems != nil {
		doc.ActionItems = append(ActionItems{}, p.ActionItems...)
	}
	if p.Memories != nil {
		doc.Memories = append(Memories{}, p.Memories...)
	}
	if p.Onboarding != nil {
		o := *p.Onboarding
		doc.Onboarding = &o
	}
	return doc
}

// scanJSON decodes a JSONB column value. pgx and database/sql hand back
// either []byte or string depending on the driver.
func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	if len(bytes) == 0 {
		return nil
	}

	return json.Unmarshal(bytes, dest)
}
