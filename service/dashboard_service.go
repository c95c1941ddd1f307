package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"lifedash-backend/logger"
	"lifedash-backend/models"
	"lifedash-backend/repository"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	ErrPersistenceFailed  = errors.New("failed to save dashboard")
	ErrActionNotFound     = errors.New("action item not found")
	ErrEmptyJournalEntry  = errors.New("journal entry is empty")
	ErrEmptyMessage       = errors.New("chat message is empty")
	ErrEmptyValues        = errors.New("values and aspirations are required")
	ErrInvalidRole        = errors.New("invalid chat role")
	ErrServiceClosed      = errors.New("dashboard service closed")
	ErrOnboardingRequired = errors.New("onboarding has not been completed")
)

// ApologyMessage is appended to the transcript when the chat flow fails
const ApologyMessage = "I'm sorry, I encountered an error. Please try again."

// DefaultScoreFeedback describes a chat score update that came without feedback
const DefaultScoreFeedback = "Your scores were updated based on our conversation."

// requireOnboarded guards every write other than onboarding itself, so a user
// document never exists without its onboarding field
func requireOnboarded(state *DashboardState) error {
	if !state.Onboarding.Completed {
		return ErrOnboardingRequired
	}
	return nil
}

// Persistence is the storage surface the dashboard needs
type Persistence interface {
	GetDocument(ctx context.Context, userID uuid.UUID) (*models.UserDocument, error)
	MergeDocument(ctx context.Context, userID uuid.UUID, patch models.DocumentPatch) (int64, error)
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatMessage, error)
	Subscribe(ctx context.Context, userID uuid.UUID, chatLimit int) (<-chan repository.Snapshot, error)
}

// DashboardState is a user's in-memory dashboard
type DashboardState struct {
	UserID       uuid.UUID              `json:"userId"`
	Scores       models.Scores          `json:"scores"`
	ScoreHistory models.ScoreHistory    `json:"scoreHistory"`
	ActionItems  models.ActionItems     `json:"actionItems"`
	Memories     models.Memories        `json:"memories"`
	Onboarding   models.OnboardingState `json:"onboarding"`
	ChatMessages []models.ChatMessage   `json:"chatMessages"`
	Version      int64                  `json:"version"`
}

func (s DashboardState) clone() DashboardState {
	s.ScoreHistory = append(models.ScoreHistory{}, s.ScoreHistory...)
	s.ActionItems = append(models.ActionItems{}, s.ActionItems...)
	s.Memories = append(models.Memories{}, s.Memories...)
	s.ChatMessages = append([]models.ChatMessage{}, s.ChatMessages...)
	return s
}

// EventType distinguishes stream events
type EventType string

const (
	EventState  EventType = "state"
	EventNotice EventType = "notice"
)

// Event is pushed to subscribers of a user's dashboard
type Event struct {
	Type   EventType       `json:"type"`
	State  *DashboardState `json:"state,omitempty"`
	Notice *models.Notice  `json:"notice,omitempty"`
}

// OperationResult represents the state after an operation plus its notices
type OperationResult struct {
	State   *DashboardState     `json:"state"`
	Reply   *models.ChatMessage `json:"reply,omitempty"`
	Notices []models.Notice     `json:"notices,omitempty"`
}

const listenerBuffer = 16

type session struct {
	userID uuid.UUID

	mu      sync.Mutex
	state   DashboardState
	started bool
	cancel  context.CancelFunc

	lmu       sync.Mutex
	listeners map[chan Event]struct{}
}

// DashboardService holds one session per user and applies operations to it
type DashboardService struct {
	store     Persistence
	flows     Flows
	retry     RetryPolicy
	chatLimit int
	now       func() time.Time
	newID     func() uuid.UUID
	log       *logger.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	closed   bool
	baseCtx  context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// DashboardServiceOption is a functional option for DashboardService
type DashboardServiceOption func(*DashboardService)

// DashboardWithPersistence sets the storage backend
func DashboardWithPersistence(p Persistence) DashboardServiceOption {
	return func(s *DashboardService) {
		s.store = p
	}
}

// DashboardWithFlows sets the AI flows
func DashboardWithFlows(f Flows) DashboardServiceOption {
	return func(s *DashboardService) {
		s.flows = f
	}
}

// DashboardWithRetryPolicy sets the retry policy for writes
func DashboardWithRetryPolicy(p RetryPolicy) DashboardServiceOption {
	return func(s *DashboardService) {
		s.retry = p
	}
}

// DashboardWithChatLimit sets how many recent messages a session keeps
func DashboardWithChatLimit(limit int) DashboardServiceOption {
	return func(s *DashboardService) {
		if limit > 0 {
			s.chatLimit = limit
		}
	}
}

// DashboardWithClock sets the time source
func DashboardWithClock(now func() time.Time) DashboardServiceOption {
	return func(s *DashboardService) {
		s.now = now
	}
}

// DashboardWithIDGenerator sets how action item ids are generated
func DashboardWithIDGenerator(newID func() uuid.UUID) DashboardServiceOption {
	return func(s *DashboardService) {
		s.newID = newID
	}
}

// DashboardWithLogger sets the logger
func DashboardWithLogger(log *logger.Logger) DashboardServiceOption {
	return func(s *DashboardService) {
		s.log = log
	}
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(opts ...DashboardServiceOption) *DashboardService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &DashboardService{
		retry:     DefaultRetryPolicy(),
		chatLimit: models.DefaultChatHistoryLimit,
		now:       time.Now,
		newID:     uuid.New,
		log:       logger.Nop(),
		sessions:  make(map[uuid.UUID]*session),
		baseCtx:   ctx,
		stop:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "dashboard")
	return s
}

// Initialize subscribes to the user's data on first use and returns the
// current state. A user without a document gets local default scores that
// are not persisted until onboarding completes.
func (s *DashboardService) Initialize(ctx context.Context, userID uuid.UUID) (*DashboardState, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	state := sess.state.clone()
	sess.mu.Unlock()
	return &state, nil
}

func (s *DashboardService) session(ctx context.Context, userID uuid.UUID) (*session, error) {
	if s.store == nil {
		return nil, errors.New("persistence not set")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{userID: userID, listeners: make(map[chan Event]struct{})}
		s.sessions[userID] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.started {
		return sess, nil
	}

	subCtx, cancel := context.WithCancel(s.baseCtx)
	var snaps <-chan repository.Snapshot
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		snaps, err = s.store.Subscribe(subCtx, userID, s.chatLimit)
		return err
	})
	if err != nil {
		cancel()
		s.log.Error("failed to subscribe", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	var first repository.Snapshot
	select {
	case first = <-snaps:
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, ErrServiceClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	sess.state = DashboardState{UserID: userID}
	s.applySnapshot(sess, first)
	sess.cancel = cancel
	sess.started = true

	go s.watch(sess, snaps)

	s.log.Info("session started", "user_id", userID, "version", sess.state.Version)
	return sess, nil
}

// watch applies remote snapshots until the subscription ends
func (s *DashboardService) watch(sess *session, snaps <-chan repository.Snapshot) {
	defer s.wg.Done()

	for snap := range snaps {
		sess.mu.Lock()
		changed := s.applySnapshot(sess, snap)
		state := sess.state.clone()
		sess.mu.Unlock()

		if changed {
			sess.broadcast(Event{Type: EventState, State: &state})
		}
	}
}

// applySnapshot must be called with sess.mu held
func (s *DashboardService) applySnapshot(sess *session, snap repository.Snapshot) bool {
	if snap.Err != nil {
		s.log.Warn("snapshot read failed", "user_id", sess.userID, "kind", snap.Kind, "error", snap.Err)
		return false
	}

	changed := false
	if snap.Kind == repository.SnapshotInitial || snap.Kind == repository.SnapshotChat {
		sess.state.ChatMessages = append([]models.ChatMessage{}, snap.Messages...)
		changed = true
	}

	if snap.Kind == repository.SnapshotInitial || snap.Kind == repository.SnapshotDocument {
		doc := snap.Document
		switch {
		case doc == nil && snap.Kind == repository.SnapshotInitial:
			s.seedDefaults(sess)
			changed = true
		case doc == nil:
		case doc.Version <= sess.state.Version:
			s.log.Debug("dropping stale snapshot", "user_id", sess.userID,
				"snapshot_version", doc.Version, "local_version", sess.state.Version)
		default:
			replaceFromDocument(&sess.state, doc)
			changed = true
		}
	}
	return changed
}

func (s *DashboardService) seedDefaults(sess *session) {
	scores := models.DefaultScores()
	sess.state.Scores = scores
	sess.state.ScoreHistory = models.ScoreHistory{{Date: s.now(), Scores: scores}}
	sess.state.ActionItems = models.ActionItems{}
	sess.state.Memories = models.Memories{}
	sess.state.Onboarding = models.OnboardingState{}
	sess.state.Version = 0
}

func replaceFromDocument(state *DashboardState, doc *models.UserDocument) {
	state.Scores = models.DefaultScores()
	if doc.Scores != nil {
		state.Scores = *doc.Scores
	}
	state.ScoreHistory = append(models.ScoreHistory{}, doc.ScoreHistory...)
	state.ActionItems = append(models.ActionItems{}, doc.ActionItems...)
	state.Memories = append(models.Memories{}, doc.Memories...)
	state.Onboarding = models.OnboardingState{}
	if doc.Onboarding != nil {
		state.Onboarding = *doc.Onboarding
	}
	state.Version = doc.Version
}

// mutate computes the next state on a copy, persists the patch and commits
// the copy only once the write succeeded
func (s *DashboardService) mutate(
	ctx context.Context,
	userID uuid.UUID,
	build func(next *DashboardState) (models.DocumentPatch, error),
) (*DashboardState, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	next := sess.state.clone()
	patch, err := build(&next)
	if err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	if patch.IsEmpty() {
		state := sess.state.clone()
		sess.mu.Unlock()
		return &state, nil
	}

	var version int64
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		version, err = s.store.MergeDocument(ctx, userID, patch)
		return err
	})
	if err != nil {
		sess.mu.Unlock()
		s.log.Error("failed to persist dashboard", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	expected := sess.state.Version + 1
	next.Version = version
	sess.state = next
	if version != expected {
		s.reconcile(ctx, sess, version)
	}
	state := sess.state.clone()
	sess.mu.Unlock()

	sess.broadcast(Event{Type: EventState, State: &state})
	return &state, nil
}

// reconcile re-reads the document after another writer interleaved with
// ours. Must be called with sess.mu held.
func (s *DashboardService) reconcile(ctx context.Context, sess *session, written int64) {
	s.log.Info("interleaved write detected, re-reading document",
		"user_id", sess.userID, "written_version", written)

	doc, err := s.store.GetDocument(ctx, sess.userID)
	if err != nil {
		s.log.Warn("reconcile read failed", "user_id", sess.userID, "error", err)
		return
	}
	if doc.Version >= written {
		replaceFromDocument(&sess.state, doc)
	}
}

// CompleteOnboarding writes the full initial document in one patch
func (s *DashboardService) CompleteOnboarding(
	ctx context.Context,
	userID uuid.UUID,
	userValues string,
	baseline OnboardingResult,
) (*OperationResult, error) {
	state, err := s.mutate(ctx, userID, func(next *DashboardState) (models.DocumentPatch, error) {
		next.Scores = baseline.Scores
		next.ScoreHistory = models.ScoreHistory{{Date: s.now(), Scores: baseline.Scores}}
		next.ActionItems = models.ActionItems{}
		next.Memories = models.Memories{}
		next.Onboarding = models.OnboardingState{
			Completed:            true,
			UserValues:           userValues,
			DashboardDescription: baseline.DashboardDescription,
		}

		scores := next.Scores
		onboarding := next.Onboarding
		return models.DocumentPatch{
			Scores:       &scores,
			ScoreHistory: next.ScoreHistory,
			ActionItems:  next.ActionItems,
			Memories:     next.Memories,
			Onboarding:   &onboarding,
		}, nil
	})
	if err != nil {
		s.notifyFailure(userID, "Onboarding Failed", "There was an error setting up your dashboard. Please try again.")
		return nil, err
	}

	return s.result(userID, state, nil, models.Info("Dashboard Created!", "Welcome to your new Life OS. Let's get started.")), nil
}

// SubmitOnboarding runs the onboarding flow and persists its baseline
func (s *DashboardService) SubmitOnboarding(ctx context.Context, userID uuid.UUID, userValues string) (*OperationResult, error) {
	if strings.TrimSpace(userValues) == "" {
		return nil, ErrEmptyValues
	}
	if s.flows == nil {
		return nil, errors.New("flows not set")
	}
	if _, err := s.session(ctx, userID); err != nil {
		return nil, err
	}

	baseline, err := s.flows.Onboard(ctx, userValues)
	if err != nil {
		s.notifyFailure(userID, "Onboarding Failed", "There was an error setting up your dashboard. Please try again.")
		return nil, err
	}
	return s.CompleteOnboarding(ctx, userID, userValues, *baseline)
}

// ApplyChatResponse merges the present effects of a chat turn and persists
// them as one patch
func (s *DashboardService) ApplyChatResponse(ctx context.Context, userID uuid.UUID, effects AssistantEffects) (*OperationResult, error) {
	var notices []models.Notice
	state, err := s.mutate(ctx, userID, func(next *DashboardState) (models.DocumentPatch, error) {
		notices = nil
		if err := requireOnboarded(next); err != nil {
			return models.DocumentPatch{}, err
		}
		var patch models.DocumentPatch

		if effects.Present.Has(EffectScores) && !effects.Scores.IsEmpty() {
			next.Scores = effects.Scores.Apply(next.Scores)
			next.ScoreHistory = AppendHistory(next.ScoreHistory, next.Scores, s.now())
			scores := next.Scores
			patch.Scores = &scores
			patch.ScoreHistory = next.ScoreHistory
			feedback := effects.Feedback
			if strings.TrimSpace(feedback) == "" {
				feedback = DefaultScoreFeedback
			}
			notices = append(notices, models.Info("Dashboard Updated!", feedback))
		}

		if effects.Present.Has(EffectActions) {
			merged, added := MergeActions(next.ActionItems, effects.Actions, s.newID)
			if added > 0 {
				next.ActionItems = merged
				patch.ActionItems = merged
				notices = append(notices, models.Info("New Actions Suggested!", "Check your action items list."))
			}
		}

		if effects.Present.Has(EffectMemory) && strings.TrimSpace(effects.Memory) != "" {
			next.Memories = append(next.Memories, effects.Memory)
			patch.Memories = next.Memories
			notices = append(notices, models.Info("Memory Saved!", "I'll remember that."))
		}

		return patch, nil
	})
	if errors.Is(err, ErrOnboardingRequired) {
		return nil, err
	}
	if err != nil {
		s.notifyFailure(userID, "Error Processing Message", "Something went wrong. Please try again.")
		return nil, err
	}
	return s.result(userID, state, nil, notices...), nil
}

// RecordJournalEntry rescores the dashboard from a journal entry, then
// suggests actions for the two weakest domains. A failed suggestion step
// leaves the score update in place.
func (s *DashboardService) RecordJournalEntry(ctx context.Context, userID uuid.UUID, entry string) (*OperationResult, error) {
	if strings.TrimSpace(entry) == "" {
		return nil, ErrEmptyJournalEntry
	}
	if s.flows == nil {
		return nil, errors.New("flows not set")
	}

	current, err := s.Initialize(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := requireOnboarded(current); err != nil {
		return nil, err
	}

	scored, err := s.flows.ScoreJournal(ctx, JournalRequest{Entry: entry, Scores: current.Scores})
	if err != nil {
		s.notifyFailure(userID, "Error Processing Entry", "Something went wrong. Please try again.")
		return nil, err
	}

	state, err := s.mutate(ctx, userID, func(next *DashboardState) (models.DocumentPatch, error) {
		if err := requireOnboarded(next); err != nil {
			return models.DocumentPatch{}, err
		}
		next.Scores = scored.Scores
		next.ScoreHistory = AppendHistory(next.ScoreHistory, next.Scores, s.now())
		scores := next.Scores
		return models.DocumentPatch{Scores: &scores, ScoreHistory: next.ScoreHistory}, nil
	})
	if err != nil {
		s.notifyFailure(userID, "Error Processing Entry", "Something went wrong. Please try again.")
		return nil, err
	}

	notices := []models.Notice{models.Info("Dashboard Updated", scored.Feedback)}

	suggestions, err := s.flows.SuggestActions(ctx, SuggestActionsRequest{
		WeakAreas:  WeakAreas(state.Scores),
		UserValues: state.Onboarding.UserValues,
		Scores:     state.Scores,
	})
	if err != nil {
		s.log.Warn("action suggestion failed", "user_id", userID, "error", err)
		notices = append(notices, models.Failure("Could Not Suggest Actions", "Your scores were updated, but no new actions could be suggested."))
		return s.result(userID, state, nil, notices...), nil
	}

	added := 0
	withActions, err := s.mutate(ctx, userID, func(next *DashboardState) (models.DocumentPatch, error) {
		var merged models.ActionItems
		merged, added = MergeActions(next.ActionItems, CapSuggestions(suggestions), s.newID)
		if added == 0 {
			return models.DocumentPatch{}, nil
		}
		next.ActionItems = merged
		return models.DocumentPatch{ActionItems: merged}, nil
	})
	if err != nil {
		notices = append(notices, models.Failure("Could Not Save Actions", "Your scores were updated, but the suggested actions could not be saved."))
		return s.result(userID, state, nil, notices...), nil
	}
	if added > 0 {
		notices = append(notices, models.Info("New Actions Suggested!", "Check your action items list."))
	}
	return s.result(userID, withActions, nil, notices...), nil
}

// ToggleActionItem flips the completion flag of one action item
func (s *DashboardService) ToggleActionItem(ctx context.Context, userID uuid.UUID, actionID uuid.UUID) (*OperationResult, error) {
	state, err := s.mutate(ctx, userID, func(next *DashboardState) (models.DocumentPatch, error) {
		if err := requireOnboarded(next); err != nil {
			return models.DocumentPatch{}, err
		}
		items, err := ToggleAction(next.ActionItems, actionID)
		if err != nil {
			return models.DocumentPatch{}, err
		}
		next.ActionItems = items
		return models.DocumentPatch{ActionItems: items}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.result(userID, state, nil), nil
}

// AppendChatMessage writes one message to the user's chat collection. The
// user document is never touched.
func (s *DashboardService) AppendChatMessage(ctx context.Context, userID uuid.UUID, role models.ChatRole, content string) (*models.ChatMessage, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{UserID: userID, Role: role, Content: content}
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.AppendMessage(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	sess.mu.Lock()
	sess.appendLocal(*msg, s.chatLimit)
	sess.mu.Unlock()
	return msg, nil
}

// Messages returns the session's transcript, oldest first
func (s *DashboardService) Messages(ctx context.Context, userID uuid.UUID) ([]models.ChatMessage, error) {
	state, err := s.Initialize(ctx, userID)
	if err != nil {
		return nil, err
	}
	return state.ChatMessages, nil
}

// SendChatMessage runs a full chat turn: the user message is recorded, the
// chat flow answers, the reply is recorded and its effects are applied.
func (s *DashboardService) SendChatMessage(ctx context.Context, userID uuid.UUID, message string) (*OperationResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	if s.flows == nil {
		return nil, errors.New("flows not set")
	}

	current, err := s.Initialize(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := requireOnboarded(current); err != nil {
		return nil, err
	}

	history := make([]models.ChatTurn, 0, len(current.ChatMessages))
	for _, m := range current.ChatMessages {
		history = append(history, models.ChatTurn{Role: m.Role, Content: m.Content})
	}

	if _, err := s.AppendChatMessage(ctx, userID, models.RoleUser, message); err != nil {
		// the conversation goes on with a local copy of the message
		s.log.Warn("failed to save user message", "user_id", userID, "error", err)
		s.appendLocalOnly(userID, models.RoleUser, message)
	}

	reply, err := s.flows.Chat(ctx, ChatRequest{
		Message:    message,
		History:    history,
		Scores:     current.Scores,
		UserValues: current.Onboarding.UserValues,
		Memories:   current.Memories,
	})
	if err != nil {
		if _, appendErr := s.AppendChatMessage(ctx, userID, models.RoleAssistant, ApologyMessage); appendErr != nil {
			s.log.Warn("failed to save apology", "user_id", userID, "error", appendErr)
			s.appendLocalOnly(userID, models.RoleAssistant, ApologyMessage)
		}
		s.notifyFailure(userID, "Error Processing Message", "Something went wrong. Please try again.")
		return nil, err
	}

	assistant, err := s.AppendChatMessage(ctx, userID, models.RoleAssistant, reply.Response)
	if err != nil {
		s.log.Warn("failed to save assistant reply", "user_id", userID, "error", err)
		assistant = s.appendLocalOnly(userID, models.RoleAssistant, reply.Response)
	}

	result, err := s.ApplyChatResponse(ctx, userID, reply.Effects)
	if err != nil {
		return nil, err
	}
	result.Reply = assistant
	return result, nil
}

func (s *DashboardService) appendLocalOnly(userID uuid.UUID, role models.ChatRole, content string) *models.ChatMessage {
	msg := models.ChatMessage{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}

	s.mu.Lock()
	sess := s.sessions[userID]
	s.mu.Unlock()
	if sess != nil {
		sess.mu.Lock()
		sess.appendLocal(msg, s.chatLimit)
		sess.mu.Unlock()
	}
	return &msg
}

// appendLocal must be called with sess.mu held
func (sess *session) appendLocal(msg models.ChatMessage, limit int) {
	for _, m := range sess.state.ChatMessages {
		if m.ID == msg.ID {
			return
		}
	}
	sess.state.ChatMessages = append(sess.state.ChatMessages, msg)
	if over := len(sess.state.ChatMessages) - limit; over > 0 {
		sess.state.ChatMessages = sess.state.ChatMessages[over:]
	}
}

// Subscribe streams state and notice events for a user. The current state is
// the first event. The returned cancel function must be called to release
// the listener.
func (s *DashboardService) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan Event, func(), error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Event, listenerBuffer)
	sess.mu.Lock()
	state := sess.state.clone()
	sess.mu.Unlock()
	ch <- Event{Type: EventState, State: &state}

	sess.lmu.Lock()
	if sess.listeners == nil {
		sess.lmu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	sess.listeners[ch] = struct{}{}
	sess.lmu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { sess.removeListener(ch) })
	}
	return ch, cancel, nil
}

func (sess *session) removeListener(ch chan Event) {
	sess.lmu.Lock()
	defer sess.lmu.Unlock()
	if _, ok := sess.listeners[ch]; ok {
		delete(sess.listeners, ch)
		close(ch)
	}
}

// broadcast never blocks; a listener with a full buffer misses the event
func (sess *session) broadcast(ev Event) {
	sess.lmu.Lock()
	defer sess.lmu.Unlock()
	for ch := range sess.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *DashboardService) notify(userID uuid.UUID, notices ...models.Notice) {
	s.mu.Lock()
	sess := s.sessions[userID]
	s.mu.Unlock()
	if sess == nil {
		return
	}
	for i := range notices {
		n := notices[i]
		sess.broadcast(Event{Type: EventNotice, Notice: &n})
	}
}

func (s *DashboardService) notifyFailure(userID uuid.UUID, title, description string) {
	s.notify(userID, models.Failure(title, description))
}

func (s *DashboardService) result(userID uuid.UUID, state *DashboardState, reply *models.ChatMessage, notices ...models.Notice) *OperationResult {
	s.notify(userID, notices...)
	return &OperationResult{State: state, Reply: reply, Notices: notices}
}

// Close stops every session subscription and closes all listeners
func (s *DashboardService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		if sess.cancel != nil {
			sess.cancel()
		}
		sess.mu.Unlock()
	}
	s.stop()
	s.wg.Wait()

	for _, sess := range sessions {
		sess.lmu.Lock()
		for ch := range sess.listeners {
			close(ch)
		}
		sess.listeners = nil
		sess.lmu.Unlock()
	}
	s.log.Info("dashboard service closed", "sessions", len(sessions))
}
