package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lifedash-backend/models"
	"lifedash-backend/repository"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var testNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

// memoryStore is an in-memory Persistence with failure injection
type memoryStore struct {
	mu         sync.Mutex
	docs       map[uuid.UUID]models.UserDocument
	messages   map[uuid.UUID][]models.ChatMessage
	subs       map[uuid.UUID]map[chan repository.Snapshot]struct{}
	mergeErr   error
	appendErr  error
	merges     int
	appendTick int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		docs:     make(map[uuid.UUID]models.UserDocument),
		messages: make(map[uuid.UUID][]models.ChatMessage),
		subs:     make(map[uuid.UUID]map[chan repository.Snapshot]struct{}),
	}
}

func (m *memoryStore) GetDocument(ctx context.Context, userID uuid.UUID) (*models.UserDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[userID]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	out := models.DocumentPatch{}.Apply(doc)
	return &out, nil
}

func (m *memoryStore) MergeDocument(ctx context.Context, userID uuid.UUID, patch models.DocumentPatch) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mergeErr != nil {
		return 0, m.mergeErr
	}
	m.merges++
	return m.writeLocked(userID, patch, 1, true), nil
}

// externalWrite simulates another writer. With notify false the change feed
// stays silent, so the service only learns about it from the version gap.
func (m *memoryStore) externalWrite(userID uuid.UUID, patch models.DocumentPatch, notify bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(userID, patch, 1, notify)
}

func (m *memoryStore) writeLocked(userID uuid.UUID, patch models.DocumentPatch, step int64, notify bool) int64 {
	doc := m.docs[userID]
	doc = patch.Apply(doc)
	doc.UserID = userID
	doc.Version += step
	m.docs[userID] = doc

	if notify {
		snapDoc := models.DocumentPatch{}.Apply(doc)
		m.sendLocked(userID, repository.Snapshot{Kind: repository.SnapshotDocument, Document: &snapDoc})
	}
	return doc.Version
}

func (m *memoryStore) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	m.appendTick++
	msg.Timestamp = testNow.Add(time.Duration(m.appendTick) * time.Millisecond)
	m.messages[msg.UserID] = append(m.messages[msg.UserID], *msg)

	m.sendLocked(msg.UserID, repository.Snapshot{Kind: repository.SnapshotChat, Messages: m.recentLocked(msg.UserID, models.DefaultChatHistoryLimit)})
	return nil
}

func (m *memoryStore) ListMessages(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recentLocked(userID, limit), nil
}

func (m *memoryStore) recentLocked(userID uuid.UUID, limit int) []models.ChatMessage {
	all := append([]models.ChatMessage{}, m.messages[userID]...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

func (m *memoryStore) Subscribe(ctx context.Context, userID uuid.UUID, chatLimit int) (<-chan repository.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan repository.Snapshot, 64)
	initial := repository.Snapshot{Kind: repository.SnapshotInitial, Messages: m.recentLocked(userID, chatLimit)}
	if doc, ok := m.docs[userID]; ok {
		d := models.DocumentPatch{}.Apply(doc)
		initial.Document = &d
	}
	ch <- initial

	if m.subs[userID] == nil {
		m.subs[userID] = make(map[chan repository.Snapshot]struct{})
	}
	m.subs[userID][ch] = struct{}{}

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs[userID], ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

func (m *memoryStore) sendLocked(userID uuid.UUID, snap repository.Snapshot) {
	for ch := range m.subs[userID] {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (m *memoryStore) doc(userID uuid.UUID) (models.UserDocument, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[userID]
	return doc, ok
}

func (m *memoryStore) transcript(userID uuid.UUID) []models.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ChatMessage{}, m.messages[userID]...)
}

func (m *memoryStore) failMerges(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeErr = err
}

func (m *memoryStore) failAppends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
}

// fakeFlows returns canned results and records requests
type fakeFlows struct {
	mu sync.Mutex

	onboard    *OnboardingResult
	onboardErr error

	journal    *JournalResult
	journalErr error

	suggestions []string
	suggestErr  error
	suggestReqs []SuggestActionsRequest

	chat     *ChatResult
	chatErr  error
	chatReqs []ChatRequest

	questions []string
}

func (f *fakeFlows) Onboard(ctx context.Context, userValues string) (*OnboardingResult, error) {
	if f.onboardErr != nil {
		return nil, f.onboardErr
	}
	return f.onboard, nil
}

func (f *fakeFlows) ScoreJournal(ctx context.Context, req JournalRequest) (*JournalResult, error) {
	if f.journalErr != nil {
		return nil, f.journalErr
	}
	return f.journal, nil
}

func (f *fakeFlows) SuggestActions(ctx context.Context, req SuggestActionsRequest) ([]string, error) {
	f.mu.Lock()
	f.suggestReqs = append(f.suggestReqs, req)
	f.mu.Unlock()
	if f.suggestErr != nil {
		return nil, f.suggestErr
	}
	return f.suggestions, nil
}

func (f *fakeFlows) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	f.mu.Lock()
	f.chatReqs = append(f.chatReqs, req)
	f.mu.Unlock()
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return f.chat, nil
}

func (f *fakeFlows) ClarificationQuestions(ctx context.Context, req ClarificationRequest) ([]string, error) {
	return f.questions, nil
}

func flowError(name string) error {
	return fmt.Errorf("%w: %s: upstream unavailable", ErrFlowFailed, name)
}

// fakeGenerator replays canned responses in order
type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	requests  []GenerateRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	g.requests = append(g.requests, req)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.responses) {
		return g.responses[i], nil
	}
	return "", fmt.Errorf("no response queued for call %d", i)
}
