package repository

import (
	"context"
	"errors"
	"fmt"

	"lifedash-backend/logger"
	"lifedash-backend/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SnapshotKind tells a subscriber which part of the snapshot is populated
type SnapshotKind string

const (
	SnapshotInitial  SnapshotKind = "initial"
	SnapshotDocument SnapshotKind = "document"
	SnapshotChat     SnapshotKind = "chat"
)

// Snapshot is one observation of a user's remote state. Document is nil when
// the user has no document yet. Err is set when re-reading after a change failed.
type Snapshot struct {
	Kind     SnapshotKind
	Document *models.UserDocument
	Messages []models.ChatMessage
	Err      error
}

// DashboardRepository composes the document store, the chat store and the
// change feed into the persistence adapter used by the dashboard service
type DashboardRepository struct {
	docs     DocumentStore
	chats    ChatStore
	notifier Notifier
	log      *logger.Logger
}

// NewDashboardRepository creates a new dashboard repository
func NewDashboardRepository(docs DocumentStore, chats ChatStore, notifier Notifier, log *logger.Logger) *DashboardRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &DashboardRepository{
		docs:     docs,
		chats:    chats,
		notifier: notifier,
		log:      log.With("component", "dashboard_repository"),
	}
}

// GetDocument reads a user document
func (r *DashboardRepository) GetDocument(ctx context.Context, userID uuid.UUID) (*models.UserDocument, error) {
	return r.docs.GetDocument(ctx, userID)
}

// MergeDocument writes patch and announces the new version
func (r *DashboardRepository) MergeDocument(ctx context.Context, userID uuid.UUID, patch models.DocumentPatch) (int64, error) {
	version, err := r.docs.MergeDocument(ctx, userID, patch)
	if err != nil {
		return 0, err
	}
	r.publish(ctx, Change{UserID: userID, Kind: ChangeDocument, Version: version})
	return version, nil
}

// AppendMessage writes msg to the chat collection and announces it
func (r *DashboardRepository) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if err := r.chats.AppendMessage(ctx, msg); err != nil {
		return err
	}
	r.publish(ctx, Change{UserID: msg.UserID, Kind: ChangeChat})
	return nil
}

// ListMessages reads the most recent chat messages, oldest first
func (r *DashboardRepository) ListMessages(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	return r.chats.ListRecentMessages(ctx, userID, limit)
}

// publish failures do not fail the write; the data is already stored
func (r *DashboardRepository) publish(ctx context.Context, change Change) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Publish(ctx, change); err != nil {
		r.log.Warn("failed to publish change", "user_id", change.UserID, "kind", change.Kind, "error", err)
	}
}

// Subscribe emits an initial snapshot of the document and the transcript,
// then one snapshot per change until ctx is done. The initial read happens
// before Subscribe returns so read errors surface to the caller.
func (r *DashboardRepository) Subscribe(ctx context.Context, userID uuid.UUID, chatLimit int) (<-chan Snapshot, error) {
	if r.notifier == nil {
		return nil, errors.New("change notifier not set")
	}

	subCtx, cancel := context.WithCancel(ctx)
	changes, err := r.notifier.Subscribe(subCtx, userID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	initial, err := r.load(subCtx, userID, chatLimit)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan Snapshot, 1)
	out <- initial

	go func() {
		defer cancel()
		defer close(out)

		for {
			select {
			case <-subCtx.Done():
				return
			case change, ok := <-changes:
				if !ok {
					return
				}
				snap := r.reread(subCtx, userID, change.Kind, chatLimit)
				select {
				case out <- snap:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (r *DashboardRepository) load(ctx context.Context, userID uuid.UUID, chatLimit int) (Snapshot, error) {
	snap := Snapshot{Kind: SnapshotInitial}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := r.docs.GetDocument(gctx, userID)
		if errors.Is(err, ErrDocumentNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		snap.Document = doc
		return nil
	})
	g.Go(func() error {
		messages, err := r.chats.ListRecentMessages(gctx, userID, chatLimit)
		if err != nil {
			return err
		}
		snap.Messages = messages
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("load initial snapshot: %w", err)
	}
	return snap, nil
}

func (r *DashboardRepository) reread(ctx context.Context, userID uuid.UUID, kind ChangeKind, chatLimit int) Snapshot {
	if kind == ChangeChat {
		messages, err := r.chats.ListRecentMessages(ctx, userID, chatLimit)
		return Snapshot{Kind: SnapshotChat, Messages: messages, Err: err}
	}

	doc, err := r.docs.GetDocument(ctx, userID)
	if errors.Is(err, ErrDocumentNotFound) {
		err = nil
	}
	return Snapshot{Kind: SnapshotDocument, Document: doc, Err: err}
}
