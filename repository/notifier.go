package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ChangeKind identifies which part of a user's data changed
type ChangeKind string

const (
	ChangeDocument ChangeKind = "document"
	ChangeChat     ChangeKind = "chat"
)

// Change is published after every successful write
type Change struct {
	UserID  uuid.UUID  `json:"userId"`
	Kind    ChangeKind `json:"kind"`
	Version int64      `json:"version,omitempty"`
}

// Notifier fans changes out to subscribers of a user
type Notifier interface {
	Publish(ctx context.Context, change Change) error

	// Subscribe returns a channel that is closed once ctx is done
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan Change, error)

	Close() error
}

const subscriberBuffer = 64

// LocalNotifier delivers changes to subscribers inside this process.
// A subscriber whose buffer is full misses the change; every snapshot
// re-reads current state, so the next change catches it up.
type LocalNotifier struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[chan Change]struct{}
	closed bool
}

// NewLocalNotifier creates an in-process notifier
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[uuid.UUID]map[chan Change]struct{})}
}

// Publish delivers change to every current subscriber of change.UserID
func (n *LocalNotifier) Publish(ctx context.Context, change Change) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.subs[change.UserID] {
		select {
		case ch <- change:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done
func (n *LocalNotifier) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan Change, error) {
	ch := make(chan Change, subscriberBuffer)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch, nil
	}
	if n.subs[userID] == nil {
		n.subs[userID] = make(map[chan Change]struct{})
	}
	n.subs[userID][ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.remove(userID, ch)
	}()

	return ch, nil
}

func (n *LocalNotifier) remove(userID uuid.UUID, ch chan Change) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.subs[userID][ch]; !ok {
		return
	}
	delete(n.subs[userID], ch)
	if len(n.subs[userID]) == 0 {
		delete(n.subs, userID)
	}
	close(ch)
}

// Close closes every subscriber channel
func (n *LocalNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for userID, chans := range n.subs {
		for ch := range chans {
			close(ch)
		}
		delete(n.subs, userID)
	}
	n.closed = true
	return nil
}
