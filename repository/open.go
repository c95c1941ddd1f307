package repository

import (
	"context"
	"fmt"

	"lifedash-backend/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores bundles the document and chat stores of one backend
type Stores struct {
	Documents DocumentStore
	Chats     ChatStore

	pool   *pgxpool.Pool
	sqlite *SQLiteStore
}

// OpenStores connects to the document database selected by cfg
func OpenStores(ctx context.Context, cfg config.Config) (*Stores, error) {
	switch cfg.StoreType {
	case config.StoreTypePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &Stores{
			Documents: NewUserDocumentRepository(pool),
			Chats:     NewChatMessageRepository(pool),
			pool:      pool,
		}, nil
	case config.StoreTypeSQLite:
		store, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Stores{Documents: store, Chats: store, sqlite: store}, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidStoreType, cfg.StoreType)
	}
}

// CreateSchema creates the tables if they do not exist
func (s *Stores) CreateSchema(ctx context.Context) error {
	if s.pool != nil {
		if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
			return fmt.Errorf("create postgres schema: %w", err)
		}
		return nil
	}
	return s.sqlite.Migrate(ctx)
}

// Close releases the underlying connections
func (s *Stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqlite != nil {
		_ = s.sqlite.Close()
	}
}

// OpenNotifier returns a Redis notifier when redisURL is set and an
// in-process notifier otherwise
func OpenNotifier(redisURL string) (Notifier, error) {
	if redisURL == "" {
		return NewLocalNotifier(), nil
	}
	return NewRedisNotifier(redisURL)
}
