package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"lifedash-backend/logger"
	"lifedash-backend/models"
	"lifedash-backend/repository"
	"lifedash-backend/storage"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	ErrExportNotFound  = errors.New("export not found")
	ErrNothingToExport = errors.New("user has no dashboard to export")
)

// ExportSource reads what goes into an export
type ExportSource interface {
	GetDocument(ctx context.Context, userID uuid.UUID) (*models.UserDocument, error)
	ListMessages(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

// DashboardExport is the JSON document written to storage
type DashboardExport struct {
	ExportID     string               `json:"exportId"`
	UserID       uuid.UUID            `json:"userId"`
	ExportedAt   time.Time            `json:"exportedAt"`
	Document     *models.UserDocument `json:"document"`
	ChatMessages []models.ChatMessage `json:"chatMessages"`
}

// ExportResult represents where an export was written
type ExportResult struct {
	ExportID   string    `json:"exportId"`
	Key        string    `json:"key"`
	ExportedAt time.Time `json:"exportedAt"`
}

// ExportService writes dashboard exports to object storage
type ExportService struct {
	source    ExportSource
	storage   storage.Storage
	chatLimit int
	now       func() time.Time
	log       *logger.Logger
}

// ExportServiceOption is a functional option for ExportService
type ExportServiceOption func(*ExportService)

// ExportWithSource sets where dashboards are read from
func ExportWithSource(src ExportSource) ExportServiceOption {
	return func(s *ExportService) {
		s.source = src
	}
}

// ExportWithStorage sets the object storage
func ExportWithStorage(st storage.Storage) ExportServiceOption {
	return func(s *ExportService) {
		s.storage = st
	}
}

// ExportWithChatLimit sets how many recent messages are exported
func ExportWithChatLimit(limit int) ExportServiceOption {
	return func(s *ExportService) {
		if limit > 0 {
			s.chatLimit = limit
		}
	}
}

// ExportWithClock sets the time source
func ExportWithClock(now func() time.Time) ExportServiceOption {
	return func(s *ExportService) {
		s.now = now
	}
}

// ExportWithLogger sets the logger
func ExportWithLogger(log *logger.Logger) ExportServiceOption {
	return func(s *ExportService) {
		s.log = log
	}
}

// NewExportService creates a new export service
func NewExportService(opts ...ExportServiceOption) *ExportService {
	s := &ExportService{
		chatLimit: models.DefaultChatHistoryLimit,
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export snapshots the user's document and transcript into storage
func (s *ExportService) Export(ctx context.Context, userID uuid.UUID) (*ExportResult, error) {
	if s.source == nil || s.storage == nil {
		return nil, errors.New("export service not configured")
	}

	doc, err := s.source.GetDocument(ctx, userID)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return nil, ErrNothingToExport
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	messages, err := s.source.ListMessages(ctx, userID, s.chatLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}

	export := DashboardExport{
		ExportID:     ulid.Make().String(),
		UserID:       userID,
		ExportedAt:   s.now().UTC(),
		Document:     doc,
		ChatMessages: messages,
	}

	payload, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}

	key := storage.ExportKey(userID, export.ExportID)
	if err := s.storage.Put(ctx, key, bytes.NewReader(payload), "application/json"); err != nil {
		return nil, fmt.Errorf("failed to store export: %w", err)
	}

	s.log.Info("dashboard exported", "user_id", userID, "export_id", export.ExportID, "bytes", len(payload))
	return &ExportResult{ExportID: export.ExportID, Key: key, ExportedAt: export.ExportedAt}, nil
}

// Open streams a stored export back. The caller closes the reader.
func (s *ExportService) Open(ctx context.Context, userID uuid.UUID, exportID string) (io.ReadCloser, error) {
	if s.storage == nil {
		return nil, errors.New("export storage not set")
	}
	if _, err := ulid.ParseStrict(exportID); err != nil {
		return nil, ErrExportNotFound
	}

	rc, err := s.storage.Get(ctx, storage.ExportKey(userID, exportID))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrExportNotFound
	}
	if err != nil {
		return nil, err
	}
	return rc, nil
}
