package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/receiptscan/receipt-scanner/internal/pipeline"
)

// Processor runs a scan over uploaded bytes
type Processor interface {
	Process(ctx context.Context, data []byte, contentType string) (*pipeline.ScanResult, error)
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service ties scanning, persistence, and file storage together
type Service struct {
	db          DB
	processor   Processor
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service with UUID record IDs and the wall clock
func NewService(db DB, processor Processor, storage Storage) *Service {
	return &Service{
		db:          db,
		processor:   processor,
		storage:     storage,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a Service with custom dependencies for testing
func NewServiceWithDeps(db DB, processor Processor, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		processor:   processor,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	filenameJunk  = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpace = regexp.MustCompile(`\s+`)
)

// sanitizeFilename tames phone-generated filenames: special characters go,
// whitespace collapses, the base is truncated
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	base = filenameJunk.ReplaceAllString(base, "")
	base = filenameSpace.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// ProcessUpload stores the uploaded file, runs the scan pipeline over it,
// and persists the record. The stored file is removed again when scanning
// or persistence fails, so a failed upload leaves nothing behind.
func (s *Service) ProcessUpload(ctx context.Context, filename string, data []byte, contentType string) (*Record, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedName, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	scan, err := s.processor.Process(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.storage.Delete(savedName)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	record := &Record{
		ID:           id,
		Filename:     savedName,
		ContentType:  contentType,
		Scan:         scan,
		ReviewStatus: ReviewPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.SaveRecord(record); err != nil {
		s.storage.Delete(savedName)
		return nil, fmt.Errorf("saving record to database: %w", err)
	}

	return record, nil
}

// GetRecord retrieves a record by ID
func (s *Service) GetRecord(id string) (*Record, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return record, nil
}

// ListRecords returns all records
func (s *Service) ListRecords() ([]*Record, error) {
	records, err := s.db.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

// DeleteRecord removes a record and its stored file
func (s *Service) DeleteRecord(id string) error {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return fmt.Errorf("getting record for deletion: %w", err)
	}

	if err := s.storage.Delete(record.Filename); err != nil {
		// Keep going: the record is the source of truth
		slog.Warn("Failed to delete file", "filename", record.Filename, "error", err)
	}

	if err := s.db.DeleteRecord(id); err != nil {
		return fmt.Errorf("deleting record from database: %w", err)
	}
	return nil
}

// GetRecordFile retrieves the original uploaded file for a record
func (s *Service) GetRecordFile(id string) ([]byte, string, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting record: %w", err)
	}

	data, err := s.storage.Get(record.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting record file: %w", err)
	}

	return data, record.ContentType, nil
}

// UpdateReviewStatus moves a record through the review flow
func (s *Service) UpdateReviewStatus(id string, status ReviewStatus, note string) (*Record, error) {
	if !ValidReviewStatus(status) {
		return nil, fmt.Errorf("invalid review status: %q", status)
	}

	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting record for review: %w", err)
	}

	record.ReviewStatus = status
	record.ReviewNote = note
	record.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveRecord(record); err != nil {
		return nil, fmt.Errorf("saving reviewed record: %w", err)
	}
	return record, nil
}
