package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/ledgerlens/internal/extraction"
	"github.com/zombor/ledgerlens/internal/imaging"
)

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// NormalizeFunc converts an uploaded document into a canonical PNG.
type NormalizeFunc func(data []byte, contentType string) ([]byte, error)

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs the digitization pipeline: normalize, extract, parse, fall
// back, validate, persist. One document at a time, synchronously.
type Service struct {
	db          DB
	extractor   extraction.Extractor
	storage     Storage
	validator   *Validator
	normalize   NormalizeFunc
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service with the default normalizer, ID generator and
// time source.
func NewService(db DB, extractor extraction.Extractor, storage Storage, validator *Validator) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		validator:   validator,
		normalize:   imaging.Normalize,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(db DB, extractor extraction.Extractor, storage Storage, validator *Validator, normalize NormalizeFunc, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		validator:   validator,
		normalize:   normalize,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "document"
	}

	return base + ext
}

// fingerprint computes the deduplication hash over the original upload bytes.
func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ProcessDocument runs the full pipeline for one uploaded document and
// returns the stored record. Re-submitting byte-identical content returns the
// previously stored record without creating a duplicate.
func (s *Service) ProcessDocument(ctx context.Context, filename string, data []byte, contentType string) (*Record, error) {
	hash := fingerprint(data)

	normalized, err := s.normalize(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("normalizing image: %w", err)
	}

	rawText, err := s.extractor.ExtractText(ctx, normalized)
	if err != nil {
		slog.Error("Extraction service call failed",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("extracting document: %w", err)
	}

	aiCandidate, parseErr := extraction.ParseResponse(rawText)
	if parseErr != nil {
		if !errors.Is(parseErr, extraction.ErrNoStructure) {
			return nil, fmt.Errorf("parsing response: %w", parseErr)
		}
		// Not fatal: the fallback extractor takes over with an empty
		// AI candidate.
		slog.Warn("No structured data in service response, using fallback only", "filename", filename)
		aiCandidate = nil
	}

	fallbackCandidate := extraction.Fallback(rawText)

	record, err := s.validator.Finalize(aiCandidate, fallbackCandidate)
	if err != nil {
		return nil, err
	}

	record.ID = s.idGenerator.Generate()
	record.CreatedAt = s.timeSource.Now()
	record.SourceHash = hash
	record.RawExtraction = rawText
	record.ContentType = contentType

	// Archive the original bytes so flagged records can be re-reviewed.
	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", record.ID, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	record.Filename = savedPath

	stored, created, err := s.db.UpsertRecord(record)
	if err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving record to database: %w", err)
	}
	if !created {
		// Duplicate submission: keep the original archive, drop ours.
		s.storage.Delete(savedPath)
		slog.Info("Duplicate document, returning existing record", "id", stored.ID, "source_hash", hash)
	}

	return stored, nil
}

// ManualEntry is a user-completed record submitted when extraction could not
// recover a required field.
type ManualEntry struct {
	Merchant  string                `json:"merchant"`
	Date      string                `json:"date"`
	Total     decimal.Decimal       `json:"total"`
	Currency  string                `json:"currency"`
	Category  string                `json:"category"`
	LineItems []extraction.LineItem `json:"line_items"`
}

// SubmitManual validates and persists a manually entered record through the
// same upsert path as uploaded documents.
func (s *Service) SubmitManual(entry ManualEntry) (*Record, error) {
	candidate := extraction.NewCandidate()
	if entry.Merchant != "" {
		candidate.Merchant.Set(entry.Merchant, extraction.SourceAI, 1.0)
	}
	if entry.Date != "" {
		candidate.Date.Set(entry.Date, extraction.SourceAI, 1.0)
	}
	candidate.Total.Set(entry.Total, extraction.SourceAI, 1.0)
	if entry.Currency != "" {
		candidate.Currency.Set(entry.Currency, extraction.SourceAI, 1.0)
	}
	if entry.Category != "" {
		candidate.Category.Set(entry.Category, extraction.SourceAI, 1.0)
	}
	if len(entry.LineItems) > 0 {
		candidate.LineItems.Set(entry.LineItems, extraction.SourceAI, 1.0)
	}

	record, err := s.validator.Finalize(candidate, nil)
	if err != nil {
		return nil, err
	}

	// Manual entries have no document bytes; fingerprint the entry itself so
	// accidental double submission still dedupes.
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshaling entry: %w", err)
	}

	record.ID = s.idGenerator.Generate()
	record.CreatedAt = s.timeSource.Now()
	record.SourceHash = fingerprint(entryJSON)

	stored, _, err := s.db.UpsertRecord(record)
	if err != nil {
		return nil, fmt.Errorf("saving record to database: %w", err)
	}
	return stored, nil
}

// GetRecord retrieves a record by ID
func (s *Service) GetRecord(id string) (*Record, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return record, nil
}

// GetDocument retrieves the archived document bytes for a record
func (s *Service) GetDocument(id string) ([]byte, string, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting record: %w", err)
	}
	if record.Filename == "" {
		return nil, "", fmt.Errorf("%w: record has no archived document", ErrNotFound)
	}

	data, err := s.storage.Get(record.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting document file: %w", err)
	}
	return data, record.ContentType, nil
}

// ListRecords returns all records passing the filter
func (s *Service) ListRecords(filter Filter) ([]*Record, error) {
	records, err := s.db.ListRecords(filter)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

// UpdateCategory changes a record's category, the one user-correctable field.
func (s *Service) UpdateCategory(id, category string) (*Record, error) {
	if category == "" {
		return nil, fmt.Errorf("category is required")
	}
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting record for update: %w", err)
	}
	record.Category = category
	if err := s.db.SaveRecord(record); err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	return record, nil
}

// MarkReviewed clears a record's needs-review flag after the user has
// validated it against the archived document.
func (s *Service) MarkReviewed(id string) (*Record, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting record for update: %w", err)
	}
	record.NeedsReview = false
	if err := s.db.SaveRecord(record); err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	return record, nil
}

// Aggregate computes grouped spending over the stored records at call time.
func (s *Service) Aggregate(groupBy GroupBy, from, to time.Time) ([]Bucket, error) {
	records, err := s.db.ListRecords(Filter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return Aggregate(records, groupBy)
}
