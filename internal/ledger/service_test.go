package ledger

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/ledgerlens/internal/extraction"
)

// mockDB is a mock implementation of DB
type mockDB struct {
	records   map[string]*Record
	byHash    map[string]string
	upsertErr error
	saveErr   error
	getErr    error
	listErr   error
}

func newMockDB() *mockDB {
	return &mockDB{
		records: make(map[string]*Record),
		byHash:  make(map[string]string),
	}
}

func (m *mockDB) UpsertRecord(record *Record) (*Record, bool, error) {
	if m.upsertErr != nil {
		return nil, false, m.upsertErr
	}
	if id, ok := m.byHash[record.SourceHash]; ok {
		return m.records[id], false, nil
	}
	m.records[record.ID] = record
	m.byHash[record.SourceHash] = record.ID
	return record, true, nil
}

func (m *mockDB) SaveRecord(record *Record) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.records[record.ID]; !ok {
		return ErrNotFound
	}
	m.records[record.ID] = record
	return nil
}

func (m *mockDB) GetRecord(id string) (*Record, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	record, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

func (m *mockDB) ListRecords(filter Filter) ([]*Record, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	records := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		if filter.Matches(r) {
			records = append(records, r)
		}
	}
	return records, nil
}

func (m *mockDB) Close() error { return nil }

// mockExtractor is a mock implementation of extraction.Extractor
type mockExtractor struct {
	responseText string
	err          error
	calls        int
}

func (m *mockExtractor) ExtractText(ctx context.Context, imageData []byte) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.responseText, nil
}

func (m *mockExtractor) Close() error { return nil }

// mockStorage is a mock implementation of Storage
type mockStorage struct {
	files   map[string][]byte
	saveErr error
	getErr  error
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: make(map[string][]byte)}
}

func (m *mockStorage) Save(filename string, data []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.files[filename] = data
	return filename, nil
}

func (m *mockStorage) Get(path string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (m *mockStorage) Delete(path string) error {
	delete(m.files, path)
	return nil
}

// sequenceIDGenerator returns id-1, id-2, ... for deterministic assertions
type sequenceIDGenerator struct {
	n int
}

func (g *sequenceIDGenerator) Generate() string {
	g.n++
	return "id-" + string(rune('0'+g.n))
}

type fixedTimeSource struct {
	now time.Time
}

func (t *fixedTimeSource) Now() time.Time { return t.now }

// passthroughNormalize skips real image work in service tests
func passthroughNormalize(data []byte, contentType string) ([]byte, error) {
	return data, nil
}

var _ = Describe("Service.ProcessDocument", func() {
	var (
		db        *mockDB
		extractor *mockExtractor
		storage   *mockStorage
		service   *Service
		ctx       context.Context

		filename    string
		data        []byte
		contentType string

		record *Record
		err    error
	)

	BeforeEach(func() {
		db = newMockDB()
		extractor = &mockExtractor{}
		storage = newMockStorage()
		ctx = context.Background()

		validator := NewValidator(DefaultValidatorConfig())
		service = NewServiceWithDeps(
			db, extractor, storage, validator,
			passthroughNormalize,
			&sequenceIDGenerator{},
			&fixedTimeSource{now: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)},
		)

		filename = "receipt.png"
		data = []byte("fake image bytes")
		contentType = "image/png"
	})

	JustBeforeEach(func() {
		record, err = service.ProcessDocument(ctx, filename, data, contentType)
	})

	When("the service returns a well-formed response", func() {
		BeforeEach(func() {
			extractor.responseText = `{"merchant":"Cafe Sol","date":"2024-03-01","total":"$12.50","line_items":[{"description":"Latte","amount":"12.50"}]}`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should produce the expected record", func() {
			Expect(record.Merchant).To(Equal("Cafe Sol"))
			Expect(record.Date).To(Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
			Expect(record.Total.Equal(decimal.RequireFromString("12.50"))).To(BeTrue())
			Expect(record.NeedsReview).To(BeFalse())
		})

		It("should assign identity and fingerprint", func() {
			Expect(record.ID).NotTo(BeEmpty())
			Expect(record.SourceHash).NotTo(BeEmpty())
			Expect(record.CreatedAt).To(Equal(time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)))
		})

		It("should archive the original document", func() {
			Expect(storage.files).To(HaveLen(1))
		})
	})

	When("the same document is submitted twice", func() {
		BeforeEach(func() {
			extractor.responseText = `{"merchant":"Cafe Sol","date":"2024-03-01","total":12.50}`
			first, firstErr := service.ProcessDocument(ctx, filename, data, contentType)
			Expect(firstErr).NotTo(HaveOccurred())
			Expect(first.ID).NotTo(BeEmpty())
		})

		It("returns the existing record with the same id", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.ID).To(Equal("id-1"))
		})

		It("does not create a duplicate", func() {
			records, listErr := db.ListRecords(Filter{})
			Expect(listErr).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
		})

		It("does not leave a second archived file behind", func() {
			Expect(storage.files).To(HaveLen(1))
		})
	})

	When("the response has no structured region", func() {
		BeforeEach(func() {
			extractor.responseText = "Cafe Sol\nSome prose the model produced.\nTOTAL $8.00\n2024-03-01"
		})

		It("still validates via the fallback extractor", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Merchant).To(Equal("Cafe Sol"))
			Expect(record.Total.Equal(decimal.RequireFromString("8.00"))).To(BeTrue())
		})
	})

	When("the extraction service fails", func() {
		BeforeEach(func() {
			extractor.err = extraction.ErrService
		})

		It("surfaces a retryable service error", func() {
			Expect(err).To(MatchError(extraction.ErrService))
		})

		It("does not persist anything", func() {
			records, _ := db.ListRecords(Filter{})
			Expect(records).To(BeEmpty())
		})
	})

	When("no extractor can determine the date", func() {
		BeforeEach(func() {
			extractor.responseText = `{"merchant":"Cafe Sol","total":12.50}`
		})

		It("rejects with missing_required_field", func() {
			verr, ok := AsValidationError(err)
			Expect(ok).To(BeTrue())
			Expect(verr.Reason).To(Equal(ReasonMissingRequiredField))
			Expect(verr.Field).To(Equal("date"))
		})

		It("does not persist a record", func() {
			records, _ := db.ListRecords(Filter{})
			Expect(records).To(BeEmpty())
		})
	})

	When("the database upsert fails", func() {
		BeforeEach(func() {
			extractor.responseText = `{"merchant":"Cafe Sol","date":"2024-03-01","total":12.50}`
			db.upsertErr = errors.New("disk full")
		})

		It("surfaces the storage failure", func() {
			Expect(err).To(HaveOccurred())
		})

		It("cleans up the archived file", func() {
			Expect(storage.files).To(BeEmpty())
		})
	})
})

var _ = Describe("Service.SubmitManual", func() {
	var (
		db      *mockDB
		service *Service
		entry   ManualEntry
		record  *Record
		err     error
	)

	BeforeEach(func() {
		db = newMockDB()
		validator := NewValidator(DefaultValidatorConfig())
		service = NewServiceWithDeps(
			db, &mockExtractor{}, newMockStorage(), validator,
			passthroughNormalize,
			&sequenceIDGenerator{},
			&fixedTimeSource{now: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)},
		)

		entry = ManualEntry{
			Merchant: "Corner Pharmacy",
			Date:     "2024-03-01",
			Total:    decimal.RequireFromString("19.99"),
		}
	})

	JustBeforeEach(func() {
		record, err = service.SubmitManual(entry)
	})

	When("the entry is complete", func() {
		It("persists through the same upsert path", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Merchant).To(Equal("Corner Pharmacy"))
			Expect(record.Category).To(Equal("Medical"))

			records, _ := db.ListRecords(Filter{})
			Expect(records).To(HaveLen(1))
		})
	})

	When("the same entry is submitted twice", func() {
		BeforeEach(func() {
			_, firstErr := service.SubmitManual(entry)
			Expect(firstErr).NotTo(HaveOccurred())
		})

		It("dedupes by the entry fingerprint", func() {
			Expect(err).NotTo(HaveOccurred())
			records, _ := db.ListRecords(Filter{})
			Expect(records).To(HaveLen(1))
		})
	})

	When("the entry is missing a date", func() {
		BeforeEach(func() {
			entry.Date = ""
		})

		It("rejects it like any other candidate", func() {
			verr, ok := AsValidationError(err)
			Expect(ok).To(BeTrue())
			Expect(verr.Field).To(Equal("date"))
		})
	})
})

var _ = Describe("Service record corrections", func() {
	var (
		db      *mockDB
		service *Service
	)

	BeforeEach(func() {
		db = newMockDB()
		validator := NewValidator(DefaultValidatorConfig())
		service = NewServiceWithDeps(
			db, &mockExtractor{}, newMockStorage(), validator,
			passthroughNormalize,
			&sequenceIDGenerator{},
			&fixedTimeSource{now: time.Now()},
		)

		db.records["id-1"] = &Record{
			ID:          "id-1",
			Merchant:    "Cafe Sol",
			Category:    "Restaurant",
			NeedsReview: true,
			Total:       decimal.RequireFromString("10.00"),
			Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		}
	})

	Describe("UpdateCategory", func() {
		It("changes only the category", func() {
			record, err := service.UpdateCategory("id-1", "Travel")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Category).To(Equal("Travel"))
			Expect(record.Merchant).To(Equal("Cafe Sol"))
		})

		It("rejects an empty category", func() {
			_, err := service.UpdateCategory("id-1", "")
			Expect(err).To(HaveOccurred())
		})

		It("propagates not-found", func() {
			_, err := service.UpdateCategory("ghost", "Travel")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("MarkReviewed", func() {
		It("clears the needs-review flag", func() {
			record, err := service.MarkReviewed("id-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.NeedsReview).To(BeFalse())
		})
	})
})
