package ledger

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newRecord := func(id, hash string) *Record {
		return &Record{
			ID:         id,
			Merchant:   "Cafe Sol",
			Date:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Total:      decimal.RequireFromString("12.50"),
			Currency:   "USD",
			Category:   "Restaurant",
			SourceHash: hash,
			CreatedAt:  time.Now().UTC(),
		}
	}

	Describe("UpsertRecord", func() {
		var (
			record  *Record
			stored  *Record
			created bool
			err     error
		)

		BeforeEach(func() {
			record = newRecord("id-1", "hash-1")
		})

		JustBeforeEach(func() {
			stored, created, err = db.UpsertRecord(record)
		})

		When("no record with the hash exists", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should create the record", func() {
				Expect(created).To(BeTrue())
				Expect(stored.ID).To(Equal("id-1"))
			})

			It("should make the record retrievable", func() {
				saved, getErr := db.GetRecord("id-1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Merchant).To(Equal("Cafe Sol"))
				Expect(saved.Total.Equal(decimal.RequireFromString("12.50"))).To(BeTrue())
			})
		})

		When("a record with the same hash already exists", func() {
			BeforeEach(func() {
				_, _, insertErr := db.UpsertRecord(newRecord("id-1", "hash-1"))
				Expect(insertErr).NotTo(HaveOccurred())
				record = newRecord("id-2", "hash-1")
				record.Merchant = "Different Merchant"
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the existing record unchanged", func() {
				Expect(created).To(BeFalse())
				Expect(stored.ID).To(Equal("id-1"))
				Expect(stored.Merchant).To(Equal("Cafe Sol"))
			})

			It("should not create a second record", func() {
				records, listErr := db.ListRecords(Filter{})
				Expect(listErr).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
			})
		})
	})

	Describe("GetRecord", func() {
		When("the record does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetRecord("nonexistent")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("SaveRecord", func() {
		BeforeEach(func() {
			_, _, err := db.UpsertRecord(newRecord("id-1", "hash-1"))
			Expect(err).NotTo(HaveOccurred())
		})

		When("updating an existing record", func() {
			It("persists the change", func() {
				record, err := db.GetRecord("id-1")
				Expect(err).NotTo(HaveOccurred())

				record.Category = "Travel"
				Expect(db.SaveRecord(record)).To(Succeed())

				updated, err := db.GetRecord("id-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.Category).To(Equal("Travel"))
			})
		})

		When("the record does not exist", func() {
			It("returns ErrNotFound", func() {
				Expect(db.SaveRecord(newRecord("ghost", "hash-x"))).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("ListRecords", func() {
		BeforeEach(func() {
			a := newRecord("id-1", "hash-1")
			a.Category = "Groceries"
			a.Date = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

			b := newRecord("id-2", "hash-2")
			b.Category = "Travel"
			b.Date = time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

			for _, r := range []*Record{a, b} {
				_, _, err := db.UpsertRecord(r)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("returns everything with an empty filter", func() {
			records, err := db.ListRecords(Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
		})

		It("filters by category", func() {
			records, err := db.ListRecords(Filter{Category: "Travel"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).To(Equal("id-2"))
		})

		It("filters by date range", func() {
			records, err := db.ListRecords(Filter{
				From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).To(Equal("id-1"))
		})

		It("returns an empty slice when nothing matches", func() {
			records, err := db.ListRecords(Filter{Merchant: "Nobody"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})
	})
})
