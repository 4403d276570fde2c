package ledger

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

func testRecord(merchant, category, date, total string) *Record {
	d, err := time.Parse("2006-01-02", date)
	Expect(err).NotTo(HaveOccurred())
	return &Record{
		Merchant: merchant,
		Category: category,
		Date:     d,
		Total:    decimal.RequireFromString(total),
	}
}

var _ = Describe("Aggregate", func() {
	var (
		records []*Record
		groupBy GroupBy
		buckets []Bucket
		err     error
	)

	BeforeEach(func() {
		groupBy = GroupByMerchant
	})

	JustBeforeEach(func() {
		buckets, err = Aggregate(records, groupBy)
	})

	When("grouping by merchant", func() {
		BeforeEach(func() {
			records = []*Record{
				testRecord("A", "Other", "2024-01-01", "30.00"),
				testRecord("A", "Other", "2024-01-02", "20.00"),
				testRecord("B", "Other", "2024-01-03", "25.00"),
			}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("sums and counts per merchant, ordered by descending total", func() {
			Expect(buckets).To(HaveLen(2))
			Expect(buckets[0].Key).To(Equal("A"))
			Expect(buckets[0].Total.Equal(decimal.RequireFromString("50.00"))).To(BeTrue())
			Expect(buckets[0].Count).To(Equal(2))
			Expect(buckets[1].Key).To(Equal("B"))
			Expect(buckets[1].Total.Equal(decimal.RequireFromString("25.00"))).To(BeTrue())
			Expect(buckets[1].Count).To(Equal(1))
		})
	})

	When("totals tie", func() {
		BeforeEach(func() {
			records = []*Record{
				testRecord("Zebra", "Other", "2024-01-01", "10.00"),
				testRecord("Apple", "Other", "2024-01-02", "10.00"),
			}
		})

		It("breaks the tie by ascending key for determinism", func() {
			Expect(buckets[0].Key).To(Equal("Apple"))
			Expect(buckets[1].Key).To(Equal("Zebra"))
		})
	})

	When("grouping by category", func() {
		BeforeEach(func() {
			groupBy = GroupByCategory
			records = []*Record{
				testRecord("A", "Groceries", "2024-01-01", "30.00"),
				testRecord("B", "Groceries", "2024-01-02", "20.00"),
				testRecord("C", "Travel", "2024-01-03", "5.00"),
			}
		})

		It("buckets by category", func() {
			Expect(buckets[0].Key).To(Equal("Groceries"))
			Expect(buckets[0].Count).To(Equal(2))
		})
	})

	When("grouping by month", func() {
		BeforeEach(func() {
			groupBy = GroupByMonth
			records = []*Record{
				testRecord("A", "Other", "2024-01-15", "10.00"),
				testRecord("B", "Other", "2024-01-31", "10.00"),
				testRecord("C", "Other", "2024-02-01", "5.00"),
			}
		})

		It("buckets by YYYY-MM", func() {
			Expect(buckets[0].Key).To(Equal("2024-01"))
			Expect(buckets[0].Count).To(Equal(2))
			Expect(buckets[1].Key).To(Equal("2024-02"))
		})
	})

	When("there are no records", func() {
		BeforeEach(func() {
			records = nil
		})

		It("yields an empty sequence, not an error", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(buckets).To(BeEmpty())
		})
	})

	When("the group dimension is unknown", func() {
		BeforeEach(func() {
			groupBy = GroupBy("year")
			records = []*Record{testRecord("A", "Other", "2024-01-01", "1.00")}
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})
