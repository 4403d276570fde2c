package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/ledgerlens/internal/extraction"
)

// Record is a persisted, validated financial record digitized from a single
// document. After creation only Category and NeedsReview may change.
type Record struct {
	ID            string                `json:"id"`
	Merchant      string                `json:"merchant"`
	Date          time.Time             `json:"date"`
	Total         decimal.Decimal       `json:"total"`
	Currency      string                `json:"currency"`
	Category      string                `json:"category"`
	LineItems     []extraction.LineItem `json:"line_items"`
	NeedsReview   bool                  `json:"needs_review"`
	SourceHash    string                `json:"source_hash"`
	RawExtraction string                `json:"raw_extraction,omitempty"` // original service response, kept for audit
	Filename      string                `json:"filename,omitempty"`       // archived document path
	ContentType   string                `json:"content_type,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Merchant string
	Category string
	From     time.Time // inclusive
	To       time.Time // inclusive
}

// Matches reports whether the record passes the filter.
func (f Filter) Matches(r *Record) bool {
	if f.Merchant != "" && r.Merchant != f.Merchant {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if !f.From.IsZero() && r.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.Date.After(f.To) {
		return false
	}
	return true
}

// GroupBy selects the aggregation dimension.
type GroupBy string

const (
	GroupByMerchant GroupBy = "merchant"
	GroupByCategory GroupBy = "category"
	GroupByMonth    GroupBy = "month"
)

// Bucket is one row of an aggregation: the group key, the summed total, and
// the record count. Buckets are derived on demand and never stored.
type Bucket struct {
	Key   string          `json:"key"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}
