package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/ledgerlens/internal/extraction"
)

// ValidatorConfig carries the policy knobs for validation. These are
// configuration, not constants; main wires them from flags.
type ValidatorConfig struct {
	// SanityCeiling rejects totals at or above this value as out of range.
	SanityCeiling decimal.Decimal
	// ToleranceRatio and ToleranceMin bound the allowed divergence between
	// the stated total and the line-item reconstruction: the tolerance is
	// max(ToleranceMin, total*ToleranceRatio).
	ToleranceRatio decimal.Decimal
	ToleranceMin   decimal.Decimal
	// DefaultCurrency is used when no extractor determined one.
	DefaultCurrency string
}

// DefaultValidatorConfig returns the standard policy values.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		SanityCeiling:   decimal.New(1_000_000, 0),
		ToleranceRatio:  decimal.RequireFromString("0.02"),
		ToleranceMin:    decimal.RequireFromString("0.02"),
		DefaultCurrency: "USD",
	}
}

// Validator merges AI and fallback candidates into a finalized record and
// decides accept/reject. It is a pure transformation; the caller persists.
type Validator struct {
	cfg        ValidatorConfig
	classifier *Classifier
}

// NewValidator creates a Validator with the given policy.
func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.SanityCeiling.IsZero() {
		cfg = DefaultValidatorConfig()
	}
	return &Validator{
		cfg:        cfg,
		classifier: NewClassifier(),
	}
}

// mergeField keeps the value with higher confidence; on a tie the AI value
// wins. Unset fields always lose to set ones.
func mergeField[T any](a, b extraction.Field[T]) extraction.Field[T] {
	if !a.IsSet() {
		return b
	}
	if !b.IsSet() {
		return a
	}
	if b.Confidence > a.Confidence {
		return b
	}
	if a.Confidence > b.Confidence {
		return a
	}
	if b.Source == extraction.SourceAI && a.Source != extraction.SourceAI {
		return b
	}
	return a
}

// Merge combines an AI-sourced candidate and a regex-sourced one field by
// field. Either side may be nil (e.g. after a parse failure).
func Merge(ai, fallback *extraction.Candidate) *extraction.Candidate {
	if ai == nil {
		ai = extraction.NewCandidate()
	}
	if fallback == nil {
		fallback = extraction.NewCandidate()
	}

	merged := extraction.NewCandidate()
	merged.Merchant = mergeField(ai.Merchant, fallback.Merchant)
	merged.Date = mergeField(ai.Date, fallback.Date)
	merged.Total = mergeField(ai.Total, fallback.Total)
	merged.Currency = mergeField(ai.Currency, fallback.Currency)
	merged.Category = mergeField(ai.Category, fallback.Category)
	merged.LineItems = mergeField(ai.LineItems, fallback.LineItems)
	merged.Tax = mergeField(ai.Tax, fallback.Tax)
	merged.Discount = mergeField(ai.Discount, fallback.Discount)
	return merged
}

// Finalize merges the candidates, coerces types, applies the required-field
// and sanity policies, and reconciles line items against the total. On
// success it returns a record without identity fields; the caller assigns ID,
// fingerprint and timestamps before persisting.
func (v *Validator) Finalize(ai, fallback *extraction.Candidate) (*Record, error) {
	merged := Merge(ai, fallback)

	if !merged.Date.IsSet() {
		return nil, &ValidationError{Reason: ReasonMissingRequiredField, Field: "date"}
	}
	date, err := time.Parse("2006-01-02", merged.Date.Value)
	if err != nil {
		return nil, &ValidationError{Reason: ReasonMissingRequiredField, Field: "date", Detail: "unparseable date"}
	}

	if !merged.Total.IsSet() {
		return nil, &ValidationError{Reason: ReasonMissingRequiredField, Field: "total"}
	}
	total := merged.Total.Value.RoundBank(2)
	if total.IsNegative() {
		return nil, &ValidationError{Reason: ReasonOutOfRange, Field: "total", Detail: "negative amount"}
	}
	if total.GreaterThanOrEqual(v.cfg.SanityCeiling) {
		return nil, &ValidationError{Reason: ReasonOutOfRange, Field: "total", Detail: "exceeds sanity ceiling"}
	}

	merchant := merged.Merchant.Value
	if !merged.Merchant.IsSet() || merchant == "" {
		merchant = "Unknown"
	}

	currency := merged.Currency.Value
	if !merged.Currency.IsSet() || currency == "" {
		currency = v.cfg.DefaultCurrency
	}

	category := merged.Category.Value
	if !merged.Category.IsSet() || category == "" {
		category = v.classifier.Classify(merchant)
	}

	items := make([]extraction.LineItem, 0, len(merged.LineItems.Value))
	for _, item := range merged.LineItems.Value {
		items = append(items, extraction.LineItem{
			Description: item.Description,
			Amount:      item.Amount.RoundBank(2),
		})
	}

	record := &Record{
		Merchant:  merchant,
		Date:      date,
		Total:     total,
		Currency:  currency,
		Category:  category,
		LineItems: items,
	}
	record.NeedsReview = v.needsReview(record, merged)
	return record, nil
}

// needsReview reconciles the stated total against the line items (plus any
// itemized tax, minus any discount). Divergence beyond tolerance flags the
// record instead of rejecting it.
func (v *Validator) needsReview(r *Record, merged *extraction.Candidate) bool {
	if len(r.LineItems) == 0 {
		return false
	}

	calculated := decimal.Zero
	for _, item := range r.LineItems {
		calculated = calculated.Add(item.Amount)
	}
	if merged.Tax.IsSet() {
		calculated = calculated.Add(merged.Tax.Value)
	}
	if merged.Discount.IsSet() {
		calculated = calculated.Sub(merged.Discount.Value)
	}

	tolerance := r.Total.Mul(v.cfg.ToleranceRatio)
	if tolerance.LessThan(v.cfg.ToleranceMin) {
		tolerance = v.cfg.ToleranceMin
	}

	return r.Total.Sub(calculated).Abs().GreaterThan(tolerance)
}
