package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Aggregate computes grouped sums and counts over the given records. Buckets
// are ordered by descending total, ties broken by ascending key so the output
// is deterministic. An empty input yields an empty slice.
func Aggregate(records []*Record, groupBy GroupBy) ([]Bucket, error) {
	keyOf, err := bucketKeyFunc(groupBy)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*Bucket)
	order := make([]string, 0)
	for _, r := range records {
		key := keyOf(r)
		bucket, ok := byKey[key]
		if !ok {
			bucket = &Bucket{Key: key, Total: decimal.Zero}
			byKey[key] = bucket
			order = append(order, key)
		}
		bucket.Total = bucket.Total.Add(r.Total)
		bucket.Count++
	}

	buckets := make([]Bucket, 0, len(byKey))
	for _, key := range order {
		buckets = append(buckets, *byKey[key])
	}

	sort.Slice(buckets, func(i, j int) bool {
		if !buckets[i].Total.Equal(buckets[j].Total) {
			return buckets[i].Total.GreaterThan(buckets[j].Total)
		}
		return buckets[i].Key < buckets[j].Key
	})

	return buckets, nil
}

func bucketKeyFunc(groupBy GroupBy) (func(*Record) string, error) {
	switch groupBy {
	case GroupByMerchant:
		return func(r *Record) string { return r.Merchant }, nil
	case GroupByCategory:
		return func(r *Record) string { return r.Category }, nil
	case GroupByMonth:
		return func(r *Record) string { return r.Date.Format("2006-01") }, nil
	default:
		return nil, fmt.Errorf("unknown group_by: %q", groupBy)
	}
}
