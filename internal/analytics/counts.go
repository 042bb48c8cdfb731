// Package analytics holds the pure aggregation functions behind every dashboard view.
// All functions accept an empty view and return empty or zero results.
package analytics

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/you/alarmchain/models"
)

// OthersLabel names the synthetic bucket that absorbs everything past the top N
const OthersLabel = "Others"

// Dimension extracts the grouping key of a record. An empty key means "missing".
type Dimension func(*models.Incident) string

// Column groups by a named column (typed or passthrough)
func Column(name string) Dimension {
	return func(rec *models.Incident) string {
		return rec.Value(name)
	}
}

// Bucket is one key of a grouped count
type Bucket struct {
	Key   string
	Count int
	seen  int // first-seen position, used for stable tie-breaking
}

// Counts is an ordered key→count mapping.
// It marshals to a JSON object whose keys keep the slice order.
type Counts []Bucket

// Order selects how Counts are sorted
type Order int

const (
	OrderDesc Order = iota
	OrderAsc
	OrderFirstSeen
)

// GroupAndCount counts records per dimension value, highest count first.
// Ties keep first-seen order. Records with an empty value are left out,
// so the total equals the number of records that have the dimension.
func GroupAndCount(view []*models.Incident, dim Dimension) Counts {
	index := make(map[string]int)
	var counts Counts
	for _, rec := range view {
		key := dim(rec)
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			counts[i].Count++
			continue
		}
		index[key] = len(counts)
		counts = append(counts, Bucket{Key: key, Count: 1, seen: len(counts)})
	}
	return counts.Sorted(OrderDesc)
}

// Sorted returns a sorted copy
func (c Counts) Sorted(order Order) Counts {
	out := make(Counts, len(c))
	copy(out, c)
	sort.SliceStable(out, func(i, j int) bool {
		switch order {
		case OrderAsc:
			if out[i].Count != out[j].Count {
				return out[i].Count < out[j].Count
			}
		case OrderDesc:
			if out[i].Count != out[j].Count {
				return out[i].Count > out[j].Count
			}
		}
		return out[i].seen < out[j].seen
	})
	return out
}

// TopN keeps the n highest buckets of an already sorted Counts. n <= 0 keeps everything.
func TopN(c Counts, n int) Counts {
	if n <= 0 || n >= len(c) {
		return c
	}
	return c[:n:n]
}

// TopNWithOthers keeps the first n buckets and folds the rest into one
// OthersLabel bucket. The bucket is only added when the remainder is non-zero.
func TopNWithOthers(c Counts, n int) Counts {
	if n <= 0 || n >= len(c) {
		return c
	}
	top := make(Counts, n, n+1)
	copy(top, c[:n])
	rest := 0
	for _, b := range c[n:] {
		rest += b.Count
	}
	if rest == 0 {
		return top
	}
	// A real value named like the synthetic bucket absorbs the remainder
	for i := range top {
		if top[i].Key == OthersLabel {
			top[i].Count += rest
			return top
		}
	}
	return append(top, Bucket{Key: OthersLabel, Count: rest, seen: len(c)})
}

// Total sums every bucket
func (c Counts) Total() int {
	total := 0
	for _, b := range c {
		total += b.Count
	}
	return total
}

// Get returns the count for key, 0 when absent
func (c Counts) Get(key string) int {
	for _, b := range c {
		if b.Key == key {
			return b.Count
		}
	}
	return 0
}

// Keys returns the keys in order
func (c Counts) Keys() []string {
	keys := make([]string, len(c))
	for i, b := range c {
		keys[i] = b.Key
	}
	return keys
}

// Values returns the counts in order
func (c Counts) Values() []int {
	values := make([]int, len(c))
	for i, b := range c {
		values[i] = b.Count
	}
	return values
}

// MarshalJSON encodes Counts as an object, preserving order
func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(b.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(b.Count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
