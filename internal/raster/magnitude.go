package raster

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
)

// Bucket identifies one of the nine fixed order-of-magnitude ranges used to
// classify pixel values.
type Bucket int

// The bucket layout deliberately leaves the open interval (0, 0.001)
// unclassified: exact zeros get their own bucket and the first non-zero range
// starts at 0.001. Values in the gap are dropped from the histogram entirely.
// Downstream consumers depend on the resulting counts, so the gap must not be
// "fixed".
const (
	BucketZero Bucket = iota
	Bucket001
	Bucket01
	Bucket1
	Bucket10
	Bucket100
	Bucket1000
	Bucket10000
	BucketOver10000

	NumBuckets = 9
)

var bucketLabels = [NumBuckets]string{
	"0",
	"0.001-0.01",
	"0.01-0.1",
	"0.1-1",
	"1-10",
	"10-100",
	"100-1000",
	"1000-10000",
	"10000+",
}

// bucket lower bounds for the non-zero ranges, aligned with bucketLabels[1:].
var bucketFloors = [...]float64{0.001, 0.01, 0.1, 1, 10, 100, 1000, 10000}

// Label returns the bucket's range label as used in serialized histograms.
func (b Bucket) Label() string {
	return bucketLabels[b]
}

// bucketFor maps a finite, non-negative value to its bucket. The second
// return is false for values falling in the (0, 0.001) gap.
func bucketFor(v float64) (Bucket, bool) {
	if v == 0 {
		return BucketZero, true
	}
	if v >= 10000 {
		return BucketOver10000, true
	}
	for i := len(bucketFloors) - 2; i >= 0; i-- {
		if v >= bucketFloors[i] {
			return Bucket(i + 1), true
		}
	}
	return 0, false
}

// Histogram holds a pixel count per magnitude bucket. It serializes as a
// label-to-count mapping with all nine labels always present.
type Histogram struct {
	Counts [NumBuckets]int
}

// Classify bins a raster's values into the nine magnitude buckets.
// Non-finite and negative cells are excluded entirely: they count toward
// neither the histogram nor its total.
func Classify(r *Raster) Histogram {
	var h Histogram
	for _, v := range r.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			continue
		}
		if b, ok := bucketFor(v); ok {
			h.Counts[b]++
		}
	}
	return h
}

// Total returns the number of classified pixels (finite, non-negative cells
// outside the (0, 0.001) gap).
func (h Histogram) Total() int {
	n := 0
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// MarshalJSON encodes the histogram as a label→count object.
func (h Histogram) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, NumBuckets)
	for i, c := range h.Counts {
		m[bucketLabels[i]] = c
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a label→count object. Unknown labels are rejected so
// corrupted records surface instead of silently losing counts.
func (h *Histogram) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return eris.Wrap(err, "raster: decode histogram")
	}
	*h = Histogram{}
	for label, count := range m {
		idx := -1
		for i, l := range bucketLabels {
			if l == label {
				idx = i
				break
			}
		}
		if idx < 0 {
			return eris.Errorf("raster: unknown histogram bucket %q", label)
		}
		h.Counts[idx] = count
	}
	return nil
}
