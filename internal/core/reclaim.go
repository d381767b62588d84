package core

import (
	"github.com/drivetidy/drivetidy/internal/model"
)

// OneGig is the divisor used when reporting gigabytes.
const OneGig = 1 << 30

// ReclaimableBytes sums the quota bytes of every member that would be
// removed. The representative of each set is never counted.
func ReclaimableBytes(sets []model.DuplicateSet) int64 {
	var total int64
	for _, set := range sets {
		for _, r := range set.Extras() {
			total += r.SizeBytes
		}
	}
	return total
}

// Gigabytes converts bytes to a fractional gigabyte count.
func Gigabytes(bytes int64) float64 {
	return float64(bytes) / float64(OneGig)
}
