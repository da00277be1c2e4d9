package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// normalizeName lowercases and collapses whitespace so display-name variants
// of the same brand or model key identically
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// roundTo rounds v to the nearest multiple of step
func roundTo(v, step float64) int64 {
	if step <= 0 {
		return int64(math.Round(v))
	}
	return int64(math.Round(v/step) * step)
}

// Fingerprint computes the content hash used for deduplication. Price is
// rounded to the nearest 100 and mileage to the nearest 1000 so trivial
// relistings of the same vehicle collapse onto one fingerprint.
func Fingerprint(brand, model string, year int, price, mileage float64) string {
	key := fmt.Sprintf("%s|%s|%d|%d|%d",
		normalizeName(brand),
		normalizeName(model),
		year,
		roundTo(price, 100),
		roundTo(mileage, 1000),
	)

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
