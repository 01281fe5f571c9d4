package notify

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"stockwatch/internal/models"
)

// Fingerprint identifies an alert at a price level. Two alerts with the same
// ticker and type whose prices round to the same cent share a fingerprint.
type Fingerprint struct {
	Ticker string
	Type   models.AlertType
	Cents  int64
}

// String renders the fingerprint as ticker-type-cents.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%s-%s-%d", f.Ticker, f.Type, f.Cents)
}

// FingerprintOf derives the fingerprint of an alert. Prices round half away
// from zero, so 99.995 and 100.00 both map to 10000 cents.
func FingerprintOf(a models.PriceAlert) Fingerprint {
	cents := decimal.NewFromFloat(a.CurrentPrice).Round(2).Shift(2).IntPart()
	return Fingerprint{
		Ticker: strings.ToUpper(strings.TrimSpace(a.Ticker)),
		Type:   models.AlertType(strings.ToLower(string(a.Type))),
		Cents:  cents,
	}
}

// DedupCache remembers which alert fingerprints were already delivered.
// Entries live until Clear; there is no time-based eviction.
type DedupCache struct {
	mu   sync.Mutex
	seen map[Fingerprint]struct{}
}

// NewDedupCache creates an empty cache.
func NewDedupCache() *DedupCache {
	return &DedupCache{seen: make(map[Fingerprint]struct{})}
}

// ShouldDeliver reports whether the alert's fingerprint is new.
func (c *DedupCache) ShouldDeliver(a models.PriceAlert) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[FingerprintOf(a)]
	return !ok
}

// RecordDelivered marks the alert's fingerprint as delivered. Call it after
// a true ShouldDeliver and before sending.
func (c *DedupCache) RecordDelivered(a models.PriceAlert) {
	c.mu.Lock()
	c.seen[FingerprintOf(a)] = struct{}{}
	c.mu.Unlock()
}

// Claim checks and records in one step. It returns true exactly once per
// fingerprint, even when called from overlapping poll cycles.
func (c *DedupCache) Claim(a models.PriceAlert) (Fingerprint, bool) {
	fp := FingerprintOf(a)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[fp]; ok {
		return fp, false
	}
	c.seen[fp] = struct{}{}
	return fp, true
}

// Clear forgets every fingerprint.
func (c *DedupCache) Clear() {
	c.mu.Lock()
	c.seen = make(map[Fingerprint]struct{})
	c.mu.Unlock()
}

// Len returns the number of remembered fingerprints.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
