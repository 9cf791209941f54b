package run

import (
	"sync"

	"github.com/Toagan/leadgen-scraper/internal/model"
)

// Collector holds the run-scoped seen-identifier set and the accepted result
// sequence. Offer and Accept are serialized so the same business is never
// double-counted when it appears on two cells' result pages.
type Collector struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	accepted []model.Lead
}

func NewCollector() *Collector {
	return &Collector{seen: make(map[string]struct{})}
}

// Offer records the lead's identifier and reports whether it was new to this
// run. Quality-rejected leads still pass through Offer, so their identifiers
// stay in the seen set and are never re-evaluated on a later cell.
func (c *Collector) Offer(l model.Lead) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[l.PlaceRef]; dup {
		return false
	}
	c.seen[l.PlaceRef] = struct{}{}
	return true
}

// Accept appends a lead to the accepted sequence in discovery order.
func (c *Collector) Accept(l model.Lead) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted = append(c.accepted, l)
}

// AcceptedCount returns the number of accepted leads.
func (c *Collector) AcceptedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.accepted)
}

// SeenCount returns the size of the seen-identifier set. Always ≥ AcceptedCount.
func (c *Collector) SeenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Accepted returns a copy of the accepted sequence; the live slice is never
// handed out.
func (c *Collector) Accepted() []model.Lead {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Lead, len(c.accepted))
	copy(out, c.accepted)
	return out
}
