// Package dedup recognises retransmitted webhook deliveries.
package dedup

import (
	"strconv"
	"sync"
	"time"

	"lead-agent/internal/ttlstore"
)

// DefaultTTL is how long an admitted key is remembered.
const DefaultTTL = 5 * time.Minute

// Guard runs two independent idempotency checks: one on the platform event
// identifier and one on a sender:timestamp:text fingerprint.
type Guard struct {
	mu         sync.Mutex
	events     *ttlstore.Store[struct{}]
	composites *ttlstore.Store[struct{}]
}

// NewGuard creates a Guard whose keys expire ttl after admission. A
// non-positive ttl falls back to DefaultTTL.
func NewGuard(ttl time.Duration, opts ...ttlstore.Option) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		events:     ttlstore.New[struct{}](ttl, opts...),
		composites: ttlstore.New[struct{}](ttl, opts...),
	}
}

// IsDuplicate reports whether eventID or compositeKey was admitted within the
// TTL window. A duplicate leaves the guard untouched; otherwise both keys are
// admitted. Empty keys never match.
func (g *Guard) IsDuplicate(eventID, compositeKey string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if eventID != "" {
		if _, ok := g.events.Get(eventID); ok {
			return true
		}
	}
	if compositeKey != "" {
		if _, ok := g.composites.Get(compositeKey); ok {
			return true
		}
	}

	if eventID != "" {
		g.events.Put(eventID, struct{}{})
	}
	if compositeKey != "" {
		g.composites.Put(compositeKey, struct{}{})
	}
	return false
}

// CompositeKey fingerprints an inbound message as senderId:timestamp:rawText.
// It returns "" when the timestamp is unknown (zero or negative) so that two
// distinct messages with equal text do not collapse into one.
func CompositeKey(senderID string, timestamp int64, text string) string {
	if timestamp <= 0 {
		return ""
	}
	return senderID + ":" + strconv.FormatInt(timestamp, 10) + ":" + text
}
