// Package memory keeps a short, time-boxed window of dialogue per sender.
package memory

import (
	"time"

	"lead-agent/internal/domain"
	"lead-agent/internal/ttlstore"
)

const (
	DefaultTTL      = 30 * time.Minute
	DefaultMaxTurns = 8
)

// Memory stores the most recent turns for each sender.
type Memory struct {
	store    *ttlstore.Store[[]domain.Turn]
	maxTurns int
}

// New creates a Memory that keeps at most maxTurns per sender and forgets a
// sender after ttl of inactivity. Non-positive values select the defaults.
func New(ttl time.Duration, maxTurns int, opts ...ttlstore.Option) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Memory{
		store:    ttlstore.New[[]domain.Turn](ttl, opts...),
		maxTurns: maxTurns,
	}
}

// Turns returns a copy of the sender's turns, oldest first. It creates an
// empty record when none exists and refreshes the record's last touch.
func (m *Memory) Turns(sender string) []domain.Turn {
	var out []domain.Turn
	m.store.Update(sender, func(cur []domain.Turn, _ bool) []domain.Turn {
		out = append([]domain.Turn(nil), cur...)
		return cur
	})
	return out
}

// Append records a turn for sender. Empty sender or text is a no-op.
func (m *Memory) Append(sender string, role domain.Role, text string) {
	if sender == "" || text == "" {
		return
	}
	m.store.Update(sender, func(cur []domain.Turn, _ bool) []domain.Turn {
		next := make([]domain.Turn, 0, len(cur)+1)
		next = append(next, cur...)
		next = append(next, domain.Turn{Role: role, Text: text})
		if over := len(next) - m.maxTurns; over > 0 {
			next = next[over:]
		}
		return next
	})
}

// Forget drops everything known about sender.
func (m *Memory) Forget(sender string) {
	m.store.Delete(sender)
}
