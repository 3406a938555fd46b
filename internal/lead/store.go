// Package lead extracts and tracks structured lead information per sender.
package lead

import (
	"time"

	"lead-agent/internal/domain"
	"lead-agent/internal/ttlstore"
)

const DefaultTTL = 60 * time.Minute

// Store holds one Lead per sender.
type Store struct {
	leads *ttlstore.Store[domain.Lead]
}

// NewStore creates a Store that forgets a sender after ttl of inactivity. A
// non-positive ttl selects DefaultTTL.
func NewStore(ttl time.Duration, opts ...ttlstore.Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{leads: ttlstore.New[domain.Lead](ttl, opts...)}
}

// State returns the sender's lead, creating an empty one if absent.
func (s *Store) State(sender string) domain.Lead {
	return s.leads.Update(sender, func(cur domain.Lead, _ bool) domain.Lead {
		return cur
	})
}

// ApplyExtraction runs Extract against the sender's current lead and
// utterance, stores the result and returns it.
func (s *Store) ApplyExtraction(sender, utterance string) domain.Lead {
	return s.leads.Update(sender, func(cur domain.Lead, _ bool) domain.Lead {
		return Extract(cur, utterance)
	})
}

// SetSlot overwrites one slot regardless of its current value. It is meant
// for operators correcting a lead, not for the extraction path.
func (s *Store) SetSlot(sender string, slot domain.Slot, value string) domain.Lead {
	return s.leads.Update(sender, func(cur domain.Lead, _ bool) domain.Lead {
		return cur.With(slot, value)
	})
}

// Reset clears every slot for sender.
func (s *Store) Reset(sender string) {
	s.leads.Delete(sender)
}
