package hms

import (
	"time"

	"github.com/bambubeacon/bambubeacon-server/internal/models"
)

const (
	// DefaultCapacity is the number of distinct alert identities
	// tracked concurrently.
	DefaultCapacity = 20

	// DefaultTTL is the silence duration after which an active alert
	// is deactivated.
	DefaultTTL = 20 * time.Second
)

// EventStore is a fixed-capacity cache of alert events keyed by
// identity. All slots are allocated up front; an upsert never fails and
// never allocates. It is not safe for concurrent use; the owning
// monitor serializes access.
type EventStore struct {
	slots []models.AlertEvent
}

// NewEventStore creates a store with the given capacity. A
// non-positive capacity falls back to DefaultCapacity.
func NewEventStore(capacity int) *EventStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &EventStore{slots: make([]models.AlertEvent, capacity)}
}

// Capacity returns the fixed slot count
func (s *EventStore) Capacity() int {
	return len(s.slots)
}

// Upsert records an observation of the (attr, code) alert. A slot
// already holding the identity, active or not, is refreshed in place.
// Otherwise a slot is allocated: the first free one, else the inactive
// slot unseen the longest, else the globally oldest slot even if still
// active.
func (s *EventStore) Upsert(attr, code uint32, now time.Time) {
	id := models.NewAlertIdentity(attr, code)

	for i := range s.slots {
		if s.slots[i].Identity == id {
			s.slots[i].LastSeenAt = now
			s.slots[i].Count++
			s.slots[i].Active = true
			return
		}
	}

	slot := -1
	for i := range s.slots {
		if s.slots[i].Identity.IsZero() {
			slot = i
			break
		}
	}

	if slot < 0 {
		var bestAge time.Duration
		for i := range s.slots {
			if s.slots[i].Active {
				continue
			}
			age := now.Sub(s.slots[i].LastSeenAt)
			if slot < 0 || age >= bestAge {
				bestAge = age
				slot = i
			}
		}
		if slot < 0 {
			for i := range s.slots {
				age := now.Sub(s.slots[i].LastSeenAt)
				if slot < 0 || age >= bestAge {
					bestAge = age
					slot = i
				}
			}
		}
	}

	s.slots[slot] = models.AlertEvent{
		Identity:    id,
		DisplayCode: id.Display(),
		Severity:    Classify(code),
		FirstSeenAt: now,
		LastSeenAt:  now,
		Count:       1,
		Active:      true,
	}
}

// Expire deactivates every occupied slot whose active alert has been
// silent longer than ttl. Idempotent; it is the only way an alert
// stops being active. A non-positive ttl falls back to DefaultTTL.
func (s *EventStore) Expire(now time.Time, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	for i := range s.slots {
		if s.slots[i].Identity.IsZero() {
			continue
		}
		if s.slots[i].Active && now.Sub(s.slots[i].LastSeenAt) > ttl {
			s.slots[i].Active = false
		}
	}
}

// TopSeverity returns the maximum severity among active slots, None
// when nothing is active.
func (s *EventStore) TopSeverity() models.Severity {
	top := models.SeverityNone
	for i := range s.slots {
		if s.slots[i].Active && s.slots[i].Severity > top {
			top = s.slots[i].Severity
		}
	}
	return top
}

// HasProblem reports whether anything at Warning or above is active
func (s *EventStore) HasProblem() bool {
	return s.TopSeverity() >= models.SeverityWarning
}

// CountActive counts active slots of exactly the given severity
func (s *EventStore) CountActive(sev models.Severity) int {
	n := 0
	for i := range s.slots {
		if s.slots[i].Active && s.slots[i].Severity == sev {
			n++
		}
	}
	return n
}

// CountActiveTotal counts all active slots
func (s *EventStore) CountActiveTotal() int {
	n := 0
	for i := range s.slots {
		if s.slots[i].Active {
			n++
		}
	}
	return n
}

// SnapshotActive copies up to max active events out in slot order, not
// ranked by severity or recency. Callers needing ranked output sort the
// result themselves.
func (s *EventStore) SnapshotActive(max int) []models.AlertEvent {
	if max <= 0 {
		return nil
	}
	out := make([]models.AlertEvent, 0, max)
	for i := range s.slots {
		if !s.slots[i].Active {
			continue
		}
		out = append(out, s.slots[i])
		if len(out) >= max {
			break
		}
	}
	return out
}
