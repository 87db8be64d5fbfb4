// Package tape merges the replayed historical event stream with the
// latency-delayed queue of synthetic user events into one total order.
package tape

import (
	"fmt"
	"math"

	"marketsim/internal/domain"
)

// Tape owns the real event sequence, a cursor into it, and the pending user
// events ordered by their scheduled (delayed) timestamps. User orders become
// visible to the book only once their scheduled time beats the next real
// event, which is how network latency is modeled.
type Tape struct {
	events  []domain.Event
	latency int64
	endTime int64

	pos        int
	pending    []domain.Event
	now        int64
	nextUserID int64
}

// New builds a tape over a time-ordered real event sequence. Latency is
// added to the current tape time when a user order is enqueued. endTime
// bounds the window in which user events may still surface; zero means
// unbounded.
func New(events []domain.Event, latency, endTime int64) (*Tape, error) {
	if latency < 0 {
		return nil, fmt.Errorf("latency must be non-negative, got %d", latency)
	}
	for i := 1; i < len(events); i++ {
		if events[i].EventTime() < events[i-1].EventTime() {
			return nil, fmt.Errorf("real events out of order at index %d (%d < %d)",
				i, events[i].EventTime(), events[i-1].EventTime())
		}
	}
	if endTime <= 0 {
		endTime = math.MaxInt64
	}
	t := &Tape{events: events, latency: latency, endTime: endTime}
	t.Reset()
	return t, nil
}

// Reset rewinds the tape to replay the same window deterministically:
// cursor at the start, pending user events dropped, ID counter and clock
// back to their initial values.
func (t *Tape) Reset() {
	t.pos = 0
	t.pending = t.pending[:0]
	t.now = 0
	t.nextUserID = -1
}

// AddUserLimit schedules a user limit order and returns its assigned ID.
func (t *Tape) AddUserLimit(side domain.Side, price, shares int64) int64 {
	id := t.nextID()
	t.pending = append(t.pending, domain.UserLimitOrder{
		Timestamp: t.now + t.latency,
		ID:        id,
		Side:      side,
		Price:     price,
		Shares:    shares,
	})
	return id
}

// AddUserMarket schedules a user market order and returns its assigned ID.
func (t *Tape) AddUserMarket(side domain.Side, shares int64) int64 {
	id := t.nextID()
	t.pending = append(t.pending, domain.UserMarketOrder{
		Timestamp: t.now + t.latency,
		ID:        id,
		Side:      side,
		Shares:    shares,
	})
	return id
}

func (t *Tape) nextID() int64 {
	id := t.nextUserID
	t.nextUserID--
	return id
}

// Next returns the next event in merged order. A pending user event wins
// only when its scheduled time is strictly earlier than the next real
// event's timestamp and falls before the end of the trading window; ties go
// to the real feed. The clock advances on real events only. Once the real
// sequence is exhausted the tape is done regardless of pending user events.
func (t *Tape) Next() (domain.Event, bool) {
	if t.Done() {
		return nil, false
	}
	if len(t.pending) > 0 {
		u := t.pending[0]
		if ts := u.EventTime(); ts < t.events[t.pos].EventTime() && ts < t.endTime {
			t.pending = t.pending[1:]
			return u, true
		}
	}
	ev := t.events[t.pos]
	t.pos++
	t.now = ev.EventTime()
	return ev, true
}

// Done reports whether the real sequence is exhausted.
func (t *Tape) Done() bool { return t.pos >= len(t.events) }

// CurrentTime is the timestamp of the last real event returned.
func (t *Tape) CurrentTime() int64 { return t.now }
