// Package feed loads the normalized replay event sequence produced by the
// upstream market-data parser.
package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"marketsim/internal/domain"
)

// record is the JSON-lines wire form of one normalized market event.
type record struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"ts"`
	ID        int64  `json:"id"`
	OldID     int64  `json:"old_id,omitempty"`
	Side      string `json:"side,omitempty"`
	Price     int64  `json:"price,omitempty"`
	Shares    int64  `json:"shares,omitempty"`
}

// Load reads a JSON-lines event file into the ordered sequence the tape
// replays.
func Load(path string) ([]domain.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", path, err)
	}
	defer f.Close()
	events, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("feed: %s: %w", path, err)
	}
	return events, nil
}

// Decode parses one event object per line, validating event shape and
// timestamp ordering. The replay feed is pre-sorted upstream, so an
// out-of-order line means a corrupted file rather than something to fix up.
func Decode(r io.Reader) ([]domain.Event, error) {
	var events []domain.Event
	var lastTS int64

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ev, err := rec.toEvent()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(events) > 0 && ev.EventTime() < lastTS {
			return nil, fmt.Errorf("line %d: timestamp %d precedes %d", line, ev.EventTime(), lastTS)
		}
		lastTS = ev.EventTime()
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (rec record) toEvent() (domain.Event, error) {
	side := domain.Side(rec.Side)
	switch rec.Type {
	case "limit":
		if err := validSide(side); err != nil {
			return nil, err
		}
		if rec.Shares <= 0 {
			return nil, fmt.Errorf("limit order shares must be positive, got %d", rec.Shares)
		}
		return domain.LimitOrder{Timestamp: rec.Timestamp, ID: rec.ID, Side: side, Price: rec.Price, Shares: rec.Shares}, nil
	case "market":
		if err := validSide(side); err != nil {
			return nil, err
		}
		if rec.Shares <= 0 {
			return nil, fmt.Errorf("market order shares must be positive, got %d", rec.Shares)
		}
		return domain.MarketOrder{Timestamp: rec.Timestamp, ID: rec.ID, Side: side, Shares: rec.Shares}, nil
	case "cancel":
		if rec.Shares <= 0 {
			return nil, fmt.Errorf("cancel shares must be positive, got %d", rec.Shares)
		}
		return domain.CancelOrder{Timestamp: rec.Timestamp, ID: rec.ID, Shares: rec.Shares}, nil
	case "delete":
		return domain.DeleteOrder{Timestamp: rec.Timestamp, ID: rec.ID}, nil
	case "update":
		if rec.Shares <= 0 {
			return nil, fmt.Errorf("update shares must be positive, got %d", rec.Shares)
		}
		return domain.UpdateOrder{Timestamp: rec.Timestamp, OldID: rec.OldID, ID: rec.ID, Price: rec.Price, Shares: rec.Shares}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", rec.Type)
	}
}

func validSide(s domain.Side) error {
	if s != domain.Buy && s != domain.Sell {
		return fmt.Errorf("unknown side %q", s)
	}
	return nil
}
