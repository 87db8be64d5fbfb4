package domain

// Side identifies which half of the book an order belongs to.
type Side string

const (
	Buy  Side = "B"
	Sell Side = "S"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Event is the closed set of messages the order book consumes: real events
// replayed from the historical feed (non-negative order IDs) and synthetic
// user events injected through the tape (negative order IDs). The sealed
// marker keeps dispatch an exhaustive type switch over this package.
type Event interface {
	// EventTime returns the event timestamp in nanoseconds since midnight.
	EventTime() int64
	event()
}

// LimitOrder adds a new resting order to the book.
type LimitOrder struct {
	Timestamp int64
	ID        int64
	Side      Side
	Price     int64 // ticks
	Shares    int64
}

// MarketOrder consumes shares from the resting limit order identified by ID.
// Side is the side of the market order itself, opposite to the resting order.
type MarketOrder struct {
	Timestamp int64
	ID        int64
	Side      Side
	Shares    int64
}

// CancelOrder removes part of a resting order. Removing the full remaining
// size is expressed as a DeleteOrder, never as a cancel.
type CancelOrder struct {
	Timestamp int64
	ID        int64
	Shares    int64
}

// DeleteOrder removes a resting order entirely.
type DeleteOrder struct {
	Timestamp int64
	ID        int64
}

// UpdateOrder atomically deletes the order identified by OldID and inserts a
// replacement under ID at the new price and size. Time priority is lost.
type UpdateOrder struct {
	Timestamp int64
	OldID     int64
	ID        int64
	Price     int64
	Shares    int64
}

// UserLimitOrder is the simulated participant's resting order. The tape
// stamps Timestamp and the negative ID before the event becomes visible.
type UserLimitOrder struct {
	Timestamp int64
	ID        int64
	Side      Side
	Price     int64
	Shares    int64
}

// UserMarketOrder sweeps real liquidity from the opposite side of the book.
type UserMarketOrder struct {
	Timestamp int64
	ID        int64
	Side      Side
	Shares    int64
}

func (e LimitOrder) EventTime() int64      { return e.Timestamp }
func (e MarketOrder) EventTime() int64     { return e.Timestamp }
func (e CancelOrder) EventTime() int64     { return e.Timestamp }
func (e DeleteOrder) EventTime() int64     { return e.Timestamp }
func (e UpdateOrder) EventTime() int64     { return e.Timestamp }
func (e UserLimitOrder) EventTime() int64  { return e.Timestamp }
func (e UserMarketOrder) EventTime() int64 { return e.Timestamp }

func (LimitOrder) event()      {}
func (MarketOrder) event()     {}
func (CancelOrder) event()     {}
func (DeleteOrder) event()     {}
func (UpdateOrder) event()     {}
func (UserLimitOrder) event()  {}
func (UserMarketOrder) event() {}

// IsUserOrder reports whether an order ID belongs to the synthetic
// participant. The tape assigns user orders strictly negative IDs; feed
// events carry the exchange's non-negative ones.
func IsUserOrder(id int64) bool { return id < 0 }
