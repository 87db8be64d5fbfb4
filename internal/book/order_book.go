package book

import (
	"fmt"

	"github.com/shopspring/decimal"

	"marketsim/internal/domain"
)

// OrderBook composes the bid and ask side books and is the single entry
// point for events. It is a pure reducer: the book state is fully determined
// by the sequence of events applied since the last Reset, which is what
// makes replay deterministic.
type OrderBook struct {
	bids *SideBook
	asks *SideBook
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids: newSideBook(domain.Buy),
		asks: newSideBook(domain.Sell),
	}
}

// Bids returns the bid side for read-only queries.
func (b *OrderBook) Bids() *SideBook { return b.bids }

// Asks returns the ask side for read-only queries.
func (b *OrderBook) Asks() *SideBook { return b.asks }

// Reset discards all book state.
func (b *OrderBook) Reset() {
	b.bids = newSideBook(domain.Buy)
	b.asks = newSideBook(domain.Sell)
}

// Apply dispatches one event to the owning side(s) and returns the fills it
// produced. Any error is an invariant failure: either the replay feed is
// corrupted or the driver issued an impossible synthetic order. The book
// must not be used after an error.
func (b *OrderBook) Apply(ev domain.Event) ([]domain.Execution, error) {
	switch e := ev.(type) {
	case domain.LimitOrder:
		return b.addLimitOrder(e)
	case domain.MarketOrder:
		if e.Side == domain.Sell {
			return b.bids.matchReal(e)
		}
		return b.asks.matchReal(e)
	case domain.CancelOrder:
		s, err := b.owningSide(e.ID)
		if err != nil {
			return nil, err
		}
		return nil, s.cancelReal(e)
	case domain.DeleteOrder:
		s, err := b.owningSide(e.ID)
		if err != nil {
			return nil, err
		}
		return nil, s.deleteReal(e)
	case domain.UpdateOrder:
		return b.modifyOrder(e)
	case domain.UserLimitOrder:
		return nil, b.addUserLimitOrder(e)
	case domain.UserMarketOrder:
		return b.matchUserMarketOrder(e)
	default:
		return nil, fmt.Errorf("unrecognized event type %T", ev)
	}
}

// addLimitOrder validates the incoming real order against the opposite real
// quote, resolves any phantom order it crosses, then rests it.
func (b *OrderBook) addLimitOrder(o domain.LimitOrder) ([]domain.Execution, error) {
	if o.Side == domain.Buy {
		if ask, ok := b.asks.Quote(); ok && o.Price >= ask {
			return nil, fmt.Errorf("buy limit order of price %d crosses the ask book with quote of %d", o.Price, ask)
		}
	} else {
		if bid, ok := b.bids.Quote(); ok && o.Price <= bid {
			return nil, fmt.Errorf("sell limit order of price %d crosses the bid book with quote of %d", o.Price, bid)
		}
	}

	opposite := b.sideBook(o.Side.Opposite())
	execs, err := opposite.resolveCrossing(o.Price)
	if err != nil {
		return nil, err
	}
	if err := b.sideBook(o.Side).addReal(o); err != nil {
		return nil, err
	}
	return execs, nil
}

// modifyOrder deletes the old order and rests its replacement, losing time
// priority. The side carries over from the old order since the feed does not
// repeat it.
func (b *OrderBook) modifyOrder(u domain.UpdateOrder) ([]domain.Execution, error) {
	s, err := b.owningSide(u.OldID)
	if err != nil {
		return nil, err
	}
	if err := s.deleteReal(domain.DeleteOrder{Timestamp: u.Timestamp, ID: u.OldID}); err != nil {
		return nil, err
	}
	return b.addLimitOrder(domain.LimitOrder{
		Timestamp: u.Timestamp,
		ID:        u.ID,
		Side:      s.Side(),
		Price:     u.Price,
		Shares:    u.Shares,
	})
}

// addUserLimitOrder rests the participant's order. The cross check uses the
// opposite front price including phantom levels, so a user order can cross
// neither real liquidity nor the participant's own opposite quote.
func (b *OrderBook) addUserLimitOrder(o domain.UserLimitOrder) error {
	if o.Side == domain.Buy {
		if front, ok := b.asks.FrontPrice(); ok && o.Price >= front {
			return fmt.Errorf("bid order crosses the book (price %d, ask front %d)", o.Price, front)
		}
	} else {
		if front, ok := b.bids.FrontPrice(); ok && o.Price <= front {
			return fmt.Errorf("ask order crosses the book (price %d, bid front %d)", o.Price, front)
		}
	}
	_, _, err := b.sideBook(o.Side).addPhantom(o)
	return err
}

func (b *OrderBook) matchUserMarketOrder(m domain.UserMarketOrder) ([]domain.Execution, error) {
	target := b.sideBook(m.Side.Opposite())
	exec, err := target.matchPhantomMarket(m)
	if err != nil {
		return nil, err
	}
	return []domain.Execution{exec}, nil
}

func (b *OrderBook) sideBook(side domain.Side) *SideBook {
	if side == domain.Buy {
		return b.bids
	}
	return b.asks
}

// owningSide locates the side holding a real order ID, for events that do
// not carry a side of their own.
func (b *OrderBook) owningSide(id int64) (*SideBook, error) {
	if b.bids.hasOrder(id) {
		return b.bids, nil
	}
	if b.asks.hasOrder(id) {
		return b.asks, nil
	}
	return nil, fmt.Errorf("order ID %d not found", id)
}

// Quote returns the best real prices on both sides.
func (b *OrderBook) Quote() domain.Quote {
	var q domain.Quote
	q.Bid, q.HasBid = b.bids.Quote()
	q.Ask, q.HasAsk = b.asks.Quote()
	return q
}

// Depth returns up to n published levels per side, best first.
func (b *OrderBook) Depth(n int) ([]domain.DepthLevel, []domain.DepthLevel) {
	return b.bids.Depth(n), b.asks.Depth(n)
}

// MidPrice returns the midpoint of the quote. It is undefined unless both
// sides hold real liquidity.
func (b *OrderBook) MidPrice() (decimal.Decimal, bool) {
	q := b.Quote()
	if !q.HasBid || !q.HasAsk {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromInt(q.Bid + q.Ask).Div(decimal.NewFromInt(2)), true
}

// Spread returns ask quote minus bid quote in ticks.
func (b *OrderBook) Spread() (int64, bool) {
	q := b.Quote()
	if !q.HasBid || !q.HasAsk {
		return 0, false
	}
	return q.Ask - q.Bid, true
}

// Empty reports whether both sides hold nothing at all, real or phantom.
// A fully drained session ends with an empty book.
func (b *OrderBook) Empty() bool {
	return b.bids.empty() && b.asks.empty()
}
