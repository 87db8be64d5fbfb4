package book

import (
	"container/list"
	"fmt"

	"marketsim/internal/domain"
)

// entry is one resting order queued at a price level. Real and phantom
// orders share the queue so time priority between them is observable, but
// only real entries contribute to the published share total.
type entry struct {
	id      int64
	side    domain.Side
	shares  int64
	phantom bool
}

// priceLevel is the FIFO queue of resting orders at a single price.
type priceLevel struct {
	price      int64
	realShares int64
	queue      *list.List // of *entry, front = oldest
	byID       map[int64]*list.Element
	phantom    *list.Element // nil when no user order rests here
}

func newPriceLevel(price int64) *priceLevel {
	return &priceLevel{
		price: price,
		queue: list.New(),
		byID:  make(map[int64]*list.Element),
	}
}

// insertReal appends a real order to the queue.
func (l *priceLevel) insertReal(o domain.LimitOrder) error {
	if o.Price != l.price {
		return fmt.Errorf("limit order price %d does not match price level %d", o.Price, l.price)
	}
	e := &entry{id: o.ID, side: o.Side, shares: o.Shares}
	l.byID[o.ID] = l.queue.PushBack(e)
	l.realShares += o.Shares
	return nil
}

// insertPhantom appends the user's order without touching the real total.
func (l *priceLevel) insertPhantom(o domain.UserLimitOrder) error {
	if o.Price != l.price {
		return fmt.Errorf("user limit order price %d does not match price level %d", o.Price, l.price)
	}
	if !domain.IsUserOrder(o.ID) {
		return fmt.Errorf("user order must have a negative order ID, got %d", o.ID)
	}
	if l.phantom != nil {
		return fmt.Errorf("price level %d already holds a user limit order", l.price)
	}
	e := &entry{id: o.ID, side: o.Side, shares: o.Shares, phantom: true}
	el := l.queue.PushBack(e)
	l.byID[o.ID] = el
	l.phantom = el
	return nil
}

// fillReal executes a market order against the resting order it references.
// When the user's phantom order sits ahead of the matched order it is deemed
// filled by the same flow and returned to the caller; a phantom behind the
// matched order keeps resting. A fill that skips over another real order
// while a phantom is ahead would steal the phantom's priority, so it is an
// invariant failure.
func (l *priceLevel) fillReal(m domain.MarketOrder) (exhausted bool, phantom *entry, err error) {
	el, ok := l.byID[m.ID]
	if !ok {
		return false, nil, fmt.Errorf("order ID %d not found at price level %d", m.ID, l.price)
	}
	e := el.Value.(*entry)
	if e.side == m.Side {
		return false, nil, fmt.Errorf("limit order and market order are on the same side (%s)", m.Side)
	}
	if m.Shares > e.shares {
		return false, nil, fmt.Errorf("market order shares %d is more than limit order shares %d", m.Shares, e.shares)
	}

	if l.phantom != nil {
		phantomAhead, realAhead := false, false
		for cur := l.queue.Front(); cur != nil && cur != el; cur = cur.Next() {
			if cur.Value.(*entry).phantom {
				phantomAhead = true
			} else {
				realAhead = true
			}
		}
		if phantomAhead {
			if realAhead {
				return false, nil, fmt.Errorf("market order matched against a level not at the front (price %d)", l.price)
			}
			phantom = l.popPhantom()
		}
	}

	e.shares -= m.Shares
	l.realShares -= m.Shares
	if e.shares == 0 {
		l.queue.Remove(el)
		delete(l.byID, e.id)
		exhausted = true
	}
	return exhausted, phantom, nil
}

// reduceReal implements partial cancellation. Cancelling the whole remaining
// size must arrive as a delete, so driving shares to zero here is an error.
func (l *priceLevel) reduceReal(id, shares int64) error {
	el, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("order ID %d not found at price level %d", id, l.price)
	}
	e := el.Value.(*entry)
	if e.shares <= shares {
		return fmt.Errorf("cancel more shares than available (%d <= %d)", e.shares, shares)
	}
	e.shares -= shares
	l.realShares -= shares
	return nil
}

// removeReal deletes a resting real order entirely.
func (l *priceLevel) removeReal(id int64) error {
	el, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("order ID %d not found at price level %d", id, l.price)
	}
	e := el.Value.(*entry)
	l.queue.Remove(el)
	delete(l.byID, id)
	l.realShares -= e.shares
	return nil
}

// popPhantom unconditionally removes and returns the resting user order, or
// nil when none rests here.
func (l *priceLevel) popPhantom() *entry {
	if l.phantom == nil {
		return nil
	}
	e := l.phantom.Value.(*entry)
	l.queue.Remove(l.phantom)
	delete(l.byID, e.id)
	l.phantom = nil
	return e
}

// matchSyntheticMarket consumes real depth for a user market order and
// returns the shares still unmet after this level. The walk is virtual: the
// resting real orders are untouched because the historical tape still owes
// their fills to later real events.
func (l *priceLevel) matchSyntheticMarket(remaining int64) (int64, error) {
	if l.phantom != nil {
		return remaining, fmt.Errorf("user market order cannot match against price level %d holding a user limit order", l.price)
	}
	if l.realShares >= remaining {
		return 0, nil
	}
	return remaining - l.realShares, nil
}

// isEmpty reports whether the level holds neither real shares nor a phantom
// order and must be pruned.
func (l *priceLevel) isEmpty() bool {
	return l.realShares == 0 && l.phantom == nil
}
