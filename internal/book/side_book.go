package book

import (
	"fmt"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"marketsim/internal/domain"
)

const priceTreeDegree = 32

// levelItem orders price levels best-first in the btree. The key is the raw
// price for the ask side and the negated price for the bid side, so that
// ascending key order always walks from best to worst.
type levelItem struct {
	key   int64
	level *priceLevel
}

func (a levelItem) Less(b btree.Item) bool { return a.key < b.(levelItem).key }

// SideBook is one side of the order book: price levels ordered best-first,
// an index from real order ID to owning level, and at most one resting
// phantom (user) order.
type SideBook struct {
	side   domain.Side
	prices *btree.BTree
	levels map[int64]*priceLevel
	orders map[int64]*priceLevel // real order ID -> owning level

	phantomLevel *priceLevel
	phantomID    int64
}

func newSideBook(side domain.Side) *SideBook {
	return &SideBook{
		side:   side,
		prices: btree.New(priceTreeDegree),
		levels: make(map[int64]*priceLevel),
		orders: make(map[int64]*priceLevel),
	}
}

// Side returns which half of the book this is.
func (s *SideBook) Side() domain.Side { return s.side }

func (s *SideBook) key(price int64) int64 {
	if s.side == domain.Buy {
		return -price
	}
	return price
}

// crossedBy reports whether a resting price on this side is crossed by an
// incoming opposite-side price.
func (s *SideBook) crossedBy(resting, incoming int64) bool {
	if s.side == domain.Buy {
		return resting >= incoming
	}
	return resting <= incoming
}

func (s *SideBook) getLevel(price int64) *priceLevel {
	if l, ok := s.levels[price]; ok {
		return l
	}
	l := newPriceLevel(price)
	s.levels[price] = l
	s.prices.ReplaceOrInsert(levelItem{key: s.key(price), level: l})
	return l
}

func (s *SideBook) removeLevel(l *priceLevel) {
	delete(s.levels, l.price)
	s.prices.Delete(levelItem{key: s.key(l.price)})
}

// ascend walks price levels from best to worst until fn returns false.
func (s *SideBook) ascend(fn func(l *priceLevel) bool) {
	s.prices.Ascend(func(it btree.Item) bool {
		return fn(it.(levelItem).level)
	})
}

// addReal inserts a new resting real order at its price level.
func (s *SideBook) addReal(o domain.LimitOrder) error {
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("limit order ID %d already exists", o.ID)
	}
	l := s.getLevel(o.Price)
	if err := l.insertReal(o); err != nil {
		if l.isEmpty() {
			s.removeLevel(l)
		}
		return err
	}
	s.orders[o.ID] = l
	return nil
}

// matchReal executes a market order against the resting order it references.
// The referenced level must be at the front of the side once phantom-only
// levels are discounted; any such phantom levels in front are deemed swept
// by the same flow and their user orders are executed first.
func (s *SideBook) matchReal(m domain.MarketOrder) ([]domain.Execution, error) {
	target, ok := s.orders[m.ID]
	if !ok {
		return nil, fmt.Errorf("order ID %d not found", m.ID)
	}

	var ahead []*priceLevel
	frontViolated := false
	s.ascend(func(l *priceLevel) bool {
		if l == target {
			return false
		}
		if l.realShares > 0 {
			frontViolated = true
			return false
		}
		ahead = append(ahead, l)
		return true
	})
	if frontViolated {
		return nil, fmt.Errorf("market order being matched against levels not in the front (order ID %d, price %d)", m.ID, target.price)
	}

	var execs []domain.Execution
	for _, l := range ahead {
		ph := l.popPhantom()
		execs = append(execs, domain.NewExecution(ph.id, l.price, ph.side, ph.shares))
		s.clearPhantom()
		s.removeLevel(l)
	}

	exhausted, ph, err := target.fillReal(m)
	if err != nil {
		return nil, err
	}
	if ph != nil {
		execs = append(execs, domain.NewExecution(ph.id, target.price, ph.side, ph.shares))
		s.clearPhantom()
	}
	// The resting order traded on the side it was quoted, opposite the taker.
	execs = append(execs, domain.NewExecution(m.ID, target.price, m.Side.Opposite(), m.Shares))

	if exhausted {
		delete(s.orders, m.ID)
	}
	if target.isEmpty() {
		s.removeLevel(target)
	}
	return execs, nil
}

// cancelReal removes part of a resting order's shares.
func (s *SideBook) cancelReal(c domain.CancelOrder) error {
	l, ok := s.orders[c.ID]
	if !ok {
		return fmt.Errorf("order ID %d not found", c.ID)
	}
	return l.reduceReal(c.ID, c.Shares)
}

// deleteReal removes a resting order entirely.
func (s *SideBook) deleteReal(d domain.DeleteOrder) error {
	l, ok := s.orders[d.ID]
	if !ok {
		return fmt.Errorf("order ID %d not found", d.ID)
	}
	if err := l.removeReal(d.ID); err != nil {
		return err
	}
	delete(s.orders, d.ID)
	if l.isEmpty() {
		s.removeLevel(l)
	}
	return nil
}

// hasOrder reports whether a real order with this ID rests on the side.
func (s *SideBook) hasOrder(id int64) bool {
	_, ok := s.orders[id]
	return ok
}

// addPhantom places or moves the side's single user order. A replacement at
// the unchanged price swaps the order identity in place, keeping the old
// queue position, and reports nothing to supersede. A replacement at a new
// price re-queues and returns the superseded order ID so the caller can
// unwind bookkeeping tied to it.
func (s *SideBook) addPhantom(o domain.UserLimitOrder) (superseded int64, replaced bool, err error) {
	if !domain.IsUserOrder(o.ID) {
		return 0, false, fmt.Errorf("user order must have a negative order ID, got %d", o.ID)
	}
	if s.phantomLevel != nil {
		if s.phantomLevel.price == o.Price {
			el := s.phantomLevel.phantom
			e := el.Value.(*entry)
			delete(s.phantomLevel.byID, e.id)
			e.id = o.ID
			e.shares = o.Shares
			s.phantomLevel.byID[o.ID] = el
			s.phantomID = o.ID
			return 0, false, nil
		}
		old := s.phantomLevel.popPhantom()
		if s.phantomLevel.isEmpty() {
			s.removeLevel(s.phantomLevel)
		}
		s.clearPhantom()
		superseded, replaced = old.id, true
	}

	l := s.getLevel(o.Price)
	if err := l.insertPhantom(o); err != nil {
		if l.isEmpty() {
			s.removeLevel(l)
		}
		return 0, false, err
	}
	s.phantomLevel = l
	s.phantomID = o.ID
	return superseded, replaced, nil
}

// PhantomID returns the ID of the resting user order, if any.
func (s *SideBook) PhantomID() (int64, bool) {
	if s.phantomLevel == nil {
		return 0, false
	}
	return s.phantomID, true
}

func (s *SideBook) clearPhantom() {
	s.phantomLevel = nil
	s.phantomID = 0
}

// matchPhantomMarket fills a user market order by walking real liquidity
// from the best level outward and returns a single execution at the
// volume-weighted price. The walk is virtual: resting real orders keep their
// shares, which the historical tape will consume later. A user order cannot
// sweep a side on which its own limit order rests, and a sweep deeper than
// the side's real depth is a configuration error, not a partial fill.
func (s *SideBook) matchPhantomMarket(m domain.UserMarketOrder) (domain.Execution, error) {
	if s.phantomLevel != nil {
		return domain.Execution{}, fmt.Errorf("user market order cannot match against book holding a user limit order (ID %d)", s.phantomID)
	}

	remaining := m.Shares
	var notional int64
	var walkErr error
	s.ascend(func(l *priceLevel) bool {
		unmet, err := l.matchSyntheticMarket(remaining)
		if err != nil {
			walkErr = err
			return false
		}
		notional += l.price * (remaining - unmet)
		remaining = unmet
		return remaining > 0
	})
	if walkErr != nil {
		return domain.Execution{}, walkErr
	}
	if remaining > 0 {
		return domain.Execution{}, fmt.Errorf("user market order cannot be fully executed (%d shares unmet)", remaining)
	}

	price := decimal.NewFromInt(notional).Div(decimal.NewFromInt(m.Shares))
	shares := m.Shares
	if m.Side == domain.Sell {
		shares = -shares
	}
	return domain.Execution{ID: m.ID, Price: price, Shares: shares}, nil
}

// resolveCrossing executes the resting phantom order when an incoming real
// order on the opposite side crosses its price; the simulation assumes real
// flow would have filled it. A crossed real order signals a pre-existing
// cross in the real book, which a well-formed feed never produces.
func (s *SideBook) resolveCrossing(incoming int64) ([]domain.Execution, error) {
	if q, ok := s.Quote(); ok && s.crossedBy(q, incoming) {
		return nil, fmt.Errorf("real orders resting at price %d are crossed by incoming price %d", q, incoming)
	}
	if s.phantomLevel == nil || !s.crossedBy(s.phantomLevel.price, incoming) {
		return nil, nil
	}
	l := s.phantomLevel
	ph := l.popPhantom()
	s.clearPhantom()
	if l.isEmpty() {
		s.removeLevel(l)
	}
	return []domain.Execution{domain.NewExecution(ph.id, l.price, ph.side, ph.shares)}, nil
}

// Quote returns the best price among levels holding real shares. Levels
// occupied only by the phantom order are invisible here.
func (s *SideBook) Quote() (int64, bool) {
	var price int64
	found := false
	s.ascend(func(l *priceLevel) bool {
		if l.realShares > 0 {
			price, found = l.price, true
			return false
		}
		return true
	})
	return price, found
}

// FrontPrice returns the best price including phantom-only levels.
func (s *SideBook) FrontPrice() (int64, bool) {
	it := s.prices.Min()
	if it == nil {
		return 0, false
	}
	return it.(levelItem).level.price, true
}

// Depth returns up to n levels of published depth, best first. Real shares
// only; phantom-only levels are skipped.
func (s *SideBook) Depth(n int) []domain.DepthLevel {
	if n <= 0 {
		return nil
	}
	out := make([]domain.DepthLevel, 0, n)
	s.ascend(func(l *priceLevel) bool {
		if l.realShares > 0 {
			out = append(out, domain.DepthLevel{Price: l.price, Shares: l.realShares})
		}
		return len(out) < n
	})
	return out
}

// empty reports whether no levels remain on this side.
func (s *SideBook) empty() bool { return s.prices.Len() == 0 }
