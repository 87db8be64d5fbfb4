// Package session runs one replay of the historical tape with the synthetic
// participant in the loop, and is the surface a driver (or the HTTP API)
// talks to.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketsim/internal/book"
	"marketsim/internal/domain"
	"marketsim/internal/port"
	"marketsim/internal/tape"
)

// Config carries the trading-window parameters of a run.
type Config struct {
	StartTime        int64   // preload the book up to this tape time before trading
	OrderSize        int64   // shares per injected quote
	PositionLimit    int64   // absolute position that triggers liquidation
	LiquidationRatio float64 // portion of the position neutralized per liquidation
	Tick             int64   // price grid injected quotes are rounded to
	DepthLevels      int     // levels published to the depth cache
}

func (c *Config) applyDefaults() {
	if c.OrderSize == 0 {
		c.OrderSize = 100
	}
	if c.PositionLimit == 0 {
		c.PositionLimit = 10000
	}
	if c.LiquidationRatio == 0 {
		c.LiquidationRatio = 0.2
	}
	if c.Tick == 0 {
		c.Tick = 100
	}
	if c.DepthLevels == 0 {
		c.DepthLevels = 5
	}
}

// Session owns one order book and one tape. It is not safe for concurrent
// use: matching is strictly sequential, so callers serialize access.
type Session struct {
	log   *zap.Logger
	book  *book.OrderBook
	tape  *tape.Tape
	repo  port.Repository
	cache port.DepthCache
	cfg   Config

	runID     string
	startedAt time.Time

	position     int64
	cash         decimal.Decimal
	spreadProfit decimal.Decimal
	fillBuf      []*domain.Fill

	openBid int64
	openAsk int64
}

func New(log *zap.Logger, t *tape.Tape, repo port.Repository, cache port.DepthCache, cfg Config) *Session {
	cfg.applyDefaults()
	return &Session{
		log:   log,
		book:  book.NewOrderBook(),
		tape:  t,
		repo:  repo,
		cache: cache,
		cfg:   cfg,
	}
}

// Reset rewinds the tape, clears the book and replays up to the configured
// start time so trading begins against a warmed-up book. Every reset starts
// a new run with a fresh ID.
func (s *Session) Reset(ctx context.Context) error {
	s.book.Reset()
	s.tape.Reset()
	s.runID = uuid.NewString()
	s.startedAt = time.Now()
	s.position = 0
	s.cash = decimal.Zero
	s.spreadProfit = decimal.Zero
	s.fillBuf = nil
	s.openBid, s.openAsk = 0, 0

	if s.repo != nil {
		run := &domain.RunSummary{ID: s.runID, StartedAt: s.startedAt}
		if err := s.repo.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
	}

	for s.tape.CurrentTime() < s.cfg.StartTime {
		ev, ok := s.tape.Next()
		if !ok {
			return fmt.Errorf("tape exhausted before start time %d", s.cfg.StartTime)
		}
		if _, err := s.book.Apply(ev); err != nil {
			return fmt.Errorf("preload: %w", err)
		}
	}
	s.log.Info("session reset",
		zap.String("run_id", s.runID),
		zap.Int64("tape_time", s.tape.CurrentTime()))
	return nil
}

// Step pulls one event off the tape and applies it. The second return is
// false once the tape is exhausted.
func (s *Session) Step(ctx context.Context) ([]domain.Execution, bool, error) {
	ev, ok := s.tape.Next()
	if !ok {
		return nil, false, nil
	}
	execs, err := s.book.Apply(ev)
	if err != nil {
		return nil, false, err
	}
	if err := s.account(ctx, execs, ev.EventTime()); err != nil {
		return nil, false, err
	}
	s.trackOpenOrders(ev)
	s.publishDepth(ctx, ev.EventTime())
	return execs, true, nil
}

// account updates position, cash and spread profit for the participant's
// fills and persists them. Real-vs-real fills are reported to the caller but
// carry no PnL for the participant.
func (s *Session) account(ctx context.Context, execs []domain.Execution, ts int64) error {
	for _, ex := range execs {
		if !domain.IsUserOrder(ex.ID) {
			continue
		}
		shares := decimal.NewFromInt(ex.Shares)
		// Cash moves opposite to position.
		s.cash = s.cash.Sub(ex.Price.Mul(shares))
		if mid, ok := s.book.MidPrice(); ok {
			s.spreadProfit = s.spreadProfit.Add(mid.Sub(ex.Price).Mul(shares))
		}
		s.position += ex.Shares
		if s.openBid == ex.ID {
			s.openBid = 0
		}
		if s.openAsk == ex.ID {
			s.openAsk = 0
		}

		fill := &domain.Fill{
			ID:        uuid.NewString(),
			RunID:     s.runID,
			OrderID:   ex.ID,
			Price:     ex.Price,
			Shares:    ex.Shares,
			Timestamp: ts,
		}
		s.fillBuf = append(s.fillBuf, fill)
		if s.repo != nil {
			if err := s.repo.SaveFill(ctx, fill); err != nil {
				return fmt.Errorf("save fill: %w", err)
			}
		}
		s.log.Debug("user fill",
			zap.String("run_id", s.runID),
			zap.Int64("order_id", ex.ID),
			zap.String("price", ex.Price.String()),
			zap.Int64("shares", ex.Shares))
	}
	return nil
}

// trackOpenOrders reconciles which user orders still rest after an event. A
// user limit order replacing one at another price supersedes it without a
// fill; the driver's bookkeeping must drop the old ID.
func (s *Session) trackOpenOrders(ev domain.Event) {
	o, ok := ev.(domain.UserLimitOrder)
	if !ok {
		return
	}
	cur, _ := s.sideBookFor(o.Side).PhantomID()
	prev := s.openOrderFor(o.Side)
	if prev != 0 && prev != cur {
		s.log.Debug("user order superseded",
			zap.String("run_id", s.runID),
			zap.Int64("old_id", prev),
			zap.Int64("new_id", cur))
	}
	if o.Side == domain.Buy {
		s.openBid = cur
	} else {
		s.openAsk = cur
	}
}

func (s *Session) sideBookFor(side domain.Side) *book.SideBook {
	if side == domain.Buy {
		return s.book.Bids()
	}
	return s.book.Asks()
}

func (s *Session) openOrderFor(side domain.Side) int64 {
	if side == domain.Buy {
		return s.openBid
	}
	return s.openAsk
}

func (s *Session) publishDepth(ctx context.Context, ts int64) {
	if s.cache == nil {
		return
	}
	bids, asks := s.book.Depth(s.cfg.DepthLevels)
	snap := &domain.DepthSnapshot{Bids: bids, Asks: asks, Timestamp: ts}
	if err := s.cache.SetDepth(ctx, s.runID, snap); err != nil {
		s.log.Warn("publish depth", zap.Error(err))
	}
}

// InjectLimit schedules a user limit order on the tape and returns its ID.
func (s *Session) InjectLimit(side domain.Side, price, shares int64) (int64, error) {
	if shares <= 0 {
		return 0, fmt.Errorf("order shares must be positive, got %d", shares)
	}
	return s.tape.AddUserLimit(side, price, shares), nil
}

// InjectMarket schedules a user market order on the tape and returns its ID.
func (s *Session) InjectMarket(side domain.Side, shares int64) (int64, error) {
	if shares <= 0 {
		return 0, fmt.Errorf("order shares must be positive, got %d", shares)
	}
	return s.tape.AddUserMarket(side, shares), nil
}

// PlaceQuotes injects a bid/ask pair at mid minus and plus the given
// multiples of the half spread, rounded outward to the tick grid so the
// quotes never land inside the market.
func (s *Session) PlaceQuotes(bidDist, askDist int64) error {
	mid, ok := s.book.MidPrice()
	if !ok {
		return errors.New("cannot place quotes without a two-sided market")
	}
	spread, _ := s.book.Spread()
	half := (spread + 1) / 2
	tick := decimal.NewFromInt(s.cfg.Tick)

	bidPrice := mid.Sub(decimal.NewFromInt(bidDist * half)).Div(tick).Floor().Mul(tick).IntPart()
	askPrice := mid.Add(decimal.NewFromInt(askDist * half)).Div(tick).Ceil().Mul(tick).IntPart()

	s.tape.AddUserLimit(domain.Buy, bidPrice, s.cfg.OrderSize)
	s.tape.AddUserLimit(domain.Sell, askPrice, s.cfg.OrderSize)
	return nil
}

// AwaitExecution pumps the tape until one of the participant's orders
// fills. It returns false when the tape runs out first.
func (s *Session) AwaitExecution(ctx context.Context) (bool, error) {
	for {
		execs, ok, err := s.Step(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		for _, ex := range execs {
			if domain.IsUserOrder(ex.ID) {
				return true, nil
			}
		}
	}
}

// NeutralizePosition sells (or buys) down the configured ratio of the
// position once it reaches the limit, waiting for the liquidation to fill.
func (s *Session) NeutralizePosition(ctx context.Context) error {
	if s.position > -s.cfg.PositionLimit && s.position < s.cfg.PositionLimit {
		return nil
	}
	shares := int64(float64(s.position) * s.cfg.LiquidationRatio)
	if shares > 0 {
		s.tape.AddUserMarket(domain.Sell, shares)
	} else if shares < 0 {
		s.tape.AddUserMarket(domain.Buy, -shares)
	} else {
		return nil
	}
	_, err := s.AwaitExecution(ctx)
	return err
}

// Finish asserts the drain property and persists the run summary. A tape
// that ends with orders still resting means the replay diverged from the
// exchange it was recorded from.
func (s *Session) Finish(ctx context.Context) error {
	if !s.tape.Done() {
		return errors.New("tape is not exhausted")
	}
	if !s.book.Empty() {
		return errors.New("market is not fully cleared")
	}
	run := &domain.RunSummary{
		ID:           s.runID,
		StartedAt:    s.startedAt,
		FinishedAt:   time.Now(),
		Position:     s.position,
		Cash:         s.cash,
		SpreadProfit: s.spreadProfit,
		Fills:        len(s.fillBuf),
		Completed:    true,
	}
	if s.repo != nil {
		if err := s.repo.SaveRunWithFills(ctx, run, s.fillBuf); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
	}
	s.log.Info("session finished",
		zap.String("run_id", s.runID),
		zap.Int64("position", s.position),
		zap.String("cash", s.cash.String()),
		zap.String("spread_profit", s.spreadProfit.String()),
		zap.Int("fills", len(s.fillBuf)))
	return nil
}

// Run drives a complete symmetric market-making pass over the tape: quote
// both sides, wait for a fill, liquidate past the position limit, repeat
// until the tape ends.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Reset(ctx); err != nil {
		return err
	}
	for !s.tape.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.PlaceQuotes(1, 1); err != nil {
			// One-sided book: pump an event and try again.
			if _, ok, stepErr := s.Step(ctx); stepErr != nil {
				return stepErr
			} else if !ok {
				break
			}
			continue
		}
		filled, err := s.AwaitExecution(ctx)
		if err != nil {
			return err
		}
		if !filled {
			break
		}
		if err := s.NeutralizePosition(ctx); err != nil {
			return err
		}
	}
	return s.Finish(ctx)
}

// RunID identifies the current run for repository and cache lookups.
func (s *Session) RunID() string { return s.runID }

// Fills returns the persisted fills of the current run.
func (s *Session) Fills(ctx context.Context) ([]*domain.Fill, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.LoadFills(ctx, s.runID)
}

// Position is the participant's accumulated signed share position.
func (s *Session) Position() int64 { return s.position }

// Done reports whether the tape is exhausted.
func (s *Session) Done() bool { return s.tape.Done() }

// CurrentTime is the tape clock.
func (s *Session) CurrentTime() int64 { return s.tape.CurrentTime() }

// Quote returns the current best real prices.
func (s *Session) Quote() domain.Quote { return s.book.Quote() }

// Depth returns up to n published levels per side.
func (s *Session) Depth(n int) ([]domain.DepthLevel, []domain.DepthLevel) {
	return s.book.Depth(n)
}

// MidPrice is the quote midpoint, undefined on a one-sided book.
func (s *Session) MidPrice() (decimal.Decimal, bool) { return s.book.MidPrice() }

// HalfSpread is half the quoted spread, rounded up to a whole tick unit.
func (s *Session) HalfSpread() (int64, bool) {
	spread, ok := s.book.Spread()
	if !ok {
		return 0, false
	}
	return (spread + 1) / 2, true
}

// Imbalance is (bidVolume-askVolume)/(bidVolume+askVolume) over the top n
// published levels, zero on an empty window.
func (s *Session) Imbalance(n int) decimal.Decimal {
	bids, asks := s.book.Depth(n)
	var bidVol, askVol int64
	for _, l := range bids {
		bidVol += l.Shares
	}
	for _, l := range asks {
		askVol += l.Shares
	}
	total := bidVol + askVol
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(bidVol - askVol).Div(decimal.NewFromInt(total))
}

// MarkToMarket is cash plus the position valued at mid.
func (s *Session) MarkToMarket() (decimal.Decimal, bool) {
	mid, ok := s.book.MidPrice()
	if !ok {
		return decimal.Decimal{}, false
	}
	return s.cash.Add(mid.Mul(decimal.NewFromInt(s.position))), true
}
