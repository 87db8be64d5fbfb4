package session

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketsim/internal/adapter/in_memory"
	"marketsim/internal/domain"
	"marketsim/internal/tape"
)

func newSession(t *testing.T, events []domain.Event, latency int64, cfg Config) (*Session, *in_memory.MemoryRepo, *in_memory.Cache) {
	t.Helper()
	tp, err := tape.New(events, latency, 0)
	require.NoError(t, err)
	repo := in_memory.NewMemoryRepo()
	cache := in_memory.NewCache()
	return New(zap.NewNop(), tp, repo, cache, cfg), repo, cache
}

func buy(ts, id, price, shares int64) domain.LimitOrder {
	return domain.LimitOrder{Timestamp: ts, ID: id, Side: domain.Buy, Price: price, Shares: shares}
}

func sell(ts, id, price, shares int64) domain.LimitOrder {
	return domain.LimitOrder{Timestamp: ts, ID: id, Side: domain.Sell, Price: price, Shares: shares}
}

func TestSessionAccountsUserFills(t *testing.T) {
	ctx := context.Background()
	events := []domain.Event{
		buy(1, 1, 9900, 100),
		sell(2, 2, 10100, 100),
		// Crosses the injected bid at 9950.
		sell(5, 3, 9920, 50),
		domain.MarketOrder{Timestamp: 6, ID: 3, Side: domain.Buy, Shares: 50},
		domain.MarketOrder{Timestamp: 7, ID: 2, Side: domain.Buy, Shares: 100},
		domain.MarketOrder{Timestamp: 8, ID: 1, Side: domain.Sell, Shares: 100},
	}
	sess, repo, cache := newSession(t, events, 1, Config{})
	require.NoError(t, sess.Reset(ctx))

	for i := 0; i < 2; i++ {
		_, ok, err := sess.Step(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}

	id, err := sess.InjectLimit(domain.Buy, 9950, 10)
	require.NoError(t, err)
	assert.EqualValues(t, -1, id)

	for !sess.Done() {
		_, ok, err := sess.Step(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.NoError(t, sess.Finish(ctx))

	assert.EqualValues(t, 10, sess.Position())

	fills, err := repo.LoadFills(ctx, sess.RunID())
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.EqualValues(t, -1, fills[0].OrderID)
	assert.True(t, fills[0].Price.Equal(decimal.NewFromInt(9950)))
	assert.EqualValues(t, 10, fills[0].Shares)
	assert.EqualValues(t, 5, fills[0].Timestamp)

	run, err := repo.LoadRun(ctx, sess.RunID())
	require.NoError(t, err)
	assert.True(t, run.Completed)
	assert.EqualValues(t, 10, run.Position)
	assert.Equal(t, 1, run.Fills)
	// Bought 10 at 9950.
	assert.True(t, run.Cash.Equal(decimal.NewFromInt(-99500)), "cash %s", run.Cash)
	// Mid after the crossing event is (9900+9920)/2 = 9910.
	assert.True(t, run.SpreadProfit.Equal(decimal.NewFromInt(-400)), "spread profit %s", run.SpreadProfit)

	snap, err := cache.GetDepth(ctx, sess.RunID())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
}

func TestSessionPlaceQuotes(t *testing.T) {
	ctx := context.Background()
	events := []domain.Event{
		buy(1, 1, 9901, 100),
		sell(2, 2, 10301, 100),
		domain.DeleteOrder{Timestamp: 5, ID: 1},
		// With the real bid gone, this crosses the injected bid.
		sell(6, 3, 9900, 60),
	}
	sess, repo, _ := newSession(t, events, 1, Config{})
	require.NoError(t, sess.Reset(ctx))

	for i := 0; i < 2; i++ {
		_, _, err := sess.Step(ctx)
		require.NoError(t, err)
	}

	// Mid 10101, half spread 200: bid floors to 9900, ask ceils to 10400.
	require.NoError(t, sess.PlaceQuotes(1, 1))

	filled, err := sess.AwaitExecution(ctx)
	require.NoError(t, err)
	require.True(t, filled)

	assert.EqualValues(t, 100, sess.Position())

	fills, err := repo.LoadFills(ctx, sess.RunID())
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Equal(decimal.NewFromInt(9900)), "bid should round down to the tick grid, got %s", fills[0].Price)
}

func TestSessionPlaceQuotesNeedsTwoSides(t *testing.T) {
	ctx := context.Background()
	sess, _, _ := newSession(t, []domain.Event{buy(1, 1, 9900, 100)}, 1, Config{})
	require.NoError(t, sess.Reset(ctx))

	err := sess.PlaceQuotes(1, 1)
	assert.ErrorContains(t, err, "two-sided")
}

func TestSessionAwaitExecutionExhaustsTape(t *testing.T) {
	ctx := context.Background()
	events := []domain.Event{
		buy(1, 1, 9900, 100),
		domain.MarketOrder{Timestamp: 2, ID: 1, Side: domain.Sell, Shares: 100},
	}
	sess, repo, _ := newSession(t, events, 1, Config{})
	require.NoError(t, sess.Reset(ctx))

	filled, err := sess.AwaitExecution(ctx)
	require.NoError(t, err)
	assert.False(t, filled)

	require.NoError(t, sess.Finish(ctx))
	run, err := repo.LoadRun(ctx, sess.RunID())
	require.NoError(t, err)
	assert.True(t, run.Completed)
	assert.EqualValues(t, 0, run.Position)
	assert.Equal(t, 0, run.Fills)
}

func TestSessionFinishGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("tape not exhausted", func(t *testing.T) {
		sess, _, _ := newSession(t, []domain.Event{buy(1, 1, 9900, 100)}, 1, Config{})
		require.NoError(t, sess.Reset(ctx))
		err := sess.Finish(ctx)
		assert.ErrorContains(t, err, "not exhausted")
	})

	t.Run("book not cleared", func(t *testing.T) {
		sess, _, _ := newSession(t, []domain.Event{buy(1, 1, 9900, 100)}, 1, Config{})
		require.NoError(t, sess.Reset(ctx))
		_, _, err := sess.Step(ctx)
		require.NoError(t, err)
		err = sess.Finish(ctx)
		assert.ErrorContains(t, err, "not fully cleared")
	})
}

func TestSessionResetPreloads(t *testing.T) {
	ctx := context.Background()
	events := []domain.Event{
		buy(1, 1, 9900, 100),
		sell(2, 2, 10100, 100),
		buy(5, 3, 9800, 50),
	}
	sess, _, _ := newSession(t, events, 1, Config{StartTime: 2})
	require.NoError(t, sess.Reset(ctx))

	q := sess.Quote()
	assert.True(t, q.HasBid)
	assert.True(t, q.HasAsk)
	assert.EqualValues(t, 2, sess.CurrentTime())
}

func TestSessionResetPastTapeEnd(t *testing.T) {
	ctx := context.Background()
	sess, _, _ := newSession(t, []domain.Event{buy(1, 1, 9900, 100)}, 1, Config{StartTime: 100})
	err := sess.Reset(ctx)
	assert.ErrorContains(t, err, "tape exhausted before start time")
}

func TestSessionNeutralizesAtPositionLimit(t *testing.T) {
	ctx := context.Background()
	events := []domain.Event{
		buy(1, 1, 9900, 100),
		sell(2, 2, 10100, 100),
		// Fills the injected bid exactly up to the position limit.
		sell(5, 3, 9920, 10),
		buy(8, 4, 9500, 50),
	}
	sess, _, _ := newSession(t, events, 1, Config{PositionLimit: 10, LiquidationRatio: 0.5})
	require.NoError(t, sess.Reset(ctx))

	for i := 0; i < 2; i++ {
		_, _, err := sess.Step(ctx)
		require.NoError(t, err)
	}
	_, err := sess.InjectLimit(domain.Buy, 9950, 10)
	require.NoError(t, err)

	filled, err := sess.AwaitExecution(ctx)
	require.NoError(t, err)
	require.True(t, filled)
	require.EqualValues(t, 10, sess.Position())

	// Reaching the limit exactly triggers liquidation of the configured ratio.
	require.NoError(t, sess.NeutralizePosition(ctx))
	assert.EqualValues(t, 5, sess.Position())

	// Below the limit nothing happens.
	require.NoError(t, sess.NeutralizePosition(ctx))
	assert.EqualValues(t, 5, sess.Position())
}

func TestSessionResetStartsFreshRun(t *testing.T) {
	ctx := context.Background()
	events := []domain.Event{
		buy(1, 1, 9900, 100),
		domain.MarketOrder{Timestamp: 2, ID: 1, Side: domain.Sell, Shares: 100},
	}
	sess, repo, _ := newSession(t, events, 1, Config{})

	require.NoError(t, sess.Reset(ctx))
	first := sess.RunID()

	// The run is visible, unfinished, as soon as it starts.
	run, err := repo.LoadRun(ctx, first)
	require.NoError(t, err)
	assert.False(t, run.Completed)
	_, err = sess.AwaitExecution(ctx)
	require.NoError(t, err)
	require.True(t, sess.Done())

	require.NoError(t, sess.Reset(ctx))
	assert.NotEqual(t, first, sess.RunID())
	assert.False(t, sess.Done())
	assert.EqualValues(t, 0, sess.Position())
}

func TestSessionInjectValidation(t *testing.T) {
	sess, _, _ := newSession(t, []domain.Event{buy(1, 1, 9900, 100)}, 1, Config{})

	_, err := sess.InjectLimit(domain.Buy, 9900, 0)
	assert.ErrorContains(t, err, "must be positive")

	_, err = sess.InjectMarket(domain.Sell, -5)
	assert.ErrorContains(t, err, "must be positive")
}

func TestSessionImbalance(t *testing.T) {
	ctx := context.Background()
	events := []domain.Event{
		buy(1, 1, 9900, 300),
		sell(2, 2, 10100, 100),
	}
	sess, _, _ := newSession(t, events, 1, Config{})
	require.NoError(t, sess.Reset(ctx))
	for i := 0; i < 2; i++ {
		_, _, err := sess.Step(ctx)
		require.NoError(t, err)
	}

	// (300-100)/(300+100)
	assert.True(t, sess.Imbalance(5).Equal(decimal.NewFromFloat(0.5)))

	mtm, ok := sess.MarkToMarket()
	require.True(t, ok)
	assert.True(t, mtm.Equal(decimal.Zero))

	half, ok := sess.HalfSpread()
	require.True(t, ok)
	assert.EqualValues(t, 100, half)
}
