package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/internal/domain"
)

func limit(id, price, shares int64, side domain.Side) domain.LimitOrder {
	return domain.LimitOrder{Timestamp: 1, ID: id, Side: side, Price: price, Shares: shares}
}

func userLimit(id, price, shares int64, side domain.Side) domain.UserLimitOrder {
	return domain.UserLimitOrder{Timestamp: 1, ID: id, Side: side, Price: price, Shares: shares}
}

func market(id, shares int64, side domain.Side) domain.MarketOrder {
	return domain.MarketOrder{Timestamp: 2, ID: id, Side: side, Shares: shares}
}

func TestPriceLevelInsert(t *testing.T) {
	l := newPriceLevel(10000)

	require.NoError(t, l.insertReal(limit(1, 10000, 50, domain.Buy)))
	require.NoError(t, l.insertReal(limit(2, 10000, 30, domain.Buy)))
	assert.EqualValues(t, 80, l.realShares)

	err := l.insertReal(limit(3, 9900, 10, domain.Buy))
	assert.ErrorContains(t, err, "does not match price level")
}

func TestPriceLevelInsertPhantom(t *testing.T) {
	l := newPriceLevel(10000)

	t.Run("rejects non-negative ID", func(t *testing.T) {
		err := l.insertPhantom(userLimit(5, 10000, 10, domain.Buy))
		assert.ErrorContains(t, err, "negative order ID")
	})

	t.Run("does not count toward real shares", func(t *testing.T) {
		require.NoError(t, l.insertPhantom(userLimit(-1, 10000, 10, domain.Buy)))
		assert.EqualValues(t, 0, l.realShares)
		assert.False(t, l.isEmpty())
	})

	t.Run("at most one per level", func(t *testing.T) {
		err := l.insertPhantom(userLimit(-2, 10000, 10, domain.Buy))
		assert.ErrorContains(t, err, "already holds a user limit order")
	})
}

func TestPriceLevelFillReal(t *testing.T) {
	t.Run("partial fill keeps order resting", func(t *testing.T) {
		l := newPriceLevel(10000)
		require.NoError(t, l.insertReal(limit(1, 10000, 50, domain.Buy)))

		exhausted, ph, err := l.fillReal(market(1, 20, domain.Sell))
		require.NoError(t, err)
		assert.False(t, exhausted)
		assert.Nil(t, ph)
		assert.EqualValues(t, 30, l.realShares)
	})

	t.Run("full fill removes order", func(t *testing.T) {
		l := newPriceLevel(10000)
		require.NoError(t, l.insertReal(limit(1, 10000, 50, domain.Buy)))

		exhausted, _, err := l.fillReal(market(1, 50, domain.Sell))
		require.NoError(t, err)
		assert.True(t, exhausted)
		assert.True(t, l.isEmpty())
	})

	t.Run("same side fails", func(t *testing.T) {
		l := newPriceLevel(10000)
		require.NoError(t, l.insertReal(limit(1, 10000, 50, domain.Buy)))

		_, _, err := l.fillReal(market(1, 20, domain.Buy))
		assert.ErrorContains(t, err, "same side")
	})

	t.Run("overfill fails", func(t *testing.T) {
		l := newPriceLevel(10000)
		require.NoError(t, l.insertReal(limit(1, 10000, 50, domain.Buy)))

		_, _, err := l.fillReal(market(1, 60, domain.Sell))
		assert.ErrorContains(t, err, "more than limit order shares")
	})

	t.Run("unknown order fails", func(t *testing.T) {
		l := newPriceLevel(10000)
		_, _, err := l.fillReal(market(9, 10, domain.Sell))
		assert.ErrorContains(t, err, "not found")
	})
}

func TestPriceLevelFillRealPhantomPriority(t *testing.T) {
	t.Run("phantom ahead is executed by the same flow", func(t *testing.T) {
		l := newPriceLevel(10000)
		require.NoError(t, l.insertPhantom(userLimit(-1, 10000, 10, domain.Buy)))
		require.NoError(t, l.insertReal(limit(1, 10000, 50, domain.Buy)))

		exhausted, ph, err := l.fillReal(market(1, 50, domain.Sell))
		require.NoError(t, err)
		assert.True(t, exhausted)
		require.NotNil(t, ph)
		assert.EqualValues(t, -1, ph.id)
		assert.EqualValues(t, 10, ph.shares)
		assert.Nil(t, l.phantom)
	})

	t.Run("phantom behind keeps resting", func(t *testing.T) {
		l := newPriceLevel(10000)
		require.NoError(t, l.insertReal(limit(1, 10000, 50, domain.Buy)))
		require.NoError(t, l.insertPhantom(userLimit(-1, 10000, 10, domain.Buy)))

		_, ph, err := l.fillReal(market(1, 50, domain.Sell))
		require.NoError(t, err)
		assert.Nil(t, ph)
		assert.NotNil(t, l.phantom)
	})

	t.Run("skipping a real order over a phantom fails", func(t *testing.T) {
		l := newPriceLevel(10000)
		require.NoError(t, l.insertReal(limit(1, 10000, 50, domain.Buy)))
		require.NoError(t, l.insertPhantom(userLimit(-1, 10000, 10, domain.Buy)))
		require.NoError(t, l.insertReal(limit(2, 10000, 30, domain.Buy)))

		_, _, err := l.fillReal(market(2, 30, domain.Sell))
		assert.ErrorContains(t, err, "not at the front")
	})
}

func TestPriceLevelReduceReal(t *testing.T) {
	l := newPriceLevel(10000)
	require.NoError(t, l.insertReal(limit(1, 10000, 50, domain.Buy)))

	require.NoError(t, l.reduceReal(1, 20))
	assert.EqualValues(t, 30, l.realShares)

	// Cancelling the whole remainder must arrive as a delete.
	err := l.reduceReal(1, 30)
	assert.ErrorContains(t, err, "cancel more shares than available")

	err = l.reduceReal(1, 40)
	assert.ErrorContains(t, err, "cancel more shares than available")
}

func TestPriceLevelRemoveReal(t *testing.T) {
	l := newPriceLevel(10000)
	require.NoError(t, l.insertReal(limit(1, 10000, 50, domain.Buy)))
	require.NoError(t, l.insertReal(limit(2, 10000, 30, domain.Buy)))

	require.NoError(t, l.removeReal(1))
	assert.EqualValues(t, 30, l.realShares)

	err := l.removeReal(1)
	assert.ErrorContains(t, err, "not found")
}

func TestPriceLevelMatchSyntheticMarket(t *testing.T) {
	l := newPriceLevel(10000)
	require.NoError(t, l.insertReal(limit(1, 10000, 50, domain.Sell)))

	t.Run("level covers the request", func(t *testing.T) {
		unmet, err := l.matchSyntheticMarket(40)
		require.NoError(t, err)
		assert.EqualValues(t, 0, unmet)
		// Virtual walk leaves the level untouched.
		assert.EqualValues(t, 50, l.realShares)
	})

	t.Run("remainder carries to the next level", func(t *testing.T) {
		unmet, err := l.matchSyntheticMarket(70)
		require.NoError(t, err)
		assert.EqualValues(t, 20, unmet)
	})

	t.Run("resting user order blocks the sweep", func(t *testing.T) {
		require.NoError(t, l.insertPhantom(userLimit(-1, 10000, 10, domain.Sell)))
		_, err := l.matchSyntheticMarket(10)
		assert.ErrorContains(t, err, "holding a user limit order")
	})
}
