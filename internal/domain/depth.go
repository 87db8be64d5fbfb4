package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the best real price on each side. Has* flags disambiguate an
// empty side from price zero.
type Quote struct {
	Bid    int64 `json:"bid"`
	Ask    int64 `json:"ask"`
	HasBid bool  `json:"has_bid"`
	HasAsk bool  `json:"has_ask"`
}

// DepthLevel is one price level as published to observers: real shares only,
// phantom liquidity excluded.
type DepthLevel struct {
	Price  int64 `json:"price"`
	Shares int64 `json:"shares"`
}

// DepthSnapshot is the top of both sides of the book at a point in tape time.
type DepthSnapshot struct {
	Bids      []DepthLevel `json:"bids"`
	Asks      []DepthLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// Fill is an execution enriched for persistence.
type Fill struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	OrderID   int64           `json:"order_id"`
	Price     decimal.Decimal `json:"price"`
	Shares    int64           `json:"shares"`
	Timestamp int64           `json:"timestamp"`
}

// RunSummary is the persisted outcome of one replay session run.
type RunSummary struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Position     int64
	Cash         decimal.Decimal
	SpreadProfit decimal.Decimal
	Fills        int
	Completed    bool
}
