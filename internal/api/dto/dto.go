package dto

// SubmitOrderRequest injects a user order into the event stream. Type is
// "limit" or "market"; Price is ignored for market orders.
type SubmitOrderRequest struct {
	Type   string `json:"type" binding:"required"`
	Side   string `json:"side" binding:"required"`
	Price  int64  `json:"price"`
	Shares int64  `json:"shares" binding:"required"`
}

// PlaceQuotesRequest requests a symmetric bid/ask pair around mid, each
// side offset by its multiple of the half spread.
type PlaceQuotesRequest struct {
	BidDistance int64 `json:"bid_distance" binding:"required"`
	AskDistance int64 `json:"ask_distance" binding:"required"`
}

type ExecutionResponse struct {
	OrderID int64  `json:"order_id"`
	Price   string `json:"price"`
	Shares  int64  `json:"shares"`
}

type StepResponse struct {
	Executions []ExecutionResponse `json:"executions"`
	Done       bool                `json:"done"`
	TapeTime   int64               `json:"tape_time"`
}

type StateResponse struct {
	RunID     string `json:"run_id"`
	TapeTime  int64  `json:"tape_time"`
	Position  int64  `json:"position"`
	MidPrice  string `json:"mid_price,omitempty"`
	Imbalance string `json:"imbalance"`
	Done      bool   `json:"done"`
}
