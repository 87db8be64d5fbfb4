package domain

import "github.com/shopspring/decimal"

// Execution describes one fill. Shares carries the direction of the filled
// order: positive means the referenced order bought, negative means it sold.
// Price is decimal because a user market order spanning several levels fills
// at a volume-weighted price that need not land on the tick grid.
type Execution struct {
	ID     int64
	Price  decimal.Decimal
	Shares int64
}

// NewExecution builds a fill record for an order resting at an integer tick
// price, applying the sign convention for the given side.
func NewExecution(id int64, price int64, side Side, shares int64) Execution {
	if side == Sell {
		shares = -shares
	}
	return Execution{ID: id, Price: decimal.NewFromInt(price), Shares: shares}
}
