// Package execution places entry orders and computes settlement. Two
// executors share one interface: paper fills instantly at the cap price,
// live goes through the CLOB. The orchestrator never knows which one it
// holds.
package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/martin/internal/domain"
)

// Result is the outcome of a placement attempt.
type Result struct {
	OrderID    string
	FillStatus domain.FillStatus
	FillPrice  *decimal.Decimal
}

// Executor places orders and reports their fill state. Place is idempotent:
// a trade that already carries an order id gets its current state back
// instead of a second order.
type Executor interface {
	Place(ctx context.Context, trade *domain.Trade, tokenID string, price, stake decimal.Decimal) (*Result, error)
	FillState(ctx context.Context, trade *domain.Trade) (domain.FillStatus, *decimal.Decimal, error)
}

var one = decimal.NewFromInt(1)

// Shares converts a USD stake into outcome-token shares at the limit price.
func Shares(stake, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return stake.DivRound(price, 6)
}

// Settlement computes the win flag and PnL for a filled trade once the
// window outcome is known. A winning share redeems at 1, so the profit on
// a stake bought at fill_price is stake*(1/fill_price - 1). A losing stake
// is gone entirely.
func Settlement(direction, outcome domain.Direction, stake decimal.Decimal, fillPrice *decimal.Decimal) (bool, decimal.Decimal) {
	if direction != outcome {
		return false, stake.Neg()
	}
	if fillPrice == nil || fillPrice.IsZero() {
		return true, decimal.Zero
	}
	return true, one.DivRound(*fillPrice, 6).Sub(one).Mul(stake).Round(6)
}
