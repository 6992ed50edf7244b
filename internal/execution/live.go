package execution

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/martin/internal/clob"
	"github.com/web3guy0/martin/internal/domain"
)

// OrderPlacer is the slice of the CLOB client the live executor needs.
type OrderPlacer interface {
	PlaceLimitOrder(ctx context.Context, order clob.LimitOrder) (string, error)
	OrderStatus(ctx context.Context, orderID string) (*clob.OrderState, error)
}

// LiveExecutor submits real limit orders through the CLOB.
type LiveExecutor struct {
	clob OrderPlacer
}

func NewLiveExecutor(placer OrderPlacer) *LiveExecutor {
	return &LiveExecutor{clob: placer}
}

func (e *LiveExecutor) Place(ctx context.Context, trade *domain.Trade, tokenID string, price, stake decimal.Decimal) (*Result, error) {
	if trade.OrderID != "" {
		status, fill, err := e.FillState(ctx, trade)
		if err != nil {
			return nil, err
		}
		return &Result{OrderID: trade.OrderID, FillStatus: status, FillPrice: fill}, nil
	}

	orderID, err := e.clob.PlaceLimitOrder(ctx, clob.LimitOrder{
		TokenID: tokenID,
		Price:   price,
		Size:    Shares(stake, price),
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("trade_id", trade.ID).
		Str("order_id", orderID).
		Str("token_id", tokenID).
		Str("price", price.String()).
		Msg("📤 Live order placed")

	return &Result{OrderID: orderID, FillStatus: domain.FillPending}, nil
}

func (e *LiveExecutor) FillState(ctx context.Context, trade *domain.Trade) (domain.FillStatus, *decimal.Decimal, error) {
	if trade.OrderID == "" {
		return domain.FillPending, nil, nil
	}

	state, err := e.clob.OrderStatus(ctx, trade.OrderID)
	if err != nil {
		return domain.FillPending, nil, err
	}

	status := mapOrderStatus(state)
	var fill *decimal.Decimal
	if status == domain.FillFilled || status == domain.FillPartial {
		p := state.FillPrice
		fill = &p
	}
	return status, fill, nil
}

// mapOrderStatus folds the venue's status strings onto the fill states.
// Partial matches on a closed order count as PARTIAL.
func mapOrderStatus(state *clob.OrderState) domain.FillStatus {
	switch strings.ToUpper(state.Status) {
	case "FILLED", "MATCHED":
		return domain.FillFilled
	case "CANCELED", "CANCELLED", "EXPIRED":
		if state.Matched.IsPositive() {
			return domain.FillPartial
		}
		return domain.FillCancelled
	case "REJECTED", "INVALID":
		return domain.FillRejected
	default:
		if state.Matched.IsPositive() && state.Matched.LessThan(state.Size) {
			return domain.FillPartial
		}
		return domain.FillPending
	}
}
