package execution

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/martin/internal/domain"
)

// PaperExecutor simulates execution without touching the venue. Orders
// fill immediately and completely at the limit price.
type PaperExecutor struct{}

func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{}
}

func (e *PaperExecutor) Place(_ context.Context, trade *domain.Trade, tokenID string, price, stake decimal.Decimal) (*Result, error) {
	if trade.OrderID != "" {
		return &Result{
			OrderID:    trade.OrderID,
			FillStatus: trade.FillStatus,
			FillPrice:  trade.FillPrice,
		}, nil
	}

	orderID := "PAPER_" + randomHex(6)
	log.Info().
		Int64("trade_id", trade.ID).
		Str("order_id", orderID).
		Str("token_id", tokenID).
		Str("price", price.String()).
		Str("stake", stake.String()).
		Msg("📝 Paper order filled")

	fill := price
	return &Result{
		OrderID:    orderID,
		FillStatus: domain.FillFilled,
		FillPrice:  &fill,
	}, nil
}

func (e *PaperExecutor) FillState(_ context.Context, trade *domain.Trade) (domain.FillStatus, *decimal.Decimal, error) {
	return trade.FillStatus, trade.FillPrice, nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}
