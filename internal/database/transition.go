package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/web3guy0/martin/internal/domain"
	"github.com/web3guy0/martin/internal/statemachine"
)

// Transition moves a trade to a new status inside a single transaction:
// reload the row, check the edge against the lifecycle table, apply the
// optional mutation, write. Illegal edges are refused without touching the
// row.
func (d *Database) Transition(tradeID int64, to domain.TradeStatus, mutate func(*domain.Trade)) (*domain.Trade, error) {
	var out *domain.Trade

	err := d.db.Transaction(func(tx *gorm.DB) error {
		var t domain.Trade
		if err := tx.First(&t, "id = ?", tradeID).Error; err != nil {
			return err
		}
		if err := statemachine.Validate(t.ID, t.Status, to); err != nil {
			log.Error().
				Int64("trade_id", t.ID).
				Str("from", string(t.Status)).
				Str("to", string(to)).
				Msg("⛔ Transition refused")
			return err
		}

		if mutate != nil {
			mutate(&t)
		}
		t.Status = to
		t.UpdatedAt = time.Now()
		if err := tx.Save(&t).Error; err != nil {
			return err
		}
		out = &t
		return nil
	})
	return out, err
}

// Cancel is Transition to CANCELLED with a reason and optional decision.
func (d *Database) Cancel(tradeID int64, reason domain.CancelReason, decision domain.Decision) (*domain.Trade, error) {
	return d.Transition(tradeID, domain.StatusCancelled, func(t *domain.Trade) {
		t.CancelReason = reason
		if decision != "" {
			t.Decision = decision
		}
	})
}

// AttachSignal inserts the signal row, links it to the trade together with
// the outcome token it points at, and moves the trade to SIGNALLED, all in
// one transaction. At most one signal per window; a duplicate attempt fails
// before anything is written.
func (d *Database) AttachSignal(tradeID int64, sig *domain.Signal, tokenID string) (*domain.Trade, error) {
	var out *domain.Trade

	err := d.db.Transaction(func(tx *gorm.DB) error {
		var t domain.Trade
		if err := tx.First(&t, "id = ?", tradeID).Error; err != nil {
			return err
		}
		if err := statemachine.Validate(t.ID, t.Status, domain.StatusSignalled); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&domain.Signal{}).Where("window_id = ?", sig.WindowID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("window %d already has a signal", sig.WindowID)
		}

		if err := tx.Create(sig).Error; err != nil {
			return err
		}

		t.SignalID = &sig.ID
		t.TokenID = tokenID
		t.Status = domain.StatusSignalled
		t.UpdatedAt = time.Now()
		if err := tx.Save(&t).Error; err != nil {
			return err
		}
		out = &t
		return nil
	})
	return out, err
}

// SettleTrade finalizes a trade and folds the streak/total update into the
// same transaction, so the trade row and the stats row can never diverge.
func (d *Database) SettleTrade(tradeID int64, isWin bool, pnl decimal.Decimal, applyStats func(*domain.Stats, *domain.Trade)) (*domain.Trade, error) {
	var out *domain.Trade

	err := d.db.Transaction(func(tx *gorm.DB) error {
		var t domain.Trade
		if err := tx.First(&t, "id = ?", tradeID).Error; err != nil {
			return err
		}
		if err := statemachine.Validate(t.ID, t.Status, domain.StatusSettled); err != nil {
			return err
		}

		win := isWin
		t.IsWin = &win
		p := pnl
		t.PnL = &p
		t.Status = domain.StatusSettled
		t.UpdatedAt = time.Now()
		if err := tx.Save(&t).Error; err != nil {
			return err
		}

		var s domain.Stats
		if err := tx.First(&s, "id = ?", 1).Error; err != nil {
			return err
		}
		applyStats(&s, &t)
		s.UpdatedAt = time.Now()
		if err := tx.Save(&s).Error; err != nil {
			return err
		}

		out = &t
		return nil
	})
	return out, err
}
