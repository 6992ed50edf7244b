package database

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/web3guy0/martin/internal/domain"
)

var terminalStatuses = []domain.TradeStatus{
	domain.StatusSettled,
	domain.StatusCancelled,
	domain.StatusError,
}

// Window operations

// UpsertWindow creates the window if its slug is unseen, otherwise returns
// the stored row. Discovery calls this every cycle; it must be idempotent.
func (d *Database) UpsertWindow(w *domain.MarketWindow) (*domain.MarketWindow, error) {
	var existing domain.MarketWindow
	err := d.db.Where("slug = ?", w.Slug).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := d.db.Create(w).Error; err != nil {
		return nil, err
	}
	return w, nil
}

func (d *Database) GetWindow(id int64) (*domain.MarketWindow, error) {
	var w domain.MarketWindow
	err := d.db.First(&w, "id = ?", id).Error
	return &w, err
}

// SetWindowOutcome records the resolution. Outcome is write-once.
func (d *Database) SetWindowOutcome(windowID int64, outcome domain.Direction) error {
	return d.db.Model(&domain.MarketWindow{}).
		Where("id = ? AND outcome IS NULL", windowID).
		Update("outcome", outcome).Error
}

// Signal operations

func (d *Database) GetSignal(id int64) (*domain.Signal, error) {
	var s domain.Signal
	err := d.db.First(&s, "id = ?", id).Error
	return &s, err
}

func (d *Database) GetSignalByWindow(windowID int64) (*domain.Signal, error) {
	var s domain.Signal
	err := d.db.First(&s, "window_id = ?", windowID).Error
	return &s, err
}

// Trade operations

// CreateTradeForWindow inserts a NEW trade unless a non-terminal trade
// already exists for the window; in that case the existing trade is
// returned and created is false.
func (d *Database) CreateTradeForWindow(windowID int64, streak, nightStreak int, policy domain.PolicyMode) (*domain.Trade, bool, error) {
	var trade *domain.Trade
	created := false

	err := d.db.Transaction(func(tx *gorm.DB) error {
		var existing domain.Trade
		err := tx.Where("window_id = ? AND status NOT IN ?", windowID, terminalStatuses).
			First(&existing).Error
		if err == nil {
			trade = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		t := domain.Trade{
			WindowID:         windowID,
			Status:           domain.StatusNew,
			PolicyMode:       policy,
			Decision:         domain.DecisionPending,
			FillStatus:       domain.FillPending,
			TradeLevelStreak: streak,
			NightStreak:      nightStreak,
		}
		if err := tx.Create(&t).Error; err != nil {
			return err
		}
		trade = &t
		created = true
		return nil
	})
	return trade, created, err
}

func (d *Database) GetTrade(id int64) (*domain.Trade, error) {
	var t domain.Trade
	err := d.db.First(&t, "id = ?", id).Error
	return &t, err
}

// GetActiveTrades returns all non-terminal trades, oldest first.
func (d *Database) GetActiveTrades() ([]domain.Trade, error) {
	var trades []domain.Trade
	err := d.db.Where("status NOT IN ?", terminalStatuses).
		Order("created_at ASC").Find(&trades).Error
	return trades, err
}

// GetRecentTrades returns the last limit trades, newest first.
func (d *Database) GetRecentTrades(limit int) ([]domain.Trade, error) {
	var trades []domain.Trade
	err := d.db.Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

// GetSettledSince returns settled trades updated after the cutoff,
// oldest first. Used by the daily report.
func (d *Database) GetSettledSince(cutoff time.Time) ([]domain.Trade, error) {
	var trades []domain.Trade
	err := d.db.Where("status = ? AND updated_at >= ?", domain.StatusSettled, cutoff).
		Order("updated_at ASC").Find(&trades).Error
	return trades, err
}

// QualitySamples returns qualities of taken-and-filled settled trades in the
// given time mode since cutoff, newest first, capped at limit. Feeds the
// rolling quantile thresholds.
func (d *Database) QualitySamples(mode domain.TimeMode, cutoff time.Time, limit int) ([]float64, error) {
	var samples []float64
	err := d.db.Model(&domain.Trade{}).
		Joins("JOIN signals ON signals.id = trades.signal_id").
		Where("trades.status = ?", domain.StatusSettled).
		Where("trades.time_mode = ?", mode).
		Where("trades.decision IN ?", []domain.Decision{domain.DecisionOK, domain.DecisionAutoOK}).
		Where("trades.fill_status IN ?", []domain.FillStatus{domain.FillFilled, domain.FillPartial}).
		Where("trades.updated_at >= ?", cutoff).
		Order("trades.updated_at DESC").
		Limit(limit).
		Pluck("signals.quality", &samples).Error
	return samples, err
}

// SetTradeDecision records an approval decision without a status change.
func (d *Database) SetTradeDecision(tradeID int64, decision domain.Decision) error {
	return d.db.Model(&domain.Trade{}).
		Where("id = ?", tradeID).
		Updates(map[string]any{"decision": decision, "updated_at": time.Now()}).Error
}

// SaveTradeFill updates the executor-reported fill state of a placed order.
func (d *Database) SaveTradeFill(tradeID int64, status domain.FillStatus, fillPrice *decimal.Decimal) error {
	return d.db.Model(&domain.Trade{}).
		Where("id = ?", tradeID).
		Updates(map[string]any{
			"fill_status": status,
			"fill_price":  fillPrice,
			"updated_at":  time.Now(),
		}).Error
}

// CapCheck operations

// EnsureCapCheck creates the cap-check row for a trade if missing.
// Idempotent on trade_id.
func (d *Database) EnsureCapCheck(tradeID int64, tokenID string, confirmTS, endTS int64) (*domain.CapCheck, error) {
	cc := domain.CapCheck{
		TradeID:   tradeID,
		TokenID:   tokenID,
		ConfirmTS: confirmTS,
		EndTS:     endTS,
		Status:    domain.CapPending,
	}
	err := d.db.Where(domain.CapCheck{TradeID: tradeID}).FirstOrCreate(&cc).Error
	return &cc, err
}

func (d *Database) GetCapCheck(tradeID int64) (*domain.CapCheck, error) {
	var cc domain.CapCheck
	err := d.db.First(&cc, "trade_id = ?", tradeID).Error
	return &cc, err
}

func (d *Database) UpdateCapCheck(cc *domain.CapCheck) error {
	return d.db.Save(cc).Error
}

// Stats operations

func (d *Database) GetStats() (*domain.Stats, error) {
	var s domain.Stats
	err := d.db.First(&s, "id = ?", 1).Error
	return &s, err
}

// UpdateStatsFields applies a mutation to the singleton stats row in its
// own transaction. Settlement uses SettleTrade instead, which couples the
// stats write to the trade write.
func (d *Database) UpdateStatsFields(mutate func(*domain.Stats)) (*domain.Stats, error) {
	var out *domain.Stats
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var s domain.Stats
		if err := tx.First(&s, "id = ?", 1).Error; err != nil {
			return err
		}
		mutate(&s)
		if err := tx.Save(&s).Error; err != nil {
			return err
		}
		out = &s
		return nil
	})
	return out, err
}

// Settings operations

func (d *Database) SetSetting(key, value string) error {
	s := domain.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return d.db.Save(&s).Error
}

func (d *Database) GetSettings() (map[string]string, error) {
	var rows []domain.Setting
	if err := d.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}
