package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketWindow is one hourly up/down market. Created by discovery, mutated
// only to set Outcome at settlement.
type MarketWindow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Asset       string `gorm:"index"`
	Slug        string `gorm:"uniqueIndex"`
	ConditionID string
	UpTokenID   string
	DownTokenID string
	StartTS     int64 `gorm:"index"`
	EndTS       int64
	Outcome     *Direction
	CreatedAt   time.Time
}

// TokenFor returns the outcome token backing the given direction.
func (w *MarketWindow) TokenFor(dir Direction) string {
	if dir == DirectionUp {
		return w.UpTokenID
	}
	return w.DownTokenID
}

// IsExpired reports whether the window has closed at the given time.
func (w *MarketWindow) IsExpired(now int64) bool {
	return now >= w.EndTS
}

// Signal is a qualifying TA detection for a window. At most one per window;
// immutable once written.
type Signal struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	WindowID         int64     `gorm:"uniqueIndex"`
	Direction        Direction
	SignalTS         int64
	ConfirmTS        int64
	Quality          float64
	QualityBreakdown string // opaque JSON from the oracle
	AnchorBarTS      int64
	CreatedAt        time.Time
}

// Trade is the lifecycle record for a window. One non-terminal trade per
// window at any moment.
type Trade struct {
	ID               int64       `gorm:"primaryKey;autoIncrement"`
	WindowID         int64       `gorm:"index"`
	SignalID         *int64
	Status           TradeStatus `gorm:"index"`
	TimeMode         TimeMode
	PolicyMode       PolicyMode
	Decision         Decision
	CancelReason     CancelReason
	TokenID          string
	OrderID          string
	FillStatus       FillStatus
	FillPrice        *decimal.Decimal `gorm:"type:decimal(10,6)"`
	StakeAmount      decimal.Decimal  `gorm:"type:decimal(20,6)"`
	PnL              *decimal.Decimal `gorm:"type:decimal(20,6)"`
	IsWin            *bool
	TradeLevelStreak int // streak snapshot at trade creation
	NightStreak      int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsTaken reports whether an entry was approved, by user or by policy.
func (t *Trade) IsTaken() bool {
	return t.Decision == DecisionOK || t.Decision == DecisionAutoOK
}

// IsFilled treats PARTIAL as filled for stats purposes.
func (t *Trade) IsFilled() bool {
	return t.FillStatus == FillFilled || t.FillStatus == FillPartial
}

// CountsForStreak reports whether this trade moves the win streaks.
func (t *Trade) CountsForStreak() bool {
	return t.IsTaken() && t.IsFilled()
}

// CapCheck is the one cap evaluation record per trade.
type CapCheck struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	TradeID          int64  `gorm:"uniqueIndex"`
	TokenID          string
	ConfirmTS        int64
	EndTS            int64
	Status           CapStatus
	ConsecutiveTicks int
	FirstPassTS      *int64
	PriceAtPass      *decimal.Decimal `gorm:"type:decimal(10,6)"`
	CreatedAt        time.Time
}

// Stats is the singleton risk/policy row (id = 1).
type Stats struct {
	ID                       int64 `gorm:"primaryKey"`
	TradeLevelStreak         int
	NightStreak              int
	NightDisabled            bool // night autotrade latched off until the next day session
	PolicyMode               PolicyMode
	TotalTrades              int
	TotalWins                int
	TotalLosses              int
	LastStrictDayThreshold   *float64
	LastStrictNightThreshold *float64
	LastQuantileUpdateTS     *int64
	IsPaused                 bool
	DayOnly                  bool
	NightOnly                bool
	UpdatedAt                time.Time
}

// Setting is a persistent key/value override of configuration.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

// Migration marks an applied schema migration.
type Migration struct {
	ID        string `gorm:"primaryKey"`
	AppliedAt time.Time
}
