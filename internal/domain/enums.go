package domain

// Direction is the side of an hourly up/down market.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	StatusNew             TradeStatus = "NEW"
	StatusSearchingSignal TradeStatus = "SEARCHING_SIGNAL"
	StatusSignalled       TradeStatus = "SIGNALLED"
	StatusWaitingConfirm  TradeStatus = "WAITING_CONFIRM"
	StatusWaitingCap      TradeStatus = "WAITING_CAP"
	StatusReady           TradeStatus = "READY"
	StatusOrderPlaced     TradeStatus = "ORDER_PLACED"
	StatusSettled         TradeStatus = "SETTLED"
	StatusCancelled       TradeStatus = "CANCELLED"
	StatusError           TradeStatus = "ERROR"
)

// IsTerminal reports whether no further transitions are accepted.
func (s TradeStatus) IsTerminal() bool {
	return s == StatusSettled || s == StatusCancelled || s == StatusError
}

// CancelReason explains a CANCELLED trade.
type CancelReason string

const (
	CancelNoSignal      CancelReason = "NO_SIGNAL"
	CancelLowQuality    CancelReason = "LOW_QUALITY"
	CancelSkip          CancelReason = "SKIP"
	CancelExpired       CancelReason = "EXPIRED"
	CancelLate          CancelReason = "LATE"
	CancelCapFail       CancelReason = "CAP_FAIL"
	CancelPaused        CancelReason = "PAUSED"
	CancelNightDisabled CancelReason = "NIGHT_DISABLED"
)

// CapStatus is the verdict of the entry-price cap check.
type CapStatus string

const (
	CapPending CapStatus = "PENDING"
	CapPass    CapStatus = "PASS"
	CapFail    CapStatus = "FAIL"
	CapLate    CapStatus = "LATE"
)

// Decision records who approved (or declined) an entry.
type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionOK       Decision = "OK"
	DecisionAutoOK   Decision = "AUTO_OK"
	DecisionSkip     Decision = "SKIP"
	DecisionAutoSkip Decision = "AUTO_SKIP"
)

// FillStatus is the executor-reported fill state of an order.
type FillStatus string

const (
	FillPending   FillStatus = "PENDING"
	FillFilled    FillStatus = "FILLED"
	FillPartial   FillStatus = "PARTIAL"
	FillRejected  FillStatus = "REJECTED"
	FillCancelled FillStatus = "CANCELLED"
)

// TimeMode is the trading regime at decision time.
type TimeMode string

const (
	ModeDay   TimeMode = "DAY"
	ModeNight TimeMode = "NIGHT"
)

// PolicyMode selects the quality acceptance regime.
type PolicyMode string

const (
	PolicyBase   PolicyMode = "BASE"
	PolicyStrict PolicyMode = "STRICT"
)

// NightSessionMode controls what happens when the night win streak caps out.
type NightSessionMode string

const (
	NightOff  NightSessionMode = "OFF"
	NightSoft NightSessionMode = "SOFT"
	NightHard NightSessionMode = "HARD"
)
