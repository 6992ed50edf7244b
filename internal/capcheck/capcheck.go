// Package capcheck validates the entry price of a chosen outcome token:
// the trade may only proceed when the book shows a sustained run of
// consecutive ticks at or below the configured cap, all inside the
// [confirm_ts, end_ts] interval.
package capcheck

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Tick is one order-book price observation.
type Tick struct {
	TS    int64
	Price decimal.Decimal
}

type Status string

const (
	Pending Status = "PENDING"
	Pass    Status = "PASS"
	Fail    Status = "FAIL"
	Late    Status = "LATE"
)

// Result is the evaluator verdict. FirstPassTS and PriceAtPass are set only
// on PASS and refer to the tick at which the run reached MinTicks.
type Result struct {
	Status           Status
	ConsecutiveTicks int
	FirstPassTS      *int64
	PriceAtPass      *decimal.Decimal
}

// Params frame one evaluation.
type Params struct {
	ConfirmTS int64
	EndTS     int64
	Now       int64
	PriceCap  decimal.Decimal
	MinTicks  int
}

// Evaluate scans the ticks for a qualifying run.
//
//   - Ticks before confirm_ts never count.
//   - Equality with the cap counts as at-or-below.
//   - A tick above the cap resets the run.
//   - LATE when the confirm point is at or past the window end.
//   - FAIL when the window has ended without a qualifying run.
//   - PENDING otherwise; ConsecutiveTicks carries the current run length.
func Evaluate(ticks []Tick, p Params) Result {
	if p.ConfirmTS >= p.EndTS {
		return Result{Status: Late}
	}

	inWindow := make([]Tick, 0, len(ticks))
	for _, tk := range ticks {
		if tk.TS >= p.ConfirmTS && tk.TS <= p.EndTS {
			inWindow = append(inWindow, tk)
		}
	}
	// Stable keeps insertion order for duplicate timestamps.
	sort.SliceStable(inWindow, func(i, j int) bool { return inWindow[i].TS < inWindow[j].TS })

	run := 0
	for _, tk := range inWindow {
		if tk.Price.GreaterThan(p.PriceCap) {
			run = 0
			continue
		}
		run++
		if run >= p.MinTicks {
			ts := tk.TS
			price := tk.Price
			return Result{
				Status:           Pass,
				ConsecutiveTicks: run,
				FirstPassTS:      &ts,
				PriceAtPass:      &price,
			}
		}
	}

	if p.Now >= p.EndTS {
		return Result{Status: Fail, ConsecutiveTicks: run}
	}
	return Result{Status: Pending, ConsecutiveTicks: run}
}
