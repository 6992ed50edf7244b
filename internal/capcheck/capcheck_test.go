package capcheck

import (
	"testing"

	"github.com/shopspring/decimal"
)

func tick(ts int64, price float64) Tick {
	return Tick{TS: ts, Price: decimal.NewFromFloat(price)}
}

func params(now int64) Params {
	return Params{
		ConfirmTS: 1000420,
		EndTS:     1003600,
		Now:       now,
		PriceCap:  decimal.NewFromFloat(0.55),
		MinTicks:  3,
	}
}

func TestPassOnConsecutiveRun(t *testing.T) {
	t.Parallel()

	ticks := []Tick{
		tick(1000421, 0.50),
		tick(1000431, 0.54),
		tick(1000441, 0.52),
	}
	res := Evaluate(ticks, params(1000450))
	if res.Status != Pass {
		t.Fatalf("status = %s, want PASS", res.Status)
	}
	if res.ConsecutiveTicks != 3 {
		t.Errorf("run = %d, want 3", res.ConsecutiveTicks)
	}
	if res.FirstPassTS == nil || *res.FirstPassTS != 1000441 {
		t.Errorf("first_pass_ts = %v, want 1000441", res.FirstPassTS)
	}
	if res.PriceAtPass == nil || !res.PriceAtPass.Equal(decimal.NewFromFloat(0.52)) {
		t.Errorf("price_at_pass = %v, want 0.52", res.PriceAtPass)
	}
}

func TestEqualityWithCapCounts(t *testing.T) {
	t.Parallel()

	ticks := []Tick{
		tick(1000421, 0.55),
		tick(1000431, 0.55),
		tick(1000441, 0.55),
	}
	res := Evaluate(ticks, params(1000450))
	if res.Status != Pass {
		t.Errorf("price == cap must count as at-or-below, got %s", res.Status)
	}
}

func TestBreachResetsRun(t *testing.T) {
	t.Parallel()

	ticks := []Tick{
		tick(1000421, 0.50),
		tick(1000431, 0.51),
		tick(1000441, 0.60), // breach
		tick(1000451, 0.52),
		tick(1000461, 0.53),
	}
	res := Evaluate(ticks, params(1000470))
	if res.Status != Pending {
		t.Fatalf("status = %s, want PENDING", res.Status)
	}
	if res.ConsecutiveTicks != 2 {
		t.Errorf("run after breach = %d, want 2", res.ConsecutiveTicks)
	}
}

func TestPreConfirmTicksNeverCount(t *testing.T) {
	t.Parallel()

	// Cheap ticks before confirm_ts plus expensive ones after: no pass, and
	// once the window ends, a fail.
	ticks := []Tick{
		tick(1000400, 0.40),
		tick(1000410, 0.42),
		tick(1000425, 0.60),
		tick(1000500, 0.58),
	}

	res := Evaluate(ticks, params(1000600))
	if res.Status != Pending {
		t.Fatalf("mid-window status = %s, want PENDING", res.Status)
	}
	if res.ConsecutiveTicks != 0 {
		t.Errorf("pre-confirm ticks leaked into the run: %d", res.ConsecutiveTicks)
	}

	res = Evaluate(ticks, params(1003600))
	if res.Status != Fail {
		t.Errorf("status at window end = %s, want FAIL", res.Status)
	}
}

func TestLateWhenConfirmAtOrPastEnd(t *testing.T) {
	t.Parallel()

	p := params(1003700)
	p.ConfirmTS = 1003620 // past end_ts
	res := Evaluate(nil, p)
	if res.Status != Late {
		t.Errorf("status = %s, want LATE", res.Status)
	}

	p.ConfirmTS = p.EndTS // exactly at end
	res = Evaluate(nil, p)
	if res.Status != Late {
		t.Errorf("confirm == end: status = %s, want LATE", res.Status)
	}
}

func TestFailAtEndWithoutRun(t *testing.T) {
	t.Parallel()

	ticks := []Tick{
		tick(1000421, 0.56),
		tick(1000431, 0.58),
	}
	res := Evaluate(ticks, params(1003650))
	if res.Status != Fail {
		t.Errorf("status = %s, want FAIL", res.Status)
	}
}

func TestTicksArriveUnordered(t *testing.T) {
	t.Parallel()

	ticks := []Tick{
		tick(1000441, 0.52),
		tick(1000421, 0.50),
		tick(1000431, 0.54),
	}
	res := Evaluate(ticks, params(1000450))
	if res.Status != Pass {
		t.Fatalf("status = %s, want PASS", res.Status)
	}
	if res.FirstPassTS == nil || *res.FirstPassTS != 1000441 {
		t.Errorf("first_pass_ts = %v, want 1000441 after sorting", res.FirstPassTS)
	}
}

func TestNoTicksYetStaysPending(t *testing.T) {
	t.Parallel()

	res := Evaluate(nil, params(1000450))
	if res.Status != Pending {
		t.Errorf("no ticks mid-window: status = %s, want PENDING", res.Status)
	}
}
