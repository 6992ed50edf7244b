package execution

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/martin/internal/clob"
	"github.com/web3guy0/martin/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPaperPlaceFillsAtLimitPrice(t *testing.T) {
	t.Parallel()

	e := NewPaperExecutor()
	trade := &domain.Trade{ID: 7}

	res, err := e.Place(context.Background(), trade, "tok-up", dec("0.55"), dec("10"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.OrderID, "PAPER_") || len(res.OrderID) != len("PAPER_")+12 {
		t.Errorf("order id = %q", res.OrderID)
	}
	if res.OrderID != strings.ToUpper(res.OrderID) {
		t.Errorf("order id must be uppercase: %q", res.OrderID)
	}
	if res.FillStatus != domain.FillFilled {
		t.Errorf("status = %s, want FILLED", res.FillStatus)
	}
	if res.FillPrice == nil || !res.FillPrice.Equal(dec("0.55")) {
		t.Errorf("fill price = %v, want 0.55", res.FillPrice)
	}
}

func TestPaperPlaceIsIdempotent(t *testing.T) {
	t.Parallel()

	e := NewPaperExecutor()
	fill := dec("0.52")
	trade := &domain.Trade{
		ID:         7,
		OrderID:    "PAPER_AABBCCDDEEFF",
		FillStatus: domain.FillFilled,
		FillPrice:  &fill,
	}

	res, err := e.Place(context.Background(), trade, "tok-up", dec("0.55"), dec("10"))
	if err != nil {
		t.Fatal(err)
	}
	if res.OrderID != trade.OrderID {
		t.Errorf("repeat placement minted a new order: %q", res.OrderID)
	}
	if !res.FillPrice.Equal(fill) {
		t.Errorf("fill price = %v, want the recorded 0.52", res.FillPrice)
	}
}

type fakePlacer struct {
	placed  []clob.LimitOrder
	orderID string
	state   *clob.OrderState
	err     error
}

func (f *fakePlacer) PlaceLimitOrder(_ context.Context, order clob.LimitOrder) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.placed = append(f.placed, order)
	return f.orderID, nil
}

func (f *fakePlacer) OrderStatus(_ context.Context, _ string) (*clob.OrderState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

func TestLivePlaceSubmitsSharesAtPrice(t *testing.T) {
	t.Parallel()

	placer := &fakePlacer{orderID: "0xdeadbeef"}
	e := NewLiveExecutor(placer)

	res, err := e.Place(context.Background(), &domain.Trade{ID: 3}, "tok-dn", dec("0.5"), dec("10"))
	if err != nil {
		t.Fatal(err)
	}
	if res.OrderID != "0xdeadbeef" || res.FillStatus != domain.FillPending {
		t.Errorf("result = %+v", res)
	}
	if len(placer.placed) != 1 {
		t.Fatalf("placed %d orders", len(placer.placed))
	}
	if got := placer.placed[0].Size; !got.Equal(dec("20")) { // 10 USD / 0.5
		t.Errorf("size = %s, want 20", got)
	}
}

func TestLivePlaceDoesNotDoubleSubmit(t *testing.T) {
	t.Parallel()

	placer := &fakePlacer{state: &clob.OrderState{Status: "OPEN"}}
	e := NewLiveExecutor(placer)

	trade := &domain.Trade{ID: 3, OrderID: "0xexisting"}
	res, err := e.Place(context.Background(), trade, "tok-dn", dec("0.5"), dec("10"))
	if err != nil {
		t.Fatal(err)
	}
	if len(placer.placed) != 0 {
		t.Error("existing order must not be resubmitted")
	}
	if res.OrderID != "0xexisting" {
		t.Errorf("order id = %q", res.OrderID)
	}
}

func TestLiveFillStateMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state clob.OrderState
		want  domain.FillStatus
	}{
		{"filled", clob.OrderState{Status: "FILLED", FillPrice: dec("0.53")}, domain.FillFilled},
		{"matched", clob.OrderState{Status: "MATCHED"}, domain.FillFilled},
		{"rejected", clob.OrderState{Status: "REJECTED"}, domain.FillRejected},
		{"cancelled clean", clob.OrderState{Status: "CANCELED"}, domain.FillCancelled},
		{"cancelled with partial", clob.OrderState{Status: "CANCELED", Matched: dec("5")}, domain.FillPartial},
		{"open untouched", clob.OrderState{Status: "OPEN", Size: dec("20")}, domain.FillPending},
		{"open partial", clob.OrderState{Status: "OPEN", Size: dec("20"), Matched: dec("5")}, domain.FillPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			placer := &fakePlacer{state: &tt.state}
			e := NewLiveExecutor(placer)
			got, fill, err := e.FillState(context.Background(), &domain.Trade{OrderID: "x"})
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
			if tt.want == domain.FillFilled && fill == nil {
				t.Error("filled state must carry a fill price")
			}
		})
	}

	placer := &fakePlacer{err: errors.New("venue down")}
	e := NewLiveExecutor(placer)
	if _, _, err := e.FillState(context.Background(), &domain.Trade{OrderID: "x"}); err == nil {
		t.Error("venue error must propagate")
	}
}

func TestSettlement(t *testing.T) {
	t.Parallel()

	fill := dec("0.5")

	isWin, pnl := Settlement(domain.DirectionUp, domain.DirectionUp, dec("10"), &fill)
	if !isWin {
		t.Fatal("matching direction must win")
	}
	if !pnl.Equal(dec("10")) { // 10*(1/0.5 - 1)
		t.Errorf("win pnl = %s, want 10", pnl)
	}

	isWin, pnl = Settlement(domain.DirectionUp, domain.DirectionDown, dec("10"), &fill)
	if isWin {
		t.Fatal("mismatched direction must lose")
	}
	if !pnl.Equal(dec("-10")) {
		t.Errorf("loss pnl = %s, want -10", pnl)
	}

	// A win with no recorded fill price yields zero rather than dividing
	// by zero.
	isWin, pnl = Settlement(domain.DirectionUp, domain.DirectionUp, dec("10"), nil)
	if !isWin || !pnl.IsZero() {
		t.Errorf("win without fill price: isWin=%v pnl=%s", isWin, pnl)
	}
}

func TestShares(t *testing.T) {
	t.Parallel()

	if got := Shares(dec("10"), dec("0.55")); !got.Equal(dec("18.181818")) {
		t.Errorf("shares = %s", got)
	}
	if got := Shares(dec("10"), decimal.Zero); !got.IsZero() {
		t.Errorf("zero price must give zero shares, got %s", got)
	}
}
