package database

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/martin/internal/domain"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func testWindow(t *testing.T, d *Database, slug string) *domain.MarketWindow {
	t.Helper()
	w, err := d.UpsertWindow(&domain.MarketWindow{
		Asset:       "BTC",
		Slug:        slug,
		UpTokenID:   "tok-up",
		DownTokenID: "tok-down",
		StartTS:     1000000,
		EndTS:       1003600,
	})
	if err != nil {
		t.Fatalf("UpsertWindow: %v", err)
	}
	return w
}

func TestUpsertWindowIsIdempotent(t *testing.T) {
	d := testDB(t)

	w1 := testWindow(t, d, "btc-up-or-down-1")
	w2 := testWindow(t, d, "btc-up-or-down-1")
	if w1.ID != w2.ID {
		t.Errorf("same slug must map to same window: %d vs %d", w1.ID, w2.ID)
	}
}

func TestOneNonTerminalTradePerWindow(t *testing.T) {
	d := testDB(t)
	w := testWindow(t, d, "btc-up-or-down-2")

	t1, created, err := d.CreateTradeForWindow(w.ID, 0, 0, domain.PolicyBase)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	t2, created, err := d.CreateTradeForWindow(w.ID, 0, 0, domain.PolicyBase)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created || t2.ID != t1.ID {
		t.Errorf("duplicate create must return existing trade, got created=%v id=%d", created, t2.ID)
	}

	// Once the first trade is terminal, a new one may be created.
	if _, err := d.Transition(t1.ID, domain.StatusSearchingSignal, nil); err != nil {
		t.Fatalf("start search: %v", err)
	}
	if _, err := d.Cancel(t1.ID, domain.CancelNoSignal, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, created, err = d.CreateTradeForWindow(w.ID, 0, 0, domain.PolicyBase)
	if err != nil || !created {
		t.Errorf("create after terminal: created=%v err=%v", created, err)
	}
}

func TestTransitionRefusesIllegalEdgeWithoutMutation(t *testing.T) {
	d := testDB(t)
	w := testWindow(t, d, "btc-up-or-down-3")
	tr, _, err := d.CreateTradeForWindow(w.ID, 0, 0, domain.PolicyBase)
	if err != nil {
		t.Fatal(err)
	}

	_, err = d.Transition(tr.ID, domain.StatusReady, func(t *domain.Trade) {
		t.OrderID = "should-not-land"
	})
	if err == nil {
		t.Fatal("NEW -> READY must be refused")
	}

	got, err := d.GetTrade(tr.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusNew || got.OrderID != "" {
		t.Errorf("refused transition must not mutate: status=%s order_id=%q", got.Status, got.OrderID)
	}
}

func TestAttachSignalOncePerWindow(t *testing.T) {
	d := testDB(t)
	w := testWindow(t, d, "btc-up-or-down-4")
	tr, _, _ := d.CreateTradeForWindow(w.ID, 0, 0, domain.PolicyBase)
	if _, err := d.Transition(tr.ID, domain.StatusSearchingSignal, nil); err != nil {
		t.Fatal(err)
	}

	sig := &domain.Signal{
		WindowID:  w.ID,
		Direction: domain.DirectionUp,
		SignalTS:  1000300,
		ConfirmTS: 1000420,
		Quality:   50,
	}
	got, err := d.AttachSignal(tr.ID, sig, w.UpTokenID)
	if err != nil {
		t.Fatalf("AttachSignal: %v", err)
	}
	if got.Status != domain.StatusSignalled || got.SignalID == nil || *got.SignalID != sig.ID {
		t.Errorf("trade not linked to signal: %+v", got)
	}
	if got.TokenID != "tok-up" {
		t.Errorf("token_id = %q, want tok-up", got.TokenID)
	}

	// A second signal for the same window must be refused.
	dup := &domain.Signal{WindowID: w.ID, Direction: domain.DirectionDown, SignalTS: 1000500, ConfirmTS: 1000620}
	if _, err := d.AttachSignal(tr.ID, dup, w.DownTokenID); err == nil {
		t.Error("duplicate signal for window must be refused")
	}
}

func TestSettleTradeCouplesStatsUpdate(t *testing.T) {
	d := testDB(t)
	w := testWindow(t, d, "btc-up-or-down-5")
	tr, _, _ := d.CreateTradeForWindow(w.ID, 0, 0, domain.PolicyBase)

	for _, to := range []domain.TradeStatus{
		domain.StatusSearchingSignal, domain.StatusSignalled, domain.StatusWaitingConfirm,
		domain.StatusWaitingCap, domain.StatusReady, domain.StatusOrderPlaced,
	} {
		if _, err := d.Transition(tr.ID, to, nil); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}

	pnl := decimal.NewFromFloat(8.18)
	got, err := d.SettleTrade(tr.ID, true, pnl, func(s *domain.Stats, t *domain.Trade) {
		s.TotalTrades++
		s.TotalWins++
		s.TradeLevelStreak++
	})
	if err != nil {
		t.Fatalf("SettleTrade: %v", err)
	}
	if got.IsWin == nil || !*got.IsWin {
		t.Error("is_win not set on settle")
	}
	if got.PnL == nil || !got.PnL.Equal(pnl) {
		t.Errorf("pnl = %v, want %v", got.PnL, pnl)
	}

	stats, err := d.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalTrades != 1 || stats.TotalWins != 1 || stats.TradeLevelStreak != 1 {
		t.Errorf("stats not updated with settle: %+v", stats)
	}

	// Terminal: settling again must fail and change nothing.
	if _, err := d.SettleTrade(tr.ID, false, decimal.Zero, func(*domain.Stats, *domain.Trade) {}); err == nil {
		t.Error("double settle must be refused")
	}
	stats, _ = d.GetStats()
	if stats.TotalTrades != 1 {
		t.Errorf("refused settle mutated stats: %+v", stats)
	}
}

func TestIsWinNullUntilSettled(t *testing.T) {
	d := testDB(t)
	w := testWindow(t, d, "btc-up-or-down-6")
	tr, _, _ := d.CreateTradeForWindow(w.ID, 0, 0, domain.PolicyBase)

	got, _ := d.GetTrade(tr.ID)
	if got.IsWin != nil || got.PnL != nil {
		t.Errorf("is_win/pnl must be null before SETTLED: %+v", got)
	}
}

func TestEnsureCapCheckIdempotent(t *testing.T) {
	d := testDB(t)
	w := testWindow(t, d, "btc-up-or-down-7")
	tr, _, _ := d.CreateTradeForWindow(w.ID, 0, 0, domain.PolicyBase)

	cc1, err := d.EnsureCapCheck(tr.ID, "tok-up", 1000420, 1003600)
	if err != nil {
		t.Fatal(err)
	}
	cc2, err := d.EnsureCapCheck(tr.ID, "tok-up", 1000420, 1003600)
	if err != nil {
		t.Fatal(err)
	}
	if cc1.ID != cc2.ID {
		t.Errorf("cap check must be one row per trade: %d vs %d", cc1.ID, cc2.ID)
	}
	if cc1.Status != domain.CapPending {
		t.Errorf("new cap check status = %s, want PENDING", cc1.Status)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	d := testDB(t)

	if err := d.SetSetting("trading.price_cap", "0.60"); err != nil {
		t.Fatal(err)
	}
	if err := d.SetSetting("trading.price_cap", "0.62"); err != nil {
		t.Fatal(err)
	}
	rows, err := d.GetSettings()
	if err != nil {
		t.Fatal(err)
	}
	if rows["trading.price_cap"] != "0.62" {
		t.Errorf("setting value = %q, want 0.62", rows["trading.price_cap"])
	}
}
