package clob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceTicksParsesHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prices-history" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("market") != "tok-up" || q.Get("fidelity") != "1" {
			t.Errorf("unexpected query: %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"history":[{"t":1000421,"p":0.50},{"t":1000431,"p":0.54},{"t":1000441,"p":0.52}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, Credentials{})
	if err != nil {
		t.Fatal(err)
	}
	ticks, err := c.PriceTicks(context.Background(), "tok-up", 1000420, 1000500)
	if err != nil {
		t.Fatalf("PriceTicks: %v", err)
	}
	if len(ticks) != 3 {
		t.Fatalf("got %d ticks, want 3", len(ticks))
	}
	if ticks[0].TS != 1000421 || !ticks[0].Price.Equal(decimal.NewFromFloat(0.50)) {
		t.Errorf("first tick = %+v", ticks[0])
	}
}

func TestPriceTicksSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busted", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, Credentials{})
	if _, err := c.PriceTicks(context.Background(), "tok-up", 0, 1); err == nil {
		t.Error("expected error on HTTP 502")
	}
}

func TestPlaceLimitOrderRequiresKey(t *testing.T) {
	c, _ := NewClient("http://example.invalid", Credentials{})
	_, err := c.PlaceLimitOrder(context.Background(), LimitOrder{
		TokenID: "tok-up",
		Price:   decimal.NewFromFloat(0.55),
		Size:    decimal.NewFromInt(18),
	})
	if err == nil {
		t.Error("placing without a signer must fail")
	}
}
