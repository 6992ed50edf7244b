package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PriceFeed streams live trade prices for the configured assets over a
// combined websocket subscription and keeps the last price per asset.
// Purely informational; the trading pipeline itself works off candles
// and book ticks.
type PriceFeed struct {
	wsURL  string
	assets []string

	mu     sync.RWMutex
	prices map[string]decimal.Decimal

	running bool
	stopCh  chan struct{}
}

func NewPriceFeed(wsURL string, assets []string) *PriceFeed {
	return &PriceFeed{
		wsURL:  wsURL,
		assets: assets,
		prices: make(map[string]decimal.Decimal),
		stopCh: make(chan struct{}),
	}
}

// Start launches the stream loop. Reconnects with a short pause on any
// read or dial failure until Stop is called.
func (f *PriceFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.run()
	log.Info().Strs("assets", f.assets).Msg("📈 Price feed started")
}

func (f *PriceFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
}

func (f *PriceFeed) isRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

// LastPrice returns the most recent trade price for the asset, or zero if
// nothing has arrived yet.
func (f *PriceFeed) LastPrice(asset string) decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.prices[strings.ToUpper(asset)]
}

func (f *PriceFeed) run() {
	for f.isRunning() {
		if err := f.stream(); err != nil && f.isRunning() {
			log.Warn().Err(err).Msg("Price feed disconnected, reconnecting")
		}
		select {
		case <-f.stopCh:
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func (f *PriceFeed) stream() error {
	streams := make([]string, len(f.assets))
	for i, a := range f.assets {
		streams[i] = strings.ToLower(Symbol(a)) + "@trade"
	}
	url := fmt.Sprintf("%s/%s", f.wsURL, strings.Join(streams, "/"))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	// Unblock the read when Stop closes stopCh.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-f.stopCh:
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(message)
	}
}

func (f *PriceFeed) handleMessage(data []byte) {
	var msg struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Price     string `json:"p"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.EventType != "trade" {
		return
	}

	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return
	}
	asset := strings.TrimSuffix(msg.Symbol, "USDT")

	f.mu.Lock()
	f.prices[asset] = price
	f.mu.Unlock()
}
