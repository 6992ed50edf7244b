// Package snapshot keeps an in-memory per-asset candle cache warm. A
// background worker refreshes 1m and 5m candles on its own period so the
// decision cycle never does a blocking candle fetch on its hot path.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/martin/internal/binance"
)

const (
	maxCandles1m = 240
	maxCandles5m = 48
)

// Snapshot is one asset's candle state at UpdatedTS. Readers get the whole
// struct and never see a half-refreshed mix of frames.
type Snapshot struct {
	Asset     string
	UpdatedTS int64
	Candles1m []binance.Candle
	Candles5m []binance.Candle
}

// IsFresh reports whether the snapshot was refreshed within the window.
func (s *Snapshot) IsFresh(now, freshnessSeconds int64) bool {
	return s != nil && now-s.UpdatedTS <= freshnessSeconds
}

// Cache holds the latest snapshot per asset.
type Cache struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

func NewCache() *Cache {
	return &Cache{snapshots: make(map[string]*Snapshot)}
}

// Get returns the current snapshot for the asset, nil if none yet.
func (c *Cache) Get(asset string) *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshots[asset]
}

// Put replaces the asset's snapshot wholesale.
func (c *Cache) Put(s *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[s.Asset] = s
}

// CandleSource is what the worker fetches from. Satisfied by
// *binance.Client.
type CandleSource interface {
	Klines(ctx context.Context, asset, interval string, from, to int64) ([]binance.Candle, error)
}

// Worker refreshes the cache on a fixed period. One failing asset never
// blocks the others.
type Worker struct {
	source        CandleSource
	cache         *Cache
	assets        []string
	period        time.Duration
	warmupSeconds int64
	nowFn         func() int64

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewWorker(source CandleSource, cache *Cache, assets []string, period time.Duration, warmupSeconds int64) *Worker {
	return &Worker{
		source:        source,
		cache:         cache,
		assets:        assets,
		period:        period,
		warmupSeconds: warmupSeconds,
		nowFn:         func() int64 { return time.Now().Unix() },
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start runs an immediate refresh and then the periodic loop.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.doneCh)

		w.RefreshAll(ctx)

		ticker := time.NewTicker(w.period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.RefreshAll(ctx)
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Info().
		Int("assets", len(w.assets)).
		Dur("period", w.period).
		Msg("📸 Snapshot worker started")
}

// Stop halts the loop and waits for the in-flight refresh to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
	log.Info().Msg("📸 Snapshot worker stopped")
}

// RefreshAll refreshes every asset, isolating per-asset failures.
func (w *Worker) RefreshAll(ctx context.Context) {
	for _, asset := range w.assets {
		if err := w.refresh(ctx, asset); err != nil {
			log.Warn().Err(err).Str("asset", asset).Msg("Snapshot refresh failed")
		}
	}
}

// EnsureFresh returns a fresh snapshot for the asset, refreshing inline
// when the cached one is stale or missing.
func (w *Worker) EnsureFresh(ctx context.Context, asset string, freshnessSeconds int64) (*Snapshot, error) {
	if s := w.cache.Get(asset); s.IsFresh(w.nowFn(), freshnessSeconds) {
		return s, nil
	}
	if err := w.refresh(ctx, asset); err != nil {
		return nil, err
	}
	s := w.cache.Get(asset)
	if s == nil {
		return nil, fmt.Errorf("no snapshot for %s after refresh", asset)
	}
	return s, nil
}

func (w *Worker) refresh(ctx context.Context, asset string) error {
	now := w.nowFn()
	from := now - w.warmupSeconds

	c1m, err := w.source.Klines(ctx, asset, "1m", from, now)
	if err != nil {
		return fmt.Errorf("1m candles: %w", err)
	}
	c5m, err := w.source.Klines(ctx, asset, "5m", from, now)
	if err != nil {
		return fmt.Errorf("5m candles: %w", err)
	}

	w.cache.Put(&Snapshot{
		Asset:     asset,
		UpdatedTS: now,
		Candles1m: tail(c1m, maxCandles1m),
		Candles5m: tail(c5m, maxCandles5m),
	})

	log.Debug().
		Str("asset", asset).
		Int("candles_1m", len(c1m)).
		Int("candles_5m", len(c5m)).
		Msg("Snapshot refreshed")
	return nil
}

func tail(candles []binance.Candle, max int) []binance.Candle {
	if len(candles) <= max {
		return candles
	}
	return candles[len(candles)-max:]
}
