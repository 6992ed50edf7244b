// Package binance fetches spot candles over REST and streams live trade
// prices over websocket. Candles feed the snapshot cache; the live price
// feed backs /status and /report.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar. OpenTime is unix seconds.
type Candle struct {
	OpenTime int64
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

type Client struct {
	http *resty.Client
}

func NewClient(baseURL string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
	return &Client{http: http}
}

// Symbol maps an asset ticker onto the spot pair used for candles.
func Symbol(asset string) string {
	return asset + "USDT"
}

// Klines fetches candles for [from, to] at the given interval ("1m"/"5m").
// Binance caps one page at 1000 rows; the range is paged as needed.
func (c *Client) Klines(ctx context.Context, asset, interval string, from, to int64) ([]Candle, error) {
	var out []Candle
	cursor := from * 1000 // Binance uses milliseconds
	endMs := to * 1000

	for cursor < endMs {
		var raw [][]any
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol":    Symbol(asset),
				"interval":  interval,
				"startTime": strconv.FormatInt(cursor, 10),
				"endTime":   strconv.FormatInt(endMs, 10),
				"limit":     "1000",
			}).
			SetResult(&raw).
			Get("/api/v3/klines")
		if err != nil {
			return nil, fmt.Errorf("fetch klines: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("klines HTTP %d: %s", resp.StatusCode(), resp.String())
		}
		if len(raw) == 0 {
			break
		}

		for _, k := range raw {
			candle, err := parseKline(k)
			if err != nil {
				return nil, err
			}
			out = append(out, candle)
		}

		last, _ := raw[len(raw)-1][0].(float64)
		next := int64(last) + intervalMs(interval)
		if next <= cursor {
			break
		}
		cursor = next
	}

	return out, nil
}

func parseKline(k []any) (Candle, error) {
	if len(k) < 6 {
		return Candle{}, fmt.Errorf("short kline row: %d fields", len(k))
	}
	openMs, ok := k[0].(float64)
	if !ok {
		return Candle{}, fmt.Errorf("bad kline open time: %v", k[0])
	}

	fields := make([]decimal.Decimal, 5)
	for i := 1; i <= 5; i++ {
		s, ok := k[i].(string)
		if !ok {
			return Candle{}, fmt.Errorf("bad kline field %d: %v", i, k[i])
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Candle{}, fmt.Errorf("parse kline field %d: %w", i, err)
		}
		fields[i-1] = d
	}

	return Candle{
		OpenTime: int64(openMs) / 1000,
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}

func intervalMs(interval string) int64 {
	switch interval {
	case "1m":
		return 60_000
	case "5m":
		return 300_000
	default:
		return 60_000
	}
}
