// Package clob talks to the Polymarket CLOB: outcome-token price history
// for the cap check, and limit order placement/status for the live
// executor. Orders are keccak-signed with the configured wallet key and
// authenticated with the POLY_* header scheme.
package clob

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/martin/internal/capcheck"
)

type Client struct {
	http       *resty.Client
	privateKey *ecdsa.PrivateKey
	address    string
	apiKey     string
	apiSecret  string
	passphrase string
}

// Credentials carries the live-trading auth material. All fields may be
// empty for a read-only client (price history needs no auth).
type Credentials struct {
	EthPrivateKey string
	APIKey        string
	APISecret     string
	Passphrase    string
}

func NewClient(baseURL string, creds Credentials) (*Client, error) {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15 * time.Second).
			SetRetryCount(3).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second),
		apiKey:     creds.APIKey,
		apiSecret:  creds.APISecret,
		passphrase: creds.Passphrase,
	}

	if creds.EthPrivateKey != "" {
		pk, err := crypto.HexToECDSA(creds.EthPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		c.privateKey = pk
		c.address = crypto.PubkeyToAddress(pk.PublicKey).Hex()
		log.Info().Str("address", c.address).Msg("🔑 CLOB signer loaded")
	}

	return c, nil
}

// PriceTicks returns the traded-price history of an outcome token over
// [from, to] at 1-minute fidelity, oldest first.
func (c *Client) PriceTicks(ctx context.Context, tokenID string, from, to int64) ([]capcheck.Tick, error) {
	var result struct {
		History []struct {
			T int64   `json:"t"`
			P float64 `json:"p"`
		} `json:"history"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"market":   tokenID,
			"startTs":  strconv.FormatInt(from, 10),
			"endTs":    strconv.FormatInt(to, 10),
			"fidelity": "1",
		}).
		SetResult(&result).
		Get("/prices-history")
	if err != nil {
		return nil, fmt.Errorf("fetch price history: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("price history HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	ticks := make([]capcheck.Tick, len(result.History))
	for i, h := range result.History {
		ticks[i] = capcheck.Tick{TS: h.T, Price: decimal.NewFromFloat(h.P)}
	}
	return ticks, nil
}

// LimitOrder is a single buy of an outcome token.
type LimitOrder struct {
	TokenID string
	Price   decimal.Decimal
	Size    decimal.Decimal
}

// PlaceLimitOrder signs and submits the order, returning the venue order id.
func (c *Client) PlaceLimitOrder(ctx context.Context, order LimitOrder) (string, error) {
	if c.privateKey == nil {
		return "", fmt.Errorf("private key not loaded")
	}

	payload := map[string]any{
		"tokenID":       order.TokenID,
		"price":         order.Price.String(),
		"size":          order.Size.String(),
		"side":          "BUY",
		"expiration":    time.Now().Add(time.Hour).Unix(),
		"nonce":         time.Now().UnixNano(),
		"feeRateBps":    "0",
		"signatureType": 2,
	}

	signature, err := c.signOrder(payload)
	if err != nil {
		return "", fmt.Errorf("signing failed: %w", err)
	}
	payload["signature"] = signature

	var result struct {
		OrderID string `json:"orderID"`
		Status  string `json:"status"`
		Error   string `json:"error"`
	}
	resp, err := c.authed(ctx, "POST", "/order").
		SetBody(payload).
		SetResult(&result).
		Post("/order")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("place order HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	if result.Error != "" {
		return "", fmt.Errorf("API error: %s", result.Error)
	}

	log.Info().
		Str("order_id", result.OrderID).
		Str("status", result.Status).
		Msg("✅ Order submitted")
	return result.OrderID, nil
}

// OrderState is the venue view of a submitted order.
type OrderState struct {
	Status    string
	Size      decimal.Decimal
	Matched   decimal.Decimal
	FillPrice decimal.Decimal
}

// OrderStatus fetches the current order state.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (*OrderState, error) {
	var result struct {
		Status      string `json:"status"`
		Price       string `json:"price"`
		Size        string `json:"original_size"`
		SizeMatched string `json:"size_matched"`
	}
	resp, err := c.authed(ctx, "GET", "/order/"+orderID).
		SetResult(&result).
		Get("/order/" + orderID)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("order status HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	price, _ := decimal.NewFromString(result.Price)
	size, _ := decimal.NewFromString(result.Size)
	matched, _ := decimal.NewFromString(result.SizeMatched)
	return &OrderState{
		Status:    result.Status,
		Size:      size,
		Matched:   matched,
		FillPrice: price,
	}, nil
}

// CancelOrder withdraws a resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	resp, err := c.authed(ctx, "DELETE", "/order/"+orderID).
		Delete("/order/" + orderID)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("cancel order HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *Client) authed(ctx context.Context, method, path string) *resty.Request {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("POLY_API_KEY", c.apiKey).
		SetHeader("POLY_TIMESTAMP", timestamp).
		SetHeader("POLY_PASSPHRASE", c.passphrase)

	if c.apiSecret != "" {
		req.SetHeader("POLY_SIGNATURE", c.hmacSign(timestamp+method+path))
	}
	return req
}

func (c *Client) signOrder(order map[string]any) (string, error) {
	orderBytes, err := json.Marshal(order)
	if err != nil {
		return "", err
	}
	hash := crypto.Keccak256(orderBytes)

	sig, err := crypto.Sign(hash, c.privateKey)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

func (c *Client) hmacSign(message string) string {
	hash := crypto.Keccak256([]byte(message + c.apiSecret))
	return hexutil.Encode(hash)
}
