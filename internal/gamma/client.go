// Package gamma discovers hourly up/down markets on the Polymarket Gamma
// API. Gamma returns events with nested markets; filtering happens at the
// market level (title/question matching asset + an "up or down" phrase).
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/martin/internal/domain"
)

var upOrDownRe = regexp.MustCompile(`(?i)(up\s+or\s+down|up/down|updown)`)

var assetNames = map[string]string{
	"BTC": "Bitcoin",
	"ETH": "Ethereum",
	"SOL": "Solana",
}

type Client struct {
	http *resty.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetRetryCount(3).
			SetRetryWaitTime(time.Second).
			SetRetryMaxWaitTime(10 * time.Second).
			SetHeader("Accept", "application/json"),
	}
}

// rawMarket is the subset of Gamma's market object the discovery needs.
// Outcomes and clobTokenIds may arrive as JSON-encoded strings.
type rawMarket struct {
	ID            string          `json:"id"`
	Slug          string          `json:"slug"`
	Title         string          `json:"title"`
	Question      string          `json:"question"`
	ConditionID   string          `json:"conditionId"`
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate"`
	Outcome       string          `json:"outcome"`
	Outcomes      json.RawMessage `json:"outcomes"`
	ClobTokenIDs  json.RawMessage `json:"clobTokenIds"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	Closed        bool            `json:"closed"`

	eventTitle string
	eventStart string
	eventEnd   string
}

type searchResponse struct {
	Events []struct {
		Title     string      `json:"title"`
		StartDate string      `json:"startDate"`
		EndDate   string      `json:"endDate"`
		Markets   []rawMarket `json:"markets"`
	} `json:"events"`
	Markets []rawMarket `json:"markets"`
}

// DiscoverHourlyWindows returns currently-open hourly windows for the
// given assets. Windows whose end has already passed are dropped.
func (c *Client) DiscoverHourlyWindows(ctx context.Context, assets []string, now int64) ([]domain.MarketWindow, error) {
	var windows []domain.MarketWindow
	seen := make(map[string]bool)

	for _, asset := range assets {
		markets, err := c.searchAsset(ctx, asset)
		if err != nil {
			log.Warn().Err(err).Str("asset", asset).Msg("Gamma search failed")
			continue
		}

		for _, m := range markets {
			w, ok := c.parseMarket(m, strings.ToUpper(asset))
			if !ok || seen[w.Slug] {
				continue
			}
			if w.EndTS <= now {
				continue
			}
			seen[w.Slug] = true
			windows = append(windows, w)
			log.Info().
				Str("asset", w.Asset).
				Str("slug", w.Slug).
				Int64("end_ts", w.EndTS).
				Int64("time_remaining", w.EndTS-now).
				Msg("🔍 Window discovered")
		}
	}

	return windows, nil
}

func (c *Client) searchAsset(ctx context.Context, asset string) ([]rawMarket, error) {
	var result searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":                   asset + " up or down",
			"recurrence":          "hourly",
			"keep_closed_markets": "0",
			"limit_per_type":      "100",
			"sort":                "endDate",
			"ascending":           "false",
		}).
		SetResult(&result).
		Get("/public-search")
	if err != nil {
		return nil, fmt.Errorf("gamma search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("gamma search HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	markets := result.Markets
	for _, ev := range result.Events {
		for _, m := range ev.Markets {
			m.eventTitle = ev.Title
			m.eventStart = ev.StartDate
			m.eventEnd = ev.EndDate
			markets = append(markets, m)
		}
	}
	return markets, nil
}

func (c *Client) parseMarket(m rawMarket, asset string) (domain.MarketWindow, bool) {
	text := strings.ToUpper(m.Title + " " + m.Question + " " + m.eventTitle)
	if !strings.Contains(text, asset) && !strings.Contains(text, strings.ToUpper(assetNames[asset])) {
		return domain.MarketWindow{}, false
	}
	if !upOrDownRe.MatchString(text) {
		return domain.MarketWindow{}, false
	}

	slug := m.Slug
	if slug == "" {
		slug = m.ID
	}
	if slug == "" {
		return domain.MarketWindow{}, false
	}

	endTS := parseTimestamp(m.EndDate)
	if endTS == 0 {
		endTS = parseTimestamp(m.eventEnd)
	}
	startTS := parseTimestamp(m.StartDate)
	if startTS == 0 {
		startTS = parseTimestamp(m.eventStart)
	}
	if endTS == 0 {
		return domain.MarketWindow{}, false
	}

	upToken, downToken := extractTokenIDs(m)
	if upToken == "" || downToken == "" {
		log.Warn().Str("slug", slug).Msg("Could not determine token ids")
		return domain.MarketWindow{}, false
	}

	return domain.MarketWindow{
		Asset:       asset,
		Slug:        slug,
		ConditionID: m.ConditionID,
		UpTokenID:   upToken,
		DownTokenID: downToken,
		StartTS:     startTS,
		EndTS:       endTS,
	}, true
}

// extractTokenIDs pairs the outcomes array with clobTokenIds by index.
// Both arrive either as arrays or as JSON-encoded strings.
func extractTokenIDs(m rawMarket) (up, down string) {
	outcomes := decodeStringArray(m.Outcomes)
	tokenIDs := decodeStringArray(m.ClobTokenIDs)

	for i, outcome := range outcomes {
		if i >= len(tokenIDs) {
			break
		}
		o := strings.ToUpper(outcome)
		switch {
		case strings.Contains(o, "UP") || strings.Contains(o, "YES"):
			up = tokenIDs[i]
		case strings.Contains(o, "DOWN") || strings.Contains(o, "NO"):
			down = tokenIDs[i]
		}
	}
	return up, down
}

// decodeStringArray handles Gamma's habit of double-encoding arrays.
func decodeStringArray(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &arr); err == nil {
			return arr
		}
	}
	return nil
}

func parseTimestamp(value string) int64 {
	if value == "" {
		return 0
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		if n > 1e12 {
			return n / 1000
		}
		return n
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// ResolvedOutcome looks up a window's market by slug and reports the
// resolution. ok is false while the market is still unresolved.
func (c *Client) ResolvedOutcome(ctx context.Context, slug string) (domain.Direction, bool, error) {
	var markets []rawMarket
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("slug", slug).
		SetResult(&markets).
		Get("/markets")
	if err != nil {
		return "", false, fmt.Errorf("fetch market %s: %w", slug, err)
	}
	if resp.IsError() {
		return "", false, fmt.Errorf("fetch market %s: HTTP %d", slug, resp.StatusCode())
	}
	if len(markets) == 0 {
		return "", false, nil
	}
	m := markets[0]

	// Prefer the explicit outcome field when Gamma provides it.
	switch strings.ToUpper(m.Outcome) {
	case "UP":
		return domain.DirectionUp, true, nil
	case "DOWN":
		return domain.DirectionDown, true, nil
	}

	// Fall back to resolved outcome prices: the winning side settles at 1.
	if !m.Closed {
		return "", false, nil
	}
	prices := decodeStringArray(m.OutcomePrices)
	outcomes := decodeStringArray(m.Outcomes)
	for i, p := range prices {
		if i >= len(outcomes) {
			break
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0.5 {
			continue
		}
		o := strings.ToUpper(outcomes[i])
		if strings.Contains(o, "UP") || strings.Contains(o, "YES") {
			return domain.DirectionUp, true, nil
		}
		if strings.Contains(o, "DOWN") || strings.Contains(o, "NO") {
			return domain.DirectionDown, true, nil
		}
	}
	return "", false, nil
}
