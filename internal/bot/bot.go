// Package bot is the telegram control surface: approval cards with inline
// OK/SKIP buttons, status and report commands, and runtime toggles. Only
// configured admins are listened to.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/martin/internal/config"
	"github.com/web3guy0/martin/internal/database"
	"github.com/web3guy0/martin/internal/domain"
	"github.com/web3guy0/martin/internal/orchestrator"
	"github.com/web3guy0/martin/internal/timemode"
)

// Controller is the slice of the orchestrator the bot drives.
type Controller interface {
	ConfirmTrade(tradeID int64, approve bool, userID int64) error
	Pause() error
	Resume() error
	SetDayOnly(enabled bool) error
	SetNightOnly(enabled bool) error
	ApplySetting(key, value string) error
	EffectiveConfig() *config.Config
}

// PriceSource serves the last spot price per asset for the status card.
// Satisfied by *binance.PriceFeed; may be nil when the feed is off.
type PriceSource interface {
	LastPrice(asset string) decimal.Decimal
}

type Bot struct {
	api      *tgbotapi.BotAPI
	chatID   int64
	adminIDs map[int64]bool
	db       *database.Database
	ctrl     Controller
	prices   PriceSource

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(cfg config.TelegramConfig, db *database.Database, ctrl Controller, prices PriceSource) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}

	admins := make(map[int64]bool, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = true
	}

	log.Info().Str("username", api.Self.UserName).Msg("💬 Telegram bot connected")
	return &Bot{
		api:      api,
		chatID:   cfg.ChatID,
		adminIDs: admins,
		db:       db,
		ctrl:     ctrl,
		prices:   prices,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	go func() {
		defer close(b.doneCh)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				b.handleUpdate(update)
			case <-b.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
	close(b.stopCh)
	<-b.doneCh
	log.Info().Msg("💬 Telegram bot stopped")
}

func (b *Bot) isAdmin(userID int64) bool {
	return len(b.adminIDs) == 0 || b.adminIDs[userID]
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(update.Message)
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	userID := cb.From.ID
	if !b.isAdmin(userID) {
		log.Warn().Int64("user_id", userID).Msg("Ignoring callback from non-admin")
		return
	}

	tradeID, approve, err := parseCallback(cb.Data)
	if err != nil {
		log.Warn().Err(err).Str("data", cb.Data).Msg("Bad callback payload")
		return
	}

	ack := "Approved ✅"
	if !approve {
		ack = "Skipped 👌"
	}
	if err := b.ctrl.ConfirmTrade(tradeID, approve, userID); err != nil {
		ack = err.Error()
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, ack)); err != nil {
		log.Warn().Err(err).Msg("Callback ack failed")
	}
	// Strip the buttons so a decided card cannot be pressed twice.
	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := b.api.Request(edit); err != nil {
		log.Debug().Err(err).Msg("Button removal failed")
	}
}

// parseCallback decodes the "ok:<id>" / "skip:<id>" button payloads.
func parseCallback(data string) (tradeID int64, approve bool, err error) {
	action, idStr, found := strings.Cut(data, ":")
	if !found {
		return 0, false, fmt.Errorf("malformed callback %q", data)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad trade id in %q", data)
	}
	switch action {
	case "ok":
		return id, true, nil
	case "skip":
		return id, false, nil
	default:
		return 0, false, fmt.Errorf("unknown action %q", action)
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	if !b.isAdmin(msg.From.ID) {
		log.Warn().Int64("user_id", msg.From.ID).Str("command", msg.Command()).Msg("Ignoring command from non-admin")
		return
	}

	var reply string
	var err error
	switch msg.Command() {
	case "status":
		reply, err = b.statusText()
	case "stats":
		reply, err = b.statsText()
	case "report":
		reply, err = b.reportText()
	case "trades":
		reply, err = b.tradesText()
	case "pause":
		err = b.ctrl.Pause()
		reply = "⏸ Paused. In-flight trades are frozen."
	case "resume":
		err = b.ctrl.Resume()
		reply = "▶️ Resumed."
	case "dayonly":
		err = b.toggle(msg.CommandArguments(), b.ctrl.SetDayOnly)
		reply = "Day-only mode updated."
	case "nightonly":
		err = b.toggle(msg.CommandArguments(), b.ctrl.SetNightOnly)
		reply = "Night-only mode updated."
	case "nightmode":
		err = b.ctrl.ApplySetting("day_night.night_session_mode", strings.TrimSpace(msg.CommandArguments()))
		reply = "Night session mode updated."
	case "set":
		reply, err = b.handleSet(msg.CommandArguments())
	default:
		reply = "Commands: /status /stats /report /trades /pause /resume /dayonly /nightonly /nightmode /set"
	}

	if err != nil {
		reply = "⚠️ " + err.Error()
	}
	b.send(msg.Chat.ID, reply)
}

func (b *Bot) toggle(arg string, set func(bool) error) error {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on", "true", "1", "":
		return set(true)
	case "off", "false", "0":
		return set(false)
	default:
		return fmt.Errorf("use on or off")
	}
}

func (b *Bot) handleSet(args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", fmt.Errorf("usage: /set <key> <value>")
	}
	if err := b.ctrl.ApplySetting(fields[0], fields[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ %s = %s", fields[0], fields[1]), nil
}

// Notifier implementation, called from the orchestrator.

func (b *Bot) ApprovalRequest(t *domain.Trade, w *domain.MarketWindow, sig *domain.Signal, threshold float64, deadline int64) {
	cfg := b.ctrl.EffectiveConfig()
	resolver := timemode.New(cfg.Location(), cfg.DayNight.DayStartHour, cfg.DayNight.DayEndHour)

	text := approvalText(t, w, sig, threshold, resolver.LocalTime(deadline))
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ OK", fmt.Sprintf("ok:%d", t.ID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ SKIP", fmt.Sprintf("skip:%d", t.ID)),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("Approval card send failed")
	}
}

func (b *Bot) TradeEvent(text string) {
	b.send(b.chatID, text)
}

func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Telegram send failed")
	}
}

// Command bodies.

func (b *Bot) statusText() (string, error) {
	st, err := b.db.GetStats()
	if err != nil {
		return "", err
	}
	cfg := b.ctrl.EffectiveConfig()
	resolver := timemode.New(cfg.Location(), cfg.DayNight.DayStartHour, cfg.DayNight.DayEndHour)
	now := time.Now().Unix()

	active, err := b.db.GetActiveTrades()
	if err != nil {
		return "", err
	}

	var spot []assetPrice
	if b.prices != nil {
		for _, asset := range cfg.Trading.Assets {
			spot = append(spot, assetPrice{Asset: asset, Price: b.prices.LastPrice(asset)})
		}
	}
	return statusText(st, string(resolver.Mode(now)), cfg.Execution.Mode, len(active), spot), nil
}

func (b *Bot) statsText() (string, error) {
	st, err := b.db.GetStats()
	if err != nil {
		return "", err
	}
	return statsText(st), nil
}

func (b *Bot) reportText() (string, error) {
	trades, err := b.db.GetSettledSince(time.Now().AddDate(0, 0, -1))
	if err != nil {
		return "", err
	}
	return reportText(trades), nil
}

func (b *Bot) tradesText() (string, error) {
	trades, err := b.db.GetRecentTrades(10)
	if err != nil {
		return "", err
	}
	return tradesText(trades), nil
}

// ErrNoToken marks a missing TELEGRAM_BOT_TOKEN; the caller runs without
// the bot in that case.
var ErrNoToken = fmt.Errorf("telegram token not configured")

// NewIfConfigured returns (nil, ErrNoToken) when no token is set.
func NewIfConfigured(cfg config.TelegramConfig, db *database.Database, ctrl Controller, prices PriceSource) (*Bot, error) {
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	return New(cfg, db, ctrl, prices)
}

var _ orchestrator.Notifier = (*Bot)(nil)
