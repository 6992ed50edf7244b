package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/martin/internal/bot"
	"github.com/web3guy0/martin/internal/clob"
	"github.com/web3guy0/martin/internal/config"
	"github.com/web3guy0/martin/internal/database"
	"github.com/web3guy0/martin/internal/execution"
	"github.com/web3guy0/martin/internal/gamma"
	"github.com/web3guy0/martin/internal/orchestrator"
	"github.com/web3guy0/martin/internal/snapshot"
	"github.com/web3guy0/martin/internal/ta"

	binanceapi "github.com/web3guy0/martin/internal/binance"
)

func main() {
	// ═══════════════════════════════════════════════════════════════════════════════
	// BOOTSTRAP
	// ═══════════════════════════════════════════════════════════════════════════════

	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Config load failed")
	}
	setupLogging(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Config invalid")
	}

	log.Info().Msg("═══════════════════════════════════════════════════════════════")
	log.Info().Msg("              MARTIN - HOURLY UP/DOWN TRADING ASSISTANT")
	log.Info().Msg("═══════════════════════════════════════════════════════════════")

	// ═══════════════════════════════════════════════════════════════════════════════
	// INITIALIZE COMPONENTS
	// ═══════════════════════════════════════════════════════════════════════════════

	// 1. Ledger
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Database open failed")
	}
	log.Info().Msg("✅ Ledger initialized")

	// 2. Candle snapshots
	binanceClient := binanceapi.NewClient(cfg.API.BinanceBaseURL)
	cache := snapshot.NewCache()
	worker := snapshot.NewWorker(binanceClient, cache, cfg.Trading.Assets,
		cfg.SnapshotPeriod(), cfg.Loop.WarmupSeconds)
	log.Info().Msg("✅ Snapshot worker initialized")

	// 3. Live price feed (backs the /status spot quotes)
	priceFeed := binanceapi.NewPriceFeed(cfg.API.BinanceWSURL, cfg.Trading.Assets)

	// 4. Market discovery
	catalog := gamma.NewClient(cfg.API.GammaBaseURL)
	log.Info().Msg("✅ Market discovery initialized")

	// 5. Order book + execution
	clobClient, err := clob.NewClient(cfg.API.CLOBBaseURL, clob.Credentials{
		EthPrivateKey: cfg.Execution.EthPrivateKey,
		APIKey:        cfg.Execution.APIKey,
		APISecret:     cfg.Execution.APISecret,
		Passphrase:    cfg.Execution.Passphrase,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("CLOB client failed")
	}

	var executor execution.Executor
	if cfg.Execution.Mode == "live" {
		executor = execution.NewLiveExecutor(clobClient)
	} else {
		executor = execution.NewPaperExecutor()
	}
	log.Info().Str("mode", cfg.Execution.Mode).Msg("✅ Execution layer initialized")

	// 6. Orchestrator; the notifier slot is filled below once telegram
	// is (maybe) up.
	orch := orchestrator.New(db, cfg, catalog, worker, ta.NewEngine(), clobClient, executor, nil)

	// 7. Telegram
	tgBot, err := bot.NewIfConfigured(cfg.Telegram, db, orch, priceFeed)
	switch {
	case err == bot.ErrNoToken:
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, running headless")
	case err != nil:
		log.Fatal().Err(err).Msg("Telegram init failed")
	default:
		orch.SetNotifier(tgBot)
		log.Info().Msg("✅ Telegram bot initialized")
	}

	log.Info().
		Strs("assets", cfg.Trading.Assets).
		Float64("price_cap", cfg.Trading.PriceCap).
		Float64("stake_usd", cfg.Trading.StakeUSD).
		Str("timezone", cfg.DayNight.Timezone).
		Int("day_start", cfg.DayNight.DayStartHour).
		Int("day_end", cfg.DayNight.DayEndHour).
		Msg("Config loaded")

	// ═══════════════════════════════════════════════════════════════════════════════
	// START
	// ═══════════════════════════════════════════════════════════════════════════════

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)
	priceFeed.Start()
	if tgBot != nil {
		tgBot.Start(ctx)
	}
	go orch.Run(ctx)

	log.Info().Msg("🚀 All systems running...")

	// ═══════════════════════════════════════════════════════════════════════════════
	// GRACEFUL SHUTDOWN
	// ═══════════════════════════════════════════════════════════════════════════════

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("🛑 Shutting down...")
	orch.Stop()
	worker.Stop()
	priceFeed.Stop()
	if tgBot != nil {
		tgBot.Stop()
	}
	cancel()

	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("Database close failed")
	}
	log.Info().Msg("👋 Goodbye!")
}

func setupLogging(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
