package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	httpapi "github.com/i474232898/weather-markets/internal/api/http"
	"github.com/i474232898/weather-markets/internal/attestation"
	"github.com/i474232898/weather-markets/internal/chain"
	"github.com/i474232898/weather-markets/internal/config"
	"github.com/i474232898/weather-markets/internal/health"
	"github.com/i474232898/weather-markets/internal/logging"
	"github.com/i474232898/weather-markets/internal/market"
	"github.com/i474232898/weather-markets/internal/scheduler"
	"github.com/i474232898/weather-markets/internal/settlement"
	"github.com/i474232898/weather-markets/internal/store"
	"github.com/i474232898/weather-markets/internal/weather/providers"
)

const (
	modeServe  = "serve"
	modeCreate = "create"
	modeSettle = "settle"
)

type app struct {
	cfg      *config.AppConfig
	logger   *logrus.Logger
	stack    *providers.Stack
	registry *market.Registry
	tracker  *health.Tracker
	contract *chain.Contract
	creator  *market.Creator
	settler  *settlement.Settler
	closers  []func()
}

func main() {
	mode := flag.String("mode", modeServe, "serve | create | settle")
	flag.Parse()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	logger.WithField("mode", *mode).Info("starting weather-markets")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, logger, *mode != modeServe)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialise")
	}
	defer a.close()

	switch *mode {
	case modeCreate:
		res, err := a.creator.Run(ctx)
		if err != nil {
			logger.WithError(err).Fatal("market creation failed")
		}
		logger.WithField("result", res).Info("market creation done")
	case modeSettle:
		res, err := a.settler.Run(ctx)
		if err != nil {
			logger.WithError(err).Fatal("settlement failed")
		}
		logger.WithField("result", res).Info("settlement done")
	case modeServe:
		if err := a.serve(ctx); err != nil {
			logger.WithError(err).Fatal("server failed")
		}
	default:
		logger.Fatalf("unknown mode %q", *mode)
	}
}

func build(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger, needChain bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var kv store.KV
	if cfg.StoreRedisURL != "" {
		rs, err := store.NewRedisStore(ctx, cfg.StoreRedisURL)
		if err != nil {
			return nil, err
		}
		kv = rs
		a.closers = append(a.closers, func() { _ = rs.Close() })
	} else {
		logger.Warn("STORE_REDIS_URL not set; rotation index and provider health are kept in memory")
		kv = store.NewMemoryStore(1000)
	}

	stack, err := providers.NewStack(ctx, cfg.Weather, httpClient, logger)
	if err != nil {
		return nil, err
	}
	a.stack = stack
	a.closers = append(a.closers, func() { _ = stack.Close() })

	a.registry, err = market.NewRegistry(cfg.Cities)
	if err != nil {
		return nil, err
	}
	if cfg.GeocoderAPIKey != "" {
		a.registry.WithGeocoder(market.NewKelvinsGeocoder(cfg.GeocoderAPIKey))
	}
	a.tracker = health.NewTracker(kv, logger)

	if err := cfg.RequireChain(); err != nil {
		if needChain {
			return nil, err
		}
		logger.WithError(err).Warn("contract not configured; market jobs are disabled")
		return a, nil
	}

	contract, client, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ContractAddress, cfg.Chain.PrivateKey, cfg.Chain.ReceiptTimeout, logger)
	if err != nil {
		return nil, err
	}
	a.contract = contract
	a.closers = append(a.closers, client.Close)
	logger.WithField("settler", contract.From().Hex()).Info("contract client ready")

	a.creator = market.NewCreator(stack.Provider, contract, kv, a.registry, market.CreatorOptions{
		DailyCount: cfg.Markets.DailyCount,
		Spacing:    cfg.Markets.Spacing,
		Currency:   market.ParseCurrency(cfg.Markets.Currency),
	}, logger)

	var resolver settlement.Resolver = settlement.NewDirectResolver(contract)
	if cfg.Settlement.Mode == "attestation" {
		oracle := attestation.New(httpClient, attestation.Options{
			BaseURL:      cfg.Attestation.URL,
			APIKey:       cfg.Attestation.APIKey,
			MaxAttempts:  cfg.Attestation.MaxAttempts,
			PollInterval: cfg.Attestation.PollInterval,
			PollTimeout:  cfg.Attestation.PollTimeout,
		}, logger)
		resolver = settlement.NewAttestationResolver(oracle, contract)
	}
	a.settler = settlement.NewSettler(contract, stack.Provider, a.registry, resolver, contract, a.tracker,
		settlement.Options{StaleAfter: cfg.Settlement.StaleAfter}, logger)
	return a, nil
}

func (a *app) serve(ctx context.Context) error {
	deps := httpapi.Deps{
		Providers: a.stack.Fallback,
		Health:    a.tracker,
		Registry:  a.registry,
	}

	if a.creator != nil {
		deps.Markets = a.settler
		deps.Creator = a.creator
		deps.Settler = a.settler

		sched := scheduler.New(a.logger,
			scheduler.Job{Name: modeCreate, Cron: a.cfg.Scheduler.CreateCron, Run: func(ctx context.Context) error {
				_, err := a.creator.Run(ctx)
				return err
			}},
			scheduler.Job{Name: modeSettle, Cron: a.cfg.Scheduler.SettleCron, Run: func(ctx context.Context) error {
				_, err := a.settler.Run(ctx)
				return err
			}},
		)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
	}

	server := httpapi.NewApp(a.logger)
	httpapi.RegisterRoutes(server, deps)

	go func() {
		if err := server.Listen(":" + a.cfg.Port); err != nil {
			a.logger.WithError(err).Error("fiber server stopped")
		}
	}()
	a.logger.WithField("port", a.cfg.Port).Info("admin api listening")

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.ShutdownWithContext(shutdownCtx)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
