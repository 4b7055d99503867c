package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/swingtrader/broker"
	alpacabroker "github.com/rustyeddy/swingtrader/broker/alpaca"
	"github.com/rustyeddy/swingtrader/broker/sim"
	"github.com/rustyeddy/swingtrader/config"
	"github.com/rustyeddy/swingtrader/detector"
	"github.com/rustyeddy/swingtrader/engine"
	"github.com/rustyeddy/swingtrader/ledger"
	"github.com/rustyeddy/swingtrader/market"
	alpacadata "github.com/rustyeddy/swingtrader/market/alpaca"
	"github.com/rustyeddy/swingtrader/market/rediscache"
)

// stack is everything a running engine needs, plus what must be closed.
type stack struct {
	cfg     *config.Config
	store   *ledger.SQLite
	market  market.Provider
	broker  broker.Broker
	engine  *engine.Engine
	closers []func() error
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func openLedger(cfg *config.Config, logger *zap.Logger) (*ledger.SQLite, error) {
	store, err := ledger.NewSQLite(cfg.Store.DBPath,
		ledger.WithLocation(cfg.StoreLocation()),
		ledger.WithLogger(logger.Named("ledger")),
	)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return store, nil
}

func buildStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stack, error) {
	secrets, err := config.LoadSecrets(envFile)
	if err != nil {
		return nil, err
	}

	s := &stack{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	s.store, err = openLedger(cfg, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.store.Close)

	switch cfg.Data.Source {
	case "csv":
		mem := market.NewMemory()
		if err := market.LoadDir(mem, cfg.Data.CSVDir, cfg.Watchlist); err != nil {
			return nil, err
		}
		s.market = mem
	default:
		if err := secrets.RequireAlpaca(); err != nil {
			return nil, fmt.Errorf("alpaca market data: %w", err)
		}
		s.market = alpacadata.New(secrets.AlpacaKey, secrets.AlpacaSecret,
			alpacadata.WithFeed(cfg.Data.Feed),
			alpacadata.WithLogger(logger.Named("marketdata")),
		)
	}

	if cfg.Data.RedisAddr != "" {
		rdb, err := rediscache.NewClient(ctx, rediscache.ClientConfig{
			Addr:     cfg.Data.RedisAddr,
			Password: secrets.RedisPassword,
			DB:       cfg.Data.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, rdb.Close)
		s.market = rediscache.New(s.market, rdb, cfg.PriceTTL(),
			rediscache.WithLogger(logger.Named("pricecache")))
	}

	switch cfg.Broker.Mode {
	case "alpaca":
		if err := secrets.RequireAlpaca(); err != nil {
			return nil, fmt.Errorf("alpaca broker: %w", err)
		}
		baseURL := secrets.AlpacaBaseURL
		if baseURL == "" {
			if baseURL, err = alpacabroker.BaseURL(cfg.Broker.Env); err != nil {
				return nil, err
			}
		}
		s.broker = alpacabroker.New(secrets.AlpacaKey, secrets.AlpacaSecret, baseURL,
			alpacabroker.WithLogger(logger.Named("broker")))
	default:
		paper := sim.NewEngine(cfg.Broker.PaperCash, s.market,
			sim.WithSlippage(cfg.Broker.SlippageBps),
			sim.WithLogger(logger.Named("broker")),
		)
		open, err := s.store.GetOpen(ctx)
		if err != nil {
			return nil, fmt.Errorf("restore paper holdings: %w", err)
		}
		for _, p := range open {
			paper.Restore(p.Symbol, p.RemainingQuantity, p.EntryPrice)
		}
		s.broker = paper
	}

	det, err := detector.NewPullback(cfg.Detector)
	if err != nil {
		return nil, err
	}

	s.engine = engine.New(cfg.Engine(), engine.Deps{
		Store:    s.store,
		Market:   s.market,
		Detector: det,
		Broker:   s.broker,
	}, logger)

	ok = true
	return s, nil
}
