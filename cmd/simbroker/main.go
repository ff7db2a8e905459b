package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simbroker/internal/broker"
	"simbroker/internal/config"
	"simbroker/internal/feed"
	"simbroker/internal/logger"
	"simbroker/internal/metrics"
	"simbroker/internal/report"

	"github.com/sirupsen/logrus"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	log.Info("Simulated brokerage starting.")

	if cfg.Runtime.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.Runtime.MetricsAddr); err != nil {
				log.WithError(err).Error("Metrics endpoint stopped.")
			}
		}()
	}

	b, err := broker.New(broker.Options{
		AccountID:     cfg.Account.ID,
		Currency:      cfg.Account.Currency,
		InitBalance:   cfg.Account.InitBalance,
		WorkerQueue:   cfg.Broker.WorkerQueueSize,
		EventQueue:    cfg.Broker.EventQueueSize,
		ShutdownGrace: time.Duration(cfg.Broker.ShutdownGraceSecs) * time.Second,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to start the brokerage.")
	}
	for _, symbol := range cfg.Feed.Symbols {
		b.Subscribe(symbol)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := feed.New(cfg.Feed.WSUrl, cfg.Feed.Token, cfg.Feed.ChanSize, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create the quote feed.")
	}
	if err := src.Connect(ctx); err != nil {
		log.WithError(err).Fatal("Failed to connect the quote feed.")
	}
	if err := src.Subscribe(ctx, cfg.Feed.Symbols); err != nil {
		log.WithError(err).Fatal("Failed to subscribe to quotes.")
	}

	go func() {
		for q := range src.Quotes() {
			b.PushQuote(q)
		}
	}()
	go consumeEvents(b, log)

	<-sigCh

	cancel()
	src.Close()
	if err := b.Close(); err != nil {
		log.WithError(err).Warn("Brokerage did not drain cleanly.")
	}

	stats := report.Compute(cfg.Account.InitBalance, b.TradeLog(), b.VolumeMultiples())
	log.WithFields(logrus.Fields{
		"balance":           stats.Balance,
		"ror":               stats.ROR,
		"annual_yield":      stats.AnnualYield,
		"max_drawdown":      stats.MaxDrawdown,
		"sharpe_ratio":      stats.SharpeRatio,
		"winning_rate":      stats.WinningRate,
		"profit_loss_ratio": stats.ProfitLossRatio,
		"trading_days":      stats.TradingDays,
		"trade_count":       stats.TradeCount,
	}).Info("Session report.")

	log.Info("Simulated brokerage stopped.")
}

func consumeEvents(b *broker.Broker, log *logger.Logger) {
	for ev := range b.Events() {
		switch ev.Type {
		case broker.EventTypeTrade:
			log.WithFields(logrus.Fields{
				"symbol":    ev.Trade.Symbol,
				"direction": ev.Trade.Direction,
				"offset":    ev.Trade.Offset,
				"price":     ev.Trade.Price,
				"volume":    ev.Trade.Volume,
			}).Info("Trade.")
		case broker.EventTypeOrder:
			log.WithFields(logrus.Fields{
				"order_id": ev.Order.ID,
				"status":   ev.Order.Status,
				"last_msg": ev.Order.LastMsg,
			}).Debug("Order update.")
		default:
		}
	}
}
