package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/intrinio/equities-feed-go/config"
	"github.com/intrinio/equities-feed-go/intrinio"
	"github.com/intrinio/equities-feed-go/logger"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "path to configuration file")
	symbolList := flag.String("symbols", "$lobby", "comma-separated channels to join; $lobby selects the firehose")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	if cfg.Metrics.CloudWatchEnabled {
		if config.IsProductionLike(env) {
			logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
		} else {
			log.WithField("environment", env).
				Warn("metrics.cloudwatch_enabled is set but APP_ENV is not production-like; skipping CloudWatch init")
		}
	}

	accessKey := os.Getenv("INTRINIO_API_KEY")
	if accessKey == "" {
		log.Error("INTRINIO_API_KEY is not set")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"provider":    cfg.Provider,
		"replay":      cfg.ReplayDate != "",
		"environment": env,
	}).Info("starting intrinio-feed-demo")

	onTrade := func(t intrinio.Trade) {
		log.WithComponent("demo").WithFields(logger.Fields{
			"symbol": t.Symbol,
			"price":  t.Price,
			"size":   t.Size,
		}).Info("trade")
	}
	onQuote := func(q intrinio.Quote) {
		log.WithComponent("demo").WithFields(logger.Fields{
			"symbol": q.Symbol,
			"type":   q.Type,
			"price":  q.Price,
		}).Debug("quote")
	}

	client, err := intrinio.New(accessKey, onTrade, onQuote, *cfg)
	if err != nil {
		log.WithError(err).Error("failed to start client")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ReplayDate != "" {
		runReplayDemo(ctx, client, accessKey, cfg)
		return
	}

	channels := strings.Split(*symbolList, ",")
	if err := client.Join(ctx, channels, cfg.TradesOnly); err != nil {
		log.WithError(err).Error("failed to join channels")
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
			if err := client.Stop(); err != nil {
				log.WithError(err).Warn("error stopping client")
			}
			log.Info("intrinio-feed-demo stopped")
			return
		case <-ticker.C:
			log.WithComponent("demo").LogMetric("demo", "total_msg_count", client.TotalMsgCount(), nil)
		}
	}
}

func runReplayDemo(ctx context.Context, client *intrinio.Client, accessKey string, cfg *config.Config) {
	log := logger.GetLogger()

	subsources := []intrinio.Subsource{intrinio.SubsourceIEX}
	if err := client.Join(ctx, []string{"$lobby"}, cfg.TradesOnly); err != nil {
		log.WithError(err).Error("failed to register replay subscription")
		os.Exit(1)
	}

	if err := client.RunReplay(ctx, accessKey, subsources, cfg.ReplayDate, cfg.ReplayAsIfLive); err != nil {
		log.WithError(err).Error("replay run failed")
		os.Exit(1)
	}

	log.Info("replay complete")
}
