package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/chainwatch/go-whale-monitor/business/domain/alert"
	"github.com/chainwatch/go-whale-monitor/business/domain/command"
	"github.com/chainwatch/go-whale-monitor/business/domain/dashboard"
	"github.com/chainwatch/go-whale-monitor/business/domain/monitor"
	"github.com/chainwatch/go-whale-monitor/business/domain/poll"
	"github.com/chainwatch/go-whale-monitor/business/domain/price"
	"github.com/chainwatch/go-whale-monitor/business/domain/subscriber"
	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/chainwatch/go-whale-monitor/external/coingecko"
	"github.com/chainwatch/go-whale-monitor/external/kafka"
	"github.com/chainwatch/go-whale-monitor/external/subscan"
	"github.com/chainwatch/go-whale-monitor/external/telegram"
	"github.com/chainwatch/go-whale-monitor/external/tvm"
	"github.com/chainwatch/go-whale-monitor/infrastructure/store/pebbledb"
	"github.com/chainwatch/go-whale-monitor/metrics"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "WHALE_MONITOR"

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] no env file found")
	}

	config := zap.NewProductionConfig()
	// this is just for sugar, to display a readable date instead of an epoch time
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("creating logger: %v", err)
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	var cfg struct {
		App struct {
			InternalStoreFolder string        `conf:"default:store"`
			ServerPort          int           `conf:"default:8000"`
			MetricsPort         int           `conf:"default:9999"`
			MetricsNamespace    string        `conf:"default:whale_monitor"`
			PollInterval        time.Duration `conf:"default:60s"`
			FetchTimeout        time.Duration `conf:"default:20s"`
			FetchLimit          int           `conf:"default:50"`
			DedupWindow         int           `conf:"default:1000"`
			AdmitUnpriced       bool          `conf:"default:false"`
		}
		Price struct {
			BaseUrl        string        `conf:"default:https://api.coingecko.com/api/v3"`
			CacheTtl       time.Duration `conf:"default:5m"`
			RequestTimeout time.Duration `conf:"default:10s"`
		}
		Telegram struct {
			BaseUrl     string        `conf:"default:https://api.telegram.org"`
			BotToken    string        `conf:"required,noprint"`
			ChatId      string        `conf:"required"`
			SendPause   time.Duration `conf:"default:500ms"`
			PollTimeout time.Duration `conf:"default:30s"`
			PollRetry   time.Duration `conf:"default:5s"`
		}
		Dashboard struct {
			Enabled  bool          `conf:"default:true"`
			Interval time.Duration `conf:"default:5m"`
			Limit    int           `conf:"default:5"`
		}
		Everscale struct {
			Enabled         bool          `conf:"default:true"`
			GraphqlUrl      string        `conf:"default:https://mainnet.evercloud.dev/graphql"`
			CoinId          string        `conf:"default:everscale"`
			ThresholdMode   string        `conf:"default:native"`
			Threshold       string        `conf:"default:100000"`
			SystemAddresses []string      `conf:"optional"`
			TokenSymbol     string        `conf:"default:EVER"`
			ExplorerTxUrl   string        `conf:"default:https://everscan.io/transactions/"`
			RecencyWindow   time.Duration `conf:"default:5m"`
			RequestTimeout  time.Duration `conf:"default:15s"`
		}
		Venom struct {
			Enabled         bool          `conf:"default:true"`
			GraphqlUrl      string        `conf:"default:https://gql.venom.foundation/graphql"`
			CoinId          string        `conf:"default:venom"`
			ThresholdMode   string        `conf:"default:native"`
			Threshold       string        `conf:"default:0"`
			SystemAddresses []string      `conf:"optional"`
			TokenSymbol     string        `conf:"default:VENOM"`
			ExplorerTxUrl   string        `conf:"default:https://venomscan.com/transactions/"`
			RecencyWindow   time.Duration `conf:"default:5m"`
			RequestTimeout  time.Duration `conf:"default:15s"`
		}
		Humanode struct {
			Enabled         bool          `conf:"default:true"`
			ApiUrl          string        `conf:"default:https://humanode.api.subscan.io"`
			CoinId          string        `conf:"default:humo"`
			ThresholdMode   string        `conf:"default:usd"`
			Threshold       string        `conf:"default:10000"`
			SystemAddresses []string      `conf:"optional"`
			TokenSymbol     string        `conf:"default:HMND"`
			ExplorerTxUrl   string        `conf:"optional"`
			FallbackPrice   string        `conf:"default:0.05"`
			RequestTimeout  time.Duration `conf:"default:15s"`
		}
		Kafka struct {
			Enabled          bool     `conf:"default:false"`
			BootstrapServers []string `conf:"default:localhost:9092"`
			AlertsTopic      string   `conf:"default:whale-monitor-alerts"`
		}
	}
	if err := conf.Parse(os.Args[1:], envPrefix, &cfg); err != nil {
		switch {
		case errors.Is(err, conf.ErrHelpWanted):
			usage, err := conf.Usage(envPrefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %v", err)
			}
			fmt.Println(usage)
			return nil
		case errors.Is(err, conf.ErrVersionWanted):
			version, err := conf.VersionString(envPrefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %v", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %v", err)
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %v", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	procMetrics := metrics.NewProcessingMetrics(cfg.App.MetricsNamespace)

	telegramClient := telegram.NewClient(cfg.Telegram.BaseUrl, cfg.Telegram.BotToken, cfg.Telegram.PollTimeout)

	subscriberStore, err := pebbledb.NewSubscriberStore(cfg.App.InternalStoreFolder)
	if err != nil {
		return fmt.Errorf("creating subscriber store: %v", err)
	}
	defer subscriberStore.Close()

	type network struct {
		name            string
		coinID          string
		threshold       entities.Threshold
		systemAddresses []string
		tokenSymbol     string
		explorerTxURL   string
		source          monitor.TxSource
		fallbackPrice   decimal.Decimal
	}

	var networks []network
	if cfg.Everscale.Enabled {
		threshold, err := parseThreshold(cfg.Everscale.ThresholdMode, cfg.Everscale.Threshold)
		if err != nil {
			return fmt.Errorf("parsing everscale threshold: %v", err)
		}
		networks = append(networks, network{
			name:            "Everscale",
			coinID:          cfg.Everscale.CoinId,
			threshold:       threshold,
			systemAddresses: cfg.Everscale.SystemAddresses,
			tokenSymbol:     cfg.Everscale.TokenSymbol,
			explorerTxURL:   cfg.Everscale.ExplorerTxUrl,
			source:          tvm.NewClient(cfg.Everscale.GraphqlUrl, cfg.Everscale.RecencyWindow, cfg.Everscale.RequestTimeout),
		})
	}
	if cfg.Venom.Enabled {
		threshold, err := parseThreshold(cfg.Venom.ThresholdMode, cfg.Venom.Threshold)
		if err != nil {
			return fmt.Errorf("parsing venom threshold: %v", err)
		}
		networks = append(networks, network{
			name:            "Venom",
			coinID:          cfg.Venom.CoinId,
			threshold:       threshold,
			systemAddresses: cfg.Venom.SystemAddresses,
			tokenSymbol:     cfg.Venom.TokenSymbol,
			explorerTxURL:   cfg.Venom.ExplorerTxUrl,
			source:          tvm.NewClient(cfg.Venom.GraphqlUrl, cfg.Venom.RecencyWindow, cfg.Venom.RequestTimeout),
		})
	}
	if cfg.Humanode.Enabled {
		threshold, err := parseThreshold(cfg.Humanode.ThresholdMode, cfg.Humanode.Threshold)
		if err != nil {
			return fmt.Errorf("parsing humanode threshold: %v", err)
		}
		fallback, err := decimal.NewFromString(cfg.Humanode.FallbackPrice)
		if err != nil {
			return fmt.Errorf("parsing humanode fallback price: %v", err)
		}
		networks = append(networks, network{
			name:            "Humanode",
			coinID:          cfg.Humanode.CoinId,
			threshold:       threshold,
			systemAddresses: cfg.Humanode.SystemAddresses,
			tokenSymbol:     cfg.Humanode.TokenSymbol,
			explorerTxURL:   cfg.Humanode.ExplorerTxUrl,
			source:          subscan.NewClient(cfg.Humanode.ApiUrl, cfg.Humanode.RequestTimeout),
			fallbackPrice:   fallback,
		})
	}
	if len(networks) == 0 {
		return errors.New("no networks enabled")
	}

	defaultThresholds := make(map[string]entities.Threshold, len(networks))
	for _, n := range networks {
		defaultThresholds[n.name] = n.threshold
	}

	registry, err := subscriber.NewRegistry(subscriberStore, defaultThresholds, sLogger)
	if err != nil {
		return fmt.Errorf("creating subscriber registry: %v", err)
	}
	// first start only: a /stop from the primary chat survives restarts
	if _, ok := registry.Subscriber(cfg.Telegram.ChatId); !ok {
		if err := registry.Enable(cfg.Telegram.ChatId); err != nil {
			return fmt.Errorf("enabling primary chat: %v", err)
		}
	}

	explorerTxURLs := make(map[string]string)
	tokenSymbols := make(map[string]string)
	var monitors []monitor.Monitor
	var priceCaches []*price.Cache
	for _, n := range networks {
		explorerTxURLs[n.name] = n.explorerTxURL
		tokenSymbols[n.name] = n.tokenSymbol

		priceSource := coingecko.NewClient(cfg.Price.BaseUrl, n.coinID, cfg.Price.RequestTimeout)
		priceCache := price.NewCache(n.name, priceSource, cfg.Price.CacheTtl, n.fallbackPrice, procMetrics, sLogger)
		priceCaches = append(priceCaches, priceCache)

		monitors = append(monitors, monitor.NewNetworkMonitor(
			n.name,
			n.source,
			priceCache,
			monitor.NewDedup(cfg.App.DedupWindow),
			registry,
			n.systemAddresses,
			cfg.App.FetchLimit,
			cfg.App.AdmitUnpriced,
			sLogger,
		))
	}
	defer func() {
		for _, c := range priceCaches {
			c.Stop()
		}
	}()

	formatter := alert.NewFormatter(explorerTxURLs, tokenSymbols)
	dispatcher := alert.NewDispatcher(telegramClient, formatter, cfg.Telegram.SendPause, procMetrics, sLogger)

	var publisher poll.Publisher
	if cfg.Kafka.Enabled {
		kcl, err := kgo.NewClient(
			kgo.DefaultProduceTopic(cfg.Kafka.AlertsTopic),
			kgo.SeedBrokers(cfg.Kafka.BootstrapServers...),
			kgo.ProducerBatchCompression(kgo.ZstdCompression()),
		)
		if err != nil {
			return errors.Wrap(err, "creating kafka client")
		}
		defer kcl.Close()
		publisher = kafka.NewClient(kcl)
	}

	poller := poll.NewPoller(monitors, dispatcher, registry, publisher,
		cfg.App.PollInterval, cfg.App.FetchTimeout, cfg.App.AdmitUnpriced, procMetrics, sLogger)

	reporter := dashboard.NewReporter(monitors, telegramClient, formatter, registry,
		cfg.Dashboard.Interval, cfg.Dashboard.Limit, sLogger)

	commandHandler := command.NewHandler(telegramClient, registry, telegramClient, reporter,
		cfg.Telegram.PollRetry, sLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	networkNames := make([]string, 0, len(monitors))
	for _, m := range monitors {
		networkNames = append(networkNames, m.NetworkName())
	}
	if err := telegramClient.SendMessage(ctx, cfg.Telegram.ChatId, formatter.Startup(networkNames, cfg.App.PollInterval)); err != nil {
		sLogger.Warnw("sending startup message failed", "error", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	pollErrors := make(chan error, 1)
	go func() {
		pollErrors <- poller.Start(ctx)
	}()

	commandErrors := make(chan error, 1)
	go func() {
		commandErrors <- commandHandler.Start(ctx)
	}()

	dashboardErrors := make(chan error, 1)
	if cfg.Dashboard.Enabled {
		go func() {
			dashboardErrors <- reporter.Start(ctx)
		}()
	}

	apiError := make(chan error, 1)
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/status", func(w http.ResponseWriter, r *http.Request) {
			subscribers := registry.EnabledSubscribers()
			response := map[string]any{
				"networks":           networkNames,
				"enabledSubscribers": len(subscribers),
			}
			data, err := json.Marshal(response)
			if err != nil {
				http.Error(w, fmt.Sprintf("marshalling response: %v", err), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if _, err := w.Write(data); err != nil {
				http.Error(w, fmt.Sprintf("writing response: %v", err), http.StatusInternalServerError)
			}
		})
		log.Printf("main: Starting server on port [%d].", cfg.App.ServerPort)
		apiError <- http.ListenAndServe(fmt.Sprintf(":%d", cfg.App.ServerPort), mux)
	}()

	metricsError := make(chan error, 1)
	go func() {
		log.Printf("main: Starting metrics server on port [%d].", cfg.App.MetricsPort)
		http.Handle("/metrics", promhttp.Handler())
		metricsError <- http.ListenAndServe(fmt.Sprintf(":%d", cfg.App.MetricsPort), nil)
	}()

	log.Println("main: Service started.")

	for {
		select {
		case <-shutdown:
			log.Println("main: Received shutdown signal, shutting down...")
			return nil
		case err := <-pollErrors:
			return fmt.Errorf("polling error: %v", err)
		case err := <-commandErrors:
			return fmt.Errorf("command handling error: %v", err)
		case err := <-dashboardErrors:
			return fmt.Errorf("dashboard error: %v", err)
		case err := <-apiError:
			return fmt.Errorf("server error: %v", err)
		case err := <-metricsError:
			return fmt.Errorf("metrics server error: %v", err)
		}
	}
}

func parseThreshold(mode, amount string) (entities.Threshold, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return entities.Threshold{}, fmt.Errorf("parsing amount %q: %v", amount, err)
	}
	if value.IsNegative() {
		return entities.Threshold{}, fmt.Errorf("amount %q must not be negative", amount)
	}

	switch entities.ThresholdMode(mode) {
	case entities.ThresholdNative, entities.ThresholdUsd:
		return entities.Threshold{Mode: entities.ThresholdMode(mode), Amount: value}, nil
	default:
		return entities.Threshold{}, fmt.Errorf("unknown threshold mode %q", mode)
	}
}
