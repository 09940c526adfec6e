package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcusbell/bookcat/browser"
	"github.com/marcusbell/bookcat/config"
	"github.com/marcusbell/bookcat/crawl"
	"github.com/marcusbell/bookcat/queue"
	"github.com/marcusbell/bookcat/refresh"
	"github.com/marcusbell/bookcat/server"
	"github.com/marcusbell/bookcat/store"
)

func main() {
	defaultCfg := config.DefaultConfig()
	baseURLDefault := defaultCfg.BaseURL
	if value, ok := config.EnvString("BOOKCAT_BASE_URL"); ok {
		baseURLDefault = value
	}
	dataDirDefault := defaultCfg.DataDir
	if value, ok := config.EnvString("BOOKCAT_DATA_DIR"); ok {
		dataDirDefault = value
	}
	listenDefault := defaultCfg.ListenAddr
	if value, ok := config.EnvString("BOOKCAT_LISTEN_ADDR"); ok {
		listenDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("BOOKCAT_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	visitsDefault := defaultCfg.MaxPageVisits
	if value, ok, err := config.EnvInt("BOOKCAT_MAX_VISITS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid BOOKCAT_MAX_VISITS: %v\n", err)
		os.Exit(1)
	} else if ok {
		visitsDefault = value
	}

	configPath := flag.String("config", "", "Path to a YAML config file")
	baseURL := flag.String("base-url", baseURLDefault, "Site root to crawl")
	dataDir := flag.String("data-dir", dataDirDefault, "Directory for the embedded catalog database")
	listenAddr := flag.String("listen-addr", listenDefault, "HTTP API listen address")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	maxVisits := flag.Int("max-visits", visitsDefault, "Maximum pages visited per crawl run")
	headless := flag.Bool("headless", defaultCfg.Headless, "Run the browser headless")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			slog.Error("loading config file", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Environment values were folded into the flag defaults above, so an
	// untouched flag still carries the env override; only flags left at
	// the built-in default defer to the config file.
	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	if setFlags["base-url"] || baseURLDefault != defaultCfg.BaseURL {
		cfg.BaseURL = *baseURL
	}
	if setFlags["data-dir"] || dataDirDefault != defaultCfg.DataDir {
		cfg.DataDir = *dataDir
	}
	if setFlags["listen-addr"] || listenDefault != defaultCfg.ListenAddr {
		cfg.ListenAddr = *listenAddr
	}
	if setFlags["metrics-addr"] || metricsDefault != defaultCfg.MetricsAddr {
		cfg.MetricsAddr = *metricsAddr
	}
	if setFlags["max-visits"] || visitsDefault != defaultCfg.MaxPageVisits {
		cfg.MaxPageVisits = *maxVisits
	}
	if setFlags["headless"] {
		cfg.Headless = *headless
	}
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting catalog service",
		slog.String("base_url", cfg.BaseURL),
		slog.String("listen_addr", cfg.ListenAddr),
		slog.String("data_dir", cfg.DataDir),
	)

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		slog.Error("opening store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("close store", slog.Any("error", err))
		}
	}()

	metrics := crawl.NewMetrics()
	chrome := browser.NewChrome(browser.Options{
		UserAgent:  cfg.UserAgent,
		Headless:   cfg.Headless,
		RenderWait: cfg.RenderWait,
	})
	defer chrome.Close()

	pipeline := crawl.NewPipeline(cfg, st, chrome, metrics)
	jobQueue := queue.New(pipeline, st, metrics, cfg.QueueSize)
	coordinator := refresh.NewCoordinator(st, jobQueue, metrics, cfg.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	jobQueue.Start(ctx)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	api := server.New(cfg, st, coordinator)
	apiServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Router(),
	}
	go func() {
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()
	slog.Info("api server listening", slog.String("addr", cfg.ListenAddr))

	<-ctx.Done()
	slog.Info("shutdown signal received, waiting for in-flight work to finish")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("api server shutdown failed", slog.Any("error", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}

	jobQueue.Close()
	slog.Info("shutdown complete")
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
