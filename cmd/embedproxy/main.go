package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"embedproxy/internal/audit"
	_ "embedproxy/internal/audit/postgres"
	_ "embedproxy/internal/audit/sqlite"
	"embedproxy/internal/config"
	"embedproxy/internal/logging"
	"embedproxy/internal/metrics"
	"embedproxy/internal/metrics/datadog"
	"embedproxy/internal/proxy"
)

func main() {
	addrFlag := flag.String("addr", "", "listen address, e.g. :3001 (overrides config)")
	configFlag := flag.String("config", "", "config file (yaml, toml or json); defaults to $EMBEDPROXY_CONFIG")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("embedproxy stopped")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	var backend metrics.Backend = metrics.Nop{}
	if cfg.Metrics.Datadog {
		dd, err := datadog.NewBackend(context.Background(), datadog.Options{
			Tags:       datadog.ParseTagsCSV(cfg.Metrics.Tags),
			FlushEvery: cfg.Metrics.FlushEvery,
		})
		if err != nil {
			return fmt.Errorf("datadog: %w", err)
		}
		defer func() {
			if err := dd.Close(); err != nil {
				logger.Warn().Err(err).Msg("final metrics flush failed")
			}
		}()
		backend = dd
	}

	openCtx, cancelOpen := context.WithTimeout(context.Background(), 10*time.Second)
	sink, err := audit.Open(openCtx, audit.Config{Kind: cfg.Audit.Kind, DSN: cfg.Audit.DSN})
	cancelOpen()
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	defer func() { _ = sink.Close() }()

	opts := proxy.UpstreamOptions{
		Timeout:        cfg.Upstream.Timeout,
		MaxBodyBytes:   cfg.Upstream.MaxBodyBytes,
		UserAgent:      cfg.Upstream.UserAgent,
		Accept:         cfg.Upstream.Accept,
		AcceptLanguage: cfg.Upstream.AcceptLanguage,
		Referer:        cfg.Upstream.Referer,
	}
	browser := proxy.NewBrowserFetcher(logger, opts.MaxBodyBytes)
	defer browser.Close()
	fetchers := []proxy.Fetcher{proxy.NewHTTPFetcher(opts.MaxBodyBytes), browser}
	if tf, err := proxy.NewTLSFetcher(opts.Timeout, opts.MaxBodyBytes); err != nil {
		if cfg.Upstream.Mode == config.ModeTLS {
			return err
		}
		logger.Warn().Err(err).Msg("tls fetch mode unavailable")
	} else {
		fetchers = append(fetchers, tf)
	}

	var limiter *rate.Limiter
	if cfg.Limits.RPS > 0 {
		burst := cfg.Limits.Burst
		if burst <= 0 {
			burst = int(cfg.Limits.RPS) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Limits.RPS), burst)
	}

	srvCfg := proxy.DefaultConfig()
	srvCfg.Logger = logger
	srvCfg.Providers = proxy.DefaultRegistry(cfg.Providers.VidsrcTo.BaseURL, cfg.Providers.VidsrcMe.BaseURL)
	srvCfg.Upstream = opts
	srvCfg.Mode = cfg.Upstream.Mode
	srvCfg.Fetchers = fetchers
	srvCfg.SitesDir = cfg.Upstream.SitesDir
	srvCfg.Metrics = backend
	srvCfg.Audit = sink
	srvCfg.Limiter = limiter
	srvCfg.Debug = cfg.Server.Debug
	handler := proxy.New(srvCfg)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler,
		// conservative timeouts against slowloris and leaked connections
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Upstream.Timeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}
	logger.Info().
		Str("addr", ln.Addr().String()).
		Str("mode", cfg.Upstream.Mode).
		Strs("endpoints", proxy.Endpoints).
		Msg("embedproxy listening")

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				handler.ReloadSites()
				continue
			}
			logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		}
	}
}
