package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/evanofslack/ddns-sync/internal/address"
	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/logger"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/evanofslack/ddns-sync/internal/provider"
	_ "github.com/evanofslack/ddns-sync/internal/provider/all"
	"github.com/evanofslack/ddns-sync/internal/reconcile"
	"github.com/evanofslack/ddns-sync/internal/state"
	"github.com/evanofslack/ddns-sync/internal/store"
)

var version = "dev"

func main() {
	confPath := pflag.StringP("conf", "c", "./ddns.yaml", "path to the configuration file")
	debug := pflag.BoolP("debug", "d", false, "enable debug logging")
	showVersion := pflag.BoolP("version", "v", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println("ddns-sync", version)
		return
	}

	cfg, err := config.Load(*confPath)
	if err != nil {
		slog.Error("Failed to load config", "path", *confPath, "error", err)
		os.Exit(1)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Env, *debug)
	slog.Info("Starting ddns-sync", "version", version, "providers", provider.Registered())

	metrics := metrics.New(true)

	journal, err := state.New(metrics)
	if err != nil {
		slog.Error("Failed to initialize sync journal", "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	var server *http.Server
	if cfg.Metrics.IsEnabled() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/status", state.Handler(journal))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		server = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: mux,
		}
		go func() {
			slog.Info("Starting metrics server", "address", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	public, err := publicResolver(cfg)
	if err != nil {
		slog.Error("Failed to initialize public resolver", "error", err)
		os.Exit(1)
	}
	local, err := localResolver(cfg)
	if err != nil {
		slog.Error("Failed to initialize local resolver", "error", err)
		os.Exit(1)
	}

	specs := make([]store.AccountSpec, 0, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		p, err := provider.New(account, metrics)
		if err != nil {
			slog.Error("Failed to initialize DNS provider", "provider", account.Provider, "error", err)
			os.Exit(1)
		}
		name := account.Provider
		if account.ID != "" {
			name += "/" + account.ID
		}
		specs = append(specs, store.AccountSpec{Name: name, Provider: p, Domains: account.Domains})
	}

	s, err := store.Build(ctx, specs, cfg.Timeout)
	if err != nil {
		slog.Info("Shutdown before records were checked", "error", err)
		return
	}
	for zone, count := range s.ZoneCounts() {
		metrics.SetManagedRecords(zone, count)
	}
	slog.Info("Active records ready", "count", s.Len())

	engine := reconcile.NewEngine(s, public, local, journal, metrics, cfg.Timeout)

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go runSyncLoop(ctx, wg, engine, metrics, cfg.SyncInterval)

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	if server != nil {
		serverShutdownCtx, cancelServer := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelServer()
		if err := server.Shutdown(serverShutdownCtx); err != nil {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	wg.Wait()
	slog.Info("Service shutdown complete")
}

func publicResolver(cfg *config.Config) (address.Resolver, error) {
	pub := cfg.Resolver.Public
	if pub.Static != "" {
		return address.Static(pub.Static)
	}
	switch pub.Method {
	case config.PublicMethodDNS:
		return address.DNSResolver(cfg.Timeout, pub.DNSServer, pub.DNSName), nil
	default:
		return address.WebResolver(cfg.Timeout, pub.URLs...)
	}
}

func localResolver(cfg *config.Config) (address.Resolver, error) {
	local := cfg.Resolver.Local
	if local.Static != "" {
		return address.Static(local.Static)
	}
	return address.LocalResolver(local.Interface), nil
}

// runSyncLoop runs a cycle right away, then sleeps interval between the end
// of one cycle and the start of the next.
func runSyncLoop(ctx context.Context, wg *sync.WaitGroup, engine reconcile.Engine, metrics *metrics.Metrics, interval time.Duration) {
	defer wg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			performSync(ctx, engine, metrics)
			timer.Reset(interval)
		case <-ctx.Done():
			slog.Info("Stopping sync loop")
			return
		}
	}
}

func performSync(ctx context.Context, engine reconcile.Engine, metrics *metrics.Metrics) {
	slog.Info("Starting sync operation")
	start := time.Now()

	results := engine.Reconcile(ctx)

	metrics.SetSyncDuration(time.Since(start))
	metrics.IncSyncCycle(results.Status())
	slog.Info("Sync completed",
		"status", results.Status(),
		"updated", len(results.Updated),
		"failed", len(results.Failures))
}
