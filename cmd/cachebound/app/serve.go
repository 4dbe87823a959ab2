package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"

	"github.com/cachebound/cachebound/internal/api"
	"github.com/cachebound/cachebound/internal/config"
	"github.com/cachebound/cachebound/internal/refresher"
	"github.com/cachebound/cachebound/internal/service"
	"github.com/cachebound/cachebound/internal/telemetry"
	internalversions "github.com/cachebound/cachebound/internal/versions"
	"github.com/cachebound/cachebound/pkg/remote"
	"github.com/cachebound/cachebound/pkg/store"
	"github.com/cachebound/cachebound/pkg/store/sqlite"
	"github.com/cachebound/cachebound/pkg/syncer"
	"github.com/cachebound/cachebound/pkg/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cachebound server",
	Long: `Start the cachebound server to serve cached remote resources.

The server requires a configuration file (--config) that specifies:
- The local store backend (memory or sqlite)
- The synchronized resource classes, their upstream endpoints and
  freshness policies
- All other operational settings

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second // Enough for headers and small requests
	serverIdleTimeout      = 60 * time.Second // Keep connections alive for reuse
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		slog.Error("Failed to bind address flag", "error", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		slog.Error("Failed to bind config flag", "error", err)
		os.Exit(1)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	address := viper.GetString("address")
	configPath := viper.GetString("config")

	slog.Info("Starting cachebound server", "address", address)

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"store", cfg.Store.Backend,
		"resources", len(cfg.Resources))

	telCfg := cfg.Telemetry
	if telCfg != nil && telCfg.ServiceVersion == "" {
		telCfg.ServiceVersion = versions.GetVersionInfo().Version
	}
	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(telCfg))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	syncMetrics, err := telemetry.NewSyncMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}
	httpMetrics, err := telemetry.NewHTTPMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	st, closeStore, err := buildStore(&cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	resources := make([]service.Resource, 0, len(cfg.Resources))
	var jobs []refresher.Job
	for i := range cfg.Resources {
		rc := &cfg.Resources[i]
		res, err := buildResource(rc, st, syncMetrics)
		if err != nil {
			closeStore()
			return fmt.Errorf("failed to set up resource %q: %w", rc.Name, err)
		}
		resources = append(resources, res)

		if rc.Refresh != nil {
			jobs = append(jobs, refresher.Job{
				Resource: rc.Name,
				Interval: rc.Refresh.IntervalDuration(),
				Keys:     rc.Refresh.Keys,
			})
		}
	}

	svc, err := service.New(resources)
	if err != nil {
		closeStore()
		return fmt.Errorf("failed to create service: %w", err)
	}

	router := api.NewServer(svc,
		api.WithMiddlewares(
			httpMetrics.Middleware,
			api.LoggingMiddleware,
		),
		api.WithMetricsHandler(tel.MetricsHandler()),
	)

	// WriteTimeout stays zero: the events endpoint streams indefinitely.
	server := &http.Server{
		Addr:        address,
		Handler:     router,
		ReadTimeout: serverReadTimeout,
		IdleTimeout: serverIdleTimeout,
	}

	ref := refresher.New(svc, jobs)
	refCtx, refCancel := context.WithCancel(context.Background())
	defer refCancel()
	go func() {
		if err := ref.Start(refCtx); err != nil {
			slog.Error("Background refresher failed", "error", err)
		}
	}()

	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	if err := ref.Stop(); err != nil {
		slog.Error("Failed to stop background refresher", "error", err)
	}
	for i := range resources {
		resources[i].Coordinator.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down telemetry", "error", err)
	}
	closeStore()

	slog.Info("Server shutdown complete")
	return nil
}

// buildStore opens the configured store backend. The returned closer is
// safe to call once the server no longer accepts requests.
func buildStore(cfg *config.StoreConfig) (syncer.Store[string, json.RawMessage], func(), error) {
	switch cfg.Backend {
	case config.StoreBackendSQLite:
		s, err := sqlite.Open[json.RawMessage](cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Error("Failed to close store", "error", err)
			}
		}, nil
	case config.StoreBackendMemory:
		m := store.NewMemory[string, json.RawMessage]()
		return m, m.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

// buildResource wires one configured resource class: upstream client,
// payload handling, freshness policy, and coordinator.
func buildResource(
	rc *config.ResourceConfig,
	st syncer.Store[string, json.RawMessage],
	metrics *telemetry.SyncMetrics,
) (service.Resource, error) {
	var clientOpts []remote.ClientOption
	if timeout := rc.TimeoutDuration(); timeout > 0 {
		clientOpts = append(clientOpts, remote.WithTimeout(timeout))
	}

	sourceOpts := []remote.HTTPOption[json.RawMessage]{
		remote.WithClient[json.RawMessage](remote.NewDefaultClient(clientOpts...)),
	}
	if rc.ExtractPath != "" {
		sourceOpts = append(sourceOpts, remote.WithExtractPath[json.RawMessage](rc.ExtractPath))
	}
	if rc.SchemaFile != "" {
		validator, err := remote.NewSchemaValidator(rc.SchemaFile)
		if err != nil {
			return service.Resource{}, err
		}
		sourceOpts = append(sourceOpts, remote.WithValidator[json.RawMessage](validator))
	}

	source, err := remote.NewHTTPSource[json.RawMessage](rc.Endpoint, sourceOpts...)
	if err != nil {
		return service.Resource{}, err
	}

	policy, err := buildPolicy(&rc.Policy)
	if err != nil {
		return service.Resource{}, err
	}

	// Each resource gets its own key namespace within the shared store.
	namespaced := store.NewNamespaced(st, rc.Name)

	coordOpts := []syncer.Option[string, json.RawMessage]{
		syncer.WithMetrics[string, json.RawMessage](metrics.ForResource(rc.Name)),
		syncer.WithKeyFunc[string, json.RawMessage](func(k string) string {
			return rc.Name + "/" + k
		}),
	}
	if rc.VersionPath != "" {
		coordOpts = append(coordOpts,
			syncer.WithAccept[string, json.RawMessage](versionGate(rc.VersionPath)))
	}

	coord, err := syncer.New(namespaced, source, policy, coordOpts...)
	if err != nil {
		return service.Resource{}, err
	}

	return service.Resource{
		Name:        rc.Name,
		Policy:      rc.Policy.Mode,
		Endpoint:    rc.Endpoint,
		Coordinator: coord,
	}, nil
}

// buildPolicy maps the configured policy mode to a freshness policy.
func buildPolicy(pc *config.PolicyConfig) (syncer.Policy[json.RawMessage], error) {
	switch pc.Mode {
	case config.PolicyAbsent:
		return syncer.FetchIfAbsent[json.RawMessage](), nil
	case config.PolicyStale:
		return syncer.FetchIfStale[json.RawMessage](pc.TTLDuration())
	case config.PolicyAlways:
		return syncer.AlwaysFetch[json.RawMessage](), nil
	default:
		return nil, fmt.Errorf("unsupported policy mode %q", pc.Mode)
	}
}

// versionGate refuses to replace a cached payload with one whose version
// field is not newer. A cached payload without a version is always
// replaced; a fetched payload without a version never replaces one that
// has it.
func versionGate(path string) syncer.AcceptFunc[json.RawMessage] {
	return func(cached *syncer.Record[json.RawMessage], fetched syncer.Record[json.RawMessage]) bool {
		if cached == nil {
			return true
		}
		oldVersion := gjson.GetBytes(cached.Value, path).String()
		if oldVersion == "" {
			return true
		}
		newVersion := gjson.GetBytes(fetched.Value, path).String()
		if newVersion == "" {
			return false
		}
		return internalversions.IsNewerVersion(newVersion, oldVersion)
	}
}
