package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-activation-sdk/cnwactivation"
	"github.com/CloudNativeWorks/cnw-activation-sdk/cnwactivation/persistence"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "cnw-activate",
	Short:         "Activate and inspect a CNW product license",
	Long:          `cnw-activate activates this machine against the licensing server and inspects the local activation.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cnw-activate %s (sdk %s)\n", Version, cnwactivation.ClientVersion)
		if GitCommit != "unknown" {
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file with CNW_ACTIVATION_* settings")
	rootCmd.AddCommand(versionCmd)
	addLicenseCommands(rootCmd)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the wiring one command runs against.
type app struct {
	cfg     *Config
	logger  zerolog.Logger
	store   persistence.Provider
	manager *cnwactivation.Manager
	metrics *cnwactivation.Metrics
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, err
	}
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Logger.Level(level)

	var metrics *cnwactivation.Metrics
	if cfg.MetricsAddr != "" {
		metrics, err = cnwactivation.NewMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
	}

	store, err := persistence.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, persistence.OpenOptions{Passphrase: cfg.StorePassphrase})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	clientOpts := []cnwactivation.ClientOption{
		cnwactivation.WithTimeout(cfg.Timeout),
		cnwactivation.WithUserAgent("cnw-activate/" + Version),
	}
	if cfg.RateLimit > 0 {
		clientOpts = append(clientOpts, cnwactivation.WithRateLimit(cfg.RateLimit, 1))
	}

	m, err := cnwactivation.NewManager(cfg.ProductID, store,
		cnwactivation.WithTransport(cnwactivation.NewHTTPClient(cfg.ServerURL, clientOpts...)),
		cnwactivation.WithAppVersion(cfg.AppVersion),
		cnwactivation.WithLogger(logger),
		cnwactivation.WithMetrics(metrics),
	)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	if err := m.SetPublicKeyFile(cfg.PublicKeyFile); err != nil {
		m.Close()
		_ = store.Close(ctx)
		return nil, fmt.Errorf("%s: %w", cfg.PublicKeyFile, err)
	}

	return &app{cfg: cfg, logger: logger, store: store, manager: m, metrics: metrics}, nil
}

func (a *app) Close(ctx context.Context) {
	a.manager.Close()
	if err := a.store.Close(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close store")
	}
}

// serveMetrics exposes the default registry until ctx ends.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		a.logger.Info().Str("addr", a.cfg.MetricsAddr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}
