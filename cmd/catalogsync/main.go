package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"catalog-sync/internal/config"
	"catalog-sync/internal/domain"
	"catalog-sync/internal/logger"
	"catalog-sync/internal/metrics"
	"catalog-sync/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	a := &app{}
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// app carries what every subcommand needs once the config is loaded.
type app struct {
	configPath  string
	metricsAddr string

	cfg     *config.Config
	log     *logger.Logger
	store   *store.Store
	partner *domain.Partner
	ops     *http.Server
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "catalogsync",
		Short:         "Mirror the course catalog from its upstream APIs into the local store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (default $CATALOG_CONFIG or catalog.yaml)")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address while running")

	root.AddCommand(newMigrateCmd(a), newIngestCmd(a), newPublishCmd(a))
	return root
}

// preRun loads config and opens the store for commands that touch them.
func (a *app) preRun(cmd *cobra.Command, _ []string) error {
	return a.setup(cmd.Context())
}

func (a *app) setup(ctx context.Context) error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	a.cfg = cfg

	log, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.log = log.With("partner", cfg.Partner.ShortCode)

	s, err := store.Open(cfg.Database, a.log)
	if err != nil {
		return err
	}
	a.store = s

	if err := s.Migrate(ctx); err != nil {
		return err
	}
	if err := s.Seed(ctx); err != nil {
		return err
	}
	partner, err := s.EnsurePartner(ctx, cfg.Partner)
	if err != nil {
		return err
	}
	a.partner = partner

	a.startOps()
	return nil
}

// startOps serves the ops router for the lifetime of the command.
func (a *app) startOps() {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	a.ops = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           metrics.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          a.log.StdLog(),
	}
	go func() {
		a.log.Info("serving metrics", "addr", a.cfg.Metrics.Addr)
		if err := a.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", "error", err)
		}
	}()
}

func (a *app) close() {
	if a.ops != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.ops.Shutdown(ctx)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("failed to close store", "error", err)
		}
	}
	if a.log != nil {
		a.log.Sync()
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "migrate",
		Short:   "Create or update the schema and seed reference data",
		Args:    cobra.NoArgs,
		PreRunE: a.preRun,
		RunE: func(*cobra.Command, []string) error {
			// setup already migrated and seeded.
			a.log.Info("store ready", "driver", a.cfg.Database.Driver, "partner_id", a.partner.ID)
			return nil
		},
	}
}
