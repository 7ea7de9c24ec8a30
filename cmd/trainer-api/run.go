package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	apiserver "github.com/kubev2v/edge-trainer/internal/api_server"
	"github.com/kubev2v/edge-trainer/internal/config"
	"github.com/kubev2v/edge-trainer/internal/store"
	"github.com/kubev2v/edge-trainer/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trainer api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel))
		defer func() { _ = logger.Sync() }()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")
		zap.S().Infof("Using config: %s", cfg)

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		store := store.NewStore(db)
		defer store.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		if err := store.InitialMigration(ctx); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				return err
			}
			return apiserver.New(cfg, store, listener).Run(ctx)
		})
		g.Go(func() error {
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				return err
			}
			metricsServer, err := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener, store)
			if err != nil {
				return err
			}
			return metricsServer.Run(ctx)
		})

		if err := g.Wait(); err != nil {
			zap.S().Errorw("server stopped", "error", err)
			return err
		}
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
