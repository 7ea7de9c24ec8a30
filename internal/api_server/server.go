package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kubev2v/edge-trainer/internal/config"
	"github.com/kubev2v/edge-trainer/internal/events"
	handlers "github.com/kubev2v/edge-trainer/internal/handlers/v1alpha1"
	"github.com/kubev2v/edge-trainer/internal/inference"
	"github.com/kubev2v/edge-trainer/internal/service"
	"github.com/kubev2v/edge-trainer/internal/store"
	"github.com/kubev2v/edge-trainer/internal/trainer"
	"github.com/kubev2v/edge-trainer/pkg/metrics"
	"github.com/kubev2v/edge-trainer/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	inferenceTimeout        = 10 * time.Second
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	listener net.Listener
}

// New returns a new instance of an edge-trainer server.
func New(
	cfg *config.Config,
	store store.Store,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		listener: listener,
	}
}

func (s *Server) trainerProvider(ctx context.Context) (trainer.Client, error) {
	client, err := trainer.NewFromConfig(s.cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router := chi.NewRouter()

	metricMiddleware, err := metrics.NewMiddleware("api_server")
	if err != nil {
		return fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	if err := metricMiddleware.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	producer := events.NewEventProducer(events.NewNotificationWriter(s.store, &events.StdoutWriter{}))
	defer func() {
		if err := producer.Close(); err != nil {
			zap.S().Named("api_server").Warnw("failed to close event producer", "error", err)
		}
	}()

	notifier := inference.NewNotifier(s.cfg.Service.InferenceURL, inferenceTimeout)
	defer notifier.Wait()

	registry := service.NewWorkerRegistry(ctx, service.MarkFailed(s.store))
	defer registry.Wait()

	workerCfg := s.cfg.Service.Worker
	h := handlers.NewServiceHandler(
		service.NewTrainingService(s.store, notifier, s.trainerProvider, registry,
			service.NewOrchestrator(s.store, workerCfg),
			service.NewReconciler(s.store, notifier, producer, workerCfg)),
		service.NewProjectService(s.store, notifier, s.trainerProvider, registry),
	)
	h.RegisterRoutes(router)

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
