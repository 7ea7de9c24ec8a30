package service

import (
	"context"

	"github.com/kubev2v/edge-trainer/internal/inference"
	"github.com/kubev2v/edge-trainer/internal/trainer"
)

// InferenceNotifier is the part of the inference module used by the services.
type InferenceNotifier interface {
	Deploy(ctx context.Context, d inference.Deployment) error
	DeployAsync(d inference.Deployment)
	UpdateProbThreshold(ctx context.Context, threshold int) error
	Metrics(ctx context.Context) (*inference.Metrics, error)
	RecommendedFPS(ctx context.Context) float64
	Device(ctx context.Context) string
	IsVPU(ctx context.Context) bool
	URL() string
}

// EventWriter queues events for delivery.
type EventWriter interface {
	WriteJSON(ctx context.Context, kind string, v any) error
}

// TrainerProvider returns a client for the trainer service. It fails with
// trainer.ErrNotConfigured when no credentials are set.
type TrainerProvider func(ctx context.Context) (trainer.Client, error)
