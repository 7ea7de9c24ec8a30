package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/inference"
	"github.com/kubev2v/edge-trainer/internal/store"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"github.com/kubev2v/edge-trainer/internal/trainer"
	"github.com/kubev2v/edge-trainer/pkg/metrics"
	"go.uber.org/zap"
)

// Retrain parameters pushed to the inference module for demo projects.
const (
	demoConfidenceMin = 30
	demoConfidenceMax = 30
	demoMaxImages     = 10
)

type TrainingService struct {
	store        store.Store
	notifier     InferenceNotifier
	trainer      TrainerProvider
	registry     *WorkerRegistry
	orchestrator *Orchestrator
	reconciler   *Reconciler
	status       statusWriter
}

func NewTrainingService(s store.Store, notifier InferenceNotifier, provider TrainerProvider, registry *WorkerRegistry, orchestrator *Orchestrator, reconciler *Reconciler) *TrainingService {
	return &TrainingService{
		store:        s,
		notifier:     notifier,
		trainer:      provider,
		registry:     registry,
		orchestrator: orchestrator,
		reconciler:   reconciler,
		status:       statusWriter{store: s},
	}
}

// Train synchronizes the project with the trainer service, submits a training
// when needed and starts the status reconciliation in background.
// A trigger for a project already being reconciled is accepted and ignored.
func (ts *TrainingService) Train(ctx context.Context, projectID uuid.UUID, demo bool) error {
	log := zap.S().Named("training_service").With("project_id", projectID)

	project, err := ts.store.Project().Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrProjectNotFound(projectID)
		}
		return err
	}

	if demo || project.IsDemo {
		return ts.trainDemo(ctx, project)
	}

	if !ts.registry.TryAcquire(projectID) {
		log.Info("training already in progress, trigger ignored")
		return nil
	}

	ts.status.set(ctx, projectID, model.StatusPreparing, logPreparingData)
	ts.notifier.DeployAsync(inference.Deployment{
		CameraSource: project.CameraSource(),
		ModelURI:     project.DownloadURI,
		Parts:        model.PartList(project.Parts).Names(),
	})

	// failures are recorded even when the caller went away
	statusCtx := context.WithoutCancel(ctx)

	client, err := ts.trainer(ctx)
	if err != nil {
		ts.registry.Release(projectID)
		log.Warnw("trainer service unavailable", "error", err)
		ts.status.set(statusCtx, projectID, model.StatusFailed, InvalidCredentialsMessage)
		return NewErrInvalidCredentials()
	}

	if _, err := ts.orchestrator.Sync(ctx, project, client); err != nil {
		ts.registry.Release(projectID)
		return ts.syncFailed(statusCtx, projectID, err)
	}

	ts.registry.Go(projectID, func(ctx context.Context) error {
		return ts.reconciler.Run(ctx, projectID, client)
	})

	log.Info("training accepted")
	return nil
}

func (ts *TrainingService) trainDemo(ctx context.Context, project *model.Project) error {
	ts.notifier.DeployAsync(inference.Deployment{
		CameraSource: project.CameraSource(),
		ModelDir:     inference.DemoModelDir,
		Parts:        model.PartList(project.Parts).Names(),
		Retrain: &inference.RetrainParameters{
			ConfidenceMin: demoConfidenceMin,
			ConfidenceMax: demoConfidenceMax,
			MaxImages:     demoMaxImages,
		},
	})
	metrics.IncreaseDeployPushesMetric(metrics.DeployKindDemo)

	ts.status.set(ctx, project.ID, model.StatusOk, logDemoOk)

	if err := ts.store.Project().MarkConfigured(ctx, project.ID); err != nil {
		return err
	}

	zap.S().Named("training_service").Infow("demo model deployed", "project_id", project.ID)
	return nil
}

func (ts *TrainingService) syncFailed(ctx context.Context, projectID uuid.UUID, err error) error {
	zap.S().Named("training_service").Errorw("failed to synchronize project", "project_id", projectID, "error", err)

	if trainer.IsAccessDenied(err) {
		ts.status.set(ctx, projectID, model.StatusFailed, InvalidCredentialsMessage)
		return NewErrInvalidCredentials()
	}

	var remoteErr *trainer.Error
	if errors.As(err, &remoteErr) {
		msg := trainer.Message(err)
		ts.status.set(ctx, projectID, model.StatusFailed, msg)
		return NewErrRemoteService(msg)
	}

	ts.status.set(ctx, projectID, model.StatusFailed, fmt.Sprintf("failed: %s", err))
	return err
}

// MarkFailed records a failed background task on the project status.
func MarkFailed(s store.Store) FailureHandler {
	w := statusWriter{store: s}
	return func(ctx context.Context, projectID uuid.UUID, err error) {
		msg := err.Error()
		var remoteErr *trainer.Error
		switch {
		case trainer.IsAccessDenied(err):
			msg = InvalidCredentialsMessage
		case errors.As(err, &remoteErr):
			msg = trainer.Message(err)
		}
		w.set(ctx, projectID, model.StatusFailed, msg)
	}
}
