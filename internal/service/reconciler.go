package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/config"
	"github.com/kubev2v/edge-trainer/internal/events"
	"github.com/kubev2v/edge-trainer/internal/inference"
	"github.com/kubev2v/edge-trainer/internal/store"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"github.com/kubev2v/edge-trainer/internal/trainer"
	"github.com/kubev2v/edge-trainer/pkg/metrics"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	completedNotificationTitle   = "Training Complete"
	completedNotificationDetails = "Project is trained and deployed"

	// number of iterations reported in the performance of a completed training
	performanceIterations = 2
)

// IterationPerformance is the performance of one iteration as stored in the
// status record.
type IterationPerformance struct {
	IterationID      string  `json:"iteration_id"`
	IterationName    string  `json:"iteration_name"`
	Status           string  `json:"status"`
	Precision        float64 `json:"precision"`
	Recall           float64 `json:"recall"`
	AveragePrecision float64 `json:"average_precision"`
}

// Reconciler follows a submitted training on the trainer service until the
// exported model is deployed on the inference module.
type Reconciler struct {
	store    store.Store
	notifier InferenceNotifier
	events   EventWriter
	cfg      config.WorkerConfig
	status   statusWriter
}

func NewReconciler(s store.Store, notifier InferenceNotifier, eventWriter EventWriter, cfg config.WorkerConfig) *Reconciler {
	return &Reconciler{
		store:    s,
		notifier: notifier,
		events:   eventWriter,
		cfg:      cfg,
		status:   statusWriter{store: s},
	}
}

type reconcileState struct {
	prepareWaits    int
	exportRequested string
}

// Run polls the trainer service until the project reaches ok or failed.
// Returned errors are left to the caller to record.
func (r *Reconciler) Run(ctx context.Context, projectID uuid.UUID, client trainer.Client) error {
	log := zap.S().Named("reconciler").With("project_id", projectID)
	log.Info("status reconciliation started")

	interval := r.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: r.cfg.PollJitter, Mean: 0})
	defer ticker.Stop()

	state := &reconcileState{}
	for {
		select {
		case <-ctx.Done():
			log.Infow("status reconciliation cancelled", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}

		done, err := r.step(ctx, projectID, client, state)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if done {
			log.Info("status reconciliation finished")
			return nil
		}
	}
}

func (r *Reconciler) step(ctx context.Context, projectID uuid.UUID, client trainer.Client, state *reconcileState) (bool, error) {
	log := zap.S().Named("reconciler").With("project_id", projectID)

	project, err := r.store.Project().Get(ctx, projectID)
	if err != nil {
		return false, err
	}

	iterations, err := client.GetIterations(ctx, project.RemoteProjectID)
	if err != nil {
		return false, err
	}

	if len(iterations) == 0 {
		state.prepareWaits++
		if state.prepareWaits > r.cfg.MaxPrepareWaits {
			log.Warnw("no iteration appeared", "polls", state.prepareWaits)
			r.status.set(ctx, projectID, model.StatusFailed, logPrepareTimeout)
			return true, nil
		}
		r.status.set(ctx, projectID, model.StatusPreparing, logPreparingEnv)
		return false, nil
	}

	latest := iterations[0]
	if !latest.IsReady() {
		r.status.set(ctx, projectID, model.StatusTraining, logTraining)
		return false, nil
	}

	exports, err := client.GetExports(ctx, project.RemoteProjectID, latest.ID)
	if err != nil {
		return false, err
	}

	downloadURI := ""
	for _, e := range exports {
		if e.DownloadURI != "" {
			downloadURI = e.DownloadURI
			break
		}
	}

	if downloadURI == "" {
		r.status.set(ctx, projectID, model.StatusExporting, logExporting)
		// an empty list right after a request means the export is not listed yet
		if needsExportRequest(exports) && (len(exports) > 0 || state.exportRequested != latest.ID) {
			if _, err := client.ExportIteration(ctx, project.RemoteProjectID, latest.ID); err != nil {
				return false, err
			}
			state.exportRequested = latest.ID
			log.Infow("export requested", "iteration_id", latest.ID)
		}
		return false, nil
	}

	if !project.Deployed {
		changed, err := r.store.Project().MarkDeployed(ctx, projectID, downloadURI)
		if err != nil {
			return false, err
		}
		if changed {
			r.notifier.DeployAsync(inference.Deployment{
				CameraSource: project.CameraSource(),
				ModelURI:     downloadURI,
				Parts:        model.PartList(project.Parts).Names(),
			})
			metrics.IncreaseDeployPushesMetric(metrics.DeployKindModel)
			log.Infow("model deployment pushed", "iteration_id", latest.ID, "download_uri", downloadURI)
		}
		r.status.set(ctx, projectID, model.StatusDeploying, logDeploying)
		return false, nil
	}

	performance, err := r.performance(ctx, client, project.RemoteProjectID, iterations)
	if err != nil {
		return false, err
	}
	if err := r.store.Project().MarkConfigured(ctx, projectID); err != nil {
		return false, err
	}
	r.status.setWithPerformance(ctx, projectID, model.StatusOk, logTrainingCompleted, performance)

	if err := r.events.WriteJSON(ctx, events.TrainingCompletedMessageKind, events.TrainingCompletedEvent{
		ProjectID:        projectID.String(),
		NotificationType: model.NotificationTypeProject,
		Sender:           model.NotificationSenderSystem,
		Title:            completedNotificationTitle,
		Details:          completedNotificationDetails,
		DownloadURI:      project.DownloadURI,
	}); err != nil {
		log.Errorw("failed to queue training completed event", "error", err)
	}

	return true, nil
}

// needsExportRequest is true when no export exists or every export failed.
// A failed export is requested again on the next poll.
func needsExportRequest(exports []trainer.Export) bool {
	for _, e := range exports {
		if e.Status != trainer.ExportStatusFailed {
			return false
		}
	}
	return true
}

func (r *Reconciler) performance(ctx context.Context, client trainer.Client, remoteID string, iterations []trainer.Iteration) (datatypes.JSON, error) {
	perf := make([]IterationPerformance, 0, performanceIterations)
	for i, it := range iterations {
		if i == performanceIterations {
			break
		}
		entry := IterationPerformance{
			IterationID:   it.ID,
			IterationName: it.Name,
			Status:        it.Status,
		}
		if it.Status == trainer.IterationStatusCompleted {
			p, err := client.GetIterationPerformance(ctx, remoteID, it.ID)
			if err != nil {
				return nil, err
			}
			entry.Precision = p.Precision
			entry.Recall = p.Recall
			entry.AveragePrecision = p.AveragePrecision
		}
		perf = append(perf, entry)
	}

	data, err := json.Marshal(perf)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}
