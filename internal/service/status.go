package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/store"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"github.com/kubev2v/edge-trainer/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Status log messages
const (
	logPreparingData     = "preparing data (images and annotations)"
	logSendingData       = "sending data (images and annotations)"
	logNothingChanged    = "No new parts or new images to train. Deploying"
	logProjectChanged    = "Project changed. Submitting training task..."
	logPreparingEnv      = "preparing custom vision environment"
	logPrepareTimeout    = "Get iteration from Custom Vision occurs error."
	logTraining          = "training (Training job might take up to 10-15 minutes)"
	logExporting         = "exporting model"
	logDeploying         = "deploying model"
	logTrainingCompleted = "model training completed"
	logDemoOk            = "demo ok"
)

type statusWriter struct {
	store store.Store
}

func (w statusWriter) set(ctx context.Context, projectID uuid.UUID, status model.TrainingStatusValue, log string) {
	w.setWithPerformance(ctx, projectID, status, log, nil)
}

// setWithPerformance overwrites the status record. Failures are only logged.
func (w statusWriter) setWithPerformance(ctx context.Context, projectID uuid.UUID, status model.TrainingStatusValue, log string, performance datatypes.JSON) {
	if _, err := w.store.TrainingStatus().Upsert(ctx, projectID, status, log, performance); err != nil {
		zap.S().Named("training_status").Errorw("failed to update training status", "project_id", projectID, "status", status, "error", err)
		return
	}
	metrics.IncreaseStatusTransitionsMetric(string(status))
	zap.S().Named("training_status").Debugw("training status updated", "project_id", projectID, "status", status, "log", log)
}
