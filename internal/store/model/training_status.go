package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TrainingStatusValue string

const (
	StatusPreparing TrainingStatusValue = "preparing"
	StatusSending   TrainingStatusValue = "sending"
	StatusTraining  TrainingStatusValue = "training"
	StatusExporting TrainingStatusValue = "exporting"
	StatusDeploying TrainingStatusValue = "deploying"
	StatusOk        TrainingStatusValue = "ok"
	StatusFailed    TrainingStatusValue = "failed"
	StatusWaiting   TrainingStatusValue = "waiting"
)

// TrainingStatus is the single mutable status record of a project. It is
// overwritten on every phase transition.
type TrainingStatus struct {
	ProjectID   uuid.UUID `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Status      TrainingStatusValue `gorm:"not null"`
	Log         string
	Performance datatypes.JSON
}

func NewWaitingStatus(projectID uuid.UUID) *TrainingStatus {
	return &TrainingStatus{ProjectID: projectID, Status: StatusWaiting}
}

func (s TrainingStatusValue) IsTerminal() bool {
	return s == StatusOk || s == StatusFailed
}
