package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TrainingStatus interface {
	Get(ctx context.Context, projectID uuid.UUID) (*model.TrainingStatus, error)
	Upsert(ctx context.Context, projectID uuid.UUID, status model.TrainingStatusValue, log string, performance datatypes.JSON) (*model.TrainingStatus, error)
}

type TrainingStatusStore struct {
	db *gorm.DB
}

var _ TrainingStatus = (*TrainingStatusStore)(nil)

func NewTrainingStatusStore(db *gorm.DB) TrainingStatus {
	return &TrainingStatusStore{db: db}
}

func (t *TrainingStatusStore) Get(ctx context.Context, projectID uuid.UUID) (*model.TrainingStatus, error) {
	var status model.TrainingStatus
	if err := t.getDB(ctx).WithContext(ctx).First(&status, "project_id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &status, nil
}

// Upsert creates the status record of the project or overwrites status and log.
// The stored performance is replaced only when performance is not nil.
func (t *TrainingStatusStore) Upsert(ctx context.Context, projectID uuid.UUID, status model.TrainingStatusValue, log string, performance datatypes.JSON) (*model.TrainingStatus, error) {
	record := model.TrainingStatus{
		ProjectID:   projectID,
		Status:      status,
		Log:         log,
		Performance: performance,
	}

	columns := []string{"status", "log", "updated_at"}
	if performance != nil {
		columns = append(columns, "performance")
	}

	err := t.getDB(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&record).Error
	if err != nil {
		return nil, err
	}

	return t.Get(ctx, projectID)
}

func (t *TrainingStatusStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return t.db
}
