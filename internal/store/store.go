package store

import (
	"context"

	"github.com/kubev2v/edge-trainer/internal/store/model"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Project() Project
	Camera() Camera
	Part() Part
	Image() Image
	TrainingStatus() TrainingStatus
	Notification() Notification
	InitialMigration(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db             *gorm.DB
	project        Project
	camera         Camera
	part           Part
	image          Image
	trainingStatus TrainingStatus
	notification   Notification
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:             db,
		project:        NewProjectStore(db),
		camera:         NewCameraStore(db),
		part:           NewPartStore(db),
		image:          NewImageStore(db),
		trainingStatus: NewTrainingStatusStore(db),
		notification:   NewNotificationStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Project() Project {
	return s.project
}

func (s *DataStore) Camera() Camera {
	return s.camera
}

func (s *DataStore) Part() Part {
	return s.part
}

func (s *DataStore) Image() Image {
	return s.image
}

func (s *DataStore) TrainingStatus() TrainingStatus {
	return s.trainingStatus
}

func (s *DataStore) Notification() Notification {
	return s.notification
}

// InitialMigration creates or updates the schema of every table.
func (s *DataStore) InitialMigration(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&model.Camera{},
		&model.Project{},
		&model.Part{},
		&model.Image{},
		&model.TrainingStatus{},
		&model.Notification{},
	)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
