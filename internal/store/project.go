package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Project interface {
	List(ctx context.Context, filter *ProjectQueryFilter) (model.ProjectList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Project, error)
	Create(ctx context.Context, project model.Project) (*model.Project, error)
	Update(ctx context.Context, project model.Project) (*model.Project, error)
	SetRemoteProject(ctx context.Context, id uuid.UUID, remoteID, remoteName string) error
	SetProbThreshold(ctx context.Context, id uuid.UUID, threshold int) error
	SetCamera(ctx context.Context, id uuid.UUID, cameraID uuid.UUID) error
	MarkConfigured(ctx context.Context, id uuid.UUID) error
	MarkDeployed(ctx context.Context, id uuid.UUID, downloadURI string) (bool, error)
	ClearDeployment(ctx context.Context, id uuid.UUID) error
	ResetDeployment(ctx context.Context, id uuid.UUID) error
	IncrementCounters(ctx context.Context, id uuid.UUID, retraining bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProjectStore struct {
	db *gorm.DB
}

// Make sure we conform to Project interface
var _ Project = (*ProjectStore)(nil)

func NewProjectStore(db *gorm.DB) Project {
	return &ProjectStore{db: db}
}

func (p *ProjectStore) List(ctx context.Context, filter *ProjectQueryFilter) (model.ProjectList, error) {
	var projects model.ProjectList
	tx := p.getDB(ctx).WithContext(ctx).Model(&projects).Preload("Camera")

	if filter != nil {
		tx = filter.apply(tx)
	}

	if err := tx.Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// Get returns the project with its camera and parts.
func (p *ProjectStore) Get(ctx context.Context, id uuid.UUID) (*model.Project, error) {
	var project model.Project
	err := p.getDB(ctx).WithContext(ctx).
		Preload("Camera").
		Preload("Parts", func(db *gorm.DB) *gorm.DB {
			return db.Order("parts.created_at")
		}).
		First(&project, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (p *ProjectStore) Create(ctx context.Context, project model.Project) (*model.Project, error) {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	if err := p.getDB(ctx).WithContext(ctx).Omit(clause.Associations).Create(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &project, nil
}

// Update writes every column of the project, zero values included. Associations
// are left untouched.
func (p *ProjectStore) Update(ctx context.Context, project model.Project) (*model.Project, error) {
	if err := p.getDB(ctx).WithContext(ctx).First(&model.Project{}, "id = ?", project.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if err := p.getDB(ctx).WithContext(ctx).Omit(clause.Associations).Save(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (p *ProjectStore) SetRemoteProject(ctx context.Context, id uuid.UUID, remoteID, remoteName string) error {
	return p.updateColumns(ctx, id, map[string]any{
		"remote_project_id":   remoteID,
		"remote_project_name": remoteName,
	})
}

func (p *ProjectStore) SetProbThreshold(ctx context.Context, id uuid.UUID, threshold int) error {
	return p.updateColumns(ctx, id, map[string]any{"prob_threshold": threshold})
}

func (p *ProjectStore) SetCamera(ctx context.Context, id uuid.UUID, cameraID uuid.UUID) error {
	return p.updateColumns(ctx, id, map[string]any{"camera_id": cameraID})
}

func (p *ProjectStore) MarkConfigured(ctx context.Context, id uuid.UUID) error {
	return p.updateColumns(ctx, id, map[string]any{"has_configured": true})
}

// ResetDeployment forgets the deployed model.
func (p *ProjectStore) ResetDeployment(ctx context.Context, id uuid.UUID) error {
	return p.updateColumns(ctx, id, map[string]any{"deployed": false, "download_uri": ""})
}

// updateColumns writes only the given columns so that concurrent writers of
// other columns are preserved.
func (p *ProjectStore) updateColumns(ctx context.Context, id uuid.UUID, columns map[string]any) error {
	tx := p.getDB(ctx).WithContext(ctx).
		Model(&model.Project{}).
		Where("id = ?", id).
		Updates(columns)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkDeployed flips deployed to true only if it was false. It reports whether
// this call performed the transition.
func (p *ProjectStore) MarkDeployed(ctx context.Context, id uuid.UUID, downloadURI string) (bool, error) {
	tx := p.getDB(ctx).WithContext(ctx).
		Model(&model.Project{}).
		Where("id = ? AND deployed = ?", id, false).
		Updates(map[string]any{"deployed": true, "download_uri": downloadURI})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (p *ProjectStore) ClearDeployment(ctx context.Context, id uuid.UUID) error {
	return p.getDB(ctx).WithContext(ctx).
		Model(&model.Project{}).
		Where("id = ?", id).
		Update("deployed", false).Error
}

func (p *ProjectStore) IncrementCounters(ctx context.Context, id uuid.UUID, retraining bool) error {
	updates := map[string]any{"training_counter": gorm.Expr("training_counter + ?", 1)}
	if retraining {
		updates["retraining_counter"] = gorm.Expr("retraining_counter + ?", 1)
	}
	return p.getDB(ctx).WithContext(ctx).
		Model(&model.Project{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (p *ProjectStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := p.getDB(ctx).WithContext(ctx).Delete(&model.Project{}, "id = ?", id)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (p *ProjectStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return p.db
}

type Camera interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Camera, error)
	// GetDemo returns the oldest demo camera.
	GetDemo(ctx context.Context) (*model.Camera, error)
	Create(ctx context.Context, camera model.Camera) (*model.Camera, error)
}

type CameraStore struct {
	db *gorm.DB
}

var _ Camera = (*CameraStore)(nil)

func NewCameraStore(db *gorm.DB) Camera {
	return &CameraStore{db: db}
}

func (c *CameraStore) Get(ctx context.Context, id uuid.UUID) (*model.Camera, error) {
	var camera model.Camera
	if err := c.getDB(ctx).WithContext(ctx).First(&camera, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &camera, nil
}

func (c *CameraStore) GetDemo(ctx context.Context) (*model.Camera, error) {
	var camera model.Camera
	if err := c.getDB(ctx).WithContext(ctx).Where("is_demo = ?", true).Order("created_at").First(&camera).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &camera, nil
}

func (c *CameraStore) Create(ctx context.Context, camera model.Camera) (*model.Camera, error) {
	if camera.ID == uuid.Nil {
		camera.ID = uuid.New()
	}
	if err := c.getDB(ctx).WithContext(ctx).Create(&camera).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &camera, nil
}

func (c *CameraStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return c.db
}
