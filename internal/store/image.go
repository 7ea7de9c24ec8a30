package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Image interface {
	List(ctx context.Context, filter *ImageQueryFilter) (model.ImageList, error)
	Create(ctx context.Context, image model.Image) (*model.Image, error)
	MarkUploaded(ctx context.Context, ids []uuid.UUID) error
	Delete(ctx context.Context, filter *ImageQueryFilter) error
}

type ImageStore struct {
	db *gorm.DB
}

var _ Image = (*ImageStore)(nil)

func NewImageStore(db *gorm.DB) Image {
	return &ImageStore{db: db}
}

func (i *ImageStore) List(ctx context.Context, filter *ImageQueryFilter) (model.ImageList, error) {
	var images model.ImageList
	tx := i.getDB(ctx).WithContext(ctx).Model(&images)

	if filter != nil {
		tx = filter.apply(tx)
	}

	if err := tx.Find(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

func (i *ImageStore) Create(ctx context.Context, image model.Image) (*model.Image, error) {
	if image.ID == uuid.Nil {
		image.ID = uuid.New()
	}
	if err := i.getDB(ctx).WithContext(ctx).Omit(clause.Associations).Create(&image).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &image, nil
}

func (i *ImageStore) MarkUploaded(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return i.getDB(ctx).WithContext(ctx).
		Model(&model.Image{}).
		Where("id IN ?", ids).
		Update("uploaded", true).Error
}

// Delete removes the images matching filter. A nil or empty filter is refused.
func (i *ImageStore) Delete(ctx context.Context, filter *ImageQueryFilter) error {
	if filter == nil || len(filter.QueryFn) == 0 {
		return errors.New("refusing to delete images without a filter")
	}
	return filter.apply(i.getDB(ctx).WithContext(ctx)).Delete(&model.Image{}).Error
}

func (i *ImageStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return i.db
}
