package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Part interface {
	List(ctx context.Context, filter *PartQueryFilter) (model.PartList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Part, error)
	Create(ctx context.Context, part model.Part) (*model.Part, error)
	Delete(ctx context.Context, filter *PartQueryFilter) error
}

type PartStore struct {
	db *gorm.DB
}

var _ Part = (*PartStore)(nil)

func NewPartStore(db *gorm.DB) Part {
	return &PartStore{db: db}
}

func (p *PartStore) List(ctx context.Context, filter *PartQueryFilter) (model.PartList, error) {
	var parts model.PartList
	tx := p.getDB(ctx).WithContext(ctx).Model(&parts)

	if filter != nil {
		tx = filter.apply(tx)
	}

	if err := tx.Find(&parts).Error; err != nil {
		return nil, err
	}
	return parts, nil
}

func (p *PartStore) Get(ctx context.Context, id uuid.UUID) (*model.Part, error) {
	var part model.Part
	if err := p.getDB(ctx).WithContext(ctx).First(&part, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &part, nil
}

func (p *PartStore) Create(ctx context.Context, part model.Part) (*model.Part, error) {
	if part.ID == uuid.Nil {
		part.ID = uuid.New()
	}
	if err := p.getDB(ctx).WithContext(ctx).Omit(clause.Associations).Create(&part).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &part, nil
}

// Delete removes the parts matching filter. A nil or empty filter is refused.
func (p *PartStore) Delete(ctx context.Context, filter *PartQueryFilter) error {
	if filter == nil || len(filter.QueryFn) == 0 {
		return errors.New("refusing to delete parts without a filter")
	}
	return filter.apply(p.getDB(ctx).WithContext(ctx)).Delete(&model.Part{}).Error
}

func (p *PartStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return p.db
}
