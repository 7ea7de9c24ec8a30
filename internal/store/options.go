package store

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

func (b *BaseQuerier) apply(tx *gorm.DB) *gorm.DB {
	if b == nil {
		return tx
	}
	for _, fn := range b.QueryFn {
		tx = fn(tx)
	}
	return tx
}

type SortOrder int

const (
	Unsorted SortOrder = iota
	SortByID
	SortByUpdatedTime
	SortByCreatedTime
)

func orderBy(sort SortOrder) func(tx *gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByID:
			return tx.Order("id")
		case SortByUpdatedTime:
			return tx.Order("updated_at")
		case SortByCreatedTime:
			return tx.Order("created_at")
		default:
			return tx
		}
	}
}

type ProjectQueryFilter struct {
	BaseQuerier
}

func NewProjectQueryFilter() *ProjectQueryFilter {
	return &ProjectQueryFilter{BaseQuerier{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}}
}

func (qf *ProjectQueryFilter) ByDemo(isDemo bool) *ProjectQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("is_demo = ?", isDemo)
	})
	return qf
}

func (qf *ProjectQueryFilter) ByRemoteProjectID(remoteID string) *ProjectQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("remote_project_id = ?", remoteID)
	})
	return qf
}

func (qf *ProjectQueryFilter) WithSortOrder(sort SortOrder) *ProjectQueryFilter {
	qf.QueryFn = append(qf.QueryFn, orderBy(sort))
	return qf
}

type PartQueryFilter struct {
	BaseQuerier
}

func NewPartQueryFilter() *PartQueryFilter {
	return &PartQueryFilter{BaseQuerier{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}}
}

func (qf *PartQueryFilter) ByProjectID(projectID uuid.UUID) *PartQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("project_id = ?", projectID)
	})
	return qf
}

func (qf *PartQueryFilter) ByName(name string) *PartQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("name = ?", name)
	})
	return qf
}

func (qf *PartQueryFilter) ByIDs(ids []uuid.UUID) *PartQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN ?", ids)
	})
	return qf
}

func (qf *PartQueryFilter) ByDemo(isDemo bool) *PartQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("is_demo = ?", isDemo)
	})
	return qf
}

func (qf *PartQueryFilter) WithSortOrder(sort SortOrder) *PartQueryFilter {
	qf.QueryFn = append(qf.QueryFn, orderBy(sort))
	return qf
}

type ImageQueryFilter struct {
	BaseQuerier
}

func NewImageQueryFilter() *ImageQueryFilter {
	return &ImageQueryFilter{BaseQuerier{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}}
}

func (qf *ImageQueryFilter) ByPartIDs(ids []uuid.UUID) *ImageQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("part_id IN ?", ids)
	})
	return qf
}

func (qf *ImageQueryFilter) ByIDs(ids []uuid.UUID) *ImageQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN ?", ids)
	})
	return qf
}

func (qf *ImageQueryFilter) ByUploaded(uploaded bool) *ImageQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("uploaded = ?", uploaded)
	})
	return qf
}

func (qf *ImageQueryFilter) ByRelabel(relabel bool) *ImageQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("is_relabel = ?", relabel)
	})
	return qf
}

func (qf *ImageQueryFilter) WithSortOrder(sort SortOrder) *ImageQueryFilter {
	qf.QueryFn = append(qf.QueryFn, orderBy(sort))
	return qf
}

type NotificationQueryFilter struct {
	BaseQuerier
}

func NewNotificationQueryFilter() *NotificationQueryFilter {
	return &NotificationQueryFilter{BaseQuerier{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}}
}

func (qf *NotificationQueryFilter) ByProjectID(projectID uuid.UUID) *NotificationQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("project_id = ?", projectID)
	})
	return qf
}

func (qf *NotificationQueryFilter) WithSortOrder(sort SortOrder) *NotificationQueryFilter {
	qf.QueryFn = append(qf.QueryFn, orderBy(sort))
	return qf
}
