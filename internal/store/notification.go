package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"gorm.io/gorm"
)

type Notification interface {
	Create(ctx context.Context, notification model.Notification) (*model.Notification, error)
	List(ctx context.Context, filter *NotificationQueryFilter) (model.NotificationList, error)
}

type NotificationStore struct {
	db *gorm.DB
}

var _ Notification = (*NotificationStore)(nil)

func NewNotificationStore(db *gorm.DB) Notification {
	return &NotificationStore{db: db}
}

func (n *NotificationStore) Create(ctx context.Context, notification model.Notification) (*model.Notification, error) {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if err := n.getDB(ctx).WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

func (n *NotificationStore) List(ctx context.Context, filter *NotificationQueryFilter) (model.NotificationList, error) {
	var notifications model.NotificationList
	tx := n.getDB(ctx).WithContext(ctx).Model(&notifications)

	if filter != nil {
		tx = filter.apply(tx)
	}

	if err := tx.Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (n *NotificationStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return n.db
}
