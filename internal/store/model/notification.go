package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationTypeProject  = "project"
	NotificationSenderSystem = "system"
)

type Notification struct {
	ID               uuid.UUID `gorm:"primaryKey"`
	CreatedAt        time.Time
	ProjectID        *uuid.UUID `gorm:"index"`
	NotificationType string
	Sender           string
	Title            string
	Details          string
}

type NotificationList []Notification
