package model

import (
	"time"

	"github.com/google/uuid"
)

// Part is a local label. It maps to exactly one tag on the trainer service.
type Part struct {
	ID          uuid.UUID `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProjectID   uuid.UUID `gorm:"index"`
	Name        string    `gorm:"not null"`
	Description string
	IsDemo      bool
	Images      []Image `gorm:"constraint:OnDelete:CASCADE;"`
}

type PartList []Part

func (pl PartList) Names() []string {
	names := make([]string, 0, len(pl))
	for _, p := range pl {
		names = append(names, p.Name)
	}
	return names
}

func (pl PartList) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(pl))
	for _, p := range pl {
		ids = append(ids, p.ID)
	}
	return ids
}
