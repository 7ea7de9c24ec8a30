package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BoundingBox is a region annotation in pixel coordinates.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type Image struct {
	ID        uuid.UUID `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	PartID    uuid.UUID `gorm:"index"`
	Part      *Part
	Contents  []byte
	Width     int
	Height    int
	Labels    datatypes.JSON
	RemoteURI string
	IsRelabel bool
	Uploaded  bool
}

type ImageList []Image

// Boxes decodes the label column. An empty column yields no boxes.
func (i Image) Boxes() ([]BoundingBox, error) {
	if len(i.Labels) == 0 {
		return nil, nil
	}
	var boxes []BoundingBox
	if err := json.Unmarshal(i.Labels, &boxes); err != nil {
		return nil, err
	}
	return boxes, nil
}

func MakeLabels(boxes []BoundingBox) datatypes.JSON {
	if boxes == nil {
		boxes = []BoundingBox{}
	}
	data, _ := json.Marshal(boxes)
	return datatypes.JSON(data)
}

func (il ImageList) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(il))
	for _, i := range il {
		ids = append(ids, i.ID)
	}
	return ids
}
