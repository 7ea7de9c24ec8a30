package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Defaults applied to the retraining parameters when a project is reset.
const (
	DefaultNeedRetraining   = true
	DefaultAccuracyRangeMin = 30
	DefaultAccuracyRangeMax = 80
	DefaultMaxImages        = 20
	DefaultProbThreshold    = 10
)

type Project struct {
	ID                uuid.UUID `gorm:"primaryKey"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CameraID          *uuid.UUID
	Camera            *Camera `gorm:"constraint:OnDelete:SET NULL;"`
	RemoteProjectID   string
	RemoteProjectName string
	Deployed          bool
	DownloadURI       string
	IsDemo            bool
	HasConfigured     bool
	NeedRetraining    bool
	AccuracyRangeMin  int
	AccuracyRangeMax  int
	MaxImages         int
	ProbThreshold     int
	TrainingCounter   int
	RetrainingCounter int
	Parts             []Part `gorm:"constraint:OnDelete:CASCADE;"`
}

type ProjectList []Project

// NewProject returns a project carrying the default retraining parameters.
func NewProject(name string) Project {
	p := Project{
		ID:                uuid.New(),
		RemoteProjectName: name,
		ProbThreshold:     DefaultProbThreshold,
	}
	p.ResetRetrainingParameters()
	return p
}

func (pl ProjectList) Names() []string {
	names := make([]string, 0, len(pl))
	for _, p := range pl {
		names = append(names, p.RemoteProjectName)
	}
	return names
}

func (p Project) String() string {
	val, _ := json.Marshal(p)
	return string(val)
}

// CameraSource returns the rtsp uri of the project camera or an empty string.
func (p Project) CameraSource() string {
	if p.Camera == nil {
		return ""
	}
	return p.Camera.RTSP
}

// ResetRetrainingParameters puts the project back into its freshly created state
// while keeping its identity and camera.
func (p *Project) ResetRetrainingParameters() {
	p.NeedRetraining = DefaultNeedRetraining
	p.AccuracyRangeMin = DefaultAccuracyRangeMin
	p.AccuracyRangeMax = DefaultAccuracyRangeMax
	p.MaxImages = DefaultMaxImages
	p.Deployed = false
	p.DownloadURI = ""
	p.RemoteProjectID = ""
	p.TrainingCounter = 0
	p.RetrainingCounter = 0
}

type Camera struct {
	ID        uuid.UUID `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      string
	RTSP      string
	IsDemo    bool
}
