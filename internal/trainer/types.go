package trainer

import "time"

const (
	IterationStatusCompleted = "Completed"
	ExportStatusDone         = "Done"
	ExportStatusFailed       = "Failed"
)

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Tag struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageCount  int    `json:"imageCount,omitempty"`
}

// Region is a bounding box expressed as fractions of the image size.
type Region struct {
	TagID  string  `json:"tagId"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type ImageFileCreateEntry struct {
	Name     string   `json:"name"`
	Contents []byte   `json:"contents"`
	TagIDs   []string `json:"tagIds,omitempty"`
	Regions  []Region `json:"regions,omitempty"`
}

type ImageFileCreateBatch struct {
	Images []ImageFileCreateEntry `json:"images"`
	TagIDs []string               `json:"tagIds,omitempty"`
}

type ImageCreateResult struct {
	SourceURL string `json:"sourceUrl"`
	Status    string `json:"status"`
}

type ImageCreateSummary struct {
	IsBatchSuccessful bool                `json:"isBatchSuccessful"`
	Images            []ImageCreateResult `json:"images"`
}

type ImageRegion struct {
	TagID   string  `json:"tagId"`
	TagName string  `json:"tagName"`
	Left    float64 `json:"left"`
	Top     float64 `json:"top"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

type TaggedImage struct {
	ID               string        `json:"id"`
	Width            int           `json:"width"`
	Height           int           `json:"height"`
	OriginalImageURI string        `json:"originalImageUri"`
	Regions          []ImageRegion `json:"regions"`
}

type Iteration struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"lastModified"`
	Exportable   bool      `json:"exportable"`
}

// IsReady reports whether the iteration finished training and can be exported.
func (i Iteration) IsReady() bool {
	return i.Exportable && i.Status == IterationStatusCompleted
}

type IterationPerformance struct {
	Precision        float64 `json:"precision"`
	Recall           float64 `json:"recall"`
	AveragePrecision float64 `json:"averagePrecision"`
}

type Export struct {
	Platform    string `json:"platform"`
	Status      string `json:"status"`
	DownloadURI string `json:"downloadUri"`
	Flavor      string `json:"flavor,omitempty"`
}
