package events

// TrainingCompletedEvent is emitted once a project has been trained, exported
// and deployed to the inference module.
type TrainingCompletedEvent struct {
	ProjectID        string `json:"project_id"`
	NotificationType string `json:"notification_type"`
	Sender           string `json:"sender"`
	Title            string `json:"title"`
	Details          string `json:"details"`
	DownloadURI      string `json:"download_uri"`
}
