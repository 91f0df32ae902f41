package task

import "time"

// ContentReadyTask tells the analysis service that a story's text is on disk
type ContentReadyTask struct {
	RemoteID    string    `json:"remote_id"`
	Slug        string    `json:"slug"`                 // Canonical slug the files are keyed by
	ContentPath string    `json:"content_path"`         // Plain-text story
	AssetPath   string    `json:"asset_path,omitempty"` // Document, when one was found
	Title       string    `json:"title,omitempty"`
	ReadyAt     time.Time `json:"ready_at"`
}

func (t *ContentReadyTask) TaskType() string {
	return "ContentReadyTask"
}

func (t *ContentReadyTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
