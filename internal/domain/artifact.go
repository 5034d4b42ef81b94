package domain

import "time"

// Artifact is a persisted job output. Related holds later derivatives such as
// the blurred crop, in the order they were attached.
type Artifact struct {
	ID           int64     `json:"id"`
	Format       string    `json:"format"`
	OriginalKey  string    `json:"original_key,omitempty"`
	ProcessedKey string    `json:"processed_key,omitempty"`
	Related      []string  `json:"related,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
