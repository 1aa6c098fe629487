package model

import "time"

type ActivityType string

const (
	ActivityGenerationStarted   ActivityType = "document_generation_started"
	ActivityGenerationCompleted ActivityType = "document_generation_completed"
	ActivityGenerationFailed    ActivityType = "document_generation_failed"
	ActivityDocumentDownloaded  ActivityType = "document_downloaded"
	ActivityCheckoutStarted     ActivityType = "checkout_started"
)

// Activity is an append-only audit event for a user.
type Activity struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Type      ActivityType   `json:"type"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type DownloadType string

const (
	DownloadInitial    DownloadType = "initial"
	DownloadRedownload DownloadType = "redownload"
)

// Download records a single retrieval of a generated document.
type Download struct {
	ID         string       `json:"id"`
	UserID     string       `json:"userId"`
	DocumentID string       `json:"documentId"`
	Type       DownloadType `json:"type"`
	IPAddress  string       `json:"ipAddress,omitempty"`
	UserAgent  string       `json:"userAgent,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
}
