package domain

import "time"

// RunLog is a historical record of one ingestion run.
type RunLog struct {
	ID             string    `json:"id"`
	SchemaPath     string    `json:"schemaPath"`
	DataPath       string    `json:"dataPath"`
	Schema         string    `json:"schema"`
	Trigger        string    `json:"trigger"` // "manual" | "watch" | "schedule" | "mcp"
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	Status         string    `json:"status"` // "success" | "partial" | "error"
	LinesRead      int       `json:"linesRead"`
	Decoded        int       `json:"decoded"`
	DecodeFailed   int       `json:"decodeFailed"`
	Delivered      int       `json:"delivered"`
	DeliveryFailed int       `json:"deliveryFailed"`
	Error          string    `json:"error,omitempty"`
}

// RunLogStore persists run logs.
type RunLogStore interface {
	CreateRunLog(l *RunLog) error
	ListRunLogs(limit int) ([]RunLog, error)
}
