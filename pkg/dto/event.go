package dto

import "github.com/google/uuid"

// LogResponse is one gate log row.
type LogResponse struct {
	LogID       uuid.UUID `json:"log_id"`
	Timestamp   string    `json:"timestamp"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Name        string    `json:"name"`
	Company     string    `json:"company"`
	Role        string    `json:"role"`
	SnapshotURL string    `json:"snapshot_url,omitempty"`
}

type LogQuery struct {
	Limit     int    `form:"limit"`
	Filter    string `form:"filter"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

// WSEvent is an event hub message for a persisted compliance event.
type WSEvent struct {
	Type string      `json:"type"` // compliance_event
	Data EventRecord `json:"data"`
}

type EventRecord struct {
	ID          uuid.UUID  `json:"id"`
	WorkerID    uuid.UUID  `json:"worker_id"`
	EmployeeID  string     `json:"employee_id"`
	Name        string     `json:"name"`
	Timestamp   string     `json:"timestamp"`
	Overall     string     `json:"overall"`
	CCTVID      *uuid.UUID `json:"cctv_id,omitempty"`
	SnapshotURL string     `json:"snapshot_url,omitempty"`
}
