package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ComplianceEvent is a persisted compliance verdict for one identity.
type ComplianceEvent struct {
	ID           uuid.UUID       `json:"id" db:"log_id"`
	IdentityID   uuid.UUID       `json:"worker_id" db:"worker_id"`
	EmployeeCode string          `json:"employee_id"`
	Name         string          `json:"name"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp_in"`
	Overall      string          `json:"overall" db:"ppe_status"`
	Details      json.RawMessage `json:"details" db:"ppe_details"`
	CCTVID       *uuid.UUID      `json:"cctv_id,omitempty" db:"cctv_id"`
	SnapshotKey  string          `json:"snapshot_key,omitempty" db:"snapshot_key"`

	// Snapshot is the raw JPEG frame the verdict was computed on.
	Snapshot []byte `json:"-"`
}

// GateLog is a persisted event joined with its worker, as listed by the log API.
type GateLog struct {
	ID          uuid.UUID       `db:"log_id"`
	Timestamp   time.Time       `db:"timestamp_in"`
	Status      string          `db:"ppe_status"`
	Details     json.RawMessage `db:"ppe_details"`
	CCTVID      *uuid.UUID      `db:"cctv_id"`
	SnapshotKey string          `db:"snapshot_key"`
	WorkerName  string          `db:"name"`
	Company     string          `db:"company"`
	Role        string          `db:"role"`
}
