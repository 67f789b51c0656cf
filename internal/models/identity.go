package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is a known worker as held by the roster. Values inside a roster
// snapshot are never mutated; a reload replaces them wholesale.
type Identity struct {
	ID            uuid.UUID `json:"id" db:"id"`
	EmployeeCode  string    `json:"employee_id" db:"employee_id"`
	Name          string    `json:"name" db:"name"`
	Company       string    `json:"company" db:"company"`
	Role          string    `json:"role" db:"role"`
	LicenseActive bool      `json:"license_active" db:"license_active"`
	Embedding     []float32 `json:"-" db:"face_embedding"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Caption is the text drawn next to a recognised face.
func (i Identity) Caption() string {
	return i.Name + " - " + i.Role + " @ " + i.Company
}

// EnrollmentRequest carries the worker fields of a capture command plus the
// single embedding extracted from the capture frame.
type EnrollmentRequest struct {
	EmployeeCode  string `validate:"required,max=64"`
	Name          string `validate:"required,max=255"`
	Company       string `validate:"max=255"`
	Role          string `validate:"max=255"`
	LicenseActive bool
	Embedding     []float32 `validate:"required,min=1"`
}

// WorkerUpdate replaces a worker's descriptive fields. The face embedding is
// only ever set by enrollment.
type WorkerUpdate struct {
	EmployeeCode  string `validate:"required,max=64"`
	Name          string `validate:"required,max=255"`
	Company       string `validate:"max=255"`
	Role          string `validate:"max=255"`
	LicenseActive bool
}
