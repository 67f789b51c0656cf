package dto

import (
	"strings"

	"github.com/google/uuid"
)

const (
	LicenseActive   = "Aktif"
	LicenseInactive = "Tidak Aktif"
)

// LicenseStatus renders the licence flag the way the gate UI shows it.
func LicenseStatus(active bool) string {
	if active {
		return LicenseActive
	}
	return LicenseInactive
}

// ParseLicenseStatus accepts the UI form ("Aktif") and plain English/boolean forms.
func ParseLicenseStatus(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aktif", "active", "true", "1", "yes":
		return true
	default:
		return false
	}
}

type WorkerResponse struct {
	ID         uuid.UUID `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Name       string    `json:"name"`
	Company    string    `json:"company"`
	Role       string    `json:"role"`
	StatusSIML string    `json:"status_sim_l"`
	CreatedAt  string    `json:"created_at,omitempty"`
}

type UpdateWorkerRequest struct {
	EmployeeID string `json:"employee_id" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Company    string `json:"company"`
	Role       string `json:"role"`
	StatusSIML string `json:"status_sim_l" binding:"required"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
