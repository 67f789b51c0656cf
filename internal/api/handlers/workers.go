package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/gate"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/validation"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/pkg/dto"
)

type WorkerStore interface {
	ListWorkers(ctx context.Context) ([]models.Identity, error)
	GetWorker(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	UpdateWorker(ctx context.Context, id uuid.UUID, u models.WorkerUpdate) (*models.Identity, error)
	DeleteWorker(ctx context.Context, id uuid.UUID) error
}

// Reloader rebuilds the recognition roster after the worker table changes.
type Reloader interface {
	Reload(ctx context.Context) error
}

type WorkerHandler struct {
	db     WorkerStore
	roster Reloader
}

func NewWorkerHandler(db WorkerStore, roster Reloader) *WorkerHandler {
	return &WorkerHandler{db: db, roster: roster}
}

func (h *WorkerHandler) List(c *gin.Context) {
	workers, err := h.db.ListWorkers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.WorkerResponse, 0, len(workers))
	for _, w := range workers {
		resp = append(resp, gate.WorkerResponse(w))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *WorkerHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid worker id"})
		return
	}

	w, err := h.db.GetWorker(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "worker not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gate.WorkerResponse(*w))
}

func (h *WorkerHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid worker id"})
		return
	}

	var req dto.UpdateWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u := models.WorkerUpdate{
		EmployeeCode:  strings.TrimSpace(req.EmployeeID),
		Name:          strings.TrimSpace(req.Name),
		Company:       strings.TrimSpace(req.Company),
		Role:          strings.TrimSpace(req.Role),
		LicenseActive: dto.ParseLicenseStatus(req.StatusSIML),
	}
	if err := validation.Struct(u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.db.UpdateWorker(c.Request.Context(), id, u); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "worker not found"})
		case errors.Is(err, models.ErrDuplicateIdentity):
			c.JSON(http.StatusConflict, gin.H{"error": "employee ID '" + u.EmployeeCode + "' is already registered"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	h.reload(c.Request.Context(), "update", id)
	c.JSON(http.StatusOK, dto.StatusResponse{Status: "success", Message: "Worker data updated."})
}

func (h *WorkerHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid worker id"})
		return
	}

	if err := h.db.DeleteWorker(c.Request.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "worker not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.reload(c.Request.Context(), "delete", id)
	c.JSON(http.StatusOK, dto.StatusResponse{Status: "success", Message: "Worker deleted."})
}

// reload refreshes the roster. The write already succeeded, so a failure only
// delays recognition until the next successful reload.
func (h *WorkerHandler) reload(ctx context.Context, op string, id uuid.UUID) {
	if err := h.roster.Reload(ctx); err != nil {
		slog.Error("roster reload failed", "op", op, "worker_id", id, "error", err)
	}
}
