package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/pkg/dto"
)

type CCTVStore interface {
	ListCCTV(ctx context.Context) ([]models.CCTV, error)
	CreateCCTV(ctx context.Context, c *models.CCTV) error
}

type CCTVHandler struct {
	db CCTVStore
}

func NewCCTVHandler(db CCTVStore) *CCTVHandler {
	return &CCTVHandler{db: db}
}

func (h *CCTVHandler) Create(c *gin.Context) {
	var req dto.CreateCCTVRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cam := &models.CCTV{
		Name:      req.Name,
		IPAddress: req.IPAddress,
		Location:  req.Location,
		Port:      req.Port,
		Username:  req.Username,
		Password:  req.Password,
	}
	if err := h.db.CreateCCTV(c.Request.Context(), cam); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.StatusResponse{Status: "success", Message: "CCTV added."})
}

func (h *CCTVHandler) List(c *gin.Context) {
	cams, err := h.db.ListCCTV(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.CCTVResponse, 0, len(cams))
	for _, cam := range cams {
		resp = append(resp, dto.CCTVResponse{
			ID:        cam.ID,
			Name:      cam.Name,
			IPAddress: cam.IPAddress,
			Location:  cam.Location,
			Port:      cam.Port,
			Username:  cam.Username,
		})
	}
	c.JSON(http.StatusOK, resp)
}
