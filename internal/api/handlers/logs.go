package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/compliance"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/recorder"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/pkg/dto"
)

const (
	dateLayout      = "2006-01-02"
	defaultLogLimit = 50
)

type LogStore interface {
	QueryLogs(ctx context.Context, from, to *time.Time, limit int) ([]models.GateLog, error)
	GetLog(ctx context.Context, id uuid.UUID) (*models.GateLog, error)
}

type SnapshotReader interface {
	GetSnapshot(ctx context.Context, key string) ([]byte, error)
}

type LogHandler struct {
	db        LogStore
	snapshots SnapshotReader
	now       func() time.Time
}

func NewLogHandler(db LogStore, snapshots SnapshotReader) *LogHandler {
	return &LogHandler{db: db, snapshots: snapshots, now: time.Now}
}

// LogRange resolves a log query to a half-open [from, to) interval in now's
// location. A nil bound is open. An explicit start_date/end_date pair wins
// over the filter preset and includes the whole end day; unknown presets
// select everything.
func LogRange(q dto.LogQuery, now time.Time) (from, to *time.Time, err error) {
	loc := now.Location()
	day := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return &t
	}

	if q.StartDate != "" || q.EndDate != "" {
		if q.StartDate == "" || q.EndDate == "" {
			return nil, nil, errors.New("start_date and end_date must be given together")
		}
		start, err := time.ParseInLocation(dateLayout, q.StartDate, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start_date %q", q.StartDate)
		}
		end, err := time.ParseInLocation(dateLayout, q.EndDate, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid end_date %q", q.EndDate)
		}
		if end.Before(start) {
			return nil, nil, errors.New("end_date is before start_date")
		}
		end = end.AddDate(0, 0, 1)
		return &start, &end, nil
	}

	y, m, d := now.Date()
	switch q.Filter {
	case "", "all":
		return nil, nil, nil
	case "today":
		return day(y, m, d), nil, nil
	case "this_week":
		// Weeks start on Monday.
		back := (int(now.Weekday()) + 6) % 7
		return day(y, m, d-back), nil, nil
	case "this_month":
		return day(y, m, 1), nil, nil
	case "this_year":
		return day(y, time.January, 1), nil, nil
	case "last_year":
		return day(y-1, time.January, 1), day(y, time.January, 1), nil
	}

	if len(q.Filter) == 4 {
		if year, err := strconv.Atoi(q.Filter); err == nil {
			return day(year, time.January, 1), day(year+1, time.January, 1), nil
		}
	}
	return nil, nil, nil
}

func (h *LogHandler) List(c *gin.Context) {
	var q dto.LogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Limit <= 0 {
		q.Limit = defaultLogLimit
	}

	from, to, err := LogRange(q, h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logs, err := h.db.QueryLogs(c.Request.Context(), from, to, q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.LogResponse, 0, len(logs))
	for _, l := range logs {
		r := dto.LogResponse{
			LogID:       l.ID,
			Timestamp:   l.Timestamp.Format(time.RFC3339),
			Status:      l.Status,
			Description: compliance.Description(l.Details),
			Name:        l.WorkerName,
			Company:     l.Company,
			Role:        l.Role,
		}
		if l.SnapshotKey != "" {
			r.SnapshotURL = recorder.SnapshotURL(l.ID.String())
		}
		resp = append(resp, r)
	}
	c.JSON(http.StatusOK, resp)
}

// Snapshot serves the frame a gate log was recorded from.
func (h *LogHandler) Snapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log id"})
		return
	}

	l, err := h.db.GetLog(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if l.SnapshotKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "log has no snapshot"})
		return
	}

	data, err := h.snapshots.GetSnapshot(c.Request.Context(), l.SnapshotKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}
