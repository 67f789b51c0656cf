// Package recorder persists compliance events and fans them out. The store
// write is the only step whose failure is reported to the caller; snapshot
// upload, stream publish and relay notification are best effort.
//
// The event row is written before its snapshot is uploaded.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/observability"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/storage"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/pkg/dto"
)

type EventStore interface {
	InsertEvent(ctx context.Context, ev *models.ComplianceEvent) error
	// ClearSnapshot drops the snapshot key of an event whose upload failed.
	ClearSnapshot(ctx context.Context, eventID uuid.UUID) error
}

type SnapshotStore interface {
	PutSnapshot(ctx context.Context, key string, frame []byte) error
}

type Publisher interface {
	PublishEvent(ctx context.Context, rec dto.EventRecord) error
}

type Notifier interface {
	NotifyVerdict(rec dto.EventRecord) error
}

type Config struct {
	// FailureThreshold consecutive store failures open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// SnapshotTimeout bounds the upload, independently of the caller's deadline.
	SnapshotTimeout time.Duration
}

type Recorder struct {
	store     EventStore
	snapshots SnapshotStore
	publisher Publisher
	notifier  Notifier
	breaker   *gobreaker.CircuitBreaker[struct{}]

	snapshotTimeout time.Duration
}

// New builds a recorder. snapshots, publisher and notifier may be nil.
func New(store EventStore, snapshots SnapshotStore, publisher Publisher, notifier Notifier, cfg Config) *Recorder {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.SnapshotTimeout == 0 {
		cfg.SnapshotTimeout = time.Second
	}
	threshold := cfg.FailureThreshold

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "event-store",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			observability.BreakerOpen.Set(boolGauge(to == gobreaker.StateOpen))
		},
	})

	return &Recorder{
		store:     store,
		snapshots: snapshots,
		publisher: publisher,
		notifier:  notifier,
		breaker:   breaker,

		snapshotTimeout: cfg.SnapshotTimeout,
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RecordEvent stores ev and announces it. The snapshot key is written with
// the row; when the upload then fails the key is cleared again and the event
// is announced without a snapshot.
func (r *Recorder) RecordEvent(ctx context.Context, ev *models.ComplianceEvent) error {
	upload := r.snapshots != nil && len(ev.Snapshot) > 0
	if upload {
		ev.SnapshotKey = storage.SnapshotKey(ev.ID, ev.Timestamp)
	} else {
		ev.SnapshotKey = ""
	}

	_, err := r.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, r.store.InsertEvent(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("record event %s: %w", ev.ID, err)
	}

	if upload {
		r.storeSnapshot(ctx, ev)
	}

	rec := EventRecord(ev)
	if r.publisher != nil {
		if err := r.publisher.PublishEvent(ctx, rec); err != nil {
			slog.Warn("publish event", "event", ev.ID, "error", err)
		}
	}
	if r.notifier != nil {
		if err := r.notifier.NotifyVerdict(rec); err != nil {
			slog.Warn("notify gate relay", "event", ev.ID, "error", err)
		}
	}
	return nil
}

// storeSnapshot uploads the frame of a stored event. It runs detached from
// the caller's cancellation, bounded by the recorder's own timeout.
func (r *Recorder) storeSnapshot(ctx context.Context, ev *models.ComplianceEvent) {
	upCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.snapshotTimeout)
	defer cancel()

	err := r.snapshots.PutSnapshot(upCtx, ev.SnapshotKey, ev.Snapshot)
	if err == nil {
		return
	}
	slog.Warn("store event snapshot", "event", ev.ID, "error", err)
	ev.SnapshotKey = ""

	clearCtx, cancelClear := context.WithTimeout(context.WithoutCancel(ctx), r.snapshotTimeout)
	defer cancelClear()
	if err := r.store.ClearSnapshot(clearCtx, ev.ID); err != nil {
		slog.Warn("clear snapshot key", "event", ev.ID, "error", err)
	}
}

// State reports the breaker state for health checks.
func (r *Recorder) State() gobreaker.State {
	return r.breaker.State()
}

// EventRecord is the client view of a stored event.
func EventRecord(ev *models.ComplianceEvent) dto.EventRecord {
	rec := dto.EventRecord{
		ID:         ev.ID,
		WorkerID:   ev.IdentityID,
		EmployeeID: ev.EmployeeCode,
		Name:       ev.Name,
		Timestamp:  ev.Timestamp.Format(time.RFC3339),
		Overall:    ev.Overall,
		CCTVID:     ev.CCTVID,
	}
	if ev.SnapshotKey != "" {
		rec.SnapshotURL = SnapshotURL(ev.ID.String())
	}
	return rec
}

// SnapshotURL is the API path serving a log's snapshot.
func SnapshotURL(logID string) string {
	return "/api/logs/" + logID + "/snapshot"
}
