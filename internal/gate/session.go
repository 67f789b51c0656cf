package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/compliance"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/observability"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/roster"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/pkg/dto"
)

var errClientGone = errors.New("client disconnected")

// Config tunes both session kinds.
type Config struct {
	Rules          compliance.Rules
	DebounceWindow time.Duration
	// CommandPoll bounds how long an enrollment tick waits for a command.
	CommandPoll time.Duration
	// TickRate caps loop iterations per second; zero means unpaced.
	TickRate     float64
	StoreTimeout time.Duration
	CCTVID       *uuid.UUID
}

// Deps are the collaborators a session drives.
type Deps struct {
	Opener    SourceOpener
	Detector  Detector
	Faces     FaceEngine
	Roster    *roster.Roster
	Matcher   Matcher
	Sink      EventSink
	Store     IdentityStore
	Annotator Annotator
}

func newLimiter(tickRate float64) *rate.Limiter {
	if tickRate <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(tickRate), 1)
}

// Session is the compliance control loop of one dashboard connection.
// It is Running from Run until the client leaves, the camera fails or an
// inference call fails; then it is Stopped for good.
type Session struct {
	id       string
	conn     Conn
	deps     Deps
	cfg      Config
	throttle *Throttle
	limiter  *rate.Limiter
	now      func() time.Time
}

func NewSession(conn Conn, deps Deps, cfg Config) *Session {
	window := cfg.DebounceWindow
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Session{
		id:       uuid.NewString(),
		conn:     conn,
		deps:     deps,
		cfg:      cfg,
		throttle: NewThrottle(window),
		limiter:  newLimiter(cfg.TickRate),
		now:      time.Now,
	}
}

// Run drives the loop until a terminal condition. A client disconnect ends
// the session with a nil error; capture and detection failures are returned.
func (s *Session) Run(ctx context.Context) error {
	observability.ActiveSessions.WithLabelValues("gate").Inc()
	defer observability.ActiveSessions.WithLabelValues("gate").Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go cancelOnDone(ctx, cancel, s.conn)

	src, err := s.deps.Opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: open device: %w", ErrCapture, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("release capture device", "session", s.id, "error", err)
		}
	}()

	slog.Info("gate session running", "session", s.id)
	for {
		if clientGone(s.conn) {
			slog.Info("gate session stopped", "session", s.id, "reason", "client disconnected")
			return nil
		}
		if err := s.limiter.Wait(ctx); err != nil {
			slog.Info("gate session stopped", "session", s.id, "reason", "client disconnected")
			return nil
		}
		if err := s.tick(ctx, src); err != nil {
			if ctx.Err() != nil || errors.Is(err, errClientGone) {
				slog.Info("gate session stopped", "session", s.id, "reason", "client disconnected")
				return nil
			}
			slog.Error("gate session stopped", "session", s.id, "error", err)
			return err
		}
	}
}

func (s *Session) tick(ctx context.Context, src FrameSource) error {
	frame, img, err := readFrame(ctx, src)
	if err != nil {
		return err
	}

	start := time.Now()
	detections, err := s.deps.Detector.Detect(img)
	if err != nil {
		return fmt.Errorf("%w: detect ppe: %w", ErrDetection, err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	labels := compliance.NewLabelSet()
	for _, d := range detections {
		labels[d.Label] = struct{}{}
	}

	start = time.Now()
	boxes, err := s.deps.Faces.LocateFaces(img)
	if err != nil {
		return fmt.Errorf("%w: locate faces: %w", ErrDetection, err)
	}
	observability.InferenceDuration.WithLabelValues("faces").Observe(time.Since(start).Seconds())

	snap := s.deps.Roster.Current()
	now := s.now()
	faces := make([]models.Face, 0, len(boxes))
	status := dto.GateStatus{Users: []dto.UserStatus{}}

	for _, box := range boxes {
		start = time.Now()
		emb, err := s.deps.Faces.ExtractEmbedding(img, box)
		if err != nil {
			return fmt.Errorf("%w: extract embedding: %w", ErrDetection, err)
		}
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

		face := models.Face{BBox: box}
		identity, dist, ok := s.deps.Matcher.Match(emb, snap)
		if !ok {
			faces = append(faces, face)
			continue
		}
		face.Identity = &identity
		face.Distance = dist
		faces = append(faces, face)
		observability.FacesMatched.Inc()

		// Every identity in the frame shares the frame-global item set.
		verdict := s.cfg.Rules.Evaluate(labels, identity.LicenseActive)
		observability.Verdicts.WithLabelValues(string(verdict.Overall)).Inc()

		s.maybeRecord(ctx, identity, verdict, frame, now)
		status.Users = append(status.Users, userStatus(identity, verdict))
	}

	start = time.Now()
	out, err := s.deps.Annotator.Annotate(img, detections, faces)
	if err != nil {
		return fmt.Errorf("annotate frame: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("annotate").Observe(time.Since(start).Seconds())

	if err := s.conn.SendFrame(out); err != nil {
		return fmt.Errorf("%w: send frame: %w", errClientGone, err)
	}
	if err := s.conn.SendJSON(status); err != nil {
		return fmt.Errorf("%w: send status: %w", errClientGone, err)
	}
	observability.FramesProcessed.WithLabelValues("gate").Inc()
	return nil
}

// maybeRecord persists the verdict when the throttle allows it. Failures are
// logged only; frame delivery continues.
func (s *Session) maybeRecord(ctx context.Context, identity models.Identity, verdict compliance.Verdict, frame []byte, now time.Time) {
	if !s.throttle.ShouldRecord(identity.ID, now) {
		observability.EventsRecorded.WithLabelValues("throttled").Inc()
		return
	}

	details, err := verdict.Details()
	if err != nil {
		slog.Error("render verdict details", "session", s.id, "worker", identity.ID, "error", err)
		observability.EventsRecorded.WithLabelValues("failed").Inc()
		return
	}

	ev := &models.ComplianceEvent{
		ID:           uuid.New(),
		IdentityID:   identity.ID,
		EmployeeCode: identity.EmployeeCode,
		Name:         identity.Name,
		Timestamp:    now,
		Overall:      string(verdict.Overall),
		Details:      details,
		CCTVID:       s.cfg.CCTVID,
		Snapshot:     frame,
	}

	if s.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
		defer cancel()
	}
	if err := s.deps.Sink.RecordEvent(ctx, ev); err != nil {
		slog.Warn("record compliance event", "session", s.id, "worker", identity.ID, "error", err)
		observability.EventsRecorded.WithLabelValues("failed").Inc()
		return
	}
	observability.EventsRecorded.WithLabelValues("recorded").Inc()
	slog.Debug("compliance event recorded", "session", s.id, "worker", identity.ID, "overall", ev.Overall)
}

func userStatus(identity models.Identity, v compliance.Verdict) dto.UserStatus {
	return dto.UserStatus{
		User: WorkerResponse(identity),
		PPEStatus: dto.PPEStatus{
			Wajib:       v.Mandatory,
			Opsional:    v.Optional,
			Overall:     string(v.Overall),
			Color:       v.Overall.Color(),
			Description: v.Reasons,
		},
	}
}

// WorkerResponse renders an identity for clients.
func WorkerResponse(identity models.Identity) dto.WorkerResponse {
	r := dto.WorkerResponse{
		ID:         identity.ID,
		EmployeeID: identity.EmployeeCode,
		Name:       identity.Name,
		Company:    identity.Company,
		Role:       identity.Role,
		StatusSIML: dto.LicenseStatus(identity.LicenseActive),
	}
	if !identity.CreatedAt.IsZero() {
		r.CreatedAt = identity.CreatedAt.Format(time.RFC3339)
	}
	return r
}

// readFrame blocks for the next frame and decodes it. Any failure is a
// capture failure.
func readFrame(ctx context.Context, src FrameSource) ([]byte, image.Image, error) {
	frame, err := src.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("%w: read frame: %w", ErrCapture, err)
	}
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decode frame: %w", ErrCapture, err)
	}
	return frame, img, nil
}

func clientGone(conn Conn) bool {
	select {
	case <-conn.Done():
		return true
	default:
		return false
	}
}

// cancelOnDone ends the session context when the client goes away, which
// also unblocks a pending frame read.
func cancelOnDone(ctx context.Context, cancel context.CancelFunc, conn Conn) {
	select {
	case <-conn.Done():
		cancel()
	case <-ctx.Done():
	}
}
