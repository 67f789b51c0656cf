package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/observability"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/validation"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/pkg/dto"
)

const DefaultCommandPoll = 10 * time.Millisecond

const (
	MsgNoFace        = "no face detected"
	MsgMultipleFaces = "multiple faces detected"
)

type EnrollState int32

const (
	EnrollIdle EnrollState = iota
	EnrollCapturing
	EnrollCommitted
	EnrollRejected
)

func (s EnrollState) String() string {
	switch s {
	case EnrollIdle:
		return "idle"
	case EnrollCapturing:
		return "capturing"
	case EnrollCommitted:
		return "committed"
	case EnrollRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Enrollment streams raw frames to an operator and turns capture commands
// into new roster identities.
type Enrollment struct {
	id      string
	conn    Conn
	deps    Deps
	cfg     Config
	limiter *rate.Limiter

	state atomic.Int32
}

func NewEnrollment(conn Conn, deps Deps, cfg Config) *Enrollment {
	if cfg.CommandPoll <= 0 {
		cfg.CommandPoll = DefaultCommandPoll
	}
	return &Enrollment{
		id:      uuid.NewString(),
		conn:    conn,
		deps:    deps,
		cfg:     cfg,
		limiter: newLimiter(cfg.TickRate),
	}
}

func (e *Enrollment) State() EnrollState {
	return EnrollState(e.state.Load())
}

func (e *Enrollment) setState(s EnrollState) {
	e.state.Store(int32(s))
}

// Run loops until the client leaves or the camera or an inference call fails.
func (e *Enrollment) Run(ctx context.Context) error {
	observability.ActiveSessions.WithLabelValues("enroll").Inc()
	defer observability.ActiveSessions.WithLabelValues("enroll").Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go cancelOnDone(ctx, cancel, e.conn)

	src, err := e.deps.Opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: open device: %w", ErrCapture, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("release capture device", "session", e.id, "error", err)
		}
	}()

	slog.Info("enrollment session running", "session", e.id)
	for {
		cmd, gone := e.poll(ctx)
		if gone || clientGone(e.conn) {
			slog.Info("enrollment session stopped", "session", e.id, "reason", "client disconnected")
			return nil
		}

		frame, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: read frame: %w", ErrCapture, err)
		}

		if cmd != nil {
			if err := e.capture(ctx, frame, cmd); err != nil {
				if errors.Is(err, errClientGone) || ctx.Err() != nil {
					return nil
				}
				slog.Error("enrollment session stopped", "session", e.id, "error", err)
				return err
			}
		}

		if err := e.conn.SendFrame(frame); err != nil {
			slog.Info("enrollment session stopped", "session", e.id, "reason", "client disconnected")
			return nil
		}
		observability.FramesProcessed.WithLabelValues("enroll").Inc()

		if err := e.limiter.Wait(ctx); err != nil {
			return nil
		}
	}
}

// poll waits up to CommandPoll for a client message. gone is true once the
// client has disconnected.
func (e *Enrollment) poll(ctx context.Context) (cmd *dto.EnrollCommand, gone bool) {
	timer := time.NewTimer(e.cfg.CommandPoll)
	defer timer.Stop()

	select {
	case msg, ok := <-e.conn.Messages():
		if !ok {
			return nil, true
		}
		return e.parseCommand(msg), false
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, true
	}
}

// parseCommand returns nil for malformed and non-capture messages.
func (e *Enrollment) parseCommand(msg []byte) *dto.EnrollCommand {
	var cmd dto.EnrollCommand
	if err := json.Unmarshal(msg, &cmd); err != nil {
		slog.Debug("ignore malformed command", "session", e.id, "error", err)
		return nil
	}
	if cmd.Command != dto.CommandCapture {
		slog.Debug("ignore command", "session", e.id, "command", cmd.Command)
		return nil
	}
	return &cmd
}

// capture runs one attempt against frame and replies exactly once. Only a
// detection failure or a dead client is returned.
func (e *Enrollment) capture(ctx context.Context, frame []byte, cmd *dto.EnrollCommand) error {
	e.setState(EnrollCapturing)

	reply, err := e.attempt(ctx, frame, cmd)
	if err != nil {
		e.setState(EnrollRejected)
		observability.Enrollments.WithLabelValues("failed").Inc()
		return err
	}

	if reply.Status == "success" {
		e.setState(EnrollCommitted)
		observability.Enrollments.WithLabelValues("committed").Inc()
	} else {
		e.setState(EnrollRejected)
		observability.Enrollments.WithLabelValues("rejected").Inc()
	}
	slog.Info("enrollment attempt", "session", e.id, "employee_id", cmd.EmployeeID, "state", e.State().String(), "message", reply.Message)

	sendErr := e.conn.SendJSON(reply)
	e.setState(EnrollIdle)
	if sendErr != nil {
		return fmt.Errorf("%w: send reply: %w", errClientGone, sendErr)
	}
	return nil
}

func (e *Enrollment) attempt(ctx context.Context, frame []byte, cmd *dto.EnrollCommand) (dto.EnrollReply, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return dto.EnrollReply{}, fmt.Errorf("%w: decode frame: %w", ErrCapture, err)
	}

	boxes, err := e.deps.Faces.LocateFaces(img)
	if err != nil {
		return dto.EnrollReply{}, fmt.Errorf("%w: locate faces: %w", ErrDetection, err)
	}
	switch {
	case len(boxes) == 0:
		return reject(MsgNoFace), nil
	case len(boxes) > 1:
		return reject(MsgMultipleFaces), nil
	}

	emb, err := e.deps.Faces.ExtractEmbedding(img, boxes[0])
	if err != nil {
		return dto.EnrollReply{}, fmt.Errorf("%w: extract embedding: %w", ErrDetection, err)
	}

	req := models.EnrollmentRequest{
		EmployeeCode:  strings.TrimSpace(cmd.EmployeeID),
		Name:          strings.TrimSpace(cmd.Name),
		Company:       strings.TrimSpace(cmd.Company),
		Role:          strings.TrimSpace(cmd.Role),
		LicenseActive: dto.ParseLicenseStatus(cmd.StatusSIML),
		Embedding:     emb,
	}
	if err := validation.Struct(req); err != nil {
		return reject("invalid enrollment: " + err.Error()), nil
	}

	storeCtx := ctx
	if e.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(ctx, e.cfg.StoreTimeout)
		defer cancel()
	}
	identity, err := e.deps.Store.AppendIdentity(storeCtx, req)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateIdentity) {
			return reject(fmt.Sprintf("employee ID '%s' is already registered", req.EmployeeCode)), nil
		}
		slog.Error("append identity", "session", e.id, "employee_id", req.EmployeeCode, "error", err)
		return reject("failed to save worker: " + err.Error()), nil
	}

	// The identity is committed; a failed reload leaves the old snapshot in
	// place until the next successful one.
	if err := e.deps.Roster.Reload(ctx); err != nil {
		slog.Error("reload roster after enrollment", "session", e.id, "employee_id", req.EmployeeCode, "error", err)
	}

	return dto.EnrollReply{
		Status:  "success",
		Message: fmt.Sprintf("worker %s (%s) enrolled", identity.Name, identity.EmployeeCode),
	}, nil
}

func reject(msg string) dto.EnrollReply {
	return dto.EnrollReply{Status: "error", Message: msg}
}
