package handlers

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/api/ws"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/gate"
)

// Engine is one set of inference sessions, owned by a single gate session
// at a time.
type Engine interface {
	gate.Detector
	gate.FaceEngine
	Close()
}

type EnginePool interface {
	Acquire(ctx context.Context) (Engine, error)
	Release(e Engine)
}

// GateHandler serves the dashboard and enrollment websockets. Deps carries
// everything but the inference engine, which is taken from the pool for the
// lifetime of each connection.
type GateHandler struct {
	engines EnginePool
	deps    gate.Deps
	cfg     gate.Config
}

func NewGateHandler(engines EnginePool, deps gate.Deps, cfg gate.Config) *GateHandler {
	return &GateHandler{engines: engines, deps: deps, cfg: cfg}
}

// runner is implemented by gate.Session and gate.Enrollment.
type runner interface {
	Run(ctx context.Context) error
}

func (h *GateHandler) Dashboard(c *gin.Context) {
	h.serve(c, "dashboard", func(conn gate.Conn, deps gate.Deps) runner {
		return gate.NewSession(conn, deps, h.cfg)
	})
}

func (h *GateHandler) Enroll(c *gin.Context) {
	h.serve(c, "enroll", func(conn gate.Conn, deps gate.Deps) runner {
		return gate.NewEnrollment(conn, deps, h.cfg)
	})
}

func (h *GateHandler) serve(c *gin.Context, kind string, build func(gate.Conn, gate.Deps) runner) {
	conn, err := ws.Accept(c.Writer, c.Request)
	if err != nil {
		slog.Error("ws upgrade failed", "session", kind, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		select {
		case <-conn.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	engine, err := h.engines.Acquire(ctx)
	if err != nil {
		slog.Warn("no inference engine for session", "session", kind, "error", err)
		conn.CloseWithError(err)
		return
	}
	defer h.engines.Release(engine)

	deps := h.deps
	deps.Detector = engine
	deps.Faces = engine

	if err := build(conn, deps).Run(ctx); err != nil {
		slog.Error("session failed", "session", kind, "error", err)
		conn.CloseWithError(err)
		return
	}
	conn.Close()
}
