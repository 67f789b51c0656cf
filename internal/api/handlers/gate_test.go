package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/annotate"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/compliance"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/gate"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/roster"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/pkg/dto"
)

type stubEngine struct{}

func (stubEngine) Detect(img image.Image) ([]models.Detection, error) {
	return []models.Detection{
		{Label: "coverall", BBox: [4]float32{0, 0, 8, 8}},
		{Label: "helmet", BBox: [4]float32{0, 0, 4, 4}},
		{Label: "shoes", BBox: [4]float32{0, 10, 8, 16}},
	}, nil
}

func (stubEngine) LocateFaces(img image.Image) ([][4]float32, error) {
	return [][4]float32{{2, 2, 10, 10}}, nil
}

func (stubEngine) ExtractEmbedding(img image.Image, box [4]float32) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (stubEngine) Close() {}

type chanPool struct{ free chan Engine }

func newChanPool() *chanPool {
	p := &chanPool{free: make(chan Engine, 1)}
	p.free <- stubEngine{}
	return p
}

func (p *chanPool) Acquire(ctx context.Context) (Engine, error) {
	select {
	case e := <-p.free:
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *chanPool) Release(e Engine) { p.free <- e }

type stillCamera struct{ frame []byte }

func (c stillCamera) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.frame, nil
}

func (stillCamera) Close() error { return nil }

type stillOpener struct{ frame []byte }

func (o stillOpener) Open(ctx context.Context) (gate.FrameSource, error) {
	return stillCamera{frame: o.frame}, nil
}

type identityList []models.Identity

func (l identityList) LoadIdentities(ctx context.Context) ([]models.Identity, error) {
	return l, nil
}

type memorySink struct {
	mu     sync.Mutex
	events int
}

func (s *memorySink) RecordEvent(ctx context.Context, ev *models.ComplianceEvent) error {
	s.mu.Lock()
	s.events++
	s.mu.Unlock()
	return nil
}

func grayJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.RGBA{A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDashboardStreamsFramesAndStatus(t *testing.T) {
	alice := models.Identity{
		ID: uuid.New(), EmployeeCode: "E-001", Name: "Alice", Company: "Pertamina",
		Role: "Operator", LicenseActive: true, Embedding: []float32{1, 0},
	}
	rost := roster.New(identityList{alice})
	if err := rost.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	sink := &memorySink{}
	pool := newChanPool()

	h := NewGateHandler(pool, gate.Deps{
		Opener:    stillOpener{frame: grayJPEG(t)},
		Roster:    rost,
		Matcher:   roster.NewMatcher(0.5, roster.Nearest),
		Sink:      sink,
		Annotator: annotate.New(80),
	}, gate.Config{Rules: compliance.DefaultRules(), TickRate: 50})

	r := gin.New()
	r.GET("/ws/dashboard", h.Dashboard)
	srv := httptest.NewServer(r)
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/dashboard", nil)
	if err != nil {
		t.Fatal(err)
	}
	client.SetReadDeadline(time.Now().Add(5 * time.Second))

	kind, frame, err := client.ReadMessage()
	if err != nil || kind != websocket.BinaryMessage {
		t.Fatalf("first message = %d (%v)", kind, err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(frame)); err != nil {
		t.Fatalf("annotated frame is not a jpeg: %v", err)
	}

	var status dto.GateStatus
	if err := client.ReadJSON(&status); err != nil {
		t.Fatal(err)
	}
	if len(status.Users) != 1 || status.Users[0].User.Name != "Alice" || status.Users[0].PPEStatus.Overall != "compliant" {
		t.Fatalf("status = %+v", status)
	}

	client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatal("engine not returned to the pool after disconnect")
	}
	pool.Release(e)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.events != 1 {
		t.Errorf("recorded %d events, want 1 within the debounce window", sink.events)
	}
}
