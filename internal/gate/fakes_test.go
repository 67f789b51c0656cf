package gate

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/roster"
)

var errClosed = errors.New("connection closed")

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test frame: %v", err)
	}
	return buf.Bytes()
}

// fakeConn records everything sent and closes itself once stop reports true.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	jsons  []any
	msgs   chan []byte
	done   chan struct{}
	closed bool
	stop   func(frames, jsons int) bool
}

func newFakeConn(stop func(frames, jsons int) bool, msgs ...string) *fakeConn {
	c := &fakeConn{
		msgs: make(chan []byte, len(msgs)+1),
		done: make(chan struct{}),
		stop: stop,
	}
	for _, m := range msgs {
		c.msgs <- []byte(m)
	}
	return c
}

func (c *fakeConn) SendFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.frames = append(c.frames, frame)
	c.checkStop()
	return nil
}

func (c *fakeConn) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.jsons = append(c.jsons, v)
	c.checkStop()
	return nil
}

func (c *fakeConn) checkStop() {
	if c.stop != nil && c.stop(len(c.frames), len(c.jsons)) {
		c.closed = true
		close(c.done)
	}
}

func (c *fakeConn) Messages() <-chan []byte { return c.msgs }
func (c *fakeConn) Done() <-chan struct{}   { return c.done }

func (c *fakeConn) sent() ([][]byte, []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...), append([]any(nil), c.jsons...)
}

type fakeSource struct {
	frame []byte
	err   error

	mu     sync.Mutex
	closed bool
}

func (s *fakeSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.frame, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeOpener struct {
	src *fakeSource
	err error
}

func (o *fakeOpener) Open(ctx context.Context) (FrameSource, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.src, nil
}

type fakeDetector struct {
	labels []string
	err    error
}

func (d *fakeDetector) Detect(img image.Image) ([]models.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make([]models.Detection, 0, len(d.labels))
	for _, l := range d.labels {
		out = append(out, models.Detection{Label: l, BBox: [4]float32{0, 0, 4, 4}, Confidence: 0.9})
	}
	return out, nil
}

type fakeFaces struct {
	boxes     [][4]float32
	embedding []float32
	// perBox, when set, holds the embedding of boxes[i] at index i.
	perBox [][]float32
	err    error
}

func (f *fakeFaces) LocateFaces(img image.Image) ([][4]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.boxes, nil
}

func (f *fakeFaces) ExtractEmbedding(img image.Image, box [4]float32) ([]float32, error) {
	for i, b := range f.boxes {
		if b == box && i < len(f.perBox) {
			return f.perBox[i], nil
		}
	}
	return f.embedding, nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []*models.ComplianceEvent
	err    error
}

func (s *fakeSink) RecordEvent(ctx context.Context, ev *models.ComplianceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *fakeSink) recorded() []*models.ComplianceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.ComplianceEvent(nil), s.events...)
}

type fakeAnnotator struct {
	mu    sync.Mutex
	faces [][]models.Face
}

func (a *fakeAnnotator) Annotate(img image.Image, dets []models.Detection, faces []models.Face) ([]byte, error) {
	a.mu.Lock()
	a.faces = append(a.faces, faces)
	a.mu.Unlock()
	return []byte("annotated"), nil
}

// memLoader backs both the roster and the identity store.
type memLoader struct {
	mu         sync.Mutex
	identities []models.Identity
	loadErr    error
	appendErr  error
	appended   []models.EnrollmentRequest
}

func (m *memLoader) LoadIdentities(ctx context.Context) ([]models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]models.Identity(nil), m.identities...), nil
}

func (m *memLoader) AppendIdentity(ctx context.Context, req models.EnrollmentRequest) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended = append(m.appended, req)
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	id := models.Identity{
		ID:            uuid.New(),
		EmployeeCode:  req.EmployeeCode,
		Name:          req.Name,
		Company:       req.Company,
		Role:          req.Role,
		LicenseActive: req.LicenseActive,
		Embedding:     req.Embedding,
	}
	m.identities = append(m.identities, id)
	return &id, nil
}

func loadedRoster(t *testing.T, loader *memLoader) *roster.Roster {
	t.Helper()
	r := roster.New(loader)
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("reload roster: %v", err)
	}
	return r
}
