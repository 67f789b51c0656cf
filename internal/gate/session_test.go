package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/compliance"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/roster"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/pkg/dto"
)

type sessionFixture struct {
	conn      *fakeConn
	src       *fakeSource
	detector  *fakeDetector
	faces     *fakeFaces
	sink      *fakeSink
	annotator *fakeAnnotator
	alice     models.Identity
	deps      Deps
}

func newSessionFixture(t *testing.T, stopAfterStatuses int) *sessionFixture {
	t.Helper()
	alice := models.Identity{
		ID:            uuid.New(),
		EmployeeCode:  "E-001",
		Name:          "Alice",
		Company:       "Pertamina",
		Role:          "Operator",
		LicenseActive: true,
		Embedding:     []float32{1, 0},
	}
	loader := &memLoader{identities: []models.Identity{alice}}

	f := &sessionFixture{
		conn:      newFakeConn(func(_, jsons int) bool { return jsons >= stopAfterStatuses }),
		src:       &fakeSource{frame: testJPEG(t)},
		detector:  &fakeDetector{labels: []string{"coverall", "helmet", "shoes"}},
		faces:     &fakeFaces{boxes: [][4]float32{{2, 2, 10, 10}}, embedding: []float32{1, 0.05}},
		sink:      &fakeSink{},
		annotator: &fakeAnnotator{},
		alice:     alice,
	}
	f.deps = Deps{
		Opener:    &fakeOpener{src: f.src},
		Detector:  f.detector,
		Faces:     f.faces,
		Roster:    loadedRoster(t, loader),
		Matcher:   roster.NewMatcher(0.5, roster.Nearest),
		Sink:      f.sink,
		Annotator: f.annotator,
	}
	return f
}

// steppedClock advances by step on every call.
func steppedClock(step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		now := t0.Add(time.Duration(n) * step)
		n++
		return now
	}
}

func runSession(t *testing.T, s *Session) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}

func TestSessionRecordsThrottledVerdicts(t *testing.T) {
	f := newSessionFixture(t, 8)
	s := NewSession(f.conn, f.deps, Config{Rules: compliance.DefaultRules()})
	s.now = steppedClock(10 * time.Second)

	if err := runSession(t, s); err != nil {
		t.Fatalf("Run() = %v, want nil on disconnect", err)
	}

	// Ticks at 0s..70s: recorded at 0s, suppressed through 60s, recorded at 70s.
	events := f.sink.recorded()
	if len(events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(events))
	}
	if !events[0].Timestamp.Equal(t0) || !events[1].Timestamp.Equal(t0.Add(70*time.Second)) {
		t.Errorf("event times = %v, %v", events[0].Timestamp, events[1].Timestamp)
	}
	ev := events[0]
	if ev.IdentityID != f.alice.ID || ev.Overall != string(compliance.Compliant) {
		t.Errorf("event = %+v", ev)
	}
	if len(ev.Snapshot) == 0 {
		t.Error("event carries no snapshot frame")
	}
	if got := compliance.Description(ev.Details); got != compliance.ReasonFullyCompliant {
		t.Errorf("description = %q", got)
	}

	frames, jsons := f.conn.sent()
	if len(frames) != 8 || len(jsons) != 8 {
		t.Fatalf("sent %d frames and %d statuses, want 8 each", len(frames), len(jsons))
	}
	if string(frames[0]) != "annotated" {
		t.Errorf("frame = %q, want annotated output", frames[0])
	}
	status, ok := jsons[0].(dto.GateStatus)
	if !ok || len(status.Users) != 1 {
		t.Fatalf("status = %#v", jsons[0])
	}
	u := status.Users[0]
	if u.User.EmployeeID != "E-001" || u.User.StatusSIML != dto.LicenseActive {
		t.Errorf("user = %+v", u.User)
	}
	if u.PPEStatus.Overall != "compliant" || u.PPEStatus.Color != "hijau" || !u.PPEStatus.Wajib["helmet"] {
		t.Errorf("ppe status = %+v", u.PPEStatus)
	}
	if !f.src.isClosed() {
		t.Error("capture device not released")
	}
}

func TestSessionViolationVerdict(t *testing.T) {
	f := newSessionFixture(t, 1)
	f.detector.labels = []string{"helmet", "gloves"}
	s := NewSession(f.conn, f.deps, Config{Rules: compliance.DefaultRules()})

	if err := runSession(t, s); err != nil {
		t.Fatal(err)
	}
	_, jsons := f.conn.sent()
	status := jsons[0].(dto.GateStatus)
	got := status.Users[0].PPEStatus
	if got.Overall != "violation" || got.Color != "merah" {
		t.Fatalf("overall = %s/%s", got.Overall, got.Color)
	}
	want := []string{"missing coverall", "missing shoes"}
	if len(got.Description) != len(want) {
		t.Fatalf("description = %v", got.Description)
	}
	for i := range want {
		if got.Description[i] != want[i] {
			t.Errorf("description[%d] = %q, want %q", i, got.Description[i], want[i])
		}
	}
}

func TestSessionUnknownFace(t *testing.T) {
	f := newSessionFixture(t, 3)
	f.faces.embedding = []float32{0, 1}
	s := NewSession(f.conn, f.deps, Config{Rules: compliance.DefaultRules()})

	if err := runSession(t, s); err != nil {
		t.Fatal(err)
	}
	if n := len(f.sink.recorded()); n != 0 {
		t.Fatalf("recorded %d events for an unknown face", n)
	}
	_, jsons := f.conn.sent()
	if users := jsons[0].(dto.GateStatus).Users; len(users) != 0 {
		t.Fatalf("status users = %v, want empty", users)
	}
	if faces := f.annotator.faces[0]; len(faces) != 1 || faces[0].Identity != nil {
		t.Fatalf("annotated faces = %+v, want one unknown", faces)
	}
}

func TestSessionItemsAreSharedAcrossIdentities(t *testing.T) {
	f := newSessionFixture(t, 1)
	f.detector.labels = []string{"coverall", "helmet"}
	bob := models.Identity{
		ID:            uuid.New(),
		EmployeeCode:  "E-002",
		Name:          "Bob",
		Company:       "Pertamina",
		Role:          "Welder",
		LicenseActive: true,
		Embedding:     []float32{0, 1},
	}
	f.deps.Roster = loadedRoster(t, &memLoader{identities: []models.Identity{f.alice, bob}})
	f.faces.boxes = [][4]float32{{2, 2, 10, 10}, {20, 2, 28, 10}}
	f.faces.perBox = [][]float32{{1, 0.05}, {0.05, 1}}
	s := NewSession(f.conn, f.deps, Config{Rules: compliance.DefaultRules()})

	if err := runSession(t, s); err != nil {
		t.Fatal(err)
	}

	_, jsons := f.conn.sent()
	users := jsons[0].(dto.GateStatus).Users
	if len(users) != 2 || users[0].User.Name != "Alice" || users[1].User.Name != "Bob" {
		t.Fatalf("status users = %+v", users)
	}
	for _, u := range users {
		got := u.PPEStatus
		if got.Overall != "violation" || len(got.Description) != 1 || got.Description[0] != "missing shoes" {
			t.Errorf("%s: ppe status = %+v", u.User.Name, got)
		}
		if !got.Wajib["coverall"] || !got.Wajib["helmet"] || got.Wajib["shoes"] {
			t.Errorf("%s: wajib = %v", u.User.Name, got.Wajib)
		}
	}

	events := f.sink.recorded()
	if len(events) != 2 {
		t.Fatalf("recorded %d events, want one per identity", len(events))
	}
	if events[0].IdentityID != f.alice.ID || events[1].IdentityID != bob.ID {
		t.Errorf("event identities = %s, %s", events[0].IdentityID, events[1].IdentityID)
	}
}

func TestSessionSameIdentityTwiceInFrame(t *testing.T) {
	f := newSessionFixture(t, 1)
	f.faces.boxes = [][4]float32{{2, 2, 10, 10}, {20, 2, 28, 10}}
	f.faces.perBox = [][]float32{{1, 0.05}, {1, 0.1}}
	s := NewSession(f.conn, f.deps, Config{Rules: compliance.DefaultRules()})

	if err := runSession(t, s); err != nil {
		t.Fatal(err)
	}

	if n := len(f.sink.recorded()); n != 1 {
		t.Fatalf("recorded %d events, want 1 for a repeated identity", n)
	}
	_, jsons := f.conn.sent()
	users := jsons[0].(dto.GateStatus).Users
	if len(users) != 2 || users[0].User.ID != f.alice.ID || users[1].User.ID != f.alice.ID {
		t.Fatalf("status users = %+v, want Alice twice", users)
	}
	faces := f.annotator.faces[0]
	if len(faces) != 2 {
		t.Fatalf("annotated %d faces, want 2", len(faces))
	}
	for i, face := range faces {
		if face.Identity == nil || face.Identity.ID != f.alice.ID {
			t.Errorf("face %d identity = %+v", i, face.Identity)
		}
	}
}

func TestSessionSinkFailureKeepsStreaming(t *testing.T) {
	f := newSessionFixture(t, 4)
	f.sink.err = errors.New("db down")
	s := NewSession(f.conn, f.deps, Config{Rules: compliance.DefaultRules()})
	s.now = steppedClock(61 * time.Second)

	if err := runSession(t, s); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if frames, _ := f.conn.sent(); len(frames) != 4 {
		t.Fatalf("sent %d frames, want 4", len(frames))
	}
	if n := len(f.sink.recorded()); n != 4 {
		t.Fatalf("attempted %d writes, want 4", n)
	}
}

func TestSessionTerminalFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *sessionFixture)
		want  error
	}{
		{
			name:  "device unavailable",
			setup: func(f *sessionFixture) { f.deps.Opener = &fakeOpener{err: errors.New("busy")} },
			want:  ErrCapture,
		},
		{
			name:  "read failure",
			setup: func(f *sessionFixture) { f.src.err = errors.New("eof") },
			want:  ErrCapture,
		},
		{
			name:  "undecodable frame",
			setup: func(f *sessionFixture) { f.src.frame = []byte("not a jpeg") },
			want:  ErrCapture,
		},
		{
			name:  "detector failure",
			setup: func(f *sessionFixture) { f.detector.err = errors.New("onnx") },
			want:  ErrDetection,
		},
		{
			name:  "face locator failure",
			setup: func(f *sessionFixture) { f.faces.err = errors.New("onnx") },
			want:  ErrDetection,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t, 100)
			tt.setup(f)
			s := NewSession(f.conn, f.deps, Config{Rules: compliance.DefaultRules()})

			err := runSession(t, s)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Run() = %v, want %v", err, tt.want)
			}
			if frames, _ := f.conn.sent(); len(frames) != 0 {
				t.Errorf("sent %d frames after failure", len(frames))
			}
		})
	}
}
