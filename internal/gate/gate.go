// Package gate runs the per-connection control loops of the access gate:
// the compliance session that evaluates every frame and the enrollment
// session that adds workers to the roster.
//
// Both loops are single-threaded per connection. Frame acquisition blocks,
// inference runs inline, and the only state shared between sessions is the
// roster, which is read through immutable snapshots.
package gate

import (
	"context"
	"errors"
	"image"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/roster"
)

var (
	// ErrCapture is returned when the camera cannot be opened or a read fails.
	ErrCapture = errors.New("capture failure")
	// ErrDetection is returned when an inference call fails.
	ErrDetection = errors.New("detection failure")
)

// Conn is the client side of a session.
type Conn interface {
	// SendFrame sends one encoded frame as a binary message.
	SendFrame(frame []byte) error
	// SendJSON sends v as a text message.
	SendJSON(v any) error
	// Messages delivers text messages received from the client.
	Messages() <-chan []byte
	// Done is closed when the client goes away.
	Done() <-chan struct{}
}

// FrameSource is an open capture device.
type FrameSource interface {
	// Next blocks until the next JPEG frame is available.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// SourceOpener acquires the capture device for one session.
type SourceOpener interface {
	Open(ctx context.Context) (FrameSource, error)
}

// Detector finds PPE items in a frame.
type Detector interface {
	Detect(img image.Image) ([]models.Detection, error)
}

// FaceEngine locates faces and extracts their embeddings.
type FaceEngine interface {
	LocateFaces(img image.Image) ([][4]float32, error)
	ExtractEmbedding(img image.Image, box [4]float32) ([]float32, error)
}

// Matcher resolves an embedding against a roster snapshot.
type Matcher interface {
	Match(embedding []float32, snap *roster.Snapshot) (models.Identity, float64, bool)
}

// EventSink persists compliance events.
type EventSink interface {
	RecordEvent(ctx context.Context, ev *models.ComplianceEvent) error
}

// IdentityStore appends enrolled identities.
type IdentityStore interface {
	AppendIdentity(ctx context.Context, req models.EnrollmentRequest) (*models.Identity, error)
}

// Annotator draws detections and identities onto a frame and encodes it.
type Annotator interface {
	Annotate(img image.Image, detections []models.Detection, faces []models.Face) ([]byte, error)
}
