package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/config"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/gate"
)

// ErrDeviceBusy is returned when another session owns the device.
var ErrDeviceBusy = errors.New("capture device busy")

// StartFunc launches the frame producer for a device.
type StartFunc func(device string, fps, width int) (io.ReadCloser, error)

// Opener hands the configured device to one session at a time.
type Opener struct {
	cfg   config.CaptureConfig
	sem   *semaphore.Weighted
	start StartFunc
}

func NewOpener(cfg config.CaptureConfig) *Opener {
	return NewOpenerWith(cfg, startFFmpeg)
}

// NewOpenerWith is NewOpener with a custom producer.
func NewOpenerWith(cfg config.CaptureConfig, start StartFunc) *Opener {
	return &Opener{cfg: cfg, sem: semaphore.NewWeighted(1), start: start}
}

// Open fails fast with ErrDeviceBusy instead of queueing behind the current
// owner. The device is released when the returned source is closed.
func (o *Opener) Open(ctx context.Context) (gate.FrameSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !o.sem.TryAcquire(1) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, o.cfg.Device)
	}

	rc, err := o.start(o.cfg.Device, o.cfg.FPS, o.cfg.FrameWidth)
	if err != nil {
		o.sem.Release(1)
		return nil, fmt.Errorf("open %s: %w", o.cfg.Device, err)
	}
	slog.Info("capture device opened", "device", o.cfg.Device)

	return newFFmpegSource(rc, func() {
		o.sem.Release(1)
		slog.Info("capture device released", "device", o.cfg.Device)
	}), nil
}
