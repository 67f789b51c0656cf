// Package capture reads JPEG frames from a camera through an ffmpeg pipe.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

const maxFrameSize = 10 * 1024 * 1024

var errFrameTooLarge = errors.New("jpeg frame too large")

// ffmpegArgs builds the command line that turns device into an MJPEG
// stream on stdout.
func ffmpegArgs(device string, fps, width int) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	switch {
	case strings.HasPrefix(device, "/dev/video"):
		args = append(args, "-f", "v4l2")
	case strings.HasPrefix(device, "rtsp://"), strings.HasPrefix(device, "rtsps://"):
		args = append(args,
			"-rtsp_transport", "tcp",
			"-timeout", "5000000",
		)
	case strings.HasPrefix(device, "http://"), strings.HasPrefix(device, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}

	vf := fmt.Sprintf("fps=%d", fps)
	if width > 0 {
		vf += fmt.Sprintf(",scale=%d:-2", width)
	}
	return append(args,
		"-i", device,
		"-vf", vf,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

// startFFmpeg launches ffmpeg for device. Closing the returned reader kills
// the process and reaps it.
func startFFmpeg(device string, fps, width int) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(device, fps, width)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "device", device, "output", scanner.Text())
		}
	}()

	return &process{ReadCloser: stdout, cmd: cmd, cancel: cancel}, nil
}

type process struct {
	io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
	once   sync.Once
}

func (p *process) Close() error {
	p.once.Do(func() {
		p.cancel()
		_ = p.cmd.Wait()
	})
	return nil
}

// FFmpegSource yields whole JPEG frames from an MJPEG byte stream. A reader
// goroutine keeps at most one pending frame, so a slow consumer always gets
// a recent frame instead of a backlog.
type FFmpegSource struct {
	rc      io.ReadCloser
	frames  chan []byte
	done    chan struct{}
	release func()

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func newFFmpegSource(rc io.ReadCloser, release func()) *FFmpegSource {
	s := &FFmpegSource{
		rc:      rc,
		frames:  make(chan []byte, 1),
		done:    make(chan struct{}),
		release: release,
	}
	go s.readLoop()
	return s
}

func (s *FFmpegSource) readLoop() {
	defer close(s.done)
	r := bufio.NewReaderSize(s.rc, 512*1024)
	for {
		frame, err := nextJPEG(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			s.errMu.Lock()
			s.err = err
			s.errMu.Unlock()
			return
		}
		// Replace a pending frame the consumer has not picked up yet.
		select {
		case s.frames <- frame:
		default:
			select {
			case <-s.frames:
			default:
			}
			s.frames <- frame
		}
	}
}

// Next blocks until a frame is available, the stream ends or ctx is done.
func (s *FFmpegSource) Next(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		// Drain a frame that raced with the end of the stream.
		select {
		case frame := <-s.frames:
			return frame, nil
		default:
		}
		s.errMu.Lock()
		defer s.errMu.Unlock()
		return nil, fmt.Errorf("capture stream ended: %w", s.err)
	}
}

// Close stops the stream and releases the device. It is safe to call more
// than once.
func (s *FFmpegSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.rc.Close()
		<-s.done
		if s.release != nil {
			s.release()
		}
	})
	return err
}

// nextJPEG returns the next SOI..EOI span in r.
func nextJPEG(r *bufio.Reader) ([]byte, error) {
	if err := findJPEGStart(r); err != nil {
		return nil, err
	}
	return readUntilJPEGEnd(r)
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		// 0xFF may repeat as fill before the marker byte.
		for b == 0xFF {
			if b, err = r.ReadByte(); err != nil {
				return err
			}
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)
		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			if next == 0xFF {
				// Fill byte; the marker may follow the next 0xFF.
				_ = r.UnreadByte()
				continue
			}
			buf.WriteByte(next)
			if next == 0xD9 {
				return buf.Bytes(), nil
			}
		}
		if buf.Len() > maxFrameSize {
			return nil, fmt.Errorf("%w: %d bytes", errFrameTooLarge, buf.Len())
		}
	}
}
