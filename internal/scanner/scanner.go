// Package scanner turns camera frames, uploaded images, and typed text into
// raw QR payload strings.
//
// A Source is in exactly one capture mode at a time. Upload and manual scans
// enter and leave their mode within a single call; camera scans hold the
// camera mode for the lifetime of a CaptureSession.
package scanner

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"sync"
	"time"

	"attendance-backend/internal/clock"
)

var (
	ErrBusy             = errors.New("scanner is already capturing in another mode")
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrDeviceNotFound   = errors.New("no camera found")
	ErrNotReady         = errors.New("capture surface not ready")
	ErrFrameNotReady    = errors.New("no new frame available")
	ErrAttachTimeout    = errors.New("timed out attaching to camera")
	ErrNoPayload        = errors.New("no QR code found in image")
	ErrSessionClosed    = errors.New("capture session closed")
)

type Mode int

const (
	ModeIdle Mode = iota
	ModeCamera
	ModeUpload
	ModeManual
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeCamera:
		return "camera"
	case ModeUpload:
		return "upload"
	case ModeManual:
		return "manual"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ScanAttempt is one candidate payload and the instant it was captured.
type ScanAttempt struct {
	Raw        string
	CapturedAt time.Time
	Mode       Mode
}

type Config struct {
	AttachMaxAttempts int
	AttachBaseDelay   time.Duration
	AttachMaxDelay    time.Duration
	FrameInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		AttachMaxAttempts: 8,
		AttachBaseDelay:   100 * time.Millisecond,
		AttachMaxDelay:    2 * time.Second,
		FrameInterval:     100 * time.Millisecond,
	}
}

// attachDelay is the wait after failed attach attempt n (zero-based):
// base doubled per attempt, capped at AttachMaxDelay.
func (c Config) attachDelay(n int) time.Duration {
	d := c.AttachBaseDelay
	for i := 0; i < n && d < c.AttachMaxDelay; i++ {
		d *= 2
	}
	if c.AttachMaxDelay > 0 && d > c.AttachMaxDelay {
		d = c.AttachMaxDelay
	}
	return d
}

type Source struct {
	decoder FrameDecoder
	clock   clock.Clock
	logger  *slog.Logger
	cfg     Config

	mu   sync.Mutex
	mode Mode
}

func NewSource(decoder FrameDecoder, cfg Config, clk clock.Clock, logger *slog.Logger) *Source {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.AttachMaxAttempts <= 0 {
		cfg.AttachMaxAttempts = DefaultConfig().AttachMaxAttempts
	}
	return &Source{
		decoder: decoder,
		clock:   clk,
		logger:  logger,
		cfg:     cfg,
	}
}

func (s *Source) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Source) enter(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeIdle {
		return fmt.Errorf("%w (current: %s)", ErrBusy, s.mode)
	}
	s.mode = m
	return nil
}

func (s *Source) leave() {
	s.mu.Lock()
	s.mode = ModeIdle
	s.mu.Unlock()
}

// Manual wraps typed text as a scan attempt. The text is passed on verbatim.
func (s *Source) Manual(text string) (ScanAttempt, error) {
	if err := s.enter(ModeManual); err != nil {
		return ScanAttempt{}, err
	}
	defer s.leave()

	return ScanAttempt{Raw: text, CapturedAt: s.clock.Now(), Mode: ModeManual}, nil
}

// DecodeUpload reads one image and returns the QR payload it contains.
func (s *Source) DecodeUpload(r io.Reader) (ScanAttempt, error) {
	if err := s.enter(ModeUpload); err != nil {
		return ScanAttempt{}, err
	}
	defer s.leave()

	img, format, err := image.Decode(r)
	if err != nil {
		return ScanAttempt{}, fmt.Errorf("%w: unreadable image: %v", ErrNoPayload, err)
	}

	text, err := s.decoder.Decode(img)
	if err != nil {
		return ScanAttempt{}, err
	}
	if text == "" {
		return ScanAttempt{}, ErrNoPayload
	}

	s.logger.Debug("decoded uploaded image", "format", format, "bytes", len(text))
	return ScanAttempt{Raw: text, CapturedAt: s.clock.Now(), Mode: ModeUpload}, nil
}

// OpenCamera puts the source in camera mode and returns the session that
// owns the device until Close.
func (s *Source) OpenCamera(device Device) (*CaptureSession, error) {
	if err := s.enter(ModeCamera); err != nil {
		return nil, err
	}
	return &CaptureSession{source: s, device: device}, nil
}
