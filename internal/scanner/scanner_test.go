package scanner

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"attendance-backend/internal/clock"
	"attendance-backend/internal/qrpayload"
)

var testStart = time.Date(2026, 3, 2, 9, 58, 0, 0, time.UTC)

// labeledFrame is an image whose QR content is known up front.
type labeledFrame struct {
	image.Image
	text string
}

func frame(text string) image.Image {
	return labeledFrame{Image: image.NewGray(image.Rect(0, 0, 1, 1)), text: text}
}

type labelDecoder struct {
	calls int
}

func (d *labelDecoder) Decode(img image.Image) (string, error) {
	d.calls++
	if f, ok := img.(labeledFrame); ok && f.text != "" {
		return f.text, nil
	}
	return "", ErrNoPayload
}

// scriptedHandle plays back attach results and frames in order. Once the
// frame script is exhausted it reports ErrFrameNotReady forever.
type scriptedHandle struct {
	attachErrs []error
	frames     []image.Image

	attachCalls int
	frameCalls  int
	released    int
}

func (h *scriptedHandle) Attach(ctx context.Context) error {
	h.attachCalls++
	if len(h.attachErrs) == 0 {
		return nil
	}
	err := h.attachErrs[0]
	h.attachErrs = h.attachErrs[1:]
	return err
}

func (h *scriptedHandle) NextFrame(ctx context.Context) (image.Image, error) {
	h.frameCalls++
	if len(h.frames) == 0 {
		return nil, ErrFrameNotReady
	}
	f := h.frames[0]
	h.frames = h.frames[1:]
	if f == nil {
		return nil, ErrFrameNotReady
	}
	return f, nil
}

func (h *scriptedHandle) Release() error {
	h.released++
	return nil
}

// scriptedDevice shares one handle across acquisitions, like a phone camera
// that keeps pointing at the same scene between scans.
type scriptedDevice struct {
	handle     *scriptedHandle
	acquireErr error
	acquired   int
}

func (d *scriptedDevice) Acquire(ctx context.Context) (Handle, error) {
	d.acquired++
	if d.acquireErr != nil {
		return nil, d.acquireErr
	}
	return d.handle, nil
}

func newTestSource(dec FrameDecoder) (*Source, *clock.Fake) {
	clk := clock.NewFake(testStart)
	return NewSource(dec, DefaultConfig(), clk, nil), clk
}

func TestManual(t *testing.T) {
	src, _ := newTestSource(&labelDecoder{})

	attempt, err := src.Manual("E1:abc123")
	if err != nil {
		t.Fatalf("Manual returned error: %v", err)
	}
	if attempt.Raw != "E1:abc123" || attempt.Mode != ModeManual || !attempt.CapturedAt.Equal(testStart) {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}
	if src.Mode() != ModeIdle {
		t.Fatalf("expected idle after manual scan, got %s", src.Mode())
	}
}

func TestDecodeUpload_RealQRCode(t *testing.T) {
	data, err := qrpayload.RenderPNG("E1:abc123", 300)
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}

	src := NewSource(NewQRDecoder(), DefaultConfig(), nil, nil)
	attempt, err := src.DecodeUpload(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeUpload returned error: %v", err)
	}
	if attempt.Raw != "E1:abc123" || attempt.Mode != ModeUpload {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}
	if src.Mode() != ModeIdle {
		t.Fatalf("expected idle after upload, got %s", src.Mode())
	}
}

func TestDecodeUpload_NoPayload(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			blank.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, blank); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}

	tests := []struct {
		name string
		body []byte
	}{
		{"blank image", buf.Bytes()},
		{"not an image", []byte("definitely not a png")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := NewSource(NewQRDecoder(), DefaultConfig(), nil, nil)
			_, err := src.DecodeUpload(bytes.NewReader(tc.body))
			if !errors.Is(err, ErrNoPayload) {
				t.Fatalf("expected ErrNoPayload, got %v", err)
			}
			if src.Mode() != ModeIdle {
				t.Fatalf("expected idle after failed upload, got %s", src.Mode())
			}
		})
	}
}

func TestModesAreExclusive(t *testing.T) {
	src, _ := newTestSource(&labelDecoder{})
	dev := &scriptedDevice{handle: &scriptedHandle{}}

	session, err := src.OpenCamera(dev)
	if err != nil {
		t.Fatalf("OpenCamera: %v", err)
	}
	if src.Mode() != ModeCamera {
		t.Fatalf("expected camera mode, got %s", src.Mode())
	}

	if _, err := src.Manual("E1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for manual during camera, got %v", err)
	}
	if _, err := src.DecodeUpload(strings.NewReader("")); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for upload during camera, got %v", err)
	}
	if _, err := src.OpenCamera(dev); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for second camera, got %v", err)
	}

	session.Close()
	session.Close()
	if src.Mode() != ModeIdle {
		t.Fatalf("expected idle after Close, got %s", src.Mode())
	}
	if _, err := src.Manual("E1"); err != nil {
		t.Fatalf("manual after Close: %v", err)
	}
	if _, err := session.Next(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestCaptureSession_AttachRetriesThenCaptures(t *testing.T) {
	dec := &labelDecoder{}
	src, clk := newTestSource(dec)
	handle := &scriptedHandle{
		attachErrs: []error{ErrNotReady, ErrNotReady},
		frames:     []image.Image{nil, frame(""), frame("E1:abc123")},
	}
	dev := &scriptedDevice{handle: handle}

	session, err := src.OpenCamera(dev)
	if err != nil {
		t.Fatalf("OpenCamera: %v", err)
	}
	defer session.Close()

	attempt, err := session.Next(context.Background())
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if attempt.Raw != "E1:abc123" || attempt.Mode != ModeCamera {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}
	if handle.attachCalls != 3 || session.AttachAttempts() != 3 {
		t.Fatalf("expected 3 attach calls, got %d (reported %d)", handle.attachCalls, session.AttachAttempts())
	}
	if handle.released != 1 {
		t.Fatalf("expected device released once, got %d", handle.released)
	}

	cfg := DefaultConfig()
	want := []time.Duration{cfg.AttachBaseDelay, 2 * cfg.AttachBaseDelay, cfg.FrameInterval, cfg.FrameInterval}
	got := clk.Waits()
	if len(got) != len(want) {
		t.Fatalf("waits = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("waits = %v, want %v", got, want)
		}
	}
}

func TestCaptureSession_AttachTimeout(t *testing.T) {
	src, clk := newTestSource(&labelDecoder{})
	errs := make([]error, 100)
	for i := range errs {
		errs[i] = ErrNotReady
	}
	handle := &scriptedHandle{attachErrs: errs}
	session, _ := src.OpenCamera(&scriptedDevice{handle: handle})
	defer session.Close()

	_, err := session.Next(context.Background())
	if !errors.Is(err, ErrAttachTimeout) {
		t.Fatalf("expected ErrAttachTimeout, got %v", err)
	}

	cfg := DefaultConfig()
	if handle.attachCalls != cfg.AttachMaxAttempts {
		t.Fatalf("expected %d attach attempts, got %d", cfg.AttachMaxAttempts, handle.attachCalls)
	}
	if handle.released != 1 {
		t.Fatalf("expected release after timeout, got %d", handle.released)
	}
	if handle.frameCalls != 0 {
		t.Fatalf("no frames should be read before attach, got %d", handle.frameCalls)
	}

	waits := clk.Waits()
	if len(waits) != cfg.AttachMaxAttempts-1 {
		t.Fatalf("expected %d backoff waits, got %v", cfg.AttachMaxAttempts-1, waits)
	}
	for i := 1; i < len(waits); i++ {
		if waits[i] < waits[i-1] {
			t.Fatalf("backoff must not shrink: %v", waits)
		}
		if waits[i] > cfg.AttachMaxDelay {
			t.Fatalf("backoff exceeded cap: %v", waits)
		}
	}
	if waits[len(waits)-1] != cfg.AttachMaxDelay {
		t.Fatalf("expected backoff to reach the cap, got %v", waits)
	}
}

func TestCaptureSession_DeviceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permission denied", ErrPermissionDenied},
		{"device not found", ErrDeviceNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src, _ := newTestSource(&labelDecoder{})
			session, _ := src.OpenCamera(&scriptedDevice{acquireErr: tc.err})

			_, err := session.Next(context.Background())
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}

			session.Close()
			if src.Mode() != ModeIdle {
				t.Fatalf("expected idle after close, got %s", src.Mode())
			}
		})
	}
}

func TestCaptureSession_SuppressesRepeatedPayload(t *testing.T) {
	dec := &labelDecoder{}
	src, _ := newTestSource(dec)
	handle := &scriptedHandle{
		frames: []image.Image{frame("E1:abc123"), frame("E1:abc123"), frame("E2:def456")},
	}
	dev := &scriptedDevice{handle: handle}
	session, _ := src.OpenCamera(dev)
	defer session.Close()

	first, err := session.Next(context.Background())
	if err != nil || first.Raw != "E1:abc123" {
		t.Fatalf("first Next = %+v, %v", first, err)
	}

	second, err := session.Next(context.Background())
	if err != nil || second.Raw != "E2:def456" {
		t.Fatalf("second Next = %+v, %v", second, err)
	}

	if dec.calls != 3 {
		t.Fatalf("expected all three frames decoded, got %d", dec.calls)
	}
	if dev.acquired != 2 || handle.released != 2 {
		t.Fatalf("expected one acquire/release per Next, got %d/%d", dev.acquired, handle.released)
	}
}

func TestCaptureSession_CancelReleasesDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameInterval = time.Millisecond
	src := NewSource(&labelDecoder{}, cfg, clock.Real(), nil)
	handle := &scriptedHandle{}
	session, _ := src.OpenCamera(&scriptedDevice{handle: handle})
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := session.Next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if handle.released != 1 {
		t.Fatalf("expected device released on cancel, got %d", handle.released)
	}
}

func TestAttachDelay(t *testing.T) {
	cfg := Config{AttachBaseDelay: 100 * time.Millisecond, AttachMaxDelay: time.Second}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for n, w := range want {
		if got := cfg.attachDelay(n); got != w {
			t.Errorf("attachDelay(%d) = %v, want %v", n, got, w)
		}
	}
}
