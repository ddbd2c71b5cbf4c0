package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CaptureSession is one use of camera mode, from OpenCamera to Close.
//
// Each call to Next acquires the device, runs the capture loop until a new
// payload is decoded, and releases the device before returning, so no
// capture work outlives the call. The last decoded payload is remembered
// across calls: a code that is still in view when scanning resumes is not
// returned again.
//
// Next and Close must be called from the goroutine that owns the session.
// Cancel the context given to Next to interrupt it.
type CaptureSession struct {
	source *Source
	device Device

	lastPayload    string
	attachAttempts int
	closed         bool
}

// AttachAttempts is the number of attach calls made by the most recent Next.
func (c *CaptureSession) AttachAttempts() int { return c.attachAttempts }

// Next blocks until the camera yields a payload different from the previous
// one, the context ends, or the device fails.
func (c *CaptureSession) Next(ctx context.Context) (ScanAttempt, error) {
	if c.closed {
		return ScanAttempt{}, ErrSessionClosed
	}

	handle, err := c.device.Acquire(ctx)
	if err != nil {
		return ScanAttempt{}, fmt.Errorf("acquire camera: %w", err)
	}
	defer c.release(handle)

	if err := c.attach(ctx, handle); err != nil {
		return ScanAttempt{}, err
	}

	return c.capture(ctx, handle)
}

func (c *CaptureSession) attach(ctx context.Context, handle Handle) error {
	cfg := c.source.cfg
	c.attachAttempts = 0

	for attempt := 0; attempt < cfg.AttachMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.attachAttempts++
		err := handle.Attach(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotReady) {
			return fmt.Errorf("attach camera: %w", err)
		}
		if attempt == cfg.AttachMaxAttempts-1 {
			break
		}

		delay := cfg.attachDelay(attempt)
		c.source.logger.Debug("camera not ready, retrying attach",
			"attempt", attempt+1,
			"delay", delay,
		)
		if err := c.wait(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts", ErrAttachTimeout, c.attachAttempts)
}

func (c *CaptureSession) capture(ctx context.Context, handle Handle) (ScanAttempt, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ScanAttempt{}, err
		}

		frame, err := handle.NextFrame(ctx)
		switch {
		case err == nil:
			text, decodeErr := c.source.decoder.Decode(frame)
			if decodeErr != nil || text == "" {
				break
			}
			if text == c.lastPayload {
				c.source.logger.Debug("ignoring repeated frame payload")
				break
			}
			c.lastPayload = text
			return ScanAttempt{Raw: text, CapturedAt: c.source.clock.Now(), Mode: ModeCamera}, nil
		case errors.Is(err, ErrFrameNotReady):
		default:
			return ScanAttempt{}, fmt.Errorf("capture frame: %w", err)
		}

		if err := c.wait(ctx, c.source.cfg.FrameInterval); err != nil {
			return ScanAttempt{}, err
		}
	}
}

func (c *CaptureSession) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.source.clock.After(d):
		return nil
	}
}

func (c *CaptureSession) release(handle Handle) {
	if err := handle.Release(); err != nil {
		c.source.logger.Warn("camera release failed", "error", err)
	}
}

// Close ends the session and returns the source to idle. It is safe to call
// more than once.
func (c *CaptureSession) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.source.leave()
}
