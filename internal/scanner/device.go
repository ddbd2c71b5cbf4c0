package scanner

import (
	"context"
	"image"
)

// Device hands out exclusive handles to a camera.
//
// Acquire fails with ErrPermissionDenied or ErrDeviceNotFound when the
// camera cannot be used at all.
type Device interface {
	Acquire(ctx context.Context) (Handle, error)
}

// Handle is an acquired camera.
//
// Attach returns ErrNotReady while the capture surface is still coming up.
// NextFrame returns the newest frame not yet returned, or ErrFrameNotReady.
type Handle interface {
	Attach(ctx context.Context) error
	NextFrame(ctx context.Context) (image.Image, error)
	Release() error
}
