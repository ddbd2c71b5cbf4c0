package qrpayload

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultImageSize is the edge length, in pixels, of rendered event codes.
const DefaultImageSize = 300

// RenderPNG draws payload as a PNG QR code with the highest error
// correction level, so codes stay readable when projected or photographed
// at an angle.
func RenderPNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(payload, qrcode.Highest, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	return png, nil
}
