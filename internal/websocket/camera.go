package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"attendance-backend/internal/models"
	"attendance-backend/internal/scanner"
)

// Browser camera protocol. The server asks for the camera with
// camera_request and gives it back with camera_release. The browser answers
// camera_granted once getUserMedia resolves, camera_ready once the video
// element is playing, or camera_error with the DOMException name. Frames
// arrive as binary messages holding one encoded JPEG or PNG still.
const (
	msgCameraRequest = "camera_request"
	msgCameraRelease = "camera_release"
	msgCameraGranted = "camera_granted"
	msgCameraReady   = "camera_ready"
	msgCameraError   = "camera_error"
	msgStop          = "stop"
	msgOutcome       = "scan_outcome"
)

type cameraMessage struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// Upgrade switches the request to a WebSocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// CameraBridge is a scanner.Device backed by a browser camera on the other
// end of a WebSocket. Only the newest frame is kept; frames that arrive
// while the decoder is busy are dropped.
type CameraBridge struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	granted  bool
	ready    bool
	camErr   string
	frame    []byte
	frameSeq uint64
	readSeq  uint64
	closed   bool

	changed chan struct{}
	done    chan struct{}
}

func NewCameraBridge(conn *websocket.Conn) *CameraBridge {
	b := &CameraBridge{
		conn:    conn,
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go b.readLoop()
	return b
}

// Done is closed when the browser stops the camera or disconnects.
func (b *CameraBridge) Done() <-chan struct{} { return b.done }

func (b *CameraBridge) readLoop() {
	defer func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.done)
		b.notify()
	}()

	for {
		kind, data, err := b.conn.ReadMessage()
		if err != nil {
			return
		}

		if kind == websocket.BinaryMessage {
			b.mu.Lock()
			b.frame = data
			b.frameSeq++
			b.mu.Unlock()
			b.notify()
			continue
		}

		var msg cameraMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("camera bridge: ignoring malformed message: %v", err)
			continue
		}

		b.mu.Lock()
		switch msg.Type {
		case msgCameraGranted:
			b.granted = true
		case msgCameraReady:
			b.granted, b.ready = true, true
		case msgCameraError:
			b.camErr = msg.Error
			if b.camErr == "" {
				b.camErr = "UnknownError"
			}
		case msgStop:
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
		b.notify()
	}
}

func (b *CameraBridge) notify() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

// Acquire asks the browser for its camera and waits for the answer.
func (b *CameraBridge) Acquire(ctx context.Context) (scanner.Handle, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, scanner.ErrSessionClosed
	}
	b.granted, b.ready, b.camErr = false, false, ""
	b.readSeq = b.frameSeq
	b.mu.Unlock()

	if err := b.send(cameraMessage{Type: msgCameraRequest}); err != nil {
		return nil, err
	}

	for {
		b.mu.Lock()
		granted, camErr, closed := b.granted, b.camErr, b.closed
		b.mu.Unlock()

		switch {
		case camErr != "":
			return nil, browserCameraError(camErr)
		case granted:
			return b, nil
		case closed:
			return nil, scanner.ErrSessionClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.changed:
		}
	}
}

func browserCameraError(name string) error {
	switch name {
	case "NotAllowedError", "SecurityError", "PermissionDeniedError":
		return scanner.ErrPermissionDenied
	case "NotFoundError", "OverconstrainedError", "DevicesNotFoundError":
		return scanner.ErrDeviceNotFound
	}
	return fmt.Errorf("camera error: %s", name)
}

// Attach succeeds once the browser reports its video element is playing.
func (b *CameraBridge) Attach(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.closed:
		return scanner.ErrSessionClosed
	case b.ready:
		return nil
	}
	return scanner.ErrNotReady
}

// NextFrame decodes the newest frame not yet returned.
func (b *CameraBridge) NextFrame(ctx context.Context) (image.Image, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, scanner.ErrSessionClosed
	}
	if b.frameSeq == b.readSeq {
		b.mu.Unlock()
		return nil, scanner.ErrFrameNotReady
	}
	data := b.frame
	b.readSeq = b.frameSeq
	b.mu.Unlock()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, scanner.ErrFrameNotReady
	}
	return img, nil
}

func (b *CameraBridge) Release() error {
	b.mu.Lock()
	b.granted, b.ready = false, false
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil
	}
	return b.send(cameraMessage{Type: msgCameraRelease})
}

// SendOutcome reports a scan result to the browser.
func (b *CameraBridge) SendOutcome(out models.ScanOutcomeMessage) error {
	return b.send(models.WSMessage{Type: msgOutcome, Payload: out})
}

func (b *CameraBridge) send(v interface{}) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteJSON(v)
}

func (b *CameraBridge) Close() error {
	return b.conn.Close()
}
