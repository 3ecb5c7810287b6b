// Package media normalizes camera captures and file uploads into a single
// data-URI image.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	_ "golang.org/x/image/webp"
)

var (
	// ErrCameraUnavailable covers permission denial and missing hardware.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrUnsupportedFormat is returned for payloads that are not a supported raster image.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrNoStream is returned when capturing without an active stream.
	ErrNoStream = errors.New("no active camera stream")
)

// Preferred capture resolution.
const (
	PreferredWidth  = 1280
	PreferredHeight = 720
)

// MaxFileBytes caps accepted uploads at 10MB.
const MaxFileBytes = 10 * 1024 * 1024

// jpegQuality matches what browsers use for canvas JPEG exports.
const jpegQuality = 92

var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Facing selects the front ("user") or back ("environment") camera.
type Facing string

const (
	FacingFront Facing = "user"
	FacingBack  Facing = "environment"
)

// Flip returns the opposite facing mode.
func (f Facing) Flip() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// ParseFacing accepts the two facing mode names a camera understands.
func ParseFacing(s string) (Facing, error) {
	switch f := Facing(strings.ToLower(strings.TrimSpace(s))); f {
	case FacingFront, FacingBack:
		return f, nil
	default:
		return "", fmt.Errorf("unknown camera facing %q (want %s or %s)", s, FacingFront, FacingBack)
	}
}

// Constraints describe the stream being requested from a camera.
type Constraints struct {
	Facing Facing
	Width  int
	Height int
}

// Camera is a video input device.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an open video input. Close must release the device.
type Stream interface {
	Frame() (image.Image, error)
	Close() error
}

// Image is an acquired still.
type Image struct {
	DataURI  string
	MIMEType string
	Width    int
	Height   int
}

// Adapter holds at most one camera stream at a time.
type Adapter struct {
	camera Camera

	mu     sync.Mutex
	active Stream
}

// NewAdapter wraps camera, which may be nil when no device exists.
func NewAdapter(camera Camera) *Adapter {
	return &Adapter{camera: camera}
}

// AcquireFromCamera releases any held stream and opens a new one with the
// requested facing mode. On failure no stream is held.
func (a *Adapter) AcquireFromCamera(ctx context.Context, facing Facing) (Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.releaseLocked()

	if a.camera == nil {
		return nil, fmt.Errorf("%w: no camera device", ErrCameraUnavailable)
	}

	stream, err := a.camera.Open(ctx, Constraints{
		Facing: facing,
		Width:  PreferredWidth,
		Height: PreferredHeight,
	})
	if err != nil {
		if errors.Is(err, ErrCameraUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	a.active = stream
	slog.Debug("Camera stream acquired", "facing", facing)
	return stream, nil
}

// CaptureFrame encodes the current frame of stream as a JPEG data URI and
// releases the stream.
func (a *Adapter) CaptureFrame(stream Stream) (*Image, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if stream == nil || stream != a.active {
		return nil, ErrNoStream
	}

	frame, err := stream.Frame()
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	a.releaseLocked()

	bounds := frame.Bounds()
	return &Image{
		DataURI:  EncodeDataURI("image/jpeg", buf.Bytes()),
		MIMEType: "image/jpeg",
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}

// AcquireFromFile validates an uploaded file and returns it as a data URI.
func (a *Adapter) AcquireFromFile(data []byte, declaredMIME string) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnsupportedFormat)
	}
	if len(data) > MaxFileBytes {
		return nil, fmt.Errorf("%w: file too large (max 10MB)", ErrUnsupportedFormat)
	}

	declared := normalizeMIME(declaredMIME)
	if declared != "" && declared != "application/octet-stream" && !strings.HasPrefix(declared, "image/") {
		return nil, fmt.Errorf("%w: declared type %s", ErrUnsupportedFormat, declaredMIME)
	}

	sniffed := http.DetectContentType(data)
	if !supportedTypes[sniffed] {
		return nil, fmt.Errorf("%w: detected type %s", ErrUnsupportedFormat, sniffed)
	}
	// a declared image type must name the format actually sent
	if strings.HasPrefix(declared, "image/") && declared != sniffed {
		return nil, fmt.Errorf("%w: declared %s but content is %s", ErrUnsupportedFormat, declaredMIME, sniffed)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	return &Image{
		DataURI:  EncodeDataURI(sniffed, data),
		MIMEType: sniffed,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// normalizeMIME lowercases a declared type, drops parameters and maps the
// non-standard JPEG aliases browsers send.
func normalizeMIME(declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	switch declared {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	}
	return declared
}

// ReleaseStream stops the held stream, if any. Safe to call repeatedly.
func (a *Adapter) ReleaseStream() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
}

// Active reports whether a stream is currently held.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active != nil
}

func (a *Adapter) releaseLocked() {
	if a.active == nil {
		return
	}
	if err := a.active.Close(); err != nil {
		slog.Warn("Failed to close camera stream", "err", err)
	}
	a.active = nil
	slog.Debug("Camera stream released")
}
