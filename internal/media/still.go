package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"sync"
)

// StillCamera is a camera that always shows the same picture. It stands in
// for a video device where none exists, e.g. a terminal session.
type StillCamera struct {
	frame image.Image
	// Denied makes every Open fail as if permission were refused.
	Denied bool

	mu     sync.Mutex
	open   int
	opened []Constraints
}

func NewStillCamera(frame image.Image) *StillCamera {
	return &StillCamera{frame: frame}
}

// NewStillCameraFromFile decodes path and serves it as the camera frame.
func NewStillCameraFromFile(path string) (*StillCamera, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return NewStillCamera(img), nil
}

func (c *StillCamera) Open(ctx context.Context, cons Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Denied || c.frame == nil {
		return nil, fmt.Errorf("%w: permission denied", ErrCameraUnavailable)
	}
	c.open++
	c.opened = append(c.opened, cons)
	return &stillStream{camera: c}, nil
}

// OpenStreams returns the number of streams not yet closed.
func (c *StillCamera) OpenStreams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Requests returns the constraints of every Open call so far.
func (c *StillCamera) Requests() []Constraints {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Constraints(nil), c.opened...)
}

type stillStream struct {
	camera *StillCamera
	once   sync.Once
	closed bool
}

func (s *stillStream) Frame() (image.Image, error) {
	s.camera.mu.Lock()
	closed := s.closed
	s.camera.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("stream closed")
	}
	return s.camera.frame, nil
}

func (s *stillStream) Close() error {
	s.once.Do(func() {
		s.camera.mu.Lock()
		s.closed = true
		s.camera.open--
		s.camera.mu.Unlock()
	})
	return nil
}
