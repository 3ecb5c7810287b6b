package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func redSquare(t *testing.T, size int) ([]byte, image.Image) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes(), img
}

func TestAcquireFromFile(t *testing.T) {
	pngData, _ := redSquare(t, 10)

	tests := []struct {
		name     string
		data     []byte
		declared string
		wantErr  bool
		wantMIME string
	}{
		{name: "png", data: pngData, declared: "image/png", wantMIME: "image/png"},
		{name: "png without declared type", data: pngData, wantMIME: "image/png"},
		{name: "png declared with parameters", data: pngData, declared: "Image/PNG; charset=binary", wantMIME: "image/png"},
		{name: "png as octet-stream", data: pngData, declared: "application/octet-stream", wantMIME: "image/png"},
		{name: "png declared as jpeg", data: pngData, declared: "image/jpeg", wantErr: true},
		{name: "png declared as webp", data: pngData, declared: "image/webp", wantErr: true},
		{name: "text payload", data: []byte("hello world"), declared: "text/plain", wantErr: true},
		{name: "text declared as image", data: []byte("hello world"), declared: "image/png", wantErr: true},
		{name: "empty", data: nil, wantErr: true},
	}

	a := NewAdapter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := a.AcquireFromFile(tt.data, tt.declared)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("AcquireFromFile() error = %v", err)
			}
			if img.MIMEType != tt.wantMIME {
				t.Errorf("Expected MIME %s, got %s", tt.wantMIME, img.MIMEType)
			}
			if img.Width != 10 || img.Height != 10 {
				t.Errorf("Expected 10x10, got %dx%d", img.Width, img.Height)
			}
			if !strings.HasPrefix(img.DataURI, "data:image/png;base64,") {
				t.Errorf("Unexpected data URI prefix: %.40s", img.DataURI)
			}
		})
	}
}

func TestAcquireFromFileTooLarge(t *testing.T) {
	data := make([]byte, MaxFileBytes+1)
	_, err := NewAdapter(nil).AcquireFromFile(data, "image/png")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestCameraUnavailable(t *testing.T) {
	ctx := context.Background()

	if _, err := NewAdapter(nil).AcquireFromCamera(ctx, FacingBack); !errors.Is(err, ErrCameraUnavailable) {
		t.Errorf("Expected ErrCameraUnavailable without a device, got %v", err)
	}

	cam := NewStillCamera(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	cam.Denied = true
	a := NewAdapter(cam)
	if _, err := a.AcquireFromCamera(ctx, FacingBack); !errors.Is(err, ErrCameraUnavailable) {
		t.Errorf("Expected ErrCameraUnavailable on denial, got %v", err)
	}
	if a.Active() {
		t.Error("Expected no active stream after denial")
	}
}

func TestAcquireReleasesPreviousStream(t *testing.T) {
	ctx := context.Background()
	_, frame := redSquare(t, 4)
	cam := NewStillCamera(frame)
	a := NewAdapter(cam)

	if _, err := a.AcquireFromCamera(ctx, FacingBack); err != nil {
		t.Fatalf("AcquireFromCamera() error = %v", err)
	}
	if _, err := a.AcquireFromCamera(ctx, FacingFront); err != nil {
		t.Fatalf("AcquireFromCamera() error = %v", err)
	}
	if cam.OpenStreams() != 1 {
		t.Errorf("Expected exactly 1 open stream, got %d", cam.OpenStreams())
	}

	reqs := cam.Requests()
	if reqs[1].Facing != FacingFront || reqs[1].Width != PreferredWidth || reqs[1].Height != PreferredHeight {
		t.Errorf("Unexpected constraints %+v", reqs[1])
	}
}

func TestCaptureFrameReleasesStream(t *testing.T) {
	ctx := context.Background()
	_, frame := redSquare(t, 8)
	cam := NewStillCamera(frame)
	a := NewAdapter(cam)

	stream, err := a.AcquireFromCamera(ctx, FacingBack)
	if err != nil {
		t.Fatalf("AcquireFromCamera() error = %v", err)
	}

	img, err := a.CaptureFrame(stream)
	if err != nil {
		t.Fatalf("CaptureFrame() error = %v", err)
	}
	if img.MIMEType != "image/jpeg" || img.Width != 8 || img.Height != 8 {
		t.Errorf("Unexpected capture %s %dx%d", img.MIMEType, img.Width, img.Height)
	}
	if cam.OpenStreams() != 0 || a.Active() {
		t.Error("Expected stream to be released after capture")
	}

	if _, err := a.CaptureFrame(stream); !errors.Is(err, ErrNoStream) {
		t.Errorf("Expected ErrNoStream for a released stream, got %v", err)
	}
}

func TestReleaseStreamIdempotent(t *testing.T) {
	_, frame := redSquare(t, 2)
	cam := NewStillCamera(frame)
	a := NewAdapter(cam)

	a.ReleaseStream()
	if _, err := a.AcquireFromCamera(context.Background(), FacingBack); err != nil {
		t.Fatalf("AcquireFromCamera() error = %v", err)
	}
	a.ReleaseStream()
	a.ReleaseStream()

	if a.Active() || cam.OpenStreams() != 0 {
		t.Errorf("Expected no active stream, got active=%v open=%d", a.Active(), cam.OpenStreams())
	}
}

func TestDataURIRoundTrip(t *testing.T) {
	uri := EncodeDataURI("image/png", []byte{1, 2, 3})
	mimeType, data, err := DecodeDataURI(uri)
	if err != nil {
		t.Fatalf("DecodeDataURI() error = %v", err)
	}
	if mimeType != "image/png" || !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Errorf("Unexpected decode %s %v", mimeType, data)
	}

	for _, bad := range []string{"image/png;base64,AA==", "data:image/png,AA==", "data:image/png;base64"} {
		if _, _, err := DecodeDataURI(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestFacingFlip(t *testing.T) {
	if FacingFront.Flip() != FacingBack || FacingBack.Flip() != FacingFront {
		t.Error("Flip should alternate between front and back")
	}
}

func TestNormalizeMIME(t *testing.T) {
	tests := map[string]string{
		"image/jpg":                "image/jpeg",
		" IMAGE/PJPEG ":            "image/jpeg",
		"image/png; charset=x":     "image/png",
		"application/octet-stream": "application/octet-stream",
		"":                         "",
	}
	for in, want := range tests {
		if got := normalizeMIME(in); got != want {
			t.Errorf("Expected normalizeMIME(%q) = %q, got %q", in, want, got)
		}
	}
}

func TestParseFacing(t *testing.T) {
	tests := []struct {
		in      string
		want    Facing
		wantErr bool
	}{
		{in: "user", want: FacingFront},
		{in: " Environment ", want: FacingBack},
		{in: "front", wantErr: true},
		{in: "back", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFacing(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Expected error for %q, got %s", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Expected %s for %q, got %s (err %v)", tt.want, tt.in, got, err)
		}
	}
}
