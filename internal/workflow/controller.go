// Package workflow drives the capture → analyze → record flow for one user.
//
// The Controller is the only writer of the displayed state: the pending
// image, the verdict and the loading flag. Every method either completes a
// transition or leaves the previous state in place.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/history"
	"github.com/BikramMondal5/MediVerify/internal/identity"
	"github.com/BikramMondal5/MediVerify/internal/media"
	"github.com/BikramMondal5/MediVerify/internal/models"
	"github.com/BikramMondal5/MediVerify/internal/verdict"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidTransition is returned when an operation is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("invalid workflow transition")

// DefaultAnalysisDelay is the simulated analysis latency.
const DefaultAnalysisDelay = 2 * time.Second

// isoMillis matches the timestamps written by the web client.
const isoMillis = "2006-01-02T15:04:05.000Z"

type State int

const (
	Idle State = iota
	Capturing
	Previewing
	Analyzing
	Resulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Previewing:
		return "previewing"
	case Analyzing:
		return "analyzing"
	case Resulted:
		return "resulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options tune a Controller. Zero values select defaults.
type Options struct {
	// AnalysisDelay is waited before the analyzer runs. Negative disables it.
	AnalysisDelay time.Duration
	// AnalysisTimeout bounds the analyzer call. Zero means no bound.
	AnalysisTimeout time.Duration
	// Facing is the initial camera.
	Facing media.Facing
	Now    func() time.Time
}

// Snapshot is what a UI renders.
type Snapshot struct {
	State           string               `json:"state"`
	CameraOn        bool                 `json:"cameraOn"`
	CameraAvailable bool                 `json:"cameraAvailable"`
	Facing          media.Facing         `json:"facing"`
	Loading         bool                 `json:"loading"`
	Image           *models.PendingImage `json:"image,omitempty"`
	Verdict         *models.Verdict      `json:"verdict,omitempty"`
	Result          string               `json:"result,omitempty"`
}

type Controller struct {
	media    *media.Adapter
	analyzer verdict.Analyzer
	recorder *history.Recorder
	identity *identity.Provider
	delay    time.Duration
	timeout  time.Duration
	now      func() time.Time

	flight singleflight.Group

	mu              sync.Mutex
	run             *analysisRun
	state           State
	facing          media.Facing
	stream          media.Stream
	cameraAvailable bool
	pending         *models.PendingImage
	verdict         *models.Verdict
}

// analysisRun is the context one evaluation runs under. It is detached from
// any single caller and cancelled once every waiting caller has gone.
type analysisRun struct {
	id      uuid.UUID
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func New(adapter *media.Adapter, analyzer verdict.Analyzer, recorder *history.Recorder, ids *identity.Provider, opts Options) *Controller {
	c := &Controller{
		media:           adapter,
		analyzer:        analyzer,
		recorder:        recorder,
		identity:        ids,
		delay:           opts.AnalysisDelay,
		timeout:         opts.AnalysisTimeout,
		now:             opts.Now,
		facing:          opts.Facing,
		cameraAvailable: true,
	}
	if c.delay == 0 {
		c.delay = DefaultAnalysisDelay
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.facing == "" {
		c.facing = media.FacingBack
	}
	return c
}

// StartCamera opens a camera session. On failure the state is kept and the
// camera is reported unavailable.
func (c *Controller) StartCamera(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Analyzing {
		return fmt.Errorf("%w: start camera while %s", ErrInvalidTransition, c.state)
	}

	stream, err := c.media.AcquireFromCamera(ctx, c.facing)
	if err != nil {
		c.cameraAvailable = false
		c.stream = nil
		if c.state == Capturing {
			c.state = Idle
		}
		slog.Warn("Camera unavailable", "facing", c.facing, "err", err)
		return err
	}

	c.stream = stream
	c.cameraAvailable = true
	c.pending = nil
	c.verdict = nil
	c.state = Capturing
	return nil
}

// ToggleCamera switches between front and back cameras during a session.
func (c *Controller) ToggleCamera(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Capturing {
		return fmt.Errorf("%w: toggle camera while %s", ErrInvalidTransition, c.state)
	}

	c.facing = c.facing.Flip()
	stream, err := c.media.AcquireFromCamera(ctx, c.facing)
	if err != nil {
		c.stream = nil
		c.cameraAvailable = false
		c.state = Idle
		slog.Warn("Camera unavailable", "facing", c.facing, "err", err)
		return err
	}
	c.stream = stream
	return nil
}

// Capture takes a still from the open camera and releases it.
func (c *Controller) Capture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Capturing {
		return fmt.Errorf("%w: capture while %s", ErrInvalidTransition, c.state)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := c.media.CaptureFrame(c.stream)
	if err != nil {
		return err
	}
	c.stream = nil
	c.setPendingLocked(img, models.SourceCamera)
	return nil
}

// Upload accepts an image file, bypassing the camera.
func (c *Controller) Upload(data []byte, declaredMIME string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return fmt.Errorf("%w: upload while %s", ErrInvalidTransition, c.state)
	}

	img, err := c.media.AcquireFromFile(data, declaredMIME)
	if err != nil {
		return err
	}
	c.setPendingLocked(img, models.SourceUpload)
	return nil
}

func (c *Controller) setPendingLocked(img *media.Image, source models.ImageSource) {
	c.pending = &models.PendingImage{
		ID:         uuid.New(),
		DataURI:    img.DataURI,
		MIMEType:   img.MIMEType,
		Width:      img.Width,
		Height:     img.Height,
		Source:     source,
		AcquiredAt: c.now(),
	}
	c.verdict = nil
	c.state = Previewing
	slog.Debug("Image acquired", "source", source, "mime", img.MIMEType, "width", img.Width, "height", img.Height)
}

// Analyze evaluates the pending image and records the result. Concurrent
// calls for the same image share a single evaluation, which keeps running
// while at least one caller still waits on it. Once a verdict exists,
// Analyze returns it without evaluating again. When the last waiting caller
// is cancelled the controller returns to Previewing.
func (c *Controller) Analyze(ctx context.Context) (models.Verdict, error) {
	c.mu.Lock()
	switch c.state {
	case Resulted:
		v := *c.verdict
		c.mu.Unlock()
		return v, nil
	case Previewing:
		c.state = Analyzing
	case Analyzing:
	default:
		state := c.state
		c.mu.Unlock()
		return models.Verdict{}, fmt.Errorf("%w: analyze while %s", ErrInvalidTransition, state)
	}
	pending := c.pending
	run := c.joinRunLocked(ctx, pending.ID)
	c.mu.Unlock()

	ch := c.flight.DoChan(pending.ID.String(), func() (interface{}, error) {
		return c.analyze(run.ctx, pending)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
		c.leaveRun(run)
	case <-ctx.Done():
		if c.leaveRun(run) {
			// wait for the cancelled evaluation to restore Previewing
			<-ch
		}
		return models.Verdict{}, ctx.Err()
	}
	if res.Err != nil {
		return models.Verdict{}, res.Err
	}
	if res.Shared {
		slog.Debug("Joined in-flight analysis", "image", pending.ID)
	}
	return res.Val.(models.Verdict), nil
}

func (c *Controller) joinRunLocked(ctx context.Context, id uuid.UUID) *analysisRun {
	if c.run == nil || c.run.id != id {
		rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c.run = &analysisRun{id: id, ctx: rctx, cancel: cancel}
	}
	c.run.waiters++
	return c.run
}

// leaveRun reports whether the caller was the last one waiting on run, in
// which case run is cancelled.
func (c *Controller) leaveRun(run *analysisRun) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	run.waiters--
	if run.waiters > 0 {
		return false
	}
	run.cancel()
	if c.run == run {
		c.run = nil
	}
	return true
}

func (c *Controller) analyze(ctx context.Context, pending *models.PendingImage) (models.Verdict, error) {
	c.mu.Lock()
	if c.pending == nil || c.pending.ID != pending.ID {
		c.mu.Unlock()
		return models.Verdict{}, fmt.Errorf("%w: image was discarded", ErrInvalidTransition)
	}
	switch c.state {
	case Resulted:
		// a previous flight for this image already finished
		v := *c.verdict
		c.mu.Unlock()
		return v, nil
	case Previewing:
		c.state = Analyzing
	}
	c.mu.Unlock()

	v, err := c.evaluate(ctx, pending)
	if err == nil {
		err = c.record(ctx, pending, v)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.pending.ID != pending.ID {
		if err == nil {
			err = fmt.Errorf("%w: image was discarded", ErrInvalidTransition)
		}
		return models.Verdict{}, err
	}
	if err != nil {
		c.state = Previewing
		slog.Warn("Analysis did not complete", "image", pending.ID, "err", err)
		return models.Verdict{}, err
	}
	c.verdict = &v
	c.state = Resulted
	slog.Info("Analysis complete", "image", pending.ID, "outcome", v.Outcome, "confidence", v.Confidence)
	return v, nil
}

func (c *Controller) evaluate(ctx context.Context, pending *models.PendingImage) (models.Verdict, error) {
	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return models.Verdict{}, ctx.Err()
		case <-timer.C:
		}
	}

	actx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	v, err := c.analyzer.Evaluate(actx, pending.DataURI)
	if err != nil {
		return models.Verdict{}, err
	}
	return v, nil
}

func (c *Controller) record(ctx context.Context, pending *models.PendingImage, v models.Verdict) error {
	token, err := c.identity.Current(ctx)
	if err != nil {
		return err
	}
	entry := models.HistoryEntry{
		Image:     pending.DataURI,
		Result:    v.Label(),
		Timestamp: c.now().UTC().Format(isoMillis),
	}
	if err := c.recorder.Append(ctx, token, entry); err != nil {
		return fmt.Errorf("failed to record verdict: %w", err)
	}
	return nil
}

// Retake discards the image and verdict and closes any camera session.
func (c *Controller) Retake() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Analyzing {
		return fmt.Errorf("%w: retake while %s", ErrInvalidTransition, c.state)
	}
	c.releaseLocked()
	c.pending = nil
	c.verdict = nil
	c.state = Idle
	return nil
}

// Close releases the camera. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked()
	if c.state == Capturing {
		c.state = Idle
	}
}

func (c *Controller) releaseLocked() {
	c.media.ReleaseStream()
	c.stream = nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the displayed state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:           c.state.String(),
		CameraOn:        c.stream != nil,
		CameraAvailable: c.cameraAvailable,
		Facing:          c.facing,
		Loading:         c.state == Analyzing,
	}
	if c.pending != nil {
		p := *c.pending
		s.Image = &p
	}
	if c.verdict != nil {
		v := *c.verdict
		s.Verdict = &v
		s.Result = v.Message()
	}
	return s
}
