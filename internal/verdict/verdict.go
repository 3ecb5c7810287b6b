// Package verdict produces authenticity verdicts for captured images.
//
// Analyzer is the boundary the workflow depends on. Mock draws a random
// outcome; Vision asks an LLM provider to look at the packaging.
package verdict

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/models"
)

// ErrAnalysisFailure wraps any failure to produce a verdict.
var ErrAnalysisFailure = errors.New("analysis failed")

// DefaultThreshold is the draw an image must exceed to be reported authentic.
const DefaultThreshold = 0.5

// Confidence bounds reported with every verdict.
const (
	MinConfidence = 70
	MaxConfidence = 99
)

// Analyzer evaluates an image given as a data URI.
type Analyzer interface {
	Evaluate(ctx context.Context, imageDataURI string) (models.Verdict, error)
}

// Mock returns Authentic when a uniform draw in [0,1) exceeds Threshold.
// The image is never inspected.
type Mock struct {
	threshold float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock returns a mock seeded from the clock. Thresholds outside [0,1)
// fall back to DefaultThreshold.
func NewMock(threshold float64) *Mock {
	seed := uint64(time.Now().UnixNano())
	return NewMockWithSource(threshold, rand.NewPCG(seed, seed>>1|1))
}

// NewMockWithSource makes the draws reproducible.
func NewMockWithSource(threshold float64, src rand.Source) *Mock {
	if threshold < 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	return &Mock{threshold: threshold, rng: rand.New(src)}
}

func (m *Mock) Threshold() float64 {
	return m.threshold
}

func (m *Mock) Evaluate(ctx context.Context, _ string) (models.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return models.Verdict{}, err
	}

	m.mu.Lock()
	draw := m.rng.Float64()
	confidence := MinConfidence + m.rng.IntN(MaxConfidence-MinConfidence+1)
	m.mu.Unlock()

	return models.NewVerdict(draw > m.threshold, confidence), nil
}

// clampConfidence keeps provider-reported confidence inside the reported range.
func clampConfidence(c int) int {
	switch {
	case c < MinConfidence:
		return MinConfidence
	case c > MaxConfidence:
		return MaxConfidence
	default:
		return c
	}
}
