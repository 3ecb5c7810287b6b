package verdict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/models"
	"github.com/sethvargo/go-retry"
)

// retryOnce re-runs a failed evaluation one time before reporting it.
type retryOnce struct {
	next Analyzer
	wait time.Duration
}

// RetryOnce wraps next so a failed evaluation is attempted a second time
// after wait. Context errors are not retried.
func RetryOnce(next Analyzer, wait time.Duration) Analyzer {
	if wait <= 0 {
		wait = time.Millisecond
	}
	return &retryOnce{next: next, wait: wait}
}

func (r *retryOnce) Evaluate(ctx context.Context, imageDataURI string) (models.Verdict, error) {
	var verdict models.Verdict
	attempt := 0

	err := retry.Do(ctx, retry.WithMaxRetries(1, retry.NewConstant(r.wait)), func(ctx context.Context) error {
		attempt++
		v, err := r.next.Evaluate(ctx, imageDataURI)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			slog.Warn("Analysis attempt failed", "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		verdict = v
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAnalysisFailure) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.Verdict{}, err
		}
		return models.Verdict{}, fmt.Errorf("%w: %w", ErrAnalysisFailure, err)
	}
	return verdict, nil
}
