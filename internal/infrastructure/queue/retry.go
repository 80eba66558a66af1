package queue

import (
	"errors"
	"time"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
)

// RetryPolicy decides whether a failed asset job runs again and after how long.
// Delays double per attempt starting from Base, capped at Max.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy uses maxAttempts, or five attempts when it is not positive.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return RetryPolicy{MaxAttempts: maxAttempts, Base: defaultBaseDelay, Max: defaultMaxDelay}
}

// Next returns the retried job and its delay, or ok=false when the job is
// exhausted or failed permanently. A ticket that no longer exists is never retried.
func (p RetryPolicy) Next(job ports.AssetJob, err error) (next ports.AssetJob, delay time.Duration, ok bool) {
	if errors.Is(err, domain.ErrNotFound) || job.Attempt >= p.MaxAttempts {
		return job, 0, false
	}

	delay = p.Base
	for i := 1; i < job.Attempt && delay < p.Max; i++ {
		delay *= 2
	}
	if delay > p.Max {
		delay = p.Max
	}

	next = job
	next.Attempt++
	return next, delay, true
}
