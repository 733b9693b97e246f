package tiles

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls how transient upstream failures are retried.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Default: 3.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry. Default: 250ms.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay. Default: 5s.
	MaxBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 5 * time.Second
	}
	return p
}

// upstreamError is a failed tile fetch, marked transient when another
// attempt may succeed.
type upstreamError struct {
	msg       string
	status    int
	transient bool
}

func (e *upstreamError) Error() string { return e.msg }

func statusError(status int, url string) *upstreamError {
	return &upstreamError{
		msg:       fmt.Sprintf("tiles: upstream returned %d for %s", status, url),
		status:    status,
		transient: transientStatus(status),
	}
}

func transportError(err error) *upstreamError {
	return &upstreamError{
		msg:       "tiles: fetch tile: " + err.Error(),
		transient: transientNetErr(err),
	}
}

func transientStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func transientNetErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}

func retryable(err error) bool {
	var ue *upstreamError
	return errors.As(err, &ue) && ue.transient
}

// withRetry calls fn until it succeeds, fails permanently, attempts run out
// or ctx is done. The last error is returned.
func withRetry(ctx context.Context, policy RetryPolicy, tile string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	policy = policy.withDefaults()

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		data, err := fn(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) || attempt == policy.MaxAttempts-1 {
			break
		}

		zap.L().Debug("tiles: retrying upstream fetch",
			zap.String("component", "tiles"),
			zap.String("tile", tile),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff(attempt, policy))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// backoff doubles per attempt with ±25% jitter.
func backoff(attempt int, policy RetryPolicy) time.Duration {
	d := float64(policy.InitialBackoff) * math.Pow(2, float64(attempt))
	if d > float64(policy.MaxBackoff) {
		d = float64(policy.MaxBackoff)
	}
	d += (rand.Float64()*2 - 1) * d * 0.25
	return time.Duration(max(d, 0))
}
