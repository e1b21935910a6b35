// Package upstream dials backend addresses chosen by the Rule Index or a
// Proxy's high-speed bypass. Dial failures are retried a bounded number of
// times with backoff before surfacing as an UpstreamError.
package upstream

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wirelane/drawbridge/internal/xerrors"
)

// Config controls dial timeout and retry policy.
type Config struct {
	DialTimeout time.Duration
	MaxRetries  uint64
}

// DefaultConfig matches the 5s upstream dial timeout from the concurrency
// model, with two bounded retries before giving up.
var DefaultConfig = Config{
	DialTimeout: 5 * time.Second,
	MaxRetries:  2,
}

// Dial connects to addr, retrying transient failures with exponential
// backoff bounded by cfg.MaxRetries. Returns an UpstreamError on exhaustion.
func Dial(ctx context.Context, addr string, cfg Config) (net.Conn, error) {
	var conn net.Conn
	dialer := net.Dialer{Timeout: cfg.DialTimeout}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.MaxRetries)

	op := func() error {
		c, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, xerrors.NewUpstreamError(err)
	}
	return conn, nil
}
