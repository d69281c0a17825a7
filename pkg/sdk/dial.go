// Package sdk is the CLI/library entry point for reaching the daemon: a
// retrying dial helper around internal/ipc/router.ClientRouter. Once
// connected, callers issue requests through internal/sdk's per-operation
// adapters over the returned ClientRouter.
//
// Grounded on share/client.go's connectionLoop, which wraps the same
// jpillora/backoff-driven retry shape around a websocket dial; this
// package keeps the retry loop but not the teacher's indefinite
// reconnect-forever semantics, since a dropped ClientRouter completes
// every open channel with ESHUTDOWN and has no way to transparently
// resume them — silently redialing after a drop would hide that failure
// from the caller rather than surface it, so Dial only retries the
// initial connect.
package sdk

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/route"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
)

// DialOptions configures Dial's retry loop, mirroring Config's
// MaxRetryInterval/MaxRetryCount fields in share/client.go.
type DialOptions struct {
	// MaxRetryInterval caps the backoff delay between attempts. Zero
	// means backoff.Backoff's own default (2 minutes).
	MaxRetryInterval time.Duration
	// MaxRetryCount bounds the number of retries after the first attempt
	// (at most MaxRetryCount+1 attempts); negative means retry forever
	// (until ctx is cancelled).
	MaxRetryCount int
}

// Dial connects to the daemon at network/address, retrying with
// exponential backoff on failure until it succeeds, MaxRetryCount is
// exhausted, or ctx is cancelled.
func Dial(ctx context.Context, exec *executor.Executor, log *ipclog.Logger, network, address string, version route.ProtocolVersion, opts DialOptions) (*router.ClientRouter, error) {
	b := &backoff.Backoff{Max: opts.MaxRetryInterval}

	for {
		r, err := router.DialClientRouter(exec, log, network, address, version)
		if err == nil {
			return r, nil
		}

		attempt := int(b.Attempt())
		if opts.MaxRetryCount >= 0 && attempt >= opts.MaxRetryCount {
			return nil, fmt.Errorf("sdk: dial %s %s: giving up after %d attempts: %w", network, address, attempt+1, err)
		}

		d := b.Duration()
		log.Warnf("dial %s %s failed (attempt %d): %s, retrying in %s", network, address, attempt+1, err, d)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}
}
