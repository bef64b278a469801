// ABOUTME: Streaming run call that sends one message and collects the agent's reply
// ABOUTME: Guards the stream with an idle timeout and parses it with the stream package

package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/2389/pitstop/internal/apperr"
	"github.com/2389/pitstop/internal/stream"
	"github.com/2389/pitstop/internal/wire"
)

// Run sends req to the run endpoint and returns every content of the
// streamed reply, in order. An empty reply is not an error.
func (c *Client) Run(ctx context.Context, req wire.RunRequest) ([]wire.Content, error) {
	return c.RunStream(ctx, req, nil)
}

// RunStream is Run with an optional hook called for each content as it
// arrives.
func (c *Client) RunStream(ctx context.Context, req wire.RunRequest, onContent func(wire.Content)) ([]wire.Content, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling run request: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpReq, requestID, err := c.newRequest(runCtx, http.MethodPost, c.baseURL+"/run_sse", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	logger := c.logger.With("session_id", req.SessionID, "request_id", requestID)
	start := time.Now()

	// The watchdog covers the wait for headers as well as the body.
	watchdog := newIdleWatchdog(c.idleTimeout, cancel)
	defer watchdog.stop()

	resp, err := c.streaming.Do(httpReq)
	if err != nil {
		if watchdog.fired() {
			return nil, fmt.Errorf("running agent: %w", apperr.ErrStreamStalled)
		}
		return nil, fmt.Errorf("running agent: %w", transportError(ctx, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := remoteError(resp)
		logger.Warn("run rejected", "status", resp.StatusCode, "error", err)
		return nil, fmt.Errorf("running agent: %w", err)
	}

	parser := stream.NewParser(c.logger)
	parser.OnContent = onContent
	parser.OnEvent = func(ev wire.Event) {
		if ev.ErrorCode != "" || ev.ErrorMessage != "" {
			logger.Warn("agent reported an error event",
				"error_code", ev.ErrorCode,
				"error_message", ev.ErrorMessage,
			)
		}
	}

	contents, err := parser.Parse(runCtx, watchdog.wrap(resp.Body))
	if err != nil {
		switch {
		case watchdog.fired():
			err = apperr.ErrStreamStalled
		case ctx.Err() != nil:
			err = ctx.Err()
		case !errors.Is(err, context.Canceled):
			err = fmt.Errorf("%w: %w", apperr.ErrNetworkUnavailable, err)
		}
		logger.Warn("reply stream interrupted", "error", err, "contents", len(contents))
		return contents, fmt.Errorf("running agent: %w", err)
	}

	logger.Debug("reply received",
		"contents", len(contents),
		"malformed", parser.Malformed(),
		"duration", time.Since(start),
	)
	return contents, nil
}

// idleWatchdog cancels a request when no bytes arrive within timeout.
type idleWatchdog struct {
	timeout time.Duration
	timer   *time.Timer
	tripped atomic.Bool
}

func newIdleWatchdog(timeout time.Duration, cancel context.CancelFunc) *idleWatchdog {
	w := &idleWatchdog{timeout: timeout}
	w.timer = time.AfterFunc(timeout, func() {
		w.tripped.Store(true)
		cancel()
	})
	return w
}

func (w *idleWatchdog) fired() bool { return w.tripped.Load() }

func (w *idleWatchdog) stop() { w.timer.Stop() }

func (w *idleWatchdog) wrap(r io.Reader) io.Reader {
	return &watchedReader{r: r, w: w}
}

// watchedReader resets its watchdog whenever bytes arrive.
type watchedReader struct {
	r io.Reader
	w *idleWatchdog
}

func (r *watchedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 && !r.w.fired() {
		r.w.timer.Reset(r.w.timeout)
	}
	return n, err
}
