// ABOUTME: HTTP client for the remote agent service
// ABOUTME: Session directory, streaming run, and file extraction with uniform error mapping

package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/pitstop/internal/apperr"
	"github.com/2389/pitstop/internal/authctx"
	"github.com/2389/pitstop/internal/textutil"
)

// Default timeouts used when Options leaves them zero.
const (
	DefaultRequestTimeout    = 30 * time.Second
	DefaultStreamIdleTimeout = 2 * time.Minute
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// Options configures a Client.
type Options struct {
	BaseURL string
	// RequestTimeout bounds unary calls end to end.
	RequestTimeout time.Duration
	// StreamIdleTimeout bounds the silence between bytes of a streamed reply.
	StreamIdleTimeout time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client talks to the agent service over HTTP. It implements the session
// directory, the streaming runner, and the file extractor.
type Client struct {
	baseURL     string
	auth        *authctx.Context
	unary       *http.Client
	streaming   *http.Client
	idleTimeout time.Duration
	logger      *slog.Logger
}

// New creates a client acting as auth. Pass nil logger for default.
func New(opts Options, auth *authctx.Context, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.StreamIdleTimeout <= 0 {
		opts.StreamIdleTimeout = DefaultStreamIdleTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		auth:        auth,
		unary:       &http.Client{Transport: transport, Timeout: opts.RequestTimeout},
		streaming:   &http.Client{Transport: transport},
		idleTimeout: opts.StreamIdleTimeout,
		logger:      logger.With("component", "agentclient"),
	}
}

// identity returns the context to act as: one attached to ctx wins over
// the client's own.
func (c *Client) identity(ctx context.Context) *authctx.Context {
	if a := authctx.FromContext(ctx); a != nil {
		return a
	}
	return c.auth
}

func (c *Client) sessionsURL(ctx context.Context) string {
	id := c.identity(ctx)
	var app, user string
	if id != nil {
		app, user = id.AppName, id.UserID
	}
	return fmt.Sprintf("%s/apps/%s/users/%s/sessions", c.baseURL, url.PathEscape(app), url.PathEscape(user))
}

// newRequest builds a request with auth and request-id headers set.
func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	if token := c.identity(ctx).Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, requestID, nil
}

// doJSON performs a unary call and decodes a JSON body into out. A 204 or
// empty body leaves out untouched and reports found=false.
func (c *Client) doJSON(req *http.Request, out any) (found bool, err error) {
	resp, err := c.unary.Do(req)
	if err != nil {
		return false, transportError(req.Context(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, remoteError(resp)
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return false, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, transportError(req.Context(), err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return true, nil
}

// transportError maps a failed round trip onto the engine's error kinds.
// Cancellation by the caller is passed through unchanged.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", apperr.ErrNetworkUnavailable, err)
}

// remoteError builds a RemoteError from a non-success response, unwrapping
// the usual JSON error envelopes.
func remoteError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &apperr.RemoteError{
		Status:  resp.StatusCode,
		Message: errorMessage(body),
	}
}

func errorMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var envelope map[string]json.RawMessage
	if json.Unmarshal(body, &envelope) == nil {
		for _, key := range []string{"detail", "error", "message"} {
			raw, ok := envelope[key]
			if !ok {
				continue
			}
			var s string
			if json.Unmarshal(raw, &s) == nil {
				return s
			}
			// Structured detail (validation errors) is kept as compact JSON.
			return string(raw)
		}
	}

	return textutil.Truncate(string(body), 512)
}
