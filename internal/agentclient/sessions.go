// ABOUTME: Session directory calls against the agent service
// ABOUTME: Lists, creates, fetches, and deletes the user's sessions

package agentclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/2389/pitstop/internal/wire"
)

// ListSessions returns the user's sessions in server order.
func (c *Client) ListSessions(ctx context.Context) ([]wire.Session, error) {
	req, requestID, err := c.newRequest(ctx, http.MethodGet, c.sessionsURL(ctx), nil)
	if err != nil {
		return nil, err
	}

	var sessions []wire.Session
	if _, err := c.doJSON(req, &sessions); err != nil {
		c.logger.Warn("listing sessions failed", "error", err, "request_id", requestID)
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	if sessions == nil {
		sessions = []wire.Session{}
	}
	return sessions, nil
}

// CreateSession asks the service for a new, empty session.
func (c *Client) CreateSession(ctx context.Context) (wire.Session, error) {
	req, requestID, err := c.newRequest(ctx, http.MethodPost, c.sessionsURL(ctx), bytes.NewReader([]byte("{}")))
	if err != nil {
		return wire.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var session wire.Session
	found, err := c.doJSON(req, &session)
	if err != nil {
		c.logger.Warn("creating session failed", "error", err, "request_id", requestID)
		return wire.Session{}, fmt.Errorf("creating session: %w", err)
	}
	if !found || session.ID == "" {
		return wire.Session{}, fmt.Errorf("creating session: response carried no session id")
	}

	c.logger.Debug("session created", "session_id", session.ID, "request_id", requestID)
	return session, nil
}

// GetSession returns one session including its stored events.
func (c *Client) GetSession(ctx context.Context, id string) (wire.Session, error) {
	req, requestID, err := c.newRequest(ctx, http.MethodGet, c.sessionsURL(ctx)+"/"+url.PathEscape(id), nil)
	if err != nil {
		return wire.Session{}, err
	}

	var session wire.Session
	if _, err := c.doJSON(req, &session); err != nil {
		c.logger.Warn("loading session failed", "session_id", id, "error", err, "request_id", requestID)
		return wire.Session{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	if session.ID == "" {
		session.ID = id
	}
	return session, nil
}

// DeleteSession removes a session on the service.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	req, requestID, err := c.newRequest(ctx, http.MethodDelete, c.sessionsURL(ctx)+"/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}

	if _, err := c.doJSON(req, nil); err != nil {
		c.logger.Warn("deleting session failed", "session_id", id, "error", err, "request_id", requestID)
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}
