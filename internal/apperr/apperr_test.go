// ABOUTME: Tests for error kind classification
// ABOUTME: Covers wrapping, RemoteError matching, and kind precedence

package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"wrapped network", fmt.Errorf("listing sessions: %w", ErrNetworkUnavailable), KindNetworkUnavailable},
		{"stalled stream", ErrStreamStalled, KindNetworkUnavailable},
		{"remote error", &RemoteError{Status: 500, Message: "boom"}, KindRemoteRejected},
		{"upload over network failure", fmt.Errorf("%w: %w", ErrProcessingFailed, ErrNetworkUnavailable), KindProcessingFailed},
		{"unreadable", fmt.Errorf("reading photo.png: %w", ErrUnreadableFile), KindUnreadableFile},
		{"no session", ErrNoActiveSession, KindNoActiveSession},
		{"empty", ErrEmptyMessage, KindEmptyMessage},
		{"canceled", context.Canceled, KindCanceled},
		{"other", errors.New("something else"), KindInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestRemoteError_Message(t *testing.T) {
	err := &RemoteError{Status: 404, Message: "Session not found"}
	assert.Equal(t, "remote returned status 404: Session not found", err.Error())
	assert.True(t, errors.Is(fmt.Errorf("getting session: %w", err), ErrRemoteRejected))

	bare := &RemoteError{Status: 502}
	assert.Equal(t, "remote returned status 502", bare.Error())
}
