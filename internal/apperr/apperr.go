// ABOUTME: Error kinds surfaced by the pitstop engine to its callers
// ABOUTME: Sentinel errors, a Kind enum, and the RemoteError type for non-success responses

package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Components wrap these with %w so callers can classify
// failures with errors.Is or KindOf.
var (
	ErrNetworkUnavailable    = errors.New("network unavailable")
	ErrRemoteRejected        = errors.New("remote rejected request")
	ErrMalformedStreamRecord = errors.New("malformed stream record")
	ErrEmptyResponse         = errors.New("empty response")
	ErrUnreadableFile        = errors.New("unreadable file")
	ErrNoActiveSession       = errors.New("no active session")
	ErrEmptyMessage          = errors.New("empty message")
	ErrProcessingFailed      = errors.New("processing failed")

	// ErrStreamStalled is returned when a streaming reply stops delivering
	// bytes for longer than the configured idle timeout. It is reported as
	// a network failure.
	ErrStreamStalled = fmt.Errorf("%w: stream stalled", ErrNetworkUnavailable)
)

// Kind classifies an error for status reporting.
type Kind string

const (
	KindNone               Kind = ""
	KindNetworkUnavailable Kind = "network_unavailable"
	KindRemoteRejected     Kind = "remote_rejected"
	KindMalformedRecord    Kind = "malformed_stream_record"
	KindEmptyResponse      Kind = "empty_response"
	KindUnreadableFile     Kind = "unreadable_file"
	KindNoActiveSession    Kind = "no_active_session"
	KindEmptyMessage       Kind = "empty_message"
	KindProcessingFailed   Kind = "processing_failed"
	KindCanceled           Kind = "canceled"
	KindInternal           Kind = "internal"
)

// KindOf maps an error onto its Kind. More specific kinds win: an upload
// that failed because the network was down reports processing_failed,
// since that is what the user acted on.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrProcessingFailed):
		return KindProcessingFailed
	case errors.Is(err, ErrUnreadableFile):
		return KindUnreadableFile
	case errors.Is(err, ErrNoActiveSession):
		return KindNoActiveSession
	case errors.Is(err, ErrEmptyMessage):
		return KindEmptyMessage
	case errors.Is(err, ErrRemoteRejected):
		return KindRemoteRejected
	case errors.Is(err, ErrNetworkUnavailable):
		return KindNetworkUnavailable
	case errors.Is(err, ErrMalformedStreamRecord):
		return KindMalformedRecord
	case errors.Is(err, ErrEmptyResponse):
		return KindEmptyResponse
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// RemoteError describes a non-success HTTP response from the agent service.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned status %d", e.Status)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.Status, e.Message)
}

// Is reports RemoteError as ErrRemoteRejected.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteRejected
}
