// ABOUTME: Wire-level types exchanged with the remote agent service
// ABOUTME: Content/Part/InlineData records, stream events, sessions, and run requests

package wire

import (
	"math"
	"time"
)

// Roles used on the wire.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// InlineData is a binary payload embedded directly in a message part.
// Data is empty when only the name and type of an attachment are known.
type InlineData struct {
	Data        string `json:"data,omitempty"`
	MIMEType    string `json:"mimeType"`
	DisplayName string `json:"displayName"`
}

// Part is one element of a Content. Exactly one of Text or InlineData is
// expected to be set; unknown part kinds decode with both nil.
type Part struct {
	Text       *string     `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: &text}
}

// InlinePart builds an inline-data part.
func InlinePart(data InlineData) Part {
	return Part{InlineData: &data}
}

// Content is the unit the agent both receives and emits.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Event is one decoded record from the agent's event stream or from a
// session's stored history. Only Content matters to the engine.
type Event struct {
	ID           string   `json:"id,omitempty"`
	InvocationID string   `json:"invocationId,omitempty"`
	Author       string   `json:"author,omitempty"`
	Timestamp    float64  `json:"timestamp,omitempty"`
	Partial      bool     `json:"partial,omitempty"`
	Content      *Content `json:"content,omitempty"`
	ErrorCode    string   `json:"errorCode,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
}

// Session is a server-tracked conversation context. Events is only
// populated by a single-session fetch.
type Session struct {
	ID             string  `json:"id"`
	AppName        string  `json:"appName,omitempty"`
	UserID         string  `json:"userId,omitempty"`
	LastUpdateTime float64 `json:"lastUpdateTime,omitempty"`
	Events         []Event `json:"events,omitempty"`
}

// CreatedAt converts the remote's fractional-seconds timestamp. It returns
// the zero time when the remote did not report one.
func (s Session) CreatedAt() time.Time {
	if s.LastUpdateTime <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(s.LastUpdateTime)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// RunRequest is the body of a streaming send.
type RunRequest struct {
	AppName    string         `json:"appName"`
	UserID     string         `json:"userId"`
	SessionID  string         `json:"sessionId"`
	NewMessage Content        `json:"newMessage"`
	StateDelta map[string]any `json:"stateDelta,omitempty"`
	Streaming  bool           `json:"streaming"`
}

// Extraction is the extraction endpoint's reply for an uploaded file.
// Success is only set by servers that report it.
type Extraction struct {
	Success     *bool    `json:"success,omitempty"`
	Filename    string   `json:"filename"`
	Content     string   `json:"content"`
	RecordCount int      `json:"record_count,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// Failed reports whether the server explicitly marked the extraction as failed.
func (e *Extraction) Failed() bool {
	return e.Success != nil && !*e.Success
}
