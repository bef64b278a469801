// ABOUTME: Translates between display messages and the agent's wire content
// ABOUTME: Builds outbound content, extracts the vehicle id hint, and rebuilds replies

package codec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/2389/pitstop/internal/apperr"
	"github.com/2389/pitstop/internal/wire"
)

// Role identifies who authored a display message.
type Role string

const (
	RoleUser  Role = wire.RoleUser
	RoleModel Role = wire.RoleModel
)

// Fixed reply texts.
const (
	NoContentText  = "No response content from agent."
	ErrorReplyText = "Error talking to agent. Check backend logs."
)

// StateKeyVehicleID is the state delta key populated from ExtractStateHint.
const StateKeyVehicleID = "vehicle_id"

// Message is the display form of one conversation turn.
type Message struct {
	Role        Role
	Text        string
	Attachments []wire.InlineData
}

// Empty reports whether the message has neither text nor attachments.
// Empty messages are never appended to a history.
func (m Message) Empty() bool {
	return m.Text == "" && len(m.Attachments) == 0
}

// NoContentMessage is the placeholder reply for a stream that produced
// nothing displayable.
func NoContentMessage() Message {
	return Message{Role: RoleModel, Text: NoContentText}
}

// ErrorReplyMessage is appended when a send fails after the user's message
// has already been shown.
func ErrorReplyMessage() Message {
	return Message{Role: RoleModel, Text: ErrorReplyText}
}

// UserMessage builds the optimistic display form of an outbound user input.
// When only a file is sent the text names it. The attachment chip carries
// the name and type only; the payload is never kept in history.
func UserMessage(text, fileName, mimeType string) Message {
	msg := Message{Role: RoleUser, Text: text}
	if fileName == "" {
		return msg
	}
	if msg.Text == "" {
		msg.Text = fmt.Sprintf("Sent file: %s", fileName)
	}
	msg.Attachments = []wire.InlineData{{MIMEType: mimeType, DisplayName: fileName}}
	return msg
}

// ToWire builds the wire content for an outbound message. A text part is
// added when text is non-blank, an inline part when att is non-nil.
func ToWire(role Role, text string, att *wire.InlineData) (wire.Content, error) {
	content := wire.Content{Role: string(role)}
	if strings.TrimSpace(text) != "" {
		content.Parts = append(content.Parts, wire.TextPart(text))
	}
	if att != nil {
		content.Parts = append(content.Parts, wire.InlinePart(*att))
	}
	if len(content.Parts) == 0 {
		return wire.Content{}, apperr.ErrEmptyMessage
	}
	return content, nil
}

// stateHintPattern matches "vehicle id" or a bare "id" followed by an
// identifier. It is a heuristic, not validation.
var stateHintPattern = regexp.MustCompile(`(?i)(?:vehicle\s*id|id)[:\s]*([a-zA-Z0-9-]+)`)

// ExtractStateHint returns the first vehicle identifier mentioned in text,
// or "" when there is none.
func ExtractStateHint(text string) string {
	m := stateHintPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// StateDelta wraps a hint into the run request's state delta. It returns
// nil for an empty hint so the field is omitted on the wire.
func StateDelta(hint string) map[string]any {
	if hint == "" {
		return nil
	}
	return map[string]any{StateKeyVehicleID: hint}
}

// FromWireList folds every content of one reply into a single model
// message. Text parts are space-joined and trimmed; inline parts are kept
// in encounter order. A reply with nothing displayable yields
// NoContentMessage.
func FromWireList(contents []wire.Content) Message {
	var texts []string
	var attachments []wire.InlineData
	for _, c := range contents {
		t, a := collectParts(c.Parts)
		texts = append(texts, t...)
		attachments = append(attachments, a...)
	}

	msg := Message{
		Role:        RoleModel,
		Text:        strings.TrimSpace(strings.Join(texts, " ")),
		Attachments: attachments,
	}
	if msg.Empty() {
		return NoContentMessage()
	}
	return msg
}

// FromStoredEvents replays a session's stored events as display messages,
// one per event carrying content. Events that yield nothing are dropped.
func FromStoredEvents(events []wire.Event) []Message {
	msgs := make([]Message, 0, len(events))
	for _, ev := range events {
		if ev.Content == nil {
			continue
		}
		role := Role(ev.Content.Role)
		if role == "" {
			role = RoleModel
		}
		texts, attachments := collectParts(ev.Content.Parts)
		msg := Message{
			Role:        role,
			Text:        strings.TrimSpace(strings.Join(texts, " ")),
			Attachments: attachments,
		}
		if msg.Empty() {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// collectParts splits parts into their texts and inline attachments.
func collectParts(parts []wire.Part) ([]string, []wire.InlineData) {
	var texts []string
	var attachments []wire.InlineData
	for _, p := range parts {
		if p.Text != nil {
			texts = append(texts, *p.Text)
		}
		if p.InlineData != nil {
			attachments = append(attachments, *p.InlineData)
		}
	}
	return texts, attachments
}
