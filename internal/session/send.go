// ABOUTME: Outbound message flow for the active session
// ABOUTME: Routes attached files, sends the message, and appends exactly one reply

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/pitstop/internal/apperr"
	"github.com/2389/pitstop/internal/codec"
	"github.com/2389/pitstop/internal/files"
	"github.com/2389/pitstop/internal/ledger"
	"github.com/2389/pitstop/internal/wire"
)

// SendUserInput sends text and an optional file to the active session.
//
// A tabular file is extracted first and its synthesized text is sent in
// its place; if that fails nothing is shown and the file is not sent. A
// generic file is shown at once and then encoded inline. Once the user's
// message is shown, exactly one reply follows it: the agent's answer or an
// error reply. Results for a session that is no longer active are dropped
// from the display; if the user has since switched back to it, its history
// is reloaded so the stored reply appears. An empty reply is shown as a
// placeholder and reported with apperr.ErrEmptyResponse in the status.
//
// Only one send per session may be in flight; a second returns ErrSendInFlight.
func (m *Manager) SendUserInput(ctx context.Context, text string, f files.File) error {
	m.mu.Lock()
	sid := m.activeID
	switch {
	case sid == "":
		err := apperr.ErrNoActiveSession
		m.setStatusLocked(err, statusNoSession)
		m.notifyLocked()
		m.mu.Unlock()
		return err
	case strings.TrimSpace(text) == "" && f == nil:
		m.mu.Unlock()
		return apperr.ErrEmptyMessage
	case m.inflight[sid]:
		m.mu.Unlock()
		return ErrSendInFlight
	}
	m.inflight[sid] = true
	m.busy++
	tag := m.epoch
	m.clearStatusLocked()
	m.notifyLocked()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inflight, sid)
		m.busy--
		m.notifyLocked()
		m.mu.Unlock()
	}()

	logger := m.logger.With("session_id", sid)

	outText := text
	var att *wire.InlineData
	var shown codec.Message
	var attachmentNames []string

	switch {
	case f != nil && files.Classify(f) == files.KindTabular:
		synthesized, err := m.uploader.Upload(ctx, f)
		if err != nil {
			if !errors.Is(err, apperr.ErrProcessingFailed) {
				err = fmt.Errorf("%w: %w", apperr.ErrProcessingFailed, err)
			}
			m.failIfCurrent(tag, err, statusProcessFailed)
			logger.Warn("file processing failed", "file", f.Name(), "error", err)
			return err
		}
		if typed := strings.TrimSpace(text); typed != "" {
			outText = typed + "\n\n" + synthesized
		} else {
			outText = synthesized
		}
		shown = codec.UserMessage(outText, "", "")
		m.appendIfCurrent(tag, shown)

	case f != nil:
		shown = codec.UserMessage(strings.TrimSpace(text), f.Name(), f.MIMEType())
		attachmentNames = []string{f.Name()}
		m.appendIfCurrent(tag, shown)

		data, err := m.encoder.Encode(f)
		if err != nil {
			if !errors.Is(err, apperr.ErrUnreadableFile) {
				err = fmt.Errorf("%w: %w", apperr.ErrUnreadableFile, err)
			}
			m.replyWithError(ctx, tag, sid, err, statusUnreadable)
			logger.Warn("encoding attachment failed", "file", f.Name(), "error", err)
			return err
		}
		att = &data

	default:
		shown = codec.UserMessage(strings.TrimSpace(text), "", "")
		m.appendIfCurrent(tag, shown)
	}

	m.record(ctx, ledger.Entry{
		SessionID:   sid,
		Direction:   ledger.DirectionOutbound,
		Role:        string(codec.RoleUser),
		Text:        outText,
		Attachments: attachmentNames,
	})

	content, err := codec.ToWire(codec.RoleUser, outText, att)
	if err != nil {
		m.replyWithError(ctx, tag, sid, err, statusSendFailed)
		return err
	}

	req := wire.RunRequest{
		AppName:    m.appName,
		UserID:     m.userID,
		SessionID:  sid,
		NewMessage: content,
		StateDelta: codec.StateDelta(codec.ExtractStateHint(outText)),
	}

	contents, err := m.runner.Run(ctx, req)
	if err != nil {
		m.replyWithError(ctx, tag, sid, err, statusSendFailed)
		logger.Warn("sending message failed", "error", err)
		return fmt.Errorf("sending message: %w", err)
	}

	reply := codec.FromWireList(contents)
	shownReply := m.appendIfCurrent(tag, reply)
	if reply.Text == codec.NoContentText && len(reply.Attachments) == 0 {
		logger.Info("agent reply had no content", "kind", apperr.KindEmptyResponse)
		m.failIfCurrent(tag, apperr.ErrEmptyResponse, statusEmptyReply)
	}
	m.record(ctx, ledger.Entry{
		SessionID:   sid,
		Direction:   ledger.DirectionInbound,
		Role:        string(reply.Role),
		Text:        reply.Text,
		Attachments: displayNames(reply.Attachments),
	})
	if !shownReply {
		m.refreshIfReselected(ctx, tag, sid)
	}
	return nil
}

// refreshIfReselected reloads sid from the directory when the user switched
// away from it and back while its send was in flight. The reply was stored
// remotely by then, but the reload that reopened sid may have missed it.
func (m *Manager) refreshIfReselected(ctx context.Context, tag uint64, sid string) {
	m.mu.Lock()
	if m.epoch == tag || m.activeID != sid {
		m.mu.Unlock()
		return
	}
	m.epoch++
	next := m.epoch
	m.mu.Unlock()

	m.logger.Debug("reloading reselected session after reply", "session_id", sid)
	if err := m.loadHistory(ctx, sid, next); err != nil {
		m.logger.Warn("reloading session after reply failed", "session_id", sid, "error", err)
	}
}

// appendIfCurrent appends msg to the displayed history if the selection
// that produced it is still current.
func (m *Manager) appendIfCurrent(tag uint64, msg codec.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != tag {
		m.logger.Debug("dropping message for inactive session", "role", msg.Role)
		return false
	}
	if msg.Empty() {
		return false
	}
	m.messages = append(m.messages, msg)
	m.notifyLocked()
	return true
}

func (m *Manager) failIfCurrent(tag uint64, err error, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != tag {
		return
	}
	m.setStatusLocked(err, text)
	m.notifyLocked()
}

// replyWithError appends the error reply and records it.
func (m *Manager) replyWithError(ctx context.Context, tag uint64, sid string, err error, text string) {
	reply := codec.ErrorReplyMessage()
	m.appendIfCurrent(tag, reply)
	m.failIfCurrent(tag, err, text)
	m.record(ctx, ledger.Entry{
		SessionID: sid,
		Direction: ledger.DirectionError,
		Role:      string(reply.Role),
		Text:      reply.Text,
	})
}

// record writes to the transcript. Failures are logged and otherwise ignored.
func (m *Manager) record(ctx context.Context, e ledger.Entry) {
	if m.transcript == nil {
		return
	}
	if err := m.transcript.Record(context.WithoutCancel(ctx), e); err != nil {
		m.logger.Warn("recording transcript failed", "session_id", e.SessionID, "error", err)
	}
}

func displayNames(atts []wire.InlineData) []string {
	if len(atts) == 0 {
		return nil
	}
	names := make([]string, 0, len(atts))
	for _, a := range atts {
		names = append(names, a.DisplayName)
	}
	return names
}
