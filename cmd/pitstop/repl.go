// ABOUTME: Command handling and output formatting for the pitstop REPL
// ABOUTME: Maps slash commands onto session manager operations and renders replies as plain text

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/pitstop/internal/codec"
	"github.com/2389/pitstop/internal/files"
	"github.com/2389/pitstop/internal/ledger"
	"github.com/2389/pitstop/internal/render"
	"github.com/2389/pitstop/internal/session"
	"github.com/2389/pitstop/internal/textutil"
)

// errQuit ends the REPL loop.
var errQuit = errors.New("quit")

const defaultTranscriptLimit = 20

// transcriptReader is the read side of the local transcript.
type transcriptReader interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]ledger.Entry, error)
}

// repl holds everything a command needs.
type repl struct {
	mgr        *session.Manager
	transcript transcriptReader // nil when the ledger is disabled
	baseURL    string
	out        io.Writer

	user   *color.Color
	agent  *color.Color
	faint  *color.Color
	failed *color.Color
}

func newREPL(mgr *session.Manager, transcript transcriptReader, baseURL string, out io.Writer) *repl {
	return &repl{
		mgr:        mgr,
		transcript: transcript,
		baseURL:    baseURL,
		out:        out,
		user:       color.New(color.FgBlue),
		agent:      color.New(color.FgGreen),
		faint:      color.New(color.Faint),
		failed:     color.New(color.FgRed),
	}
}

func (r *repl) prompt() string {
	id := r.mgr.Snapshot().ActiveID
	if id == "" {
		return "> "
	}
	return fmt.Sprintf("[%s]> ", shortID(id))
}

// handle runs one line of input. It returns errQuit when the user asks to leave.
func (r *repl) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return r.send(ctx, line, nil)
	}

	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/quit", "/exit", "/q":
		return errQuit
	case "/help":
		r.printHelp()
		return nil
	case "/sessions":
		return r.report(r.listSessions(ctx))
	case "/new":
		s, err := r.mgr.CreateSession(ctx)
		if err != nil {
			return r.report(err)
		}
		fmt.Fprintf(r.out, "Started session %s\n", s.ID)
		return nil
	case "/use":
		if args == "" {
			fmt.Fprintln(r.out, "Usage: /use <session id>")
			return nil
		}
		if err := r.mgr.SelectSession(ctx, r.resolve(args)); err != nil {
			return r.report(err)
		}
		r.printHistory()
		return nil
	case "/delete":
		id := r.mgr.Snapshot().ActiveID
		if args != "" {
			id = r.resolve(args)
		}
		if id == "" {
			fmt.Fprintln(r.out, "No active session.")
			return nil
		}
		if err := r.mgr.DeleteSession(ctx, id); err != nil {
			return r.report(err)
		}
		fmt.Fprintf(r.out, "Deleted session %s\n", id)
		return nil
	case "/history":
		r.printHistory()
		return nil
	case "/transcript":
		return r.report(r.printTranscript(ctx, args))
	case "/attach":
		path, text, _ := strings.Cut(args, " ")
		if path == "" {
			fmt.Fprintln(r.out, "Usage: /attach <path> [message]")
			return nil
		}
		f, err := files.FromPath(path)
		if err != nil {
			r.failed.Fprintf(r.out, "[error] %v\n", err)
			return nil
		}
		fmt.Fprintf(r.out, "Attaching %s (%s, %s)\n", f.Name(), f.MIMEType(), files.Classify(f))
		return r.send(ctx, strings.TrimSpace(text), f)
	default:
		fmt.Fprintf(r.out, "Unknown command %s. /help lists commands.\n", cmd)
		return nil
	}
}

// send sends input and prints whatever the agent added to the conversation.
func (r *repl) send(ctx context.Context, text string, f files.File) error {
	before := r.mgr.Snapshot()
	err := r.mgr.SendUserInput(ctx, text, f)
	after := r.mgr.Snapshot()

	if after.ActiveID == before.ActiveID && len(after.Messages) > len(before.Messages) {
		for i, msg := range after.Messages[len(before.Messages):] {
			// The typed text is already on screen.
			if i == 0 && msg.Role == codec.RoleUser && msg.Text == text && len(msg.Attachments) == 0 {
				continue
			}
			r.printMessage(msg)
		}
	}
	return r.report(err)
}

// report prints a failed operation's status line. Only errQuit is passed on.
func (r *repl) report(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errQuit) {
		return err
	}
	if text := r.mgr.Snapshot().Status.Text; text != "" {
		r.failed.Fprintf(r.out, "[error] %s\n", text)
	} else {
		r.failed.Fprintf(r.out, "[error] %v\n", err)
	}
	return nil
}

func (r *repl) listSessions(ctx context.Context) error {
	sessions, err := r.mgr.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(r.out, "No sessions. /new starts one.")
		return nil
	}

	active := r.mgr.Snapshot().ActiveID
	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, s := range sessions {
		marker := " "
		if s.ID == active {
			marker = "*"
		}
		updated := "-"
		if t := s.CreatedAt(); !t.IsZero() {
			updated = t.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", marker, s.ID, updated)
	}
	return tw.Flush()
}

// resolve expands a unique id prefix to the full session id.
func (r *repl) resolve(prefix string) string {
	var match string
	for _, s := range r.mgr.Snapshot().Sessions {
		if s.ID == prefix {
			return s.ID
		}
		if strings.HasPrefix(s.ID, prefix) {
			if match != "" {
				return prefix
			}
			match = s.ID
		}
	}
	if match == "" {
		return prefix
	}
	return match
}

func (r *repl) printHistory() {
	st := r.mgr.Snapshot()
	if st.ActiveID == "" {
		fmt.Fprintln(r.out, "No active session.")
		return
	}
	if len(st.Messages) == 0 {
		r.faint.Fprintln(r.out, "(no messages yet)")
		return
	}
	for _, msg := range st.Messages {
		r.printMessage(msg)
	}
}

func (r *repl) printMessage(msg codec.Message) {
	if msg.Role == codec.RoleUser {
		r.user.Fprint(r.out, "you> ")
		fmt.Fprintln(r.out, msg.Text)
		r.printAttachments(msg)
		return
	}

	text, images := render.ServiceImages(msg.Text, r.baseURL)
	r.agent.Fprint(r.out, "agent> ")
	fmt.Fprintln(r.out, render.PlainText(text))
	for _, u := range images {
		r.faint.Fprintf(r.out, "  [image] %s\n", u)
	}
	r.printAttachments(msg)
}

func (r *repl) printAttachments(msg codec.Message) {
	for _, a := range msg.Attachments {
		r.faint.Fprintf(r.out, "  [file] %s (%s)\n", a.DisplayName, a.MIMEType)
	}
}

func (r *repl) printTranscript(ctx context.Context, args string) error {
	if r.transcript == nil {
		fmt.Fprintln(r.out, "The local transcript is disabled.")
		return nil
	}
	id := r.mgr.Snapshot().ActiveID
	if id == "" {
		fmt.Fprintln(r.out, "No active session.")
		return nil
	}

	limit := defaultTranscriptLimit
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			fmt.Fprintln(r.out, "Usage: /transcript [count]")
			return nil
		}
		limit = n
	}

	entries, err := r.transcript.ListBySession(ctx, id, limit)
	if err != nil {
		return fmt.Errorf("reading transcript: %w", err)
	}
	if len(entries) == 0 {
		r.faint.Fprintln(r.out, "(nothing recorded for this session)")
		return nil
	}
	for _, e := range entries {
		arrow := "→"
		switch e.Direction {
		case ledger.DirectionInbound:
			arrow = "←"
		case ledger.DirectionError:
			arrow = "!"
		}
		r.faint.Fprintf(r.out, "%s ", e.CreatedAt.Local().Format(time.TimeOnly))
		fmt.Fprintf(r.out, "%s %s\n", arrow, textutil.Truncate(strings.ReplaceAll(e.Text, "\n", " "), 200))
		for _, name := range e.Attachments {
			r.faint.Fprintf(r.out, "    [file] %s\n", name)
		}
	}
	return nil
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  /sessions              List sessions (* marks the active one)")
	fmt.Fprintln(r.out, "  /new                   Start a new session")
	fmt.Fprintln(r.out, "  /use <id>              Switch to a session (a unique prefix is enough)")
	fmt.Fprintln(r.out, "  /delete [id]           Delete a session, the active one by default")
	fmt.Fprintln(r.out, "  /history               Show the active conversation")
	fmt.Fprintln(r.out, "  /attach <path> [text]  Send a file, optionally with a message")
	fmt.Fprintln(r.out, "  /transcript [count]    Show the locally recorded transcript")
	fmt.Fprintln(r.out, "  /help                  Show this help")
	fmt.Fprintln(r.out, "  /quit                  Exit")
}

// shortID keeps prompts readable for uuid-style ids.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
