// ABOUTME: Incremental parser for the agent's newline-delimited event stream
// ABOUTME: Reassembles records across read boundaries and collects their content in order

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/2389/pitstop/internal/apperr"
	"github.com/2389/pitstop/internal/textutil"
	"github.com/2389/pitstop/internal/wire"
)

// DefaultChunkSize is the read buffer size used when Parser.ChunkSize is zero.
const DefaultChunkSize = 4096

// dataMarker prefixes records on an event-stream line.
var dataMarker = []byte("data:")

// framingPrefixes are event-stream lines that carry no record.
var framingPrefixes = [][]byte{
	[]byte("event:"),
	[]byte("id:"),
	[]byte("retry:"),
	[]byte(":"),
}

// State is the parser's position in its read loop.
type State int

const (
	// StateOpen means the source is still being read.
	StateOpen State = iota
	// StateDraining means the source ended and the buffer is being settled.
	StateDraining
	// StateClosed means the result has been returned.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Parser turns a chunked event stream into the ordered list of contents it
// carries. A Parser is single use: call Parse once.
type Parser struct {
	// ChunkSize bounds each read from the source.
	ChunkSize int
	// OnContent, if set, is called for each accepted content in arrival order.
	OnContent func(wire.Content)
	// OnEvent, if set, is called for every decoded event, with or without content.
	OnEvent func(wire.Event)

	logger    *slog.Logger
	state     State
	buf       []byte
	contents  []wire.Content
	malformed int
}

// NewParser creates a parser. Pass nil logger for default.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		ChunkSize: DefaultChunkSize,
		logger:    logger.With("component", "stream"),
	}
}

// State returns the parser's current state.
func (p *Parser) State() State {
	return p.state
}

// Malformed returns how many records were discarded because they were not
// valid event JSON.
func (p *Parser) Malformed() int {
	return p.malformed
}

// Parse reads r until it ends and returns every content carried by the
// stream, in arrival order. The whole reply is buffered before returning.
// An unterminated trailing fragment is treated as incomplete and dropped.
// On a read failure or cancellation the contents parsed so far are
// returned together with the error.
func (p *Parser) Parse(ctx context.Context, r io.Reader) ([]wire.Content, error) {
	size := p.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunk := make([]byte, size)
	p.state = StateOpen

	for p.state == StateOpen {
		if err := ctx.Err(); err != nil {
			p.state = StateClosed
			return p.contents, err
		}

		n, err := r.Read(chunk)
		if n > 0 {
			p.feed(chunk[:n])
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			p.state = StateDraining
		default:
			p.state = StateClosed
			if ctxErr := ctx.Err(); ctxErr != nil {
				return p.contents, ctxErr
			}
			return p.contents, fmt.Errorf("reading event stream: %w", err)
		}
	}

	p.drain()
	p.state = StateClosed
	return p.contents, nil
}

// feed appends a chunk and consumes every complete line it completes.
// After feed returns the buffer holds at most one unterminated fragment.
func (p *Parser) feed(chunk []byte) {
	p.buf = append(p.buf, chunk...)
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		p.handleLine(p.buf[:i])
		p.buf = p.buf[i+1:]
	}
	// Compact so the fragment does not pin consumed bytes.
	if len(p.buf) == 0 {
		p.buf = nil
	} else if cap(p.buf) > 2*len(p.buf)+DefaultChunkSize {
		p.buf = append([]byte(nil), p.buf...)
	}
}

// drain settles the buffer once the source has ended.
func (p *Parser) drain() {
	if tail := bytes.TrimSpace(p.buf); len(tail) > 0 {
		p.logger.Debug("dropping unterminated stream tail", "bytes", len(tail))
	}
	p.buf = nil
}

// handleLine decodes one candidate record.
func (p *Parser) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	if bytes.HasPrefix(line, dataMarker) {
		line = bytes.TrimSpace(line[len(dataMarker):])
		if len(line) == 0 {
			return
		}
	} else if isFraming(line) {
		p.logger.Debug("skipping stream framing line", "line", string(line))
		return
	}

	var ev wire.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		p.malformed++
		p.logger.Warn("discarding stream record",
			"error", fmt.Errorf("%w: %v", apperr.ErrMalformedStreamRecord, err),
			"record", textutil.Truncate(string(line), 200),
		)
		return
	}

	if p.OnEvent != nil {
		p.OnEvent(ev)
	}
	if ev.Content == nil {
		return
	}
	p.contents = append(p.contents, *ev.Content)
	if p.OnContent != nil {
		p.OnContent(*ev.Content)
	}
}

func isFraming(line []byte) bool {
	for _, prefix := range framingPrefixes {
		if bytes.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// Parse is a convenience wrapper that parses r with a fresh Parser.
func Parse(ctx context.Context, r io.Reader, logger *slog.Logger) ([]wire.Content, error) {
	return NewParser(logger).Parse(ctx, r)
}
