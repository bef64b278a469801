// ABOUTME: Fake collaborators for session manager tests
// ABOUTME: Directory, runner, uploader, encoder, and transcript doubles with optional gates

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/2389/pitstop/internal/apperr"
	"github.com/2389/pitstop/internal/files"
	"github.com/2389/pitstop/internal/ledger"
	"github.com/2389/pitstop/internal/logging"
	"github.com/2389/pitstop/internal/wire"
)

var errBoom = errors.New("boom")

func textEvent(role, text string) wire.Event {
	return wire.Event{Content: &wire.Content{Role: role, Parts: []wire.Part{wire.TextPart(text)}}}
}

func textContent(text string) wire.Content {
	return wire.Content{Role: wire.RoleModel, Parts: []wire.Part{wire.TextPart(text)}}
}

type fakeDirectory struct {
	mu       sync.Mutex
	sessions []wire.Session
	events   map[string][]wire.Event
	nextID   int

	listErr   error
	createErr error
	getErr    error
	deleteErr error

	// gates block GetSession for an id until closed; started is signalled on entry.
	gates   map[string]chan struct{}
	started chan string

	gets    []string
	deleted []string
}

func newFakeDirectory(ids ...string) *fakeDirectory {
	d := &fakeDirectory{
		events:  make(map[string][]wire.Event),
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 64),
	}
	for _, id := range ids {
		d.sessions = append(d.sessions, wire.Session{ID: id})
		d.events[id] = []wire.Event{
			textEvent(wire.RoleUser, "question in "+id),
			textEvent(wire.RoleModel, "answer in "+id),
		}
	}
	return d
}

func (d *fakeDirectory) ListSessions(context.Context) ([]wire.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	out := make([]wire.Session, len(d.sessions))
	copy(out, d.sessions)
	return out, nil
}

func (d *fakeDirectory) CreateSession(context.Context) (wire.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createErr != nil {
		return wire.Session{}, d.createErr
	}
	d.nextID++
	s := wire.Session{ID: fmt.Sprintf("new-%d", d.nextID)}
	d.sessions = append([]wire.Session{s}, d.sessions...)
	return s, nil
}

func (d *fakeDirectory) GetSession(ctx context.Context, id string) (wire.Session, error) {
	d.mu.Lock()
	d.gets = append(d.gets, id)
	gate := d.gates[id]
	d.mu.Unlock()

	d.started <- id
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return wire.Session{}, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.getErr != nil {
		return wire.Session{}, d.getErr
	}
	return wire.Session{ID: id, Events: d.events[id]}, nil
}

func (d *fakeDirectory) DeleteSession(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deleteErr != nil {
		return d.deleteErr
	}
	d.deleted = append(d.deleted, id)
	for i, s := range d.sessions {
		if s.ID == id {
			d.sessions = append(d.sessions[:i], d.sessions[i+1:]...)
			break
		}
	}
	return nil
}

func (d *fakeDirectory) getCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.gets)
}

type fakeRunner struct {
	mu       sync.Mutex
	contents []wire.Content
	err      error
	requests []wire.RunRequest

	gate    chan struct{}
	started chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context, req wire.RunRequest) ([]wire.Content, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	gate, started := r.gate, r.started
	r.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contents, r.err
}

func (r *fakeRunner) calls() []wire.RunRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wire.RunRequest(nil), r.requests...)
}

type fakeUploader struct {
	mu    sync.Mutex
	text  string
	err   error
	files []string
}

func (u *fakeUploader) Upload(_ context.Context, f files.File) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files = append(u.files, f.Name())
	return u.text, u.err
}

type fakeEncoder struct {
	mu    sync.Mutex
	err   error
	files []string
}

func (e *fakeEncoder) Encode(f files.File) (wire.InlineData, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files = append(e.files, f.Name())
	if e.err != nil {
		return wire.InlineData{}, e.err
	}
	return wire.InlineData{Data: "ZGF0YQ==", MIMEType: f.MIMEType(), DisplayName: f.Name()}, nil
}

type fakeTranscript struct {
	mu      sync.Mutex
	entries []ledger.Entry
	purged  []string
}

func (t *fakeTranscript) Record(_ context.Context, e ledger.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
	return nil
}

func (t *fakeTranscript) DeleteSession(_ context.Context, id string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.purged = append(t.purged, id)
	return 0, nil
}

func (t *fakeTranscript) directions() []ledger.Direction {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ledger.Direction
	for _, e := range t.entries {
		out = append(out, e.Direction)
	}
	return out
}

type harness struct {
	dir        *fakeDirectory
	runner     *fakeRunner
	uploader   *fakeUploader
	encoder    *fakeEncoder
	transcript *fakeTranscript
	m          *Manager
}

func newHarness(ids ...string) *harness {
	h := &harness{
		dir:        newFakeDirectory(ids...),
		runner:     &fakeRunner{contents: []wire.Content{textContent("Done.")}},
		uploader:   &fakeUploader{text: "I've uploaded a file: log.csv\n\nrows\n\nPlease analyze this service data and help me add it to the system."},
		encoder:    &fakeEncoder{},
		transcript: &fakeTranscript{},
	}
	h.m = NewManager(Config{
		AppName:    "agent",
		UserID:     "user",
		Directory:  h.dir,
		Runner:     h.runner,
		Uploader:   h.uploader,
		Encoder:    h.encoder,
		Transcript: h.transcript,
		Logger:     logging.Nop(),
	})
	return h
}

// networkDown is a transport failure as the agent client reports it.
var networkDown = apperr.ErrNetworkUnavailable
