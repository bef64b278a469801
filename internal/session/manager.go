// ABOUTME: Session manager owning the session list, active session, and displayed history
// ABOUTME: Coordinates the session directory and discards results that arrive for stale selections

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/2389/pitstop/internal/apperr"
	"github.com/2389/pitstop/internal/codec"
	"github.com/2389/pitstop/internal/files"
	"github.com/2389/pitstop/internal/ledger"
	"github.com/2389/pitstop/internal/wire"
)

// Manager errors
var (
	ErrUnknownSession = errors.New("unknown session")
	ErrSendInFlight   = errors.New("a message is already being sent in this session")
)

// Status texts shown alongside the conversation.
const (
	statusNoSession     = "No active session."
	statusListFailed    = "Failed to load chat sessions."
	statusLoadFailed    = "Failed to load this session."
	statusCreateFailed  = "Failed to create a new session."
	statusDeleteFailed  = "Failed to delete session."
	statusProcessFailed = "Failed to process file."
	statusUnreadable    = "Could not read the attached file."
	statusSendFailed    = "Chat request failed."
	statusEmptyReply    = "The agent returned no content."
)

// Directory is the remote list of the user's sessions.
type Directory interface {
	ListSessions(ctx context.Context) ([]wire.Session, error)
	CreateSession(ctx context.Context) (wire.Session, error)
	GetSession(ctx context.Context, id string) (wire.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Runner sends one message and returns the reply's contents.
type Runner interface {
	Run(ctx context.Context, req wire.RunRequest) ([]wire.Content, error)
}

// Uploader extracts a tabular file and returns the text to send in its place.
type Uploader interface {
	Upload(ctx context.Context, f files.File) (string, error)
}

// Encoder turns a generic file into an inline attachment.
type Encoder interface {
	Encode(f files.File) (wire.InlineData, error)
}

// Transcript records exchanges locally. Optional.
type Transcript interface {
	Record(ctx context.Context, e ledger.Entry) error
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// Status describes the outcome of the latest operation.
type Status struct {
	Loading bool
	Err     error
	Kind    apperr.Kind
	Text    string
}

// State is a snapshot of everything the manager owns.
type State struct {
	Sessions []wire.Session
	ActiveID string
	Messages []codec.Message
	Status   Status
}

// Config wires a Manager to its collaborators.
type Config struct {
	AppName string
	UserID  string

	Directory  Directory
	Runner     Runner
	Uploader   Uploader
	Encoder    Encoder
	Transcript Transcript // may be nil

	Logger *slog.Logger
}

// Manager is safe for concurrent use. Its lock is never held across a
// remote call.
type Manager struct {
	appName    string
	userID     string
	dir        Directory
	runner     Runner
	uploader   Uploader
	encoder    Encoder
	transcript Transcript
	logger     *slog.Logger

	mu       sync.Mutex
	sessions []wire.Session
	activeID string
	messages []codec.Message
	status   Status
	// epoch changes whenever the active session changes, including a
	// reselection of the same id, and when a reselected session is
	// reloaded. Async results carry the epoch they started under and are
	// dropped if it moved on.
	epoch    uint64
	busy     int
	inflight map[string]bool

	broadcaster *stateBroadcaster
}

// NewManager creates a manager with no sessions loaded. Call Start or
// ListSessions to populate it.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session")

	return &Manager{
		appName:     cfg.AppName,
		userID:      cfg.UserID,
		dir:         cfg.Directory,
		runner:      cfg.Runner,
		uploader:    cfg.Uploader,
		encoder:     cfg.Encoder,
		transcript:  cfg.Transcript,
		logger:      logger,
		inflight:    make(map[string]bool),
		broadcaster: newStateBroadcaster(logger),
	}
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	status := m.status
	status.Loading = m.busy > 0
	return State{
		Sessions: slices.Clone(m.sessions),
		ActiveID: m.activeID,
		Messages: slices.Clone(m.messages),
		Status:   status,
	}
}

// Subscribe returns a channel of snapshots, starting with the current one
// and followed by one after every change. Slow readers miss intermediate
// snapshots but always end on the latest. The channel closes when ctx ends or the manager is closed.
func (m *Manager) Subscribe(ctx context.Context) <-chan State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broadcaster.subscribe(ctx, m.snapshotLocked())
}

// Close releases subscribers.
func (m *Manager) Close() {
	m.broadcaster.close()
}

// notifyLocked publishes the current state. Publishing never blocks, so it
// is done under the lock to keep snapshots ordered.
func (m *Manager) notifyLocked() {
	m.broadcaster.publish(m.snapshotLocked())
}

func (m *Manager) setStatusLocked(err error, text string) {
	m.status = Status{Err: err, Kind: apperr.KindOf(err), Text: text}
}

func (m *Manager) clearStatusLocked() {
	m.status = Status{}
}

// activateLocked makes id the active session with an empty history and
// returns the new epoch. An empty id means no session.
func (m *Manager) activateLocked(id string) uint64 {
	m.activeID = id
	m.messages = nil
	m.epoch++
	return m.epoch
}

func (m *Manager) indexLocked(id string) int {
	return slices.IndexFunc(m.sessions, func(s wire.Session) bool { return s.ID == id })
}

// reselectLocked activates the first listed session, or none. It returns
// the id to load, if any, and the new epoch.
func (m *Manager) reselectLocked() (string, uint64) {
	next := ""
	if len(m.sessions) > 0 {
		next = m.sessions[0].ID
	}
	return next, m.activateLocked(next)
}

// Start loads the session list and opens the first session, if any.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.ListSessions(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	first := ""
	if m.activeID == "" && len(m.sessions) > 0 {
		first = m.sessions[0].ID
	}
	m.mu.Unlock()

	if first == "" {
		return nil
	}
	return m.SelectSession(ctx, first)
}

// ListSessions refreshes the session list. On failure the list and the
// displayed conversation are kept. If the active session disappeared from
// the list, the first remaining one is opened.
func (m *Manager) ListSessions(ctx context.Context) ([]wire.Session, error) {
	m.mu.Lock()
	m.busy++
	m.notifyLocked()
	m.mu.Unlock()

	sessions, err := m.dir.ListSessions(ctx)

	m.mu.Lock()
	m.busy--
	if err != nil {
		m.setStatusLocked(err, statusListFailed)
		m.notifyLocked()
		m.mu.Unlock()
		m.logger.Warn("listing sessions failed", "error", err)
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	m.sessions = dedupeSessions(sessions)
	var reload string
	var tag uint64
	if m.activeID != "" && m.indexLocked(m.activeID) < 0 {
		m.logger.Info("active session no longer listed", "session_id", m.activeID)
		reload, tag = m.reselectLocked()
	}
	out := slices.Clone(m.sessions)
	m.notifyLocked()
	m.mu.Unlock()

	if reload != "" {
		if err := m.loadHistory(ctx, reload, tag); err != nil {
			return out, err
		}
	}
	return out, nil
}

// dedupeSessions keeps the first occurrence of each id.
func dedupeSessions(in []wire.Session) []wire.Session {
	seen := make(map[string]bool, len(in))
	out := make([]wire.Session, 0, len(in))
	for _, s := range in {
		if s.ID == "" || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out
}

// CreateSession creates a remote session, puts it first in the list, and
// makes it active with an empty history. On failure nothing changes except
// the status.
func (m *Manager) CreateSession(ctx context.Context) (wire.Session, error) {
	m.mu.Lock()
	m.busy++
	m.notifyLocked()
	m.mu.Unlock()

	s, err := m.dir.CreateSession(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.notifyLocked()
	m.busy--

	if err != nil {
		m.setStatusLocked(err, statusCreateFailed)
		m.logger.Warn("creating session failed", "error", err)
		return wire.Session{}, fmt.Errorf("creating session: %w", err)
	}

	if i := m.indexLocked(s.ID); i >= 0 {
		m.sessions = slices.Delete(m.sessions, i, i+1)
	}
	m.sessions = slices.Insert(m.sessions, 0, s)
	m.activateLocked(s.ID)
	m.clearStatusLocked()

	m.logger.Info("session created", "session_id", s.ID)
	return s, nil
}

// SelectSession makes id active. The history is cleared at once and then
// replaced by the session's stored events. If another selection happens
// before the load completes, this load's result is discarded and nil is
// returned.
func (m *Manager) SelectSession(ctx context.Context, id string) error {
	m.mu.Lock()
	if id == m.activeID && id != "" {
		m.mu.Unlock()
		return nil
	}
	if m.indexLocked(id) < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	tag := m.activateLocked(id)
	m.clearStatusLocked()
	m.notifyLocked()
	m.mu.Unlock()

	return m.loadHistory(ctx, id, tag)
}

// loadHistory fetches id's stored events and shows them if tag is still current.
func (m *Manager) loadHistory(ctx context.Context, id string, tag uint64) error {
	m.mu.Lock()
	m.busy++
	m.notifyLocked()
	m.mu.Unlock()

	s, err := m.dir.GetSession(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.notifyLocked()
	m.busy--

	if m.epoch != tag {
		m.logger.Debug("discarding stale session load", "session_id", id)
		return nil
	}
	if err != nil {
		m.setStatusLocked(err, statusLoadFailed)
		m.logger.Warn("loading session failed", "session_id", id, "error", err)
		return fmt.Errorf("loading session %s: %w", id, err)
	}

	m.messages = codec.FromStoredEvents(s.Events)
	m.logger.Debug("session loaded", "session_id", id, "messages", len(m.messages))
	return nil
}

// DeleteSession deletes id remotely, then locally. Deleting the active
// session opens the first remaining one, or leaves none active.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	m.busy++
	m.notifyLocked()
	m.mu.Unlock()

	err := m.dir.DeleteSession(ctx, id)

	m.mu.Lock()
	m.busy--
	if err != nil {
		m.setStatusLocked(err, statusDeleteFailed)
		m.notifyLocked()
		m.mu.Unlock()
		m.logger.Warn("deleting session failed", "session_id", id, "error", err)
		return fmt.Errorf("deleting session: %w", err)
	}

	if i := m.indexLocked(id); i >= 0 {
		m.sessions = slices.Delete(m.sessions, i, i+1)
	}
	m.clearStatusLocked()

	var reload string
	var tag uint64
	if id == m.activeID {
		reload, tag = m.reselectLocked()
	}
	m.notifyLocked()
	m.mu.Unlock()

	m.logger.Info("session deleted", "session_id", id)

	if m.transcript != nil {
		if _, err := m.transcript.DeleteSession(ctx, id); err != nil {
			m.logger.Warn("purging transcript failed", "session_id", id, "error", err)
		}
	}

	if reload != "" {
		return m.loadHistory(ctx, reload, tag)
	}
	return nil
}
