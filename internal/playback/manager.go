// Package playback runs playback actions and keeps at most one active.
package playback

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"uwave/internal/engine"
	"uwave/internal/models"
)

const historyWriteTimeout = 5 * time.Second

// HistoryRecorder persists the outcome of ended actions.
type HistoryRecorder interface {
	InsertPlayback(ctx context.Context, rec *models.PlaybackRecord) error
}

type Manager struct {
	deps    *actionDeps
	history HistoryRecorder

	mu     sync.Mutex
	active *Action
	closed bool

	wg sync.WaitGroup
}

type Option func(*Manager)

func WithHistory(h HistoryRecorder) Option {
	return func(m *Manager) {
		m.history = h
	}
}

func WithPreferredResolution(label string) Option {
	return func(m *Manager) {
		m.deps.preferred = label
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.deps.now = now
	}
}

func NewManager(log *zap.SugaredLogger, r Resolver, e engine.Engine, d DisplayAllocator, opts ...Option) *Manager {
	m := &Manager{
		deps: &actionDeps{
			log:       log,
			resolver:  r,
			engine:    e,
			displays:  d,
			preferred: "360p",
			now:       time.Now,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.deps.onEnd = m.recordEnded
	return m
}

// Play cancels the active action and starts one for desc. A nil desc stops
// playback. Invalid descriptors are rejected before anything changes.
func (m *Manager) Play(ctx context.Context, desc *models.SourceDescriptor) *Future[models.SessionMetadata] {
	if desc == nil {
		m.Stop()
		return Resolved(models.SessionMetadata{})
	}
	if err := desc.Validate(); err != nil {
		return Failed[models.SessionMetadata](err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Failed[models.SessionMetadata](models.NewError(models.KindCancelled, cancelledMessage))
	}
	if prev := m.active; prev != nil {
		m.active = nil
		prev.Cancel()
	}

	a := newAction(m.deps, *desc)
	m.active = a
	a.log.Infow("starting playback", "playback_type", desc.PlaybackType.String(), "seek", desc.Seek)
	return a.Start(context.WithoutCancel(ctx))
}

// SetPlaybackType re-resolves the active source with a new playback type at
// the current seek position.
func (m *Manager) SetPlaybackType(ctx context.Context, t models.PlaybackType) *Future[struct{}] {
	if !t.Valid() {
		return Failed[struct{}](models.Errorf(models.KindInvalidParameter, "Unknown playbackType %d", int(t)))
	}

	m.mu.Lock()
	a := m.active
	if a == nil {
		m.mu.Unlock()
		return Failed[struct{}](models.NewError(models.KindNoActivePlayback, "No active playback"))
	}
	f := a.Reload(context.WithoutCancel(ctx), t)
	m.mu.Unlock()

	return Then(f, func(models.SessionMetadata) struct{} { return struct{}{} })
}

// Stop cancels and discards the active action. It is idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	a := m.active
	m.active = nil
	m.mu.Unlock()

	if a != nil {
		a.Cancel()
	}
}

type Status struct {
	Active bool      `json:"active"`
	Action *Snapshot `json:"action,omitempty"`
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	a := m.active
	m.mu.Unlock()

	if a == nil {
		return Status{}
	}
	snap := a.Snapshot()
	return Status{Active: true, Action: &snap}
}

// Close stops playback, refuses new actions and waits for pending history
// writes.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) recordEnded(rec *models.PlaybackRecord) {
	if m.history == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		defer cancel()
		if err := m.history.InsertPlayback(ctx, rec); err != nil {
			m.deps.log.Warnw("failed to record playback", "action", rec.ActionID, "error", err)
		}
	}()
}
