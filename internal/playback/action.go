package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"uwave/internal/engine"
	"uwave/internal/mediautil"
	"uwave/internal/models"
	"uwave/internal/selector"
)

const (
	StateCreated   = "created"
	StateResolving = "resolving"
	StateSelecting = "selecting"
	StatePreparing = "preparing"
	StatePlaying   = "playing"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
	StateEnded     = "ended"
)

const (
	evResolve = "resolve"
	evSelect  = "select"
	evPrepare = "prepare"
	evPlay    = "play"
	evFail    = "fail"
	evCancel  = "cancel"
	evEnd     = "end"
	evReload  = "reload"
)

const cancelledMessage = "Playback was cancelled"

// Resolver produces stream candidates for a source.
type Resolver interface {
	Resolve(ctx context.Context, desc models.SourceDescriptor) ([]models.StreamCandidate, error)
}

type DisplayAllocator interface {
	Allocate() engine.DisplayTarget
}

type actionDeps struct {
	log       *zap.SugaredLogger
	resolver  Resolver
	engine    engine.Engine
	displays  DisplayAllocator
	preferred string
	now       func() time.Time
	onEnd     func(*models.PlaybackRecord)
}

// Action is one attempt to play one source. It resolves, selects and
// prepares the source, then reports the outcome to every pending sink
// exactly once. After End every callback bound to it is a no-op.
type Action struct {
	ID        string
	RunID     string
	CreatedAt time.Time

	deps    *actionDeps
	log     *zap.SugaredLogger
	machine *fsm.FSM

	mu        sync.Mutex
	desc      models.SourceDescriptor
	startedAt time.Time
	ended     bool
	gen       int
	sinks     []*Future[models.SessionMetadata]
	target    engine.DisplayTarget
	playback  engine.Playback
	width     int
	height    int
	metadata  *models.SessionMetadata
	lastErr   *models.Error
	played    bool
}

func newAction(deps *actionDeps, desc models.SourceDescriptor) *Action {
	now := deps.now()
	a := &Action{
		ID:        desc.SourceURL(),
		RunID:     uuid.NewString(),
		CreatedAt: now,
		deps:      deps,
		desc:      desc,
		startedAt: now,
	}
	a.log = deps.log.With("action", a.RunID, "source", desc.Key())
	a.machine = fsm.NewFSM(
		StateCreated,
		fsm.Events{
			{Name: evResolve, Src: []string{StateCreated}, Dst: StateResolving},
			{Name: evSelect, Src: []string{StateResolving}, Dst: StateSelecting},
			{Name: evPrepare, Src: []string{StateSelecting}, Dst: StatePreparing},
			{Name: evPlay, Src: []string{StatePreparing}, Dst: StatePlaying},
			{Name: evFail, Src: []string{StateResolving, StateSelecting, StatePreparing, StatePlaying}, Dst: StateFailed},
			{Name: evCancel, Src: []string{StateCreated, StateResolving, StateSelecting, StatePreparing, StatePlaying}, Dst: StateCancelled},
			{Name: evEnd, Src: []string{StateCreated, StateResolving, StateSelecting, StatePreparing, StatePlaying, StateFailed, StateCancelled}, Dst: StateEnded},
			{Name: evReload, Src: []string{StateResolving, StateSelecting, StatePreparing, StatePlaying, StateFailed}, Dst: StateResolving},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				a.log.Debugw("state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
			},
		},
	)
	return a
}

// event fires a transition. Caller holds a.mu.
func (a *Action) event(name string) {
	err := a.machine.Event(context.Background(), name)
	if err == nil {
		return
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}
	a.log.Warnw("rejected transition", "event", name, "state", a.machine.Current(), "error", err)
}

// Start begins resolution on a worker goroutine and returns the future for
// the first outcome.
func (a *Action) Start(ctx context.Context) *Future[models.SessionMetadata] {
	sink := NewFuture[models.SessionMetadata]()

	a.mu.Lock()
	if a.ended {
		a.mu.Unlock()
		sink.Reject(models.NewError(models.KindCancelled, cancelledMessage))
		return sink
	}
	a.sinks = append(a.sinks, sink)
	a.event(evResolve)
	gen := a.gen
	desc := a.desc
	a.mu.Unlock()

	go a.prepare(ctx, gen, desc)
	return sink
}

// Reload switches the playback type and prepares the source again from the
// current seek position. The returned future settles with the outcome of the
// new preparation.
func (a *Action) Reload(ctx context.Context, t models.PlaybackType) *Future[models.SessionMetadata] {
	sink := NewFuture[models.SessionMetadata]()

	a.mu.Lock()
	if a.ended {
		a.mu.Unlock()
		sink.Reject(models.NewError(models.KindNoActivePlayback, "No active playback"))
		return sink
	}
	now := a.deps.now()
	a.desc.Seek = a.seekAt(now)
	a.desc.PlaybackType = t
	a.startedAt = now
	a.gen++
	a.releaseLocked()
	a.metadata = nil
	a.width, a.height = 0, 0
	a.sinks = append(a.sinks, sink)
	a.event(evReload)
	gen := a.gen
	desc := a.desc
	a.mu.Unlock()

	a.log.Infow("reloading", "playback_type", t.String(), "seek", desc.Seek)
	go a.prepare(ctx, gen, desc)
	return sink
}

func (a *Action) prepare(ctx context.Context, gen int, desc models.SourceDescriptor) {
	cands, err := a.deps.resolver.Resolve(ctx, desc)
	if !a.current(gen) {
		a.log.Debugw("discarding stale resolve result", "gen", gen)
		return
	}
	if err != nil {
		a.fail(gen, models.AsError(err, models.KindIOError))
		return
	}

	a.mu.Lock()
	if !a.currentLocked(gen) {
		a.mu.Unlock()
		return
	}
	a.event(evSelect)
	plan := selector.BuildPlan(cands, desc.PlaybackType, a.deps.preferred)
	if plan == nil {
		a.mu.Unlock()
		a.fail(gen, models.NewError(models.KindNoPlayableStream, "No playable stream found"))
		return
	}
	a.event(evPrepare)
	if desc.PlaybackType.ShouldPlayVideo() && plan.HasVideo() && a.deps.displays != nil {
		a.target = a.deps.displays.Allocate()
	}
	target := a.target
	position := a.seekAt(a.deps.now())
	a.mu.Unlock()

	a.log.Debugw("preparing plan", "merged", plan.Merged(), "video", plan.HasVideo(), "position", position)

	pb, err := a.deps.engine.Prepare(ctx, engine.PrepareRequest{
		Plan:     plan,
		Target:   target,
		Position: position,
		Events:   &boundListener{action: a, gen: gen, video: plan.HasVideo()},
	})
	if err != nil {
		a.fail(gen, models.AsError(err, models.KindEngineError))
		return
	}

	a.mu.Lock()
	if !a.currentLocked(gen) || a.machine.Current() == StateFailed {
		a.mu.Unlock()
		pb.Stop()
		return
	}
	a.playback = pb
	a.mu.Unlock()
}

func (a *Action) current(gen int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentLocked(gen)
}

func (a *Action) currentLocked(gen int) bool {
	return !a.ended && a.gen == gen
}

func (a *Action) ready(gen int, video bool, width, height int) {
	a.mu.Lock()
	if !a.currentLocked(gen) {
		a.mu.Unlock()
		a.log.Debugw("ignoring stale ready callback", "gen", gen)
		return
	}
	if !a.machine.Can(evPlay) {
		a.mu.Unlock()
		a.log.Warnw("ready callback outside preparation", "state", a.machine.Current())
		return
	}
	a.event(evPlay)
	a.width, a.height = width, height
	meta := models.SessionMetadata{}
	if video && a.target != nil {
		id := a.target.ID()
		meta.DisplayHandle = &id
		if ratio := mediautil.AspectRatio(width, height); ratio > 0 {
			meta.AspectRatio = &ratio
		}
	}
	a.metadata = &meta
	a.played = true
	a.lastErr = nil
	sinks := a.takeSinksLocked()
	a.mu.Unlock()

	a.log.Infow("playback ready", "width", width, "height", height)
	for _, s := range sinks {
		if !s.Resolve(meta) {
			a.log.Warnw("result already delivered")
		}
	}
}

func (a *Action) engineError(gen int, err error) {
	a.fail(gen, models.AsError(err, models.KindEngineError))
}

func (a *Action) fail(gen int, e *models.Error) {
	a.mu.Lock()
	if !a.currentLocked(gen) {
		a.mu.Unlock()
		a.log.Debugw("ignoring stale failure", "gen", gen, "error", e)
		return
	}
	if a.machine.Can(evFail) {
		a.event(evFail)
	}
	a.lastErr = e
	a.releaseLocked()
	a.metadata = nil
	a.width, a.height = 0, 0
	sinks := a.takeSinksLocked()
	a.mu.Unlock()

	a.log.Warnw("playback failed", "kind", e.Kind, "error", e.Message)
	for _, s := range sinks {
		if !s.Reject(e) {
			a.log.Warnw("result already delivered")
		}
	}
}

// Cancel settles every pending sink with Cancelled and ends the action.
func (a *Action) Cancel() {
	a.mu.Lock()
	if a.ended {
		a.mu.Unlock()
		return
	}
	if a.machine.Can(evCancel) {
		a.event(evCancel)
	}
	sinks := a.takeSinksLocked()
	if len(sinks) > 0 {
		a.lastErr = models.NewError(models.KindCancelled, cancelledMessage)
	}
	a.mu.Unlock()

	for _, s := range sinks {
		s.Reject(models.NewError(models.KindCancelled, cancelledMessage))
	}
	a.End()
}

// End releases the display target and engine playback. It is idempotent.
func (a *Action) End() {
	a.mu.Lock()
	if a.ended {
		a.mu.Unlock()
		return
	}
	a.ended = true
	a.event(evEnd)
	a.releaseLocked()
	sinks := a.takeSinksLocked()
	if len(sinks) > 0 && a.lastErr == nil {
		a.lastErr = models.NewError(models.KindCancelled, cancelledMessage)
	}
	rec := a.recordLocked()
	a.mu.Unlock()

	for _, s := range sinks {
		s.Reject(models.NewError(models.KindCancelled, cancelledMessage))
	}
	a.log.Debugw("action ended")
	if a.deps.onEnd != nil {
		a.deps.onEnd(rec)
	}
}

// CurrentSeek is the wall time elapsed since playback started plus the
// initial seek.
func (a *Action) CurrentSeek() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seekAt(a.deps.now())
}

func (a *Action) seekAt(now time.Time) time.Duration {
	return now.Sub(a.startedAt) + a.desc.Seek
}

func (a *Action) releaseLocked() {
	if a.playback != nil {
		a.playback.Stop()
		a.playback = nil
	}
	if a.target != nil {
		a.target.Release()
		a.target = nil
	}
}

func (a *Action) takeSinksLocked() []*Future[models.SessionMetadata] {
	sinks := a.sinks
	a.sinks = nil
	return sinks
}

func (a *Action) recordLocked() *models.PlaybackRecord {
	rec := &models.PlaybackRecord{
		ActionID:     a.RunID,
		SourceType:   a.desc.SourceType,
		SourceID:     a.desc.SourceID,
		PlaybackType: a.desc.PlaybackType,
		Outcome:      models.OutcomeSuccess,
		StartedAt:    a.CreatedAt,
		EndedAt:      a.deps.now(),
	}
	if !a.played && a.lastErr == nil {
		a.lastErr = models.NewError(models.KindCancelled, cancelledMessage)
	}
	if a.lastErr != nil {
		rec.Outcome = models.OutcomeFailure
		rec.ErrorKind = a.lastErr.Kind
		rec.Message = a.lastErr.Message
	}
	return rec
}

// Snapshot is a point-in-time view of an action.
type Snapshot struct {
	ActionID     string                  `json:"actionID"`
	RunID        string                  `json:"runID"`
	State        string                  `json:"state"`
	SourceType   string                  `json:"sourceType"`
	SourceID     string                  `json:"sourceID"`
	PlaybackType models.PlaybackType     `json:"playbackType"`
	SeekSeconds  float64                 `json:"seekSeconds"`
	Width        int                     `json:"width,omitempty"`
	Height       int                     `json:"height,omitempty"`
	Metadata     *models.SessionMetadata `json:"metadata,omitempty"`
	LastError    *models.Error           `json:"lastError,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
}

func (a *Action) Snapshot() Snapshot {
	seek := a.CurrentSeek()

	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		ActionID:     a.ID,
		RunID:        a.RunID,
		State:        a.machine.Current(),
		SourceType:   a.desc.SourceType,
		SourceID:     a.desc.SourceID,
		PlaybackType: a.desc.PlaybackType,
		SeekSeconds:  seek.Seconds(),
		Width:        a.width,
		Height:       a.height,
		Metadata:     a.metadata,
		LastError:    a.lastErr,
		CreatedAt:    a.CreatedAt,
	}
}

// boundListener ties engine events to one preparation generation.
type boundListener struct {
	action *Action
	gen    int
	video  bool
}

func (l *boundListener) OnReady(width, height int) {
	l.action.ready(l.gen, l.video, width, height)
}

func (l *boundListener) OnError(err error) {
	l.action.engineError(l.gen, err)
}
