package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultInterval  = time.Hour
	DefaultRetention = 30 * 24 * time.Hour
	DefaultTimeout   = 2 * time.Minute
)

// Store is the subset of the store the maintenance pass needs.
type Store interface {
	PurgeExpiredStreams(ctx context.Context) (int64, error)
	PurgePlaybackHistory(ctx context.Context, cutoff time.Time) (int64, error)
}

type Scheduler struct {
	store     Store
	log       *zap.SugaredLogger
	interval  time.Duration
	retention time.Duration
	timeout   time.Duration
	now       func() time.Time

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRetention sets how long playback history is kept. Zero keeps it forever.
func WithRetention(d time.Duration) Option {
	return func(s *Scheduler) {
		s.retention = d
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(st Store, log *zap.SugaredLogger, opts ...Option) *Scheduler {
	sch := &Scheduler{
		store:     st,
		log:       log,
		interval:  DefaultInterval,
		retention: DefaultRetention,
		timeout:   DefaultTimeout,
		now:       time.Now,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sch)
	}
	return sch
}

// Start runs a maintenance pass immediately, then once per interval.
func (sch *Scheduler) Start(ctx context.Context) {
	sch.startOnce.Do(func() {
		ctx, sch.cancel = context.WithCancel(ctx)
		go sch.run(ctx)
	})
}

func (sch *Scheduler) Stop() {
	if sch.cancel != nil {
		sch.cancel()
		<-sch.done
	}
}

func (sch *Scheduler) run(ctx context.Context) {
	defer close(sch.done)

	sch.RunOnce(ctx)

	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sch.RunOnce(ctx)
		}
	}
}

type Result struct {
	ExpiredStreams int64
	PurgedHistory  int64
}

// RunOnce purges expired resolve cache entries and history older than the
// retention window. Failures are logged; one step failing does not skip the other.
func (sch *Scheduler) RunOnce(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, sch.timeout)
	defer cancel()

	var res Result
	var err error

	res.ExpiredStreams, err = sch.store.PurgeExpiredStreams(ctx)
	if err != nil {
		sch.log.Warnw("purging resolve cache failed", "error", err)
	}

	if sch.retention > 0 {
		cutoff := sch.now().UTC().Add(-sch.retention)
		res.PurgedHistory, err = sch.store.PurgePlaybackHistory(ctx, cutoff)
		if err != nil {
			sch.log.Warnw("purging playback history failed", "error", err)
		}
	}

	if res.ExpiredStreams > 0 || res.PurgedHistory > 0 {
		sch.log.Infow("maintenance done", "expired_streams", res.ExpiredStreams, "purged_history", res.PurgedHistory)
	}
	return res
}
