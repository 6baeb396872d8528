package engine

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DisplayTarget is a render surface handed to the engine for video plans.
type DisplayTarget interface {
	ID() int64
	Release()
}

// Displays allocates display targets and tracks which are still held.
type Displays struct {
	log  *zap.SugaredLogger
	next atomic.Int64

	mu   sync.Mutex
	live map[int64]struct{}
}

func NewDisplays(log *zap.SugaredLogger) *Displays {
	return &Displays{log: log, live: make(map[int64]struct{})}
}

func (d *Displays) Allocate() DisplayTarget {
	id := d.next.Add(1)
	d.mu.Lock()
	d.live[id] = struct{}{}
	d.mu.Unlock()
	d.log.Debugw("display target allocated", "id", id)
	return &displayTarget{id: id, owner: d}
}

// Live returns the number of targets that have not been released.
func (d *Displays) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

func (d *Displays) release(id int64) {
	d.mu.Lock()
	delete(d.live, id)
	d.mu.Unlock()
	d.log.Debugw("display target released", "id", id)
}

type displayTarget struct {
	id       int64
	owner    *Displays
	released atomic.Bool
}

func (t *displayTarget) ID() int64 { return t.id }

func (t *displayTarget) Release() {
	if t.released.CompareAndSwap(false, true) {
		t.owner.release(t.id)
	}
}
