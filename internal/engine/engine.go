// Package engine is the boundary to the media decode and render engine.
package engine

import (
	"context"
	"time"

	"uwave/internal/models"
)

// Listener receives preparation events for one Prepare call. Calls may
// arrive on any goroutine, after Stop, or not at all.
type Listener interface {
	OnReady(width, height int)
	OnError(err error)
}

type PrepareRequest struct {
	Plan     *models.MediaPlan
	Target   DisplayTarget
	Position time.Duration
	Events   Listener
}

// Playback is a prepared plan. Stop detaches it from the engine and is safe
// to call more than once.
type Playback interface {
	Stop()
}

type Engine interface {
	Prepare(ctx context.Context, req PrepareRequest) (Playback, error)
}

type ListenerFuncs struct {
	Ready func(width, height int)
	Error func(err error)
}

func (l ListenerFuncs) OnReady(width, height int) {
	if l.Ready != nil {
		l.Ready(width, height)
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}
