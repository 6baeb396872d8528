// Package listen follows the room's booth: every advance starts the new
// track on the local player.
package listen

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"uwave/internal/models"
	"uwave/internal/playback"
	"uwave/internal/protocol"
)

// Player is the part of the session manager the listener drives.
type Player interface {
	Play(ctx context.Context, desc *models.SourceDescriptor) *playback.Future[models.SessionMetadata]
}

// Service is a dispatcher listener. OnMessage runs on the dispatcher
// goroutine and never blocks on playback.
type Service struct {
	ctx          context.Context
	log          *zap.SugaredLogger
	player       Player
	playbackType models.PlaybackType
}

type Option func(*Service)

func WithPlaybackType(t models.PlaybackType) Option {
	return func(s *Service) { s.playbackType = t }
}

// New returns a listener whose playback requests live as long as ctx.
func New(ctx context.Context, log *zap.SugaredLogger, player Player, opts ...Option) *Service {
	s := &Service{
		ctx:          ctx,
		log:          log,
		player:       player,
		playbackType: models.PlaybackAudioOnly,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) OnMessage(raw string) {
	if !strings.Contains(raw, "advance") && !strings.Contains(raw, "chatMessage") {
		return
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		s.log.Debugw("ignoring undecodable frame", "error", err)
		return
	}

	switch m := msg.(type) {
	case *protocol.Advance:
		s.onAdvance(m)
	case *protocol.ChatMessage:
		s.log.Debugw("chat", "user", m.UserID, "message", m.Message)
	}
}

func (s *Service) onAdvance(adv *protocol.Advance) {
	if adv.Entry == nil {
		s.log.Info("booth is empty, stopping playback")
		s.player.Play(s.ctx, nil)
		return
	}

	item := adv.Entry.Media
	desc := &models.SourceDescriptor{
		SourceType:   item.Media.SourceType,
		SourceID:     item.Media.SourceID,
		Seek:         time.Duration(item.Start) * time.Second,
		PlaybackType: s.playbackType,
	}
	s.log.Infow("advance", "artist", item.Artist, "title", item.Title, "source", desc.Key())

	fut := s.player.Play(s.ctx, desc)
	go s.report(desc, fut)
}

func (s *Service) report(desc *models.SourceDescriptor, fut *playback.Future[models.SessionMetadata]) {
	_, err := fut.Wait(s.ctx)
	switch {
	case err == nil:
		s.log.Infow("playing", "source", desc.Key())
	case models.KindOf(err) == models.KindCancelled:
		s.log.Debugw("playback superseded", "source", desc.Key())
	default:
		s.log.Warnw("playback failed", "source", desc.Key(), "kind", models.KindOf(err), "error", err)
	}
}
