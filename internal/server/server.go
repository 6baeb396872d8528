package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"uwave/internal/models"
	"uwave/internal/playback"
	"uwave/internal/store"
	"uwave/internal/transport"
)

type Player interface {
	Play(ctx context.Context, desc *models.SourceDescriptor) *playback.Future[models.SessionMetadata]
	SetPlaybackType(ctx context.Context, t models.PlaybackType) *playback.Future[struct{}]
	Stop()
	Status() playback.Status
}

type Socket interface {
	Subscribe(ctx context.Context, url string) (<-chan string, error)
	Send(msg string) error
	Close()
	Status() transport.Status
}

type Store interface {
	Ping() error
	ListPlaybackHistory(ctx context.Context, page, perPage int, sourceType string) (*store.PlaybackHistoryResult, error)
}

type Server struct {
	router     chi.Router
	log        *zap.SugaredLogger
	store      Store
	player     Player
	socket     Socket
	corsOrigin string
}

func NewServer(s Store, opts ...Option) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		log:    zap.NewNop().Sugar(),
		store:  s,
	}
	for _, o := range opts {
		o(srv)
	}
	srv.router.Use(middleware.RequestID)
	srv.router.Use(requestLogger(srv.log))
	srv.router.Use(middleware.Recoverer)
	srv.routes()
	return srv
}

type Option func(*Server)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) { s.log = log }
}

func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.corsOrigin = origin }
}

func WithPlayer(p Player) Option {
	return func(s *Server) { s.player = p }
}

func WithSocket(sock Socket) Option {
	return func(s *Server) { s.socket = sock }
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
