package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"uwave/internal/models"
	"uwave/internal/playback"
	"uwave/internal/store"
	"uwave/internal/transport"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Migrate(store.Migrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fakePlayer struct {
	mu      sync.Mutex
	plays   []*models.SourceDescriptor
	types   []models.PlaybackType
	stops   int
	meta    models.SessionMetadata
	playErr error
	typeErr error
}

func (p *fakePlayer) Play(_ context.Context, desc *models.SourceDescriptor) *playback.Future[models.SessionMetadata] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays = append(p.plays, desc)
	if desc == nil {
		return playback.Resolved(models.SessionMetadata{})
	}
	if p.playErr != nil {
		return playback.Failed[models.SessionMetadata](p.playErr)
	}
	return playback.Resolved(p.meta)
}

func (p *fakePlayer) SetPlaybackType(_ context.Context, t models.PlaybackType) *playback.Future[struct{}] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, t)
	if p.typeErr != nil {
		return playback.Failed[struct{}](p.typeErr)
	}
	return playback.Resolved(struct{}{})
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePlayer) Status() playback.Status {
	return playback.Status{}
}

type fakeSocket struct {
	mu      sync.Mutex
	sent    []string
	closes  int
	sendErr error
}

func (s *fakeSocket) Subscribe(context.Context, string) (<-chan string, error) {
	return nil, models.NewError(models.KindTransportError, "not supported")
}

func (s *fakeSocket) Send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSocket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
}

func (s *fakeSocket) Status() transport.Status {
	return transport.Status{State: "open", URL: "ws://room.example/"}
}

func doRequest(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body
}
