package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"uwave/internal/models"
	"uwave/internal/store"
)

func TestPlayReturnsSessionMetadata(t *testing.T) {
	handle := int64(7)
	ratio := 16.0 / 9.0
	p := &fakePlayer{meta: models.SessionMetadata{DisplayHandle: &handle, AspectRatio: &ratio}}
	srv := NewServer(newTestStore(t), WithPlayer(p))

	w := doRequest(t, srv, http.MethodPost, "/api/player/play",
		`{"sourceType":"youtube","sourceID":"abc","seek":15,"playbackType":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var meta models.SessionMetadata
	if err := json.NewDecoder(w.Body).Decode(&meta); err != nil {
		t.Fatal(err)
	}
	if meta.DisplayHandle == nil || *meta.DisplayHandle != 7 {
		t.Fatalf("unexpected display handle %v", meta.DisplayHandle)
	}

	if len(p.plays) != 1 || p.plays[0] == nil {
		t.Fatalf("expected one play call, got %v", p.plays)
	}
	want := models.SourceDescriptor{SourceType: "youtube", SourceID: "abc", Seek: 15 * time.Second, PlaybackType: models.PlaybackAudioAndVideo}
	if *p.plays[0] != want {
		t.Fatalf("descriptor = %+v, want %+v", *p.plays[0], want)
	}
}

func TestPlayNullStops(t *testing.T) {
	p := &fakePlayer{}
	srv := NewServer(newTestStore(t), WithPlayer(p))

	w := doRequest(t, srv, http.MethodPost, "/api/player/play", `null`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(p.plays) != 1 || p.plays[0] != nil {
		t.Fatalf("expected a nil play, got %v", p.plays)
	}
}

func TestPlayRequestErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		kind   models.ErrorKind
	}{
		{"missing playbackType", `{"sourceType":"youtube","sourceID":"abc"}`, http.StatusBadRequest, models.KindMissingParameter},
		{"not json", `{`, http.StatusBadRequest, models.KindInvalidParameter},
		{"empty body", ``, http.StatusBadRequest, models.KindInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePlayer{}
			srv := NewServer(newTestStore(t), WithPlayer(p))

			w := doRequest(t, srv, http.MethodPost, "/api/player/play", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			if got := decodeError(t, w).Kind; got != tt.kind {
				t.Fatalf("kind = %q, want %q", got, tt.kind)
			}
			if len(p.plays) != 0 {
				t.Fatal("player should not be called")
			}
		})
	}
}

func TestPlayErrorStatusMapping(t *testing.T) {
	tests := []struct {
		kind   models.ErrorKind
		status int
	}{
		{models.KindMissingParameter, http.StatusBadRequest},
		{models.KindInvalidParameter, http.StatusBadRequest},
		{models.KindIOError, http.StatusBadGateway},
		{models.KindExtractionError, http.StatusBadGateway},
		{models.KindEngineError, http.StatusBadGateway},
		{models.KindNoPlayableStream, http.StatusUnprocessableEntity},
		{models.KindCancelled, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			p := &fakePlayer{playErr: models.NewError(tt.kind, "boom")}
			srv := NewServer(newTestStore(t), WithPlayer(p))

			w := doRequest(t, srv, http.MethodPost, "/api/player/play",
				`{"sourceType":"youtube","sourceID":"abc","playbackType":1}`)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			body := decodeError(t, w)
			if body.Kind != tt.kind || body.Message != "boom" {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestSetPlaybackType(t *testing.T) {
	p := &fakePlayer{}
	srv := NewServer(newTestStore(t), WithPlayer(p))

	w := doRequest(t, srv, http.MethodPost, "/api/player/playback-type", `{"playbackType":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(p.types) != 1 || p.types[0] != models.PlaybackAudioAndVideo {
		t.Fatalf("unexpected calls %v", p.types)
	}

	w = doRequest(t, srv, http.MethodPost, "/api/player/playback-type", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSetPlaybackTypeWithoutPlayback(t *testing.T) {
	p := &fakePlayer{typeErr: models.NewError(models.KindNoActivePlayback, "Nothing is playing")}
	srv := NewServer(newTestStore(t), WithPlayer(p))

	w := doRequest(t, srv, http.MethodPost, "/api/player/playback-type", `{"playbackType":1}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if got := decodeError(t, w).Kind; got != models.KindNoActivePlayback {
		t.Fatalf("kind = %q", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	p := &fakePlayer{}
	srv := NewServer(newTestStore(t), WithPlayer(p))

	for i := 0; i < 2; i++ {
		w := doRequest(t, srv, http.MethodPost, "/api/player/stop", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}
	if p.stops != 2 {
		t.Fatalf("stops = %d, want 2", p.stops)
	}
}

func TestListPlaybackHistory(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, src := range []string{"youtube", "soundcloud", "youtube"} {
		rec := &models.PlaybackRecord{
			ActionID:   "https://example/" + src,
			SourceType: src,
			SourceID:   src,
			Outcome:    models.OutcomeSuccess,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			EndedAt:    base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		if err := s.InsertPlayback(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
	srv := NewServer(s)

	w := doRequest(t, srv, http.MethodGet, "/api/player/history?source_type=youtube&per_page=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var result store.PlaybackHistoryResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Total != 2 || len(result.Items) != 1 || result.PerPage != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !result.Items[0].StartedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("expected newest first, got %v", result.Items[0].StartedAt)
	}
}
