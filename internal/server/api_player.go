package server

import (
	"net/http"
	"strconv"
	"time"

	"uwave/internal/models"
)

type playRequest struct {
	SourceType   string `json:"sourceType"`
	SourceID     string `json:"sourceID"`
	Seek         int    `json:"seek"`
	PlaybackType *int   `json:"playbackType"`
}

func (req *playRequest) descriptor() (*models.SourceDescriptor, error) {
	if req.PlaybackType == nil {
		return nil, models.NewError(models.KindMissingParameter, `Missing parameter "playbackType"`)
	}
	return &models.SourceDescriptor{
		SourceType:   req.SourceType,
		SourceID:     req.SourceID,
		Seek:         time.Duration(req.Seek) * time.Second,
		PlaybackType: models.PlaybackType(*req.PlaybackType),
	}, nil
}

// handlePlay blocks until the playback is ready, fails, or is superseded.
// A null body stops playback.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req *playRequest
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}

	var desc *models.SourceDescriptor
	if req != nil {
		var err error
		if desc, err = req.descriptor(); err != nil {
			writeAPIError(w, err)
			return
		}
	}

	meta, err := s.player.Play(r.Context(), desc).Wait(r.Context())
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleSetPlaybackType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlaybackType *int `json:"playbackType"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	if req.PlaybackType == nil {
		writeAPIError(w, models.NewError(models.KindMissingParameter, `Missing parameter "playbackType"`))
		return
	}

	fut := s.player.SetPlaybackType(r.Context(), models.PlaybackType(*req.PlaybackType))
	if _, err := fut.Wait(r.Context()); err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.player.Stop()
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handlePlayerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.player.Status())
}

func (s *Server) handleListPlaybackHistory(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	sourceType := r.URL.Query().Get("source_type")

	result, err := s.store.ListPlaybackHistory(r.Context(), page, perPage, sourceType)
	if err != nil {
		s.log.Errorw("listing playback history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
