package server

import (
	"net/http"

	"uwave/internal/models"
	"uwave/internal/protocol"
)

func (s *Server) handleSocketStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.socket.Status())
}

func (s *Server) handleSocketClose(w http.ResponseWriter, r *http.Request) {
	s.socket.Close()
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleSocketSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	if req.Message == "" {
		writeAPIError(w, models.NewError(models.KindMissingParameter, `Missing parameter "message"`))
		return
	}
	s.send(w, req.Message)
}

func (s *Server) handleSocketVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value *int `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	if req.Value == nil {
		writeAPIError(w, models.NewError(models.KindMissingParameter, `Missing parameter "value"`))
		return
	}
	frame, err := protocol.EncodeVote(*req.Value)
	if err != nil {
		writeAPIError(w, models.WrapError(models.KindInvalidParameter, err))
		return
	}
	s.send(w, frame)
}

func (s *Server) handleSocketChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	frame, err := protocol.EncodeChat(req.Message)
	if err != nil {
		writeAPIError(w, models.NewError(models.KindMissingParameter, `Missing parameter "message"`))
		return
	}
	s.send(w, frame)
}

func (s *Server) send(w http.ResponseWriter, msg string) {
	if err := s.socket.Send(msg); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
