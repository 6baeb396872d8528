package server

import (
	"fmt"
	"net/http"
	"strings"

	"uwave/internal/models"
)

// handleSocketEvents subscribes the socket to ?url= and streams its frames.
// The subscription ends when the client goes away.
func (s *Server) handleSocketEvents(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeAPIError(w, models.NewError(models.KindMissingParameter, `Missing parameter "url"`))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	stream, err := s.socket.Subscribe(r.Context(), url)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-stream:
			if !ok {
				return
			}
			writeEvent(w, frame)
			flusher.Flush()
		}
	}
}

// writeEvent emits one SSE event; multi-line frames use one data line each.
func writeEvent(w http.ResponseWriter, frame string) {
	for _, line := range strings.Split(frame, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}
