package main

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleEvents relays bus events to the client as a server-sent event
// stream. Each message is one JSON-encoded event; after thirty seconds of
// silence the subscription injects a heartbeat so the connection stays warm
// and the client can tell liveness from a stall.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")

		return
	}

	sub := s.bus.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Debug("event stream opened", "subscriber", sub.ID())
	defer func() {
		s.logger.Debug(
			"event stream closed",
			"subscriber", sub.ID(),
			"dropped", sub.Dropped(),
		)
	}()

	for {
		select {
		case <-r.Context().Done():
			return

		case event, ok := <-sub.Events():
			if !ok {
				return
			}

			payload, err := json.Marshal(event)
			if err != nil {
				s.logger.Warn("encode event", "err", err)

				continue
			}

			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}
