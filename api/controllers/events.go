package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/edgeup/edgeup-backend/api/responses"
	"github.com/edgeup/edgeup-backend/internal/events"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/logger"
)

// EventsStream serves the live notification feed over server-sent events.
// Heartbeat comments keep idle proxies from cutting the connection.
func EventsStream(hub *events.Hub, heartbeat time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "event hub unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported by connection"))
			return
		}

		sub := hub.Subscribe(userID)
		defer sub.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		if heartbeat <= 0 {
			heartbeat = 25 * time.Second
		}
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": heartbeat\n\n")
				flusher.Flush()
			case event, open := <-sub.Events():
				if !open {
					return
				}
				payload, err := json.Marshal(event.Payload)
				if err != nil {
					if logg != nil {
						logg.Error(r.Context(), "events.stream.marshal_failed", err)
					}
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
				flusher.Flush()
			}
		}
	}
}
