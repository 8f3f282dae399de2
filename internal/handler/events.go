package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/ppwm/matcher-server-go/internal/errors"
	"github.com/ppwm/matcher-server-go/internal/httputil"
	"github.com/ppwm/matcher-server-go/internal/middleware"
	"github.com/ppwm/matcher-server-go/internal/sse"
)

type EventSubscriber interface {
	Subscribe(login string) *sse.Client
	Unsubscribe(client *sse.Client)
}

// EventsHandler streams pair events for the caller as server-sent events.
type EventsHandler struct {
	broker    EventSubscriber
	heartbeat time.Duration
}

func NewEventsHandler(broker EventSubscriber) *EventsHandler {
	return &EventsHandler{
		broker:    broker,
		heartbeat: sse.HeartbeatInterval,
	}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	if ident == nil {
		httputil.WriteError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(ident.Login)
	defer h.broker.Unsubscribe(client)

	if err := h.sendEvent(w, flusher, sse.EventConnected, map[string]string{"login": ident.Login}); err != nil {
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("login", ident.Login).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Debug().Str("login", ident.Login).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Debug().Err(err).Str("login", ident.Login).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
