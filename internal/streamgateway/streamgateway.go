// Package streamgateway is the Event Stream Gateway (C8): a long-lived,
// unidirectional HTTP stream that forwards Event Bus traffic to a
// connected dashboard. Router construction (chi.NewRouter with RequestID
// and Recoverer middleware) follows cmd/flightctl-alertmanager-proxy's
// HTTP server setup.
package streamgateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/iotstackcloud/teltonikaupdater/internal/eventbus"
	"github.com/sirupsen/logrus"
)

// Gateway forwards Event Bus events to connected subscribers over
// server-sent-event-shaped HTTP streams.
type Gateway struct {
	bus *eventbus.Bus
	log logrus.FieldLogger
}

// New constructs a Gateway bound to bus.
func New(bus *eventbus.Bus, log logrus.FieldLogger) *Gateway {
	return &Gateway{bus: bus, log: log}
}

// Router builds the chi mux exposing the stream endpoint.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/stream", g.handleStream)
	return r
}

// handleStream subscribes the connecting client to either one job's
// events (query param "job") or every job's events, and forwards them as
// framed "type: <type>\ndata: <json>\n\n" messages until the client
// disconnects.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan eventbus.UpdateEvent, 16)
	sub := func(e eventbus.UpdateEvent) {
		select {
		case events <- e:
		default:
			// No backpressure mechanism is required (spec §4.8): a
			// stalled peer drops events rather than buffering unboundedly.
		}
	}

	jobID := r.URL.Query().Get("job")
	var unsub eventbus.Unsubscribe
	if jobID != "" {
		unsub = g.bus.Subscribe(jobID, sub)
	} else {
		unsub = g.bus.SubscribeAll(sub)
	}
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			if err := writeFrame(w, evt); err != nil {
				g.log.WithError(err).Debug("streamgateway: write failed, closing stream")
				return
			}
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, evt eventbus.UpdateEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "type: %s\ndata: %s\n\n", evt.Type, data); err != nil {
		return err
	}
	return nil
}
