// Package notify fans alert change events out to the realtime transport
// layer. Delivery is at-least-once and lossy-tolerant: clients self-heal on
// their next poll or reconnect. Events for the same alert keep the order
// they were persisted in, since the pipeline publishes from a single pass.
package notify

import (
	"log/slog"

	"travelriskbackend/internal/alerts"
)

// Hub decouples the pipeline from transport consumers with an explicit
// buffered queue instead of direct callback invocation.
type Hub struct {
	events  chan alerts.ChangeEvent
	dropped func()
	logger  *slog.Logger
}

// NewHub builds a hub with the given buffer size.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{events: make(chan alerts.ChangeEvent, buffer), logger: logger}
}

// OnDrop registers a callback invoked whenever an event is discarded because
// the buffer is full. Used for metrics.
func (h *Hub) OnDrop(fn func()) {
	h.dropped = fn
}

// AlertChanged enqueues an event without blocking the pipeline. When the
// buffer is full the event is dropped; consumers recover on their next poll.
func (h *Hub) AlertChanged(event alerts.ChangeEvent) {
	select {
	case h.events <- event:
	default:
		h.logger.Warn("change event dropped, buffer full", "alert_id", event.AlertID)
		if h.dropped != nil {
			h.dropped()
		}
	}
}

// Events exposes the queue to the transport consumer.
func (h *Hub) Events() <-chan alerts.ChangeEvent {
	return h.events
}

// Close stops the hub. Publish after Close is a programming error.
func (h *Hub) Close() {
	close(h.events)
}
