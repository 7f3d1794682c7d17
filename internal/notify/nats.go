package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"travelriskbackend/internal/alerts"
)

// NATSPublisher relays change events from a hub onto a NATS subject, where
// the realtime transport layer picks them up for connected dashboards.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher connects to the NATS server.
func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("notify: connect nats: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}, nil
}

// Run consumes the hub's queue until it is closed. Publish failures are
// logged and skipped: fan-out is best effort, clients self-heal on poll.
func (p *NATSPublisher) Run(events <-chan alerts.ChangeEvent) {
	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("marshal change event", "err", err)
			continue
		}
		if err := p.conn.Publish(p.subject, data); err != nil {
			p.logger.Warn("publish change event", "alert_id", event.AlertID, "err", err)
		}
	}
}

// Close flushes and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Flush()
		p.conn.Close()
	}
}
