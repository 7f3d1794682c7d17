// Package store persists alerts. Two implementations exist: an in-memory
// store and a MongoDB-backed one. Both enforce optimistic locking via the
// alert's version field.
package store

import (
	"context"
	"time"

	"travelriskbackend/internal/alerts"
)

// Query filters and pages the alert read API.
type Query struct {
	Category    alerts.Category
	MinSeverity int
	Country     string
	Region      string
	Search      string
	From        time.Time
	To          time.Time
	// SortBy is "created_at" (default) or "severity".
	SortBy string
	Desc   bool
	Limit  int
	Offset int
}

// AlertStore is the full persistence contract: what the pipeline needs plus
// the read-API query surface.
type AlertStore interface {
	alerts.AlertStore
	List(ctx context.Context, q Query) ([]alerts.Alert, int, error)
}
