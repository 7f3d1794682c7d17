package notify

import (
	"testing"

	"travelriskbackend/internal/alerts"
)

func TestHubDeliversEvents(t *testing.T) {
	hub := NewHub(4, nil)

	hub.AlertChanged(alerts.ChangeEvent{Type: "alerts_updated", AlertID: "a1", Change: "created"})
	hub.AlertChanged(alerts.ChangeEvent{Type: "alerts_updated", AlertID: "a1", Change: "updated"})
	hub.Close()

	var got []alerts.ChangeEvent
	for event := range hub.Events() {
		got = append(got, event)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	// Updates to the same alert keep the order they were published in.
	if got[0].Change != "created" || got[1].Change != "updated" {
		t.Fatalf("event order broken: %+v", got)
	}
}

func TestHubDropsWhenFullWithoutBlocking(t *testing.T) {
	hub := NewHub(1, nil)

	dropped := 0
	hub.OnDrop(func() { dropped++ })

	hub.AlertChanged(alerts.ChangeEvent{AlertID: "a1"})
	hub.AlertChanged(alerts.ChangeEvent{AlertID: "a2"}) // buffer full, must not block
	if dropped != 1 {
		t.Fatalf("expected 1 dropped event, got %d", dropped)
	}

	hub.Close()
	var got []alerts.ChangeEvent
	for event := range hub.Events() {
		got = append(got, event)
	}
	if len(got) != 1 || got[0].AlertID != "a1" {
		t.Fatalf("the buffered event should survive, got %+v", got)
	}
}
