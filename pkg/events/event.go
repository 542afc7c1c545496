// Package events defines the mutation notifications exchanged between
// processes through the relay and delivered to websocket clients.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	CategoryNote = "note"
	CategoryTag  = "tag"
)

// Event names as seen by clients.
const (
	NoteCreated       = "note_created"
	NoteUpdated       = "note_updated"
	NoteVectorUpdated = "note_vector_updated"
	NoteDeleted       = "note_deleted"
	NotesDeleted      = "notes_deleted"
	TagCreated        = "tag_created"
	TagUpdated        = "tag_updated"
	TagVectorUpdated  = "tag_vector_updated"
	TagDeleted        = "tag_deleted"
)

// Event is a flat JSON object carrying at least "event"; "tenant" scopes
// delivery and is absent for process-wide broadcasts.
type Event struct {
	Category   string
	Name       string
	Tenant     string
	Fields     map[string]interface{}
	OccurredAt time.Time
}

func New(category, name, tenant string, fields map[string]interface{}) Event {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	return Event{
		Category:   category,
		Name:       name,
		Tenant:     tenant,
		Fields:     fields,
		OccurredAt: time.Now(),
	}
}

func (e Event) EventType() string {
	return e.Name
}

// Payload is the wire body: Fields plus the event and tenant keys.
func (e Event) Payload() map[string]interface{} {
	out := make(map[string]interface{}, len(e.Fields)+2)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["event"] = e.Name
	if e.Tenant != "" {
		out["tenant"] = e.Tenant
	}
	return out
}

func (e Event) Timestamp() time.Time {
	return e.OccurredAt
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e.Payload())
}

// Decode parses a wire body received for category.
func Decode(category string, body []byte) (Event, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	return FromPayload(category, payload)
}

func FromPayload(category string, payload map[string]interface{}) (Event, error) {
	name, _ := payload["event"].(string)
	if name == "" {
		return Event{}, fmt.Errorf("event name missing")
	}
	tenant, _ := payload["tenant"].(string)
	fields := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if k == "event" || k == "tenant" {
			continue
		}
		fields[k] = v
	}
	return Event{
		Category:   category,
		Name:       name,
		Tenant:     tenant,
		Fields:     fields,
		OccurredAt: time.Now(),
	}, nil
}

// Named returns the category-specific event name: note_created becomes
// tag_created for the tag category.
func Named(category, action string) string {
	return category + "_" + action
}
