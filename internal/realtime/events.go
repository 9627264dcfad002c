package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

const (
	EventEntryCreated       = "entry.created"
	EventEntryLinked        = "entry.linked"
	EventContradictionFound = "entry.contradiction"
	EventSweepCompleted     = "sweep.completed"
)

// Event is one message pushed to a user's open SSE streams.
type Event struct {
	Type    string    `json:"type"`
	UserID  uuid.UUID `json:"user_id"`
	Payload any       `json:"payload,omitempty"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEvent(raw []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(raw, &e)
	return e, err
}
