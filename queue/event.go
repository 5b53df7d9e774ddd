// Package queue ships committed ledger events to RabbitMQ as JSON messages.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"library-ledger/library"
)

// DefaultQueue is the durable queue ledger events are routed to.
const DefaultQueue = "ledger.events"

// Message is the body of every published event.
type Message struct {
	ID          string              `json:"id"`
	PublishedAt time.Time           `json:"published_at"`
	Event       library.LedgerEvent `json:"event"`
}

// NewMessage stamps ev with a fresh id and the current time.
func NewMessage(ev library.LedgerEvent) Message {
	return Message{ID: uuid.NewString(), PublishedAt: time.Now().UTC(), Event: ev}
}

// Encode renders m as JSON.
func (m Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", m.Event.Kind, err)
	}
	return b, nil
}

// Decode parses a message body produced by Encode.
func Decode(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("decode ledger message: %w", err)
	}
	return m, nil
}
