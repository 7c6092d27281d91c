package amqp

import (
	"encoding/json"
	"time"

	"budgetsync/internal/core"
)

// TransitionMessage announces one lifecycle phase change of a store operation.
type TransitionMessage struct {
	Store     string    `json:"store"`
	Op        string    `json:"op"`
	Phase     string    `json:"phase"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTransitionMessage creates a message for t stamped with the current time.
func NewTransitionMessage(t core.Transition) *TransitionMessage {
	return &TransitionMessage{
		Store:     t.Store,
		Op:        t.Op,
		Phase:     t.Phase.String(),
		Error:     t.Error,
		At:        t.At,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransitionMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransitionMessageFromJSON creates a message from JSON bytes
func TransitionMessageFromJSON(data []byte) (*TransitionMessage, error) {
	var msg TransitionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
