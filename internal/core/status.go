package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the request status of a store or slot. The zero value is StatusIdle.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSucceeded
	StatusFailed
)

var statusNames = [...]string{"idle", "loading", "succeeded", "failed"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Done reports whether the last request reached a terminal phase.
func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusFailed
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(bytes.TrimSpace(data), &name); err != nil {
		return err
	}
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", name)
}

// Transition describes one phase change of one asynchronous operation.
type Transition struct {
	Store string    `json:"store"`
	Op    string    `json:"op"`
	Phase Status    `json:"phase"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}
