package session

import (
	"encoding/json"
	"fmt"

	"budgetsync/internal/core"
)

// Keys in durable storage.
const (
	KeyAccessToken = "accessToken"
	KeyCurrentUser = "currentUser"
)

const userRecordVersion = 1

type userRecord struct {
	Version int        `json:"version"`
	User    *core.User `json:"user"`
}

// EncodeUser serializes u for the currentUser key.
func EncodeUser(u core.User) (string, error) {
	data, err := json.Marshal(userRecord{Version: userRecordVersion, User: &u})
	if err != nil {
		return "", fmt.Errorf("encode user: %w", err)
	}
	return string(data), nil
}

// DecodeUser parses a currentUser value. Anything malformed, of an unknown
// version or without an id decodes as absent.
func DecodeUser(raw string) (core.User, bool) {
	var rec userRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return core.User{}, false
	}
	if rec.Version != userRecordVersion || rec.User == nil || rec.User.ID == "" {
		return core.User{}, false
	}
	return *rec.User, true
}
