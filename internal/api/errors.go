package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError is a rejection carrying a structured server body
// {"message": "...", "errors": {"field": "..."}}.
type ValidationError struct {
	StatusCode int         `json:"-"`
	Message    string      `json:"message"`
	Errors     FieldErrors `json:"errors"`
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request rejected with status %d", e.StatusCode)
}

// Field returns the message for one field, or "".
func (e *ValidationError) Field(name string) string {
	return e.Errors[name]
}

// TransportError is a failure where no usable server response was received:
// the network failed, the request timed out, or the body was malformed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FieldErrors maps field names to a single message. Servers that send
// {"field": ["first", "second"]} are reduced to the first message.
type FieldErrors map[string]string

func (f *FieldErrors) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		// Some servers send an empty array for "no errors".
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err == nil && len(list) == 0 {
			*f = FieldErrors{}
			return nil
		}
		return err
	}
	out := make(FieldErrors, len(raw))
	for field, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[field] = s
			continue
		}
		var list []string
		if err := json.Unmarshal(v, &list); err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
		if len(list) > 0 {
			out[field] = list[0]
		}
	}
	*f = out
	return nil
}

// String renders the errors as "field: message" pairs in field order.
func (f FieldErrors) String() string {
	fields := make([]string, 0, len(f))
	for k := range f {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, k := range fields {
		parts[i] = k + ": " + f[k]
	}
	return strings.Join(parts, "; ")
}

// AsValidation reports whether err carries a server validation payload.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// IsTransport reports whether err is a transport/network fault.
func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}
