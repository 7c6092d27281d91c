package log

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentIsAttached(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: ComponentApp, Handler: slog.NewTextHandler(&buf, nil)})
	l.WithComponent(ComponentSession).Info("restored", FieldUserID, "7")

	out := buf.String()
	if !strings.Contains(out, "component=session") {
		t.Fatalf("missing component in %q", out)
	}
	if strings.Contains(out, "component=app") {
		t.Fatalf("component repeated in %q", out)
	}
	if !strings.Contains(out, "user_id=7") {
		t.Fatalf("missing field in %q", out)
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithTransition("budgets", "fetchAll", "failed").
		WithError(errors.New("boom")).
		WithErrorType(ErrorTypeNetwork)
	if f[FieldPhase] != "failed" || f[FieldError] != "boom" || f[FieldErrorType] != ErrorTypeNetwork {
		t.Fatalf("unexpected fields %v", f)
	}
	if got := len(f.ToSlice()); got != 2*len(f) {
		t.Fatalf("ToSlice length = %d, want %d", got, 2*len(f))
	}
}
