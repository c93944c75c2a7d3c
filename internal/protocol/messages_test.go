package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/render"
)

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","action":"subscribe","session_id":" s1 ","ts_ms":456}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.SessionID != "s1" || control.Action != ActionSubscribe {
		t.Fatalf("unexpected client control: %+v", control)
	}
	if control.TSMs != 456 {
		t.Fatalf("TSMs = %d, want %d", control.TSMs, 456)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsUnknownAction(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"explode"}`)); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Fatalf("expected envelope error")
	}
}

func TestCheckinEventEncoding(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ev := NewCheckinEvent("cycle", "s1", render.CheckinState{SessionID: "s1", Cycle: 2}, at)

	if got, ok := TypeOf(ev); !ok || got != TypeCheckinEvent {
		t.Fatalf("TypeOf() = %q, %v", got, ok)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["type"] != "checkin_event" || decoded["event"] != "cycle" {
		t.Fatalf("unexpected envelope: %s", raw)
	}
	if decoded["ts_ms"] != float64(at.UnixMilli()) {
		t.Fatalf("ts_ms = %v, want %d", decoded["ts_ms"], at.UnixMilli())
	}
}

func BenchmarkParseClientMessageControl(b *testing.B) {
	raw := []byte(`{"type":"client_control","action":"subscribe","session_id":"s1","ts_ms":123456}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseClientMessage(raw)
		if err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(ClientControl); !ok {
			b.Fatalf("message type = %T, want ClientControl", msg)
		}
	}
}
