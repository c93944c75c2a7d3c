package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/render"
)

// MessageType identifies live feed websocket payload variants.
type MessageType string

const (
	TypeClientControl   MessageType = "client_control"
	TypeCheckinEvent    MessageType = "checkin_event"
	TypeCheckinSnapshot MessageType = "checkin_snapshot"
	TypeSystemEvent     MessageType = "system_event"
	TypeErrorEvent      MessageType = "error_event"
)

// Client control actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionSnapshot    = "snapshot"
	ActionPing        = "ping"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientControl changes what a feed connection receives. SessionID narrows
// subscribe and snapshot to one session; empty means all sessions.
type ClientControl struct {
	Type      MessageType `json:"type"`
	Action    string      `json:"action"`
	SessionID string      `json:"session_id,omitempty"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

type CheckinEvent struct {
	Type      MessageType         `json:"type"`
	Event     string              `json:"event"`
	SessionID string              `json:"session_id"`
	State     render.CheckinState `json:"state"`
	Actor     *gateway.User       `json:"actor,omitempty"`
	Evicted   []gateway.User      `json:"evicted,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	TSMs      int64               `json:"ts_ms"`
}

type CheckinSnapshot struct {
	Type     MessageType           `json:"type"`
	Sessions []render.CheckinState `json:"sessions"`
	TSMs     int64                 `json:"ts_ms"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.SessionID = strings.TrimSpace(msg.SessionID)
		switch msg.Action {
		case ActionSubscribe, ActionUnsubscribe, ActionSnapshot, ActionPing:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// NewCheckinEvent builds the outbound envelope for a session change.
func NewCheckinEvent(event, sessionID string, state render.CheckinState, at time.Time) CheckinEvent {
	return CheckinEvent{
		Type:      TypeCheckinEvent,
		Event:     event,
		SessionID: sessionID,
		State:     state,
		TSMs:      at.UnixMilli(),
	}
}

// TypeOf reports the message type of a known payload.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case ClientControl:
		return m.Type, true
	case CheckinEvent:
		return m.Type, true
	case CheckinSnapshot:
		return m.Type, true
	case SystemEvent:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
