package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/checkin"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/protocol"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/render"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedReadTimeout  = 120 * time.Second
	feedPingInterval = 30 * time.Second
	feedBuffer       = 64
)

// sessionFilter decides which sessions a feed connection receives.
type sessionFilter struct {
	mu  sync.RWMutex
	all bool
	ids map[string]bool
}

func newSessionFilter(sessionID string) *sessionFilter {
	f := &sessionFilter{ids: make(map[string]bool)}
	if sessionID == "" {
		f.all = true
	} else {
		f.ids[sessionID] = true
	}
	return f
}

func (f *sessionFilter) allows(sessionID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.all || f.ids[sessionID]
}

func (f *sessionFilter) subscribe(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sessionID == "" {
		f.all = true
		return
	}
	f.ids[sessionID] = true
}

func (f *sessionFilter) unsubscribe(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sessionID == "" {
		f.all = false
		f.ids = make(map[string]bool)
		return
	}
	delete(f.ids, sessionID)
}

// handleCheckinFeed streams check-in events over a websocket. The optional
// session_id query parameter limits the stream to one session; clients can
// widen or narrow it later with client_control messages.
func (s *Server) handleCheckinFeed(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID != "" {
		if _, err := s.deps.Checkins.Session(sessionID); errors.Is(err, checkin.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	metrics := s.deps.Metrics
	metrics.WSConnection(1)
	log := s.log.WithField("session_filter", sessionID)
	log.Debug("feed client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	filter := newSessionFilter(sessionID)
	events, unsubscribe := s.deps.Checkins.Feed().Subscribe(feedBuffer)
	defer unsubscribe()

	outbound := make(chan any, 256)
	enqueue := func(msg any) {
		t, _ := protocol.TypeOf(msg)
		select {
		case outbound <- msg:
		default:
			// Writes stay single-threaded; drop when the queue is saturated.
			metrics.WSMessage("dropped", string(t))
		}
	}
	enqueue(s.snapshot(filter))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(feedPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout)); err != nil {
					cancel()
					return
				}
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					metrics.WSMessage("write_error", "")
					cancel()
					return
				}
				if t, ok := protocol.TypeOf(msg); ok {
					metrics.WSMessage("outbound", string(t))
				}
			}
		}
	}()

	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if !filter.allows(ev.SessionID) {
					continue
				}
				select {
				case outbound <- toProtocolEvent(ev):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			enqueue(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Source:    "feed",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		control := parsed.(protocol.ClientControl)
		metrics.WSMessage("inbound", string(control.Type))

		switch control.Action {
		case protocol.ActionSubscribe:
			filter.subscribe(control.SessionID)
			enqueue(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: control.SessionID, Code: "subscribed"})
		case protocol.ActionUnsubscribe:
			filter.unsubscribe(control.SessionID)
			enqueue(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: control.SessionID, Code: "unsubscribed"})
		case protocol.ActionSnapshot:
			enqueue(s.snapshot(filter))
		case protocol.ActionPing:
			enqueue(protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "pong"})
		}
	}

	cancel()
	<-forwarderDone
	<-writerDone
	metrics.WSConnection(-1)
	log.Debug("feed client disconnected")
}

func (s *Server) snapshot(filter *sessionFilter) protocol.CheckinSnapshot {
	sessions := make([]render.CheckinState, 0)
	for _, st := range s.deps.Checkins.Sessions() {
		if filter.allows(st.SessionID) {
			sessions = append(sessions, st)
		}
	}
	return protocol.CheckinSnapshot{
		Type:     protocol.TypeCheckinSnapshot,
		Sessions: sessions,
		TSMs:     time.Now().UnixMilli(),
	}
}

func toProtocolEvent(ev checkin.Event) protocol.CheckinEvent {
	out := protocol.NewCheckinEvent(string(ev.Type), ev.SessionID, ev.State, ev.At)
	out.Actor = ev.Actor
	out.Evicted = ev.Evicted
	out.Reason = string(ev.Reason)
	return out
}
