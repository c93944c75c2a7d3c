package checkin

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/clock"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/render"
)

// Params describes a session to create. The creator is enrolled even if
// Members omits them.
type Params struct {
	Creator       gateway.User
	ChannelID     string
	GuildID       string
	Members       []gateway.User
	CycleDuration time.Duration
}

// Registry is the process-wide set of running sessions.
type Registry struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	clock         clock.Clock
	maxAbsences   int
	maxPerChannel int
	onStart       func(*Session)
	onRemove      func(render.CheckinState, render.EndReason)
	log           logrus.FieldLogger
}

func NewRegistry(clk clock.Clock, maxAbsences, maxPerChannel int, log logrus.FieldLogger) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	if maxAbsences <= 0 {
		maxAbsences = 3
	}
	return &Registry{
		sessions:      make(map[string]*Session),
		clock:         clk,
		maxAbsences:   maxAbsences,
		maxPerChannel: maxPerChannel,
		log:           log,
	}
}

// SetStartHook registers a callback run after each session is inserted.
func (r *Registry) SetStartHook(hook func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStart = hook
}

// SetRemoveHook registers a callback run with the final state of every
// removed session.
func (r *Registry) SetRemoveHook(hook func(render.CheckinState, render.EndReason)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = hook
}

func (r *Registry) Create(p Params) (*Session, error) {
	members := dedupe(p.Members)
	if indexOf(members, p.Creator.ID) < 0 {
		members = append(members, p.Creator)
	}
	s := newSession(uuid.NewString(), p, members, r.maxAbsences, r.clock.Now().UTC())

	r.mu.Lock()
	if r.maxPerChannel > 0 && r.countLocked(p.Creator.ID, p.ChannelID) >= r.maxPerChannel {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: limit %d", ErrSessionLimit, r.maxPerChannel)
	}
	r.sessions[s.ID] = s
	hook := r.onStart
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"creator_id": p.Creator.ID,
		"channel_id": p.ChannelID,
		"members":    len(members),
		"cycle":      p.CycleDuration.String(),
	}).Info("check-in session created")

	if hook != nil {
		hook(s)
	}
	return s, nil
}

func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Remove deregisters a session and clears it. Both the end control and an
// emptied session may race to remove the same id; the loser gets false.
func (r *Registry) Remove(id string, reason render.EndReason) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	hook := r.onRemove
	r.mu.Unlock()

	if !ok {
		r.log.WithField("session_id", id).Debug("check-in session already removed")
		return false
	}
	final := s.dispose()
	r.log.WithFields(logrus.Fields{
		"session_id": id,
		"reason":     string(reason),
		"cycles":     final.Cycle,
	}).Info("check-in session removed")

	if hook != nil {
		hook(final, reason)
	}
	return true
}

// CountByCreator reports how many sessions the user runs in a channel.
func (r *Registry) CountByCreator(creatorID, channelID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked(creatorID, channelID)
}

func (r *Registry) countLocked(creatorID, channelID string) int {
	n := 0
	for _, s := range r.sessions {
		if s.Creator.ID == creatorID && s.ChannelID == channelID {
			n++
		}
	}
	return n
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List snapshots every running session, oldest first.
func (r *Registry) List() []render.CheckinState {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]render.CheckinState, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func dedupe(users []gateway.User) []gateway.User {
	out := make([]gateway.User, 0, len(users))
	for _, u := range users {
		if indexOf(out, u.ID) < 0 {
			out = append(out, u)
		}
	}
	return out
}
