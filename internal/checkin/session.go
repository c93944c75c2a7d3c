package checkin

import (
	"errors"
	"sync"
	"time"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/render"
)

var (
	ErrSessionNotFound = errors.New("check-in session not found")
	ErrSessionEnded    = errors.New("check-in session ended")
	ErrSessionLimit    = errors.New("too many active check-in sessions in channel")
	ErrNotMember       = errors.New("not a member of the session")
	ErrAlreadyPresent  = errors.New("already marked present")
	ErrAlreadyMember   = errors.New("already a member of the session")
	ErrNotInSession    = errors.New("not in the session")
	ErrNotCreator      = errors.New("only the creator can end the session")
)

// CycleResult describes one completed attendance cycle.
type CycleResult struct {
	Cycle   int
	Evicted []gateway.User
	Empty   bool
}

// Session is one running check-in group. Identity fields are immutable;
// everything else is guarded by mu, which is never held across I/O.
type Session struct {
	ID            string
	Creator       gateway.User
	ChannelID     string
	GuildID       string
	CycleDuration time.Duration
	StartedAt     time.Time

	maxAbsences int
	done        chan struct{}

	mu        sync.Mutex
	members   []gateway.User
	present   []gateway.User
	absences  map[string]int
	exited    []gateway.User
	cycle     int
	promptRef gateway.MessageRef
	ended     bool
	closed    bool
}

func newSession(id string, p Params, members []gateway.User, maxAbsences int, startedAt time.Time) *Session {
	s := &Session{
		ID:            id,
		Creator:       p.Creator,
		ChannelID:     p.ChannelID,
		GuildID:       p.GuildID,
		CycleDuration: p.CycleDuration,
		StartedAt:     startedAt,
		maxAbsences:   maxAbsences,
		done:          make(chan struct{}),
		members:       members,
		present:       append([]gateway.User(nil), members...),
		absences:      make(map[string]int, len(members)),
	}
	for _, m := range members {
		s.absences[m.ID] = 0
	}
	return s
}

// MarkPresent records the participant as present for the current cycle.
func (s *Session) MarkPresent(u gateway.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}
	if indexOf(s.members, u.ID) < 0 {
		return ErrNotMember
	}
	if indexOf(s.present, u.ID) >= 0 {
		return ErrAlreadyPresent
	}
	s.present = append(s.present, u)
	s.absences[u.ID] = 0
	return nil
}

// Join enrolls the participant, clearing any exited status. New members
// count as present for the running cycle.
func (s *Session) Join(u gateway.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}
	if indexOf(s.members, u.ID) >= 0 {
		return ErrAlreadyMember
	}
	s.exited = without(s.exited, u.ID)
	s.members = append(s.members, u)
	s.present = append(s.present, u)
	s.absences[u.ID] = 0
	return nil
}

// Leave moves the participant to exited. It reports whether the session
// has no members left, in which case the session is ended.
func (s *Session) Leave(u gateway.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false, ErrSessionEnded
	}
	s.present = without(s.present, u.ID)
	i := indexOf(s.members, u.ID)
	if i < 0 {
		return false, ErrNotInSession
	}
	s.members = append(s.members[:i:i], s.members[i+1:]...)
	delete(s.absences, u.ID)
	s.exited = append(s.exited, u)
	if len(s.members) == 0 {
		s.ended = true
		return true, nil
	}
	return false, nil
}

// AdvanceCycle closes the current cycle: everyone not present gains an
// absence, members reaching the threshold are evicted, and present is
// reset. An emptied session is ended before the lock is released.
func (s *Session) AdvanceCycle() (CycleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return CycleResult{}, ErrSessionEnded
	}

	var absent []gateway.User
	for _, m := range s.members {
		if indexOf(s.present, m.ID) < 0 {
			absent = append(absent, m)
		}
	}
	s.present = nil

	var evicted []gateway.User
	for _, m := range absent {
		s.absences[m.ID]++
		if s.absences[m.ID] >= s.maxAbsences {
			evicted = append(evicted, m)
		}
	}
	for _, m := range evicted {
		s.members = without(s.members, m.ID)
		delete(s.absences, m.ID)
		s.exited = append(s.exited, m)
	}
	s.cycle++

	res := CycleResult{Cycle: s.cycle, Evicted: evicted, Empty: len(s.members) == 0}
	if res.Empty {
		s.ended = true
	}
	return res, nil
}

// CanEnd reports whether the user may end the session.
func (s *Session) CanEnd(userID string) bool {
	return userID == s.Creator.ID
}

// End marks the session ended on behalf of requester. Collections are
// cleared once the session is deregistered.
func (s *Session) End(requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}
	if !s.CanEnd(requesterID) {
		return ErrNotCreator
	}
	s.ended = true
	return nil
}

func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Done is closed when the session is deregistered.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Snapshot() render.CheckinState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() render.CheckinState {
	absences := make(map[string]int, len(s.absences))
	for id, n := range s.absences {
		absences[id] = n
	}
	return render.CheckinState{
		SessionID:    s.ID,
		Creator:      s.Creator,
		ChannelID:    s.ChannelID,
		StartedAt:    s.StartedAt,
		CycleSeconds: int64(s.CycleDuration / time.Second),
		Cycle:        s.cycle,
		MaxAbsences:  s.maxAbsences,
		Members:      append([]gateway.User(nil), s.members...),
		Present:      append([]gateway.User(nil), s.present...),
		Absences:     absences,
		Exited:       append([]gateway.User(nil), s.exited...),
	}
}

func (s *Session) PromptRef() gateway.MessageRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promptRef
}

// SetPromptRef records the latest interactive message. It returns false
// when the session ended meanwhile; the caller owns retiring ref then.
func (s *Session) SetPromptRef(ref gateway.MessageRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	s.promptRef = ref
	return true
}

// TakePromptRef returns the current interactive message and forgets it,
// so concurrent renders stop targeting a message about to be retired.
func (s *Session) TakePromptRef() gateway.MessageRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := s.promptRef
	s.promptRef = gateway.MessageRef{}
	return ref
}

// dispose ends the session for good and clears its state. It returns the
// state as it was just before clearing. Only the registry calls it.
func (s *Session) dispose() render.CheckinState {
	s.mu.Lock()
	defer s.mu.Unlock()
	final := s.snapshotLocked()
	if s.closed {
		return final
	}
	s.closed = true
	s.ended = true
	s.members = nil
	s.present = nil
	s.exited = nil
	s.absences = make(map[string]int)
	close(s.done)
	return final
}

func indexOf(users []gateway.User, id string) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func without(users []gateway.User, id string) []gateway.User {
	i := indexOf(users, id)
	if i < 0 {
		return users
	}
	return append(users[:i:i], users[i+1:]...)
}
