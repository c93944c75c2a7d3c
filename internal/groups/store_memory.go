package groups

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps study groups in process memory for local/dev use.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	groups map[int64]Group
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{groups: make(map[int64]Group)}
}

func (s *InMemoryStore) Create(_ context.Context, g Group) (Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.groups {
		if existing.GuildID == g.GuildID && existing.Name == g.Name {
			return Group{}, ErrGroupExists
		}
	}
	s.nextID++
	g.ID = s.nextID
	g.Members = append([]string(nil), g.Members...)
	s.groups[g.ID] = g
	return clone(g), nil
}

func (s *InMemoryStore) Get(_ context.Context, guildID, name string) (Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.GuildID == guildID && g.Name == name {
			return clone(g), nil
		}
	}
	return Group{}, ErrGroupNotFound
}

func (s *InMemoryStore) ByVoiceChannel(_ context.Context, guildID, channelID string) (Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.GuildID == guildID && channelID != "" && g.VoiceChannelID == channelID {
			return clone(g), nil
		}
	}
	return Group{}, ErrGroupNotFound
}

func (s *InMemoryStore) List(_ context.Context, guildID string) ([]Group, error) {
	return s.filter(func(g Group) bool { return g.GuildID == guildID }), nil
}

func (s *InMemoryStore) Expired(_ context.Context, now time.Time) ([]Group, error) {
	return s.filter(func(g Group) bool { return !g.EndsAt.After(now) }), nil
}

func (s *InMemoryStore) AddMember(_ context.Context, groupID int64, userID string) error {
	var err error
	if uerr := s.update(groupID, func(g *Group) {
		switch {
		case g.HasMember(userID):
			err = ErrAlreadyMember
		case g.Full():
			err = ErrGroupFull
		default:
			g.Members = append(g.Members, userID)
		}
	}); uerr != nil {
		return uerr
	}
	return err
}

func (s *InMemoryStore) RemoveMember(_ context.Context, groupID int64, userID string) (int, error) {
	var (
		remaining int
		err       error
	)
	if uerr := s.update(groupID, func(g *Group) {
		if !g.HasMember(userID) {
			err = ErrNotMember
			return
		}
		kept := make([]string, 0, len(g.Members)-1)
		for _, id := range g.Members {
			if id != userID {
				kept = append(kept, id)
			}
		}
		g.Members = kept
		remaining = len(kept)
	}); uerr != nil {
		return 0, uerr
	}
	return remaining, err
}

func (s *InMemoryStore) SetRoles(_ context.Context, groupID int64, adminRoleID, sessionRoleID string) error {
	return s.update(groupID, func(g *Group) {
		g.AdminRoleID = adminRoleID
		g.SessionRoleID = sessionRoleID
	})
}

func (s *InMemoryStore) SetVoiceChannel(_ context.Context, groupID int64, channelID string) error {
	return s.update(groupID, func(g *Group) { g.VoiceChannelID = channelID })
}

func (s *InMemoryStore) Delete(_ context.Context, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) update(groupID int64, fn func(*Group)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	fn(&g)
	s.groups[groupID] = g
	return nil
}

func (s *InMemoryStore) filter(keep func(Group) bool) []Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Group
	for _, g := range s.groups {
		if keep(g) {
			out = append(out, clone(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clone(g Group) Group {
	g.Members = append([]string(nil), g.Members...)
	return g
}
