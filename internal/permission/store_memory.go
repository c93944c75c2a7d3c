package permission

import (
	"context"
	"sort"
	"sync"
)

type grantKey struct {
	userID  string
	guildID string
}

// InMemoryStore keeps grants in process memory for local/dev use.
type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[grantKey]Grant
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{grants: make(map[grantKey]Grant)}
}

func (s *InMemoryStore) Upsert(_ context.Context, g Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grantKey{g.UserID, g.GuildID}] = g
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, grantKey{userID, guildID})
	return nil
}

func (s *InMemoryStore) Lookup(_ context.Context, userID, guildID string) (Grant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scoped, okScoped := s.grants[grantKey{userID, guildID}]
	global, okGlobal := s.grants[grantKey{userID, ""}]
	switch {
	case okScoped && okGlobal:
		if global.Level > scoped.Level {
			return global, true, nil
		}
		return scoped, true, nil
	case okScoped:
		return scoped, true, nil
	case okGlobal:
		return global, true, nil
	default:
		return Grant{}, false, nil
	}
}

func (s *InMemoryStore) List(_ context.Context, guildID string) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Grant
	for k, g := range s.grants {
		if k.guildID == guildID || k.guildID == "" {
			out = append(out, g)
		}
	}
	sortGrants(out)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func sortGrants(grants []Grant) {
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].Level != grants[j].Level {
			return grants[i].Level > grants[j].Level
		}
		if grants[i].UserID != grants[j].UserID {
			return grants[i].UserID < grants[j].UserID
		}
		return grants[i].GuildID < grants[j].GuildID
	})
}
