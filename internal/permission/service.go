package permission

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Resolver turns a caller identity into a permission Context. It is
// consulted once per request; nothing is cached between requests.
type Resolver struct {
	store       Store
	developerID string
}

func NewResolver(store Store, developerID string) *Resolver {
	return &Resolver{store: store, developerID: developerID}
}

func (r *Resolver) Resolve(ctx context.Context, guildID, userID string, administrator bool) (Context, error) {
	pc := Context{GuildID: guildID, UserID: userID, Level: RegularUser, Administrator: administrator}
	if r.developerID != "" && userID == r.developerID {
		pc.Level = BotDeveloper
		return pc, nil
	}
	grant, ok, err := r.store.Lookup(ctx, userID, guildID)
	if err != nil {
		return Context{}, fmt.Errorf("resolve permission level: %w", err)
	}
	if ok {
		pc.Level = grant.Level
	}
	return pc, nil
}

// Service manages stored grants. Every mutation requires a bot developer.
type Service struct {
	store Store
	log   logrus.FieldLogger
}

func NewService(store Store, log logrus.FieldLogger) *Service {
	return &Service{store: store, log: log.WithField("component", "permission")}
}

// SetLevel assigns targetID a tier. Level 0 removes the guild grant;
// BotDeveloper is stored globally.
func (s *Service) SetLevel(ctx context.Context, actor Context, targetID string, level Level) error {
	if err := s.requireDeveloper(actor, "set_permission_level"); err != nil {
		return err
	}
	if _, err := ParseLevel(int(level)); err != nil {
		return err
	}
	log := s.log.WithFields(logrus.Fields{"actor_id": actor.UserID, "user_id": targetID, "guild_id": actor.GuildID, "level": int(level)})
	if level == RegularUser {
		if err := s.store.Delete(ctx, targetID, actor.GuildID); err != nil {
			return err
		}
		log.Info("permissions removed")
		return nil
	}
	grant := Grant{UserID: targetID, GuildID: actor.GuildID, Level: level}
	if level == BotDeveloper {
		grant.GuildID = ""
	}
	if err := s.store.Upsert(ctx, grant); err != nil {
		return err
	}
	log.Info("permission level set")
	return nil
}

func (s *Service) AddGuildManager(ctx context.Context, actor Context, targetID string) error {
	if err := s.requireDeveloper(actor, "add_guild_manager"); err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, Grant{UserID: targetID, GuildID: actor.GuildID, Level: GuildManager}); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": targetID, "guild_id": actor.GuildID}).Info("guild manager added")
	return nil
}

func (s *Service) RemoveGuildManager(ctx context.Context, actor Context, targetID string) error {
	if err := s.requireDeveloper(actor, "remove_guild_manager"); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, targetID, actor.GuildID); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": targetID, "guild_id": actor.GuildID}).Info("guild manager removed")
	return nil
}

// List returns the grants that apply in a guild, global ones included.
func (s *Service) List(ctx context.Context, guildID string) ([]Grant, error) {
	return s.store.List(ctx, guildID)
}

func (s *Service) requireDeveloper(actor Context, op string) error {
	if actor.IsDeveloper() {
		return nil
	}
	s.log.WithFields(logrus.Fields{"actor_id": actor.UserID, "op": op}).Warn("permission change denied")
	return fmt.Errorf("%w: %s requires %s", ErrForbidden, op, BotDeveloper)
}
