package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/clock"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/permission"
)

type Options struct {
	DefaultMaxSize int
	Lifetime       time.Duration
}

func (o Options) withDefaults() Options {
	if o.DefaultMaxSize <= 0 {
		o.DefaultMaxSize = 10
	}
	if o.Lifetime <= 0 {
		o.Lifetime = 12 * time.Hour
	}
	return o
}

// Service runs study groups: membership lives in the Store, roles and
// voice channels live on the guild.
type Service struct {
	store  Store
	guilds gateway.Guilds
	clock  clock.Clock
	opts   Options
	log    logrus.FieldLogger
}

func NewService(store Store, guilds gateway.Guilds, clk clock.Clock, opts Options, log logrus.FieldLogger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		store:  store,
		guilds: guilds,
		clock:  clk,
		opts:   opts.withDefaults(),
		log:    log.WithField("component", "groups"),
	}
}

// Create registers a group, provisions its admin and session roles and
// gives both to the creator. maxSize <= 0 selects the default size.
func (s *Service) Create(ctx context.Context, actor permission.Context, name string, maxSize int) (Group, error) {
	if !actor.IsManager() {
		return Group{}, fmt.Errorf("%w: creating study groups requires a manager", permission.ErrForbidden)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, ErrInvalidName
	}
	if maxSize == 0 {
		maxSize = s.opts.DefaultMaxSize
	}
	if maxSize < 1 {
		return Group{}, ErrInvalidSize
	}

	now := s.clock.Now().UTC()
	g, err := s.store.Create(ctx, Group{
		GuildID:   actor.GuildID,
		Name:      name,
		CreatorID: actor.UserID,
		MaxSize:   maxSize,
		Members:   []string{actor.UserID},
		CreatedAt: now,
		EndsAt:    now.Add(s.opts.Lifetime),
	})
	if err != nil {
		return Group{}, err
	}
	log := s.log.WithFields(logrus.Fields{"guild_id": g.GuildID, "group": g.Name, "group_id": g.ID})

	admin, err := s.guilds.CreateRole(ctx, g.GuildID, adminRoleName(name), false)
	if err != nil {
		s.rollback(ctx, g, log)
		return Group{}, fmt.Errorf("%w: admin role: %v", ErrProvisionFailed, err)
	}
	g.AdminRoleID = admin.ID
	sessionRole, err := s.guilds.CreateRole(ctx, g.GuildID, sessionRoleName(name), true)
	if err != nil {
		s.rollback(ctx, g, log)
		return Group{}, fmt.Errorf("%w: session role: %v", ErrProvisionFailed, err)
	}
	g.SessionRoleID = sessionRole.ID
	if err := s.store.SetRoles(ctx, g.ID, g.AdminRoleID, g.SessionRoleID); err != nil {
		s.rollback(ctx, g, log)
		return Group{}, err
	}

	for _, roleID := range []string{g.AdminRoleID, g.SessionRoleID} {
		if err := s.guilds.AddMemberRole(ctx, g.GuildID, actor.UserID, roleID); err != nil {
			log.WithError(err).WithField("role_id", roleID).Warn("failed to grant group role to creator")
		}
	}
	log.WithFields(logrus.Fields{"creator_id": actor.UserID, "max_size": maxSize}).Info("study group created")
	return g, nil
}

func (s *Service) Join(ctx context.Context, actor permission.Context, name string) (Group, error) {
	g, err := s.store.Get(ctx, actor.GuildID, name)
	if err != nil {
		return Group{}, err
	}
	if err := s.admit(ctx, g, actor.UserID); err != nil {
		return Group{}, err
	}
	g.Members = append(g.Members, actor.UserID)
	return g, nil
}

// Leave removes the caller. The group ends once its last member leaves;
// ended reports whether that happened.
func (s *Service) Leave(ctx context.Context, actor permission.Context, name string) (ended bool, err error) {
	g, err := s.store.Get(ctx, actor.GuildID, name)
	if err != nil {
		return false, err
	}
	remaining, err := s.store.RemoveMember(ctx, g.ID, actor.UserID)
	if err != nil {
		return false, err
	}
	log := s.log.WithFields(logrus.Fields{"guild_id": g.GuildID, "group": g.Name, "user_id": actor.UserID})
	if g.SessionRoleID != "" {
		if err := s.guilds.RemoveMemberRole(ctx, g.GuildID, actor.UserID, g.SessionRoleID); err != nil {
			log.WithError(err).Warn("failed to remove session role")
		}
	}
	log.Info("study group member left")

	if remaining > 0 {
		return false, nil
	}
	if err := s.end(ctx, g); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) End(ctx context.Context, actor permission.Context, name string) error {
	if !actor.IsManager() {
		return fmt.Errorf("%w: ending study groups requires a manager", permission.ErrForbidden)
	}
	g, err := s.store.Get(ctx, actor.GuildID, name)
	if err != nil {
		return err
	}
	return s.end(ctx, g)
}

func (s *Service) List(ctx context.Context, guildID string) ([]Group, error) {
	return s.store.List(ctx, guildID)
}

// Invite adds target to a group the caller belongs to and notifies them
// by direct message. A failed notification does not undo the invite.
func (s *Service) Invite(ctx context.Context, actor permission.Context, name, targetID, guildName string) (Group, error) {
	g, err := s.store.Get(ctx, actor.GuildID, name)
	if err != nil {
		return Group{}, err
	}
	if !g.HasMember(actor.UserID) {
		return Group{}, ErrNotMember
	}
	if err := s.admit(ctx, g, targetID); err != nil {
		return Group{}, err
	}
	g.Members = append(g.Members, targetID)

	dm := fmt.Sprintf("You've been invited to join the study group '%s' in %s. You've been automatically added to the group.", g.Name, guildName)
	if err := s.guilds.SendDirect(ctx, targetID, dm); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"group": g.Name, "user_id": targetID}).Warn("failed to send invite notice")
	}
	return g, nil
}

// CreateVoiceChannel opens a voice channel only the group's session role
// can connect to. An empty channelName selects "<group> VC".
func (s *Service) CreateVoiceChannel(ctx context.Context, actor permission.Context, name, channelName string) (gateway.Channel, error) {
	g, err := s.store.Get(ctx, actor.GuildID, name)
	if err != nil {
		return gateway.Channel{}, err
	}
	if err := authorizeVoice(actor, g); err != nil {
		return gateway.Channel{}, err
	}
	if g.VoiceChannelID != "" {
		return gateway.Channel{}, ErrVoiceExists
	}
	if channelName = strings.TrimSpace(channelName); channelName == "" {
		channelName = defaultVoiceName(g.Name)
	}

	ch, err := s.guilds.CreateVoiceChannel(ctx, g.GuildID, channelName, g.SessionRoleID)
	if err != nil {
		return gateway.Channel{}, fmt.Errorf("%w: voice channel: %v", ErrProvisionFailed, err)
	}
	if err := s.store.SetVoiceChannel(ctx, g.ID, ch.ID); err != nil {
		if delErr := s.guilds.DeleteChannel(ctx, ch.ID); delErr != nil {
			s.log.WithError(delErr).WithField("channel_id", ch.ID).Warn("failed to delete orphaned voice channel")
		}
		return gateway.Channel{}, err
	}
	s.log.WithFields(logrus.Fields{"group": g.Name, "channel_id": ch.ID}).Info("study group voice channel created")
	return ch, nil
}

// DeleteVoiceChannel removes the group's voice channel. existed is false
// when the channel had already been deleted outside the bot.
func (s *Service) DeleteVoiceChannel(ctx context.Context, actor permission.Context, name string) (existed bool, err error) {
	g, err := s.store.Get(ctx, actor.GuildID, name)
	if err != nil {
		return false, err
	}
	if err := authorizeVoice(actor, g); err != nil {
		return false, err
	}
	if g.VoiceChannelID == "" {
		return false, ErrNoVoiceChannel
	}
	return s.dropVoice(ctx, g)
}

// HandleVoiceLeave deletes a group voice channel once nobody is connected
// to it. Channels that belong to no group are ignored.
func (s *Service) HandleVoiceLeave(ctx context.Context, guildID, channelID string) error {
	g, err := s.store.ByVoiceChannel(ctx, guildID, channelID)
	if errors.Is(err, ErrGroupNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	occupancy, err := s.guilds.VoiceOccupancy(ctx, guildID, channelID)
	if err != nil && !errors.Is(err, gateway.ErrChannelNotFound) {
		return err
	}
	if occupancy > 0 {
		return nil
	}
	_, err = s.dropVoice(ctx, g)
	return err
}

// ExpireDue ends every group whose lifetime has passed.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	due, err := s.store.Expired(ctx, s.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	ended := 0
	for _, g := range due {
		if err := s.end(ctx, g); err != nil {
			s.log.WithError(err).WithField("group", g.Name).Error("failed to expire study group")
			continue
		}
		ended++
	}
	return ended, nil
}

// RunExpiry calls ExpireDue every interval until ctx is done.
func (s *Service) RunExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
		}
		if n, err := s.ExpireDue(ctx); err != nil {
			s.log.WithError(err).Warn("study group expiry sweep failed")
		} else if n > 0 {
			s.log.WithField("ended", n).Info("expired study groups ended")
		}
	}
}

// admit enrolls userID. The store owns the membership and capacity
// checks; g is only a snapshot.
func (s *Service) admit(ctx context.Context, g Group, userID string) error {
	if err := s.store.AddMember(ctx, g.ID, userID); err != nil {
		return err
	}
	if g.SessionRoleID != "" {
		if err := s.guilds.AddMemberRole(ctx, g.GuildID, userID, g.SessionRoleID); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"group": g.Name, "user_id": userID}).Warn("failed to grant session role")
		}
	}
	s.log.WithFields(logrus.Fields{"guild_id": g.GuildID, "group": g.Name, "user_id": userID}).Info("study group member added")
	return nil
}

func (s *Service) end(ctx context.Context, g Group) error {
	log := s.log.WithFields(logrus.Fields{"guild_id": g.GuildID, "group": g.Name, "group_id": g.ID})
	for _, roleID := range []string{g.AdminRoleID, g.SessionRoleID} {
		if roleID == "" {
			continue
		}
		if err := s.guilds.DeleteRole(ctx, g.GuildID, roleID); err != nil {
			log.WithError(err).WithField("role_id", roleID).Warn("failed to delete group role")
		}
	}
	if g.VoiceChannelID != "" {
		if err := s.guilds.DeleteChannel(ctx, g.VoiceChannelID); err != nil && !errors.Is(err, gateway.ErrChannelNotFound) {
			log.WithError(err).Warn("failed to delete group voice channel")
		}
	}
	if err := s.store.Delete(ctx, g.ID); err != nil {
		return err
	}
	log.Info("study group ended")
	return nil
}

func (s *Service) dropVoice(ctx context.Context, g Group) (bool, error) {
	existed := true
	if err := s.guilds.DeleteChannel(ctx, g.VoiceChannelID); err != nil {
		if !errors.Is(err, gateway.ErrChannelNotFound) {
			return false, fmt.Errorf("delete voice channel: %w", err)
		}
		existed = false
	}
	if err := s.store.SetVoiceChannel(ctx, g.ID, ""); err != nil {
		return existed, err
	}
	s.log.WithFields(logrus.Fields{"group": g.Name, "channel_id": g.VoiceChannelID, "existed": existed}).Info("study group voice channel removed")
	return existed, nil
}

func (s *Service) rollback(ctx context.Context, g Group, log logrus.FieldLogger) {
	for _, roleID := range []string{g.AdminRoleID, g.SessionRoleID} {
		if roleID == "" {
			continue
		}
		if err := s.guilds.DeleteRole(ctx, g.GuildID, roleID); err != nil {
			log.WithError(err).WithField("role_id", roleID).Warn("failed to delete role during rollback")
		}
	}
	if err := s.store.Delete(ctx, g.ID); err != nil {
		log.WithError(err).Error("failed to delete study group during rollback")
	}
}

func authorizeVoice(actor permission.Context, g Group) error {
	if actor.UserID == g.CreatorID || actor.IsManager() {
		return nil
	}
	return fmt.Errorf("%w: only the group creator or a manager can manage its voice channel", permission.ErrForbidden)
}
