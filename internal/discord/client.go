package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/parse"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/reliability"
)

const membersPageSize = 1000

// Client adapts a discordgo session to the gateway interfaces. Transient
// REST failures are retried; unknown messages and channels map to the
// gateway not-found errors.
type Client struct {
	s     *discordgo.Session
	retry reliability.Policy
	log   logrus.FieldLogger
}

var (
	_ gateway.Messenger = (*Client)(nil)
	_ gateway.Directory = (*Client)(nil)
	_ gateway.Guilds    = (*Client)(nil)
)

func NewClient(s *discordgo.Session, log logrus.FieldLogger) *Client {
	return &Client{s: s, retry: reliability.DefaultPolicy(), log: log.WithField("component", "discord_client")}
}

func (c *Client) do(ctx context.Context, fn func(opt discordgo.RequestOption) error) error {
	return c.retry.Do(ctx, isRetryable, func(ctx context.Context) error {
		return fn(discordgo.WithContext(ctx))
	})
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg gateway.Message) (gateway.MessageRef, error) {
	var sent *discordgo.Message
	err := c.do(ctx, func(opt discordgo.RequestOption) error {
		var err error
		sent, err = c.s.ChannelMessageSendComplex(channelID, toMessageSend(msg), opt)
		return err
	})
	if isNotFound(err) {
		return gateway.MessageRef{}, fmt.Errorf("%w: %s", gateway.ErrChannelNotFound, channelID)
	}
	if err != nil {
		return gateway.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return gateway.MessageRef{ChannelID: sent.ChannelID, MessageID: sent.ID}, nil
}

func (c *Client) EditMessage(ctx context.Context, ref gateway.MessageRef, msg gateway.Message) error {
	err := c.do(ctx, func(opt discordgo.RequestOption) error {
		_, err := c.s.ChannelMessageEditComplex(toMessageEdit(ref, msg), opt)
		return err
	})
	if isNotFound(err) {
		return gateway.ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

func (c *Client) FetchMessage(ctx context.Context, ref gateway.MessageRef) (gateway.Message, error) {
	var m *discordgo.Message
	err := c.do(ctx, func(opt discordgo.RequestOption) error {
		var err error
		m, err = c.s.ChannelMessage(ref.ChannelID, ref.MessageID, opt)
		return err
	})
	if isNotFound(err) {
		return gateway.Message{}, gateway.ErrMessageNotFound
	}
	if err != nil {
		return gateway.Message{}, fmt.Errorf("fetch message: %w", err)
	}
	return fromMessage(m), nil
}

// ResolveMentions looks user mentions up as guild members and expands
// role mentions to every member holding the role. Bots and unknown ids are
// dropped.
func (c *Client) ResolveMentions(ctx context.Context, guildID string, mentions []parse.Mention) ([]gateway.User, error) {
	seen := make(map[string]bool)
	var out []gateway.User
	add := func(m *discordgo.Member) {
		if m == nil || m.User == nil || m.User.Bot || seen[m.User.ID] {
			return
		}
		seen[m.User.ID] = true
		out = append(out, toUser(m.User, m))
	}

	var roster []*discordgo.Member
	for _, mention := range mentions {
		switch mention.Kind {
		case parse.MentionUser:
			m, err := c.member(ctx, guildID, mention.ID)
			if err != nil {
				return nil, err
			}
			add(m)
		case parse.MentionRole:
			if roster == nil {
				var err error
				if roster, err = c.members(ctx, guildID); err != nil {
					return nil, err
				}
			}
			for _, m := range roster {
				if hasRole(m, mention.ID) {
					add(m)
				}
			}
		}
	}
	return out, nil
}

func (c *Client) member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if m, err := c.s.State.Member(guildID, userID); err == nil {
		return m, nil
	}
	var m *discordgo.Member
	err := c.do(ctx, func(opt discordgo.RequestOption) error {
		var err error
		m, err = c.s.GuildMember(guildID, userID, opt)
		return err
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch member %s: %w", userID, err)
	}
	return m, nil
}

func (c *Client) members(ctx context.Context, guildID string) ([]*discordgo.Member, error) {
	var all []*discordgo.Member
	after := ""
	for {
		var page []*discordgo.Member
		err := c.do(ctx, func(opt discordgo.RequestOption) error {
			var err error
			page, err = c.s.GuildMembers(guildID, after, membersPageSize, opt)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list guild members: %w", err)
		}
		all = append(all, page...)
		if len(page) < membersPageSize || page[len(page)-1].User == nil {
			return all, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func hasRole(m *discordgo.Member, roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

func (c *Client) CreateRole(ctx context.Context, guildID, name string, mentionable bool) (gateway.Role, error) {
	var role *discordgo.Role
	err := c.do(ctx, func(opt discordgo.RequestOption) error {
		var err error
		role, err = c.s.GuildRoleCreate(guildID, &discordgo.RoleParams{Name: name, Mentionable: &mentionable}, opt)
		return err
	})
	if err != nil {
		return gateway.Role{}, fmt.Errorf("create role %q: %w", name, err)
	}
	return gateway.Role{ID: role.ID, Name: role.Name}, nil
}

func (c *Client) DeleteRole(ctx context.Context, guildID, roleID string) error {
	err := c.do(ctx, func(opt discordgo.RequestOption) error {
		return c.s.GuildRoleDelete(guildID, roleID, opt)
	})
	if err != nil {
		return fmt.Errorf("delete role %s: %w", roleID, err)
	}
	return nil
}

func (c *Client) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	err := c.do(ctx, func(opt discordgo.RequestOption) error {
		return c.s.GuildMemberRoleAdd(guildID, userID, roleID, opt)
	})
	if err != nil {
		return fmt.Errorf("add role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

func (c *Client) RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	err := c.do(ctx, func(opt discordgo.RequestOption) error {
		return c.s.GuildMemberRoleRemove(guildID, userID, roleID, opt)
	})
	if err != nil {
		return fmt.Errorf("remove role %s from %s: %w", roleID, userID, err)
	}
	return nil
}

func (c *Client) CreateVoiceChannel(ctx context.Context, guildID, name, allowRoleID string) (gateway.Channel, error) {
	data := discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildVoice,
		PermissionOverwrites: voiceOverwrites(guildID, c.botUserID(), allowRoleID),
	}
	var ch *discordgo.Channel
	err := c.do(ctx, func(opt discordgo.RequestOption) error {
		var err error
		ch, err = c.s.GuildChannelCreateComplex(guildID, data, opt)
		return err
	})
	if err != nil {
		return gateway.Channel{}, fmt.Errorf("create voice channel %q: %w", name, err)
	}
	return gateway.Channel{ID: ch.ID, Name: ch.Name}, nil
}

// voiceOverwrites denies connect to @everyone (whose role id equals the
// guild id) and allows it for the bot and the group's session role.
func voiceOverwrites(guildID, botUserID, allowRoleID string) []*discordgo.PermissionOverwrite {
	out := []*discordgo.PermissionOverwrite{{
		ID:   guildID,
		Type: discordgo.PermissionOverwriteTypeRole,
		Deny: discordgo.PermissionVoiceConnect,
	}}
	if botUserID != "" {
		out = append(out, &discordgo.PermissionOverwrite{
			ID:    botUserID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionVoiceConnect | discordgo.PermissionManageChannels,
		})
	}
	if allowRoleID != "" {
		out = append(out, &discordgo.PermissionOverwrite{
			ID:    allowRoleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionVoiceConnect,
		})
	}
	return out
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	err := c.do(ctx, func(opt discordgo.RequestOption) error {
		_, err := c.s.ChannelDelete(channelID, opt)
		return err
	})
	if isNotFound(err) {
		return gateway.ErrChannelNotFound
	}
	if err != nil {
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	return nil
}

// VoiceOccupancy counts connected users from the gateway state cache.
func (c *Client) VoiceOccupancy(_ context.Context, guildID, channelID string) (int, error) {
	g, err := c.s.State.Guild(guildID)
	if err != nil {
		return 0, fmt.Errorf("guild %s not cached: %w", guildID, err)
	}
	n := 0
	for _, vs := range g.VoiceStates {
		if vs != nil && vs.ChannelID == channelID {
			n++
		}
	}
	return n, nil
}

func (c *Client) SendDirect(ctx context.Context, userID, content string) error {
	return c.do(ctx, func(opt discordgo.RequestOption) error {
		ch, err := c.s.UserChannelCreate(userID, opt)
		if err != nil {
			return err
		}
		_, err = c.s.ChannelMessageSend(ch.ID, content, opt)
		return err
	})
}

// GuildName returns the cached guild name, or the id when unknown.
func (c *Client) GuildName(guildID string) string {
	if g, err := c.s.State.Guild(guildID); err == nil && strings.TrimSpace(g.Name) != "" {
		return g.Name
	}
	return guildID
}

func (c *Client) botUserID() string {
	if c.s.State != nil && c.s.State.User != nil {
		return c.s.State.User.ID
	}
	return ""
}
