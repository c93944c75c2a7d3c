package gateway

import (
	"context"
	"errors"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/parse"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrChannelNotFound = errors.New("channel not found")
)

// User identifies a participant on the chat platform.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Mention renders the platform mention token for the user.
func (u User) Mention() string { return "<@" + u.ID + ">" }

// MessageRef points at a published message.
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

func (r MessageRef) IsZero() bool { return r.MessageID == "" }

type Role struct {
	ID   string
	Name string
}

type Channel struct {
	ID   string
	Name string
}

// Messenger publishes and maintains bot messages.
type Messenger interface {
	SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error)
	// EditMessage replaces the message content. Returns ErrMessageNotFound
	// when the message no longer exists.
	EditMessage(ctx context.Context, ref MessageRef, msg Message) error
	FetchMessage(ctx context.Context, ref MessageRef) (Message, error)
}

// Directory resolves mention tokens into concrete users. The result is
// de-duplicated and keeps first-seen order; role mentions expand to every
// current holder of the role.
type Directory interface {
	ResolveMentions(ctx context.Context, guildID string, mentions []parse.Mention) ([]User, error)
}

// Guilds provisions roles and channels for study groups.
type Guilds interface {
	CreateRole(ctx context.Context, guildID, name string, mentionable bool) (Role, error)
	DeleteRole(ctx context.Context, guildID, roleID string) error
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error
	// CreateVoiceChannel creates a voice channel only holders of allowRoleID
	// may connect to.
	CreateVoiceChannel(ctx context.Context, guildID, name, allowRoleID string) (Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	VoiceOccupancy(ctx context.Context, guildID, channelID string) (int, error)
	SendDirect(ctx context.Context, userID, content string) error
}
