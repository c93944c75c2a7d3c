package groups

import (
	"errors"
	"time"
)

var (
	ErrGroupNotFound   = errors.New("study group not found")
	ErrGroupExists     = errors.New("study group already exists")
	ErrGroupFull       = errors.New("study group is full")
	ErrAlreadyMember   = errors.New("already a member of the study group")
	ErrNotMember       = errors.New("not a member of the study group")
	ErrInvalidName     = errors.New("study group name is required")
	ErrInvalidSize     = errors.New("study group size must be positive")
	ErrVoiceExists     = errors.New("study group already has a voice channel")
	ErrNoVoiceChannel  = errors.New("study group has no voice channel")
	ErrProvisionFailed = errors.New("failed to provision study group resources")
)

// Group is a named study group inside one guild. Members keeps join
// order; the creator is always first.
type Group struct {
	ID             int64     `json:"id"`
	GuildID        string    `json:"guild_id"`
	Name           string    `json:"name"`
	CreatorID      string    `json:"creator_id"`
	MaxSize        int       `json:"max_size"`
	Members        []string  `json:"members"`
	AdminRoleID    string    `json:"admin_role_id,omitempty"`
	SessionRoleID  string    `json:"session_role_id,omitempty"`
	VoiceChannelID string    `json:"voice_channel_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	EndsAt         time.Time `json:"ends_at"`
}

func (g Group) HasMember(userID string) bool {
	for _, id := range g.Members {
		if id == userID {
			return true
		}
	}
	return false
}

func (g Group) Full() bool { return len(g.Members) >= g.MaxSize }

func adminRoleName(group string) string    { return "Study Group Admin: " + group }
func sessionRoleName(group string) string  { return "In " + group }
func defaultVoiceName(group string) string { return group + " VC" }
