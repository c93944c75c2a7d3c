package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/permission"
)

// invocation is one slash command call with its options decoded.
type invocation struct {
	GuildID       string
	GuildName     string
	ChannelID     string
	User          gateway.User
	Administrator bool
	Perm          permission.Context

	Strings map[string]string
	Ints    map[string]int64
	Users   map[string]gateway.User
}

func (inv invocation) str(name string) string { return inv.Strings[name] }

func (inv invocation) integer(name string) (int64, bool) {
	v, ok := inv.Ints[name]
	return v, ok
}

func (inv invocation) user(name string) (gateway.User, bool) {
	u, ok := inv.Users[name]
	return u, ok
}

// decodeOptions flattens command options by type. User options are looked
// up in the resolved data the platform sends alongside them.
func decodeOptions(opts []*discordgo.ApplicationCommandInteractionDataOption, resolved *discordgo.ApplicationCommandInteractionDataResolved) (map[string]string, map[string]int64, map[string]gateway.User) {
	strs := make(map[string]string)
	ints := make(map[string]int64)
	users := make(map[string]gateway.User)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		switch opt.Type {
		case discordgo.ApplicationCommandOptionString:
			strs[opt.Name] = opt.StringValue()
		case discordgo.ApplicationCommandOptionInteger:
			ints[opt.Name] = opt.IntValue()
		case discordgo.ApplicationCommandOptionUser:
			id, _ := opt.Value.(string)
			if id == "" {
				continue
			}
			u := gateway.User{ID: id, Name: id}
			if resolved != nil {
				if ru, ok := resolved.Users[id]; ok {
					u = toUser(ru, resolved.Members[id])
				}
			}
			users[opt.Name] = u
		}
	}
	return strs, ints, users
}

// actorOf returns the invoking user and whether they administer the guild.
func actorOf(i *discordgo.InteractionCreate) (gateway.User, bool) {
	if i.Member != nil {
		return toUser(i.Member.User, i.Member), i.Member.Permissions&discordgo.PermissionAdministrator != 0
	}
	return toUser(i.User, nil), false
}

func stringOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Description: description, Required: required}
}

func intOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionInteger, Name: name, Description: description, Required: required}
}

func userOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: name, Description: description, Required: true}
}
