package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/checkin"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/groups"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/permission"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/tasks"
)

const (
	msgNoPermission = "You don't have permission to use this command."
	msgGuildOnly    = "This command can only be used in a server."
	msgInternal     = "An error occurred while processing the command."
)

// reply is what the invoker sees.
type reply struct {
	Content   string
	Embeds    []gateway.Embed
	Ephemeral bool
}

func private(format string, args ...any) reply {
	return reply{Content: fmt.Sprintf(format, args...), Ephemeral: true}
}

func public(format string, args ...any) reply {
	return reply{Content: fmt.Sprintf(format, args...)}
}

type command struct {
	def *discordgo.ApplicationCommand
	run func(ctx context.Context, inv invocation) (reply, error)
	// deferred commands acknowledge first and answer with an edit.
	deferred  bool
	guildOnly bool
}

func (b *Bot) buildCommands() map[string]command {
	list := []command{
		{
			def: &discordgo.ApplicationCommand{
				Name:        "checkin",
				Description: "Starts a check-in session with specified duration and mentions.",
				Options: []*discordgo.ApplicationCommandOption{
					stringOption("duration", "Time between check-ins, e.g. 45m or 2 hours", true),
					stringOption("mentions", "Users and roles to include", true),
				},
			},
			run:       b.cmdCheckin,
			deferred:  true,
			guildOnly: true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "task_add",
				Description: "Add a new task to your list",
				Options:     []*discordgo.ApplicationCommandOption{stringOption("description", "What needs doing", true)},
			},
			run: b.cmdTaskAdd,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "task_complete",
				Description: "Mark a task as complete",
				Options:     []*discordgo.ApplicationCommandOption{intOption("task_id", "Task number from /task_list", true)},
			},
			run: b.cmdTaskComplete,
		},
		{
			def: &discordgo.ApplicationCommand{Name: "task_list", Description: "List your current tasks"},
			run: b.cmdTaskList,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "create_group",
				Description: "Create a new study group",
				Options: []*discordgo.ApplicationCommandOption{
					stringOption("name", "Name of the study group", true),
					intOption("max_size", "Maximum number of members", false),
				},
			},
			run:       b.cmdCreateGroup,
			guildOnly: true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "join_group",
				Description: "Join an existing study group",
				Options:     []*discordgo.ApplicationCommandOption{stringOption("name", "Name of the study group to join", true)},
			},
			run:       b.cmdJoinGroup,
			guildOnly: true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "leave_group",
				Description: "Leave a study group",
				Options:     []*discordgo.ApplicationCommandOption{stringOption("name", "Name of the study group to leave", true)},
			},
			run:       b.cmdLeaveGroup,
			guildOnly: true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "end_group",
				Description: "End a study group",
				Options:     []*discordgo.ApplicationCommandOption{stringOption("name", "Name of the study group to end", true)},
			},
			run:       b.cmdEndGroup,
			guildOnly: true,
		},
		{
			def:       &discordgo.ApplicationCommand{Name: "list_groups", Description: "List all study groups in the server"},
			run:       b.cmdListGroups,
			guildOnly: true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "invite_to_group",
				Description: "Invite a user to your study group",
				Options: []*discordgo.ApplicationCommandOption{
					stringOption("group_name", "Name of the study group", true),
					userOption("user", "User to invite"),
				},
			},
			run:       b.cmdInvite,
			guildOnly: true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "create_vc",
				Description: "Create a voice channel for the study group",
				Options: []*discordgo.ApplicationCommandOption{
					stringOption("group_name", "Name of the study group", true),
					stringOption("name", "Name of the voice channel", false),
				},
			},
			run:       b.cmdCreateVoice,
			guildOnly: true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "delete_vc",
				Description: "Delete the voice channel for the study group",
				Options:     []*discordgo.ApplicationCommandOption{stringOption("group_name", "Name of the study group", true)},
			},
			run:       b.cmdDeleteVoice,
			guildOnly: true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "add_guild_manager",
				Description: "Add a guild manager (Bot Developer only)",
				Options:     []*discordgo.ApplicationCommandOption{userOption("user", "The user to add as a guild manager")},
			},
			run:       b.cmdAddManager,
			guildOnly: true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "remove_guild_manager",
				Description: "Remove a guild manager (Bot Developer only)",
				Options:     []*discordgo.ApplicationCommandOption{userOption("user", "The user to remove as a guild manager")},
			},
			run:       b.cmdRemoveManager,
			guildOnly: true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "set_permission_level",
				Description: "Set the permission level for a user (Bot Developer only)",
				Options: []*discordgo.ApplicationCommandOption{
					userOption("user", "The user to set permissions for"),
					intOption("level", "0: Regular User, 1: Group Creator, 2: Guild Manager, 3: Bot Developer", true),
				},
			},
			run:       b.cmdSetLevel,
			guildOnly: true,
		},
		{
			def:       &discordgo.ApplicationCommand{Name: "list_managers", Description: "List all managers for this server"},
			run:       b.cmdListManagers,
			guildOnly: true,
		},
	}

	out := make(map[string]command, len(list))
	for _, c := range list {
		out[c.def.Name] = c
	}
	return out
}

func (b *Bot) cmdCheckin(ctx context.Context, inv invocation) (reply, error) {
	_, err := b.svc.Checkins.Start(ctx, checkin.StartRequest{
		Invoker:   inv.User,
		GuildID:   inv.GuildID,
		ChannelID: inv.ChannelID,
		Duration:  inv.str("duration"),
		Mentions:  inv.str("mentions"),
	})
	var verr *checkin.ValidationError
	if errors.As(err, &verr) {
		return private("%s", verr.Message), nil
	}
	if err != nil {
		return reply{}, err
	}
	return private("%s", checkin.NoticeStarted), nil
}

func (b *Bot) cmdTaskAdd(ctx context.Context, inv invocation) (reply, error) {
	task, err := b.svc.Tasks.Add(ctx, inv.User.ID, inv.str("description"))
	switch {
	case errors.Is(err, tasks.ErrEmptyDescription):
		return private("Task description cannot be empty."), nil
	case errors.Is(err, tasks.ErrDescriptionLong):
		return private("Task description must be at most %d characters.", tasks.MaxDescriptionLength), nil
	case err != nil:
		return reply{}, err
	}
	return public("Task added successfully. Task ID: %d", task.ID), nil
}

func (b *Bot) cmdTaskComplete(ctx context.Context, inv invocation) (reply, error) {
	id, _ := inv.integer("task_id")
	ok, err := b.svc.Tasks.Complete(ctx, inv.User.ID, id)
	if err != nil {
		return reply{}, err
	}
	if !ok {
		return public("Task %d not found or already completed.", id), nil
	}
	return public("Task %d marked as complete.", id), nil
}

func (b *Bot) cmdTaskList(ctx context.Context, inv invocation) (reply, error) {
	list, err := b.svc.Tasks.List(ctx, inv.User.ID)
	if err != nil {
		return reply{}, err
	}
	if len(list) == 0 {
		return public("You have no tasks."), nil
	}
	embed := gateway.Embed{Title: inv.User.Name + "'s Tasks", Color: gateway.ColorBlue}
	for _, t := range list {
		embed.Fields = append(embed.Fields, gateway.Field{
			Name:  fmt.Sprintf("Task %d", t.ID),
			Value: t.Description + " - " + t.Status(),
		})
	}
	return reply{Embeds: []gateway.Embed{embed}}, nil
}

func (b *Bot) cmdCreateGroup(ctx context.Context, inv invocation) (reply, error) {
	name := inv.str("name")
	maxSize, _ := inv.integer("max_size")
	g, err := b.svc.Groups.Create(ctx, inv.Perm, name, int(maxSize))
	if err != nil {
		return groupReply(err, name)
	}
	return public("Study group '%s' created! Use /join_group to join.\nYou've been assigned the roles <@&%s> and <@&%s>.",
		g.Name, g.AdminRoleID, g.SessionRoleID), nil
}

func (b *Bot) cmdJoinGroup(ctx context.Context, inv invocation) (reply, error) {
	name := inv.str("name")
	g, err := b.svc.Groups.Join(ctx, inv.Perm, name)
	switch {
	case errors.Is(err, groups.ErrGroupFull):
		return private("This group is full."), nil
	case errors.Is(err, groups.ErrAlreadyMember):
		return private("You're already in this study group."), nil
	case err != nil:
		return groupReply(err, name)
	}
	return public("You've joined the study group '%s'!\nYou've been assigned the role <@&%s>.", g.Name, g.SessionRoleID), nil
}

func (b *Bot) cmdLeaveGroup(ctx context.Context, inv invocation) (reply, error) {
	name := inv.str("name")
	if _, err := b.svc.Groups.Leave(ctx, inv.Perm, name); err != nil {
		if errors.Is(err, groups.ErrNotMember) {
			return private("You're not in the study group '%s'.", name), nil
		}
		return groupReply(err, name)
	}
	return public("You've left the study group '%s'.", name), nil
}

func (b *Bot) cmdEndGroup(ctx context.Context, inv invocation) (reply, error) {
	name := inv.str("name")
	if err := b.svc.Groups.End(ctx, inv.Perm, name); err != nil {
		return groupReply(err, name)
	}
	return public("The study group '%s' has been ended.", name), nil
}

func (b *Bot) cmdListGroups(ctx context.Context, inv invocation) (reply, error) {
	list, err := b.svc.Groups.List(ctx, inv.GuildID)
	if err != nil {
		return reply{}, err
	}
	if len(list) == 0 {
		return private("There are no active study groups in this server."), nil
	}
	embed := gateway.Embed{Title: "Active Study Groups", Color: gateway.ColorBlue}
	for _, g := range list {
		embed.Fields = append(embed.Fields, gateway.Field{
			Name:  g.Name,
			Value: fmt.Sprintf("Members: %d/%d", len(g.Members), g.MaxSize),
		})
	}
	return reply{Embeds: []gateway.Embed{embed}}, nil
}

func (b *Bot) cmdInvite(ctx context.Context, inv invocation) (reply, error) {
	name := inv.str("group_name")
	target, _ := inv.user("user")
	_, err := b.svc.Groups.Invite(ctx, inv.Perm, name, target.ID, inv.GuildName)
	switch {
	case errors.Is(err, groups.ErrNotMember):
		return private("You're not a member of the study group '%s'.", name), nil
	case errors.Is(err, groups.ErrAlreadyMember):
		return private("%s is already in the study group '%s'.", target.Name, name), nil
	case errors.Is(err, groups.ErrGroupFull):
		return private("The study group '%s' is full.", name), nil
	case err != nil:
		return groupReply(err, name)
	}
	return public("You've successfully invited %s to the study group '%s'.", target.Mention(), name), nil
}

func (b *Bot) cmdCreateVoice(ctx context.Context, inv invocation) (reply, error) {
	name := inv.str("group_name")
	ch, err := b.svc.Groups.CreateVoiceChannel(ctx, inv.Perm, name, inv.str("name"))
	switch {
	case errors.Is(err, groups.ErrVoiceExists):
		return private("A voice channel already exists for this group."), nil
	case errors.Is(err, groups.ErrProvisionFailed):
		b.log.WithError(err).WithField("group", name).Error("failed to create voice channel")
		return private("Failed to create the voice channel. Please try again later."), nil
	case err != nil:
		return groupReply(err, name)
	}
	return public("Voice channel <#%s> created for the study group.", ch.ID), nil
}

func (b *Bot) cmdDeleteVoice(ctx context.Context, inv invocation) (reply, error) {
	name := inv.str("group_name")
	existed, err := b.svc.Groups.DeleteVoiceChannel(ctx, inv.Perm, name)
	switch {
	case errors.Is(err, groups.ErrNoVoiceChannel):
		return private("No voice channel exists for this group."), nil
	case err != nil:
		return groupReply(err, name)
	case !existed:
		return public("The voice channel no longer exists."), nil
	}
	return public("Voice channel deleted."), nil
}

func (b *Bot) cmdAddManager(ctx context.Context, inv invocation) (reply, error) {
	target, _ := inv.user("user")
	if err := b.svc.Permissions.AddGuildManager(ctx, inv.Perm, target.ID); err != nil {
		return reply{}, err
	}
	return private("%s has been added as a guild manager for this server.", target.Name), nil
}

func (b *Bot) cmdRemoveManager(ctx context.Context, inv invocation) (reply, error) {
	target, _ := inv.user("user")
	if err := b.svc.Permissions.RemoveGuildManager(ctx, inv.Perm, target.ID); err != nil {
		return reply{}, err
	}
	return private("%s has been removed as a guild manager for this server.", target.Name), nil
}

func (b *Bot) cmdSetLevel(ctx context.Context, inv invocation) (reply, error) {
	target, _ := inv.user("user")
	raw, _ := inv.integer("level")
	level := permission.Level(raw)
	if err := b.svc.Permissions.SetLevel(ctx, inv.Perm, target.ID, level); err != nil {
		return reply{}, err
	}
	return private("Set %s's permission level to %s.", target.Name, level), nil
}

func (b *Bot) cmdListManagers(ctx context.Context, inv invocation) (reply, error) {
	grants, err := b.svc.Permissions.List(ctx, inv.GuildID)
	if err != nil {
		return reply{}, err
	}
	if len(grants) == 0 {
		return private("No managers are configured for this server."), nil
	}
	embed := gateway.Embed{Title: "Managers", Color: gateway.ColorBlue}
	for _, g := range grants {
		level := g.Level.String()
		if g.Global() {
			level = permission.BotDeveloper.String()
		}
		embed.Fields = append(embed.Fields, gateway.Field{Name: level, Value: "<@" + g.UserID + ">"})
	}
	return reply{Embeds: []gateway.Embed{embed}}, nil
}

// groupReply covers the study group errors every group command shares.
func groupReply(err error, name string) (reply, error) {
	switch {
	case errors.Is(err, groups.ErrGroupNotFound):
		return private("No study group named '%s' exists in this server.", name), nil
	case errors.Is(err, groups.ErrGroupExists):
		return private("A study group named '%s' already exists in this server.", name), nil
	case errors.Is(err, groups.ErrInvalidName):
		return private("Please give the study group a name."), nil
	case errors.Is(err, groups.ErrInvalidSize):
		return private("A study group needs room for at least one member."), nil
	case errors.Is(err, groups.ErrProvisionFailed):
		return private("Failed to set up the study group roles. Please check the bot's permissions."), nil
	default:
		return reply{}, err
	}
}

// errorReply turns an unexpected command error into what the invoker sees.
func errorReply(err error) (reply, string) {
	switch {
	case errors.Is(err, permission.ErrForbidden):
		return private(msgNoPermission), "forbidden"
	case errors.Is(err, permission.ErrInvalidLevel):
		return private("Invalid permission level. Please use 0, 1, 2, or 3."), "rejected"
	default:
		return private(msgInternal), "error"
	}
}
