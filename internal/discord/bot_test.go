package discord

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/checkin"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/clock"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/groups"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/logger"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/permission"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/render"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/tasks"
)

var (
	ada     = gateway.User{ID: "100", Name: "ada"}
	brian   = gateway.User{ID: "200", Name: "brian"}
	devUser = gateway.User{ID: "999", Name: "dev"}
)

type botFixture struct {
	bot *Bot
	gw  *gateway.Mock
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	log := logger.Discard()
	gw := gateway.NewMock()
	gw.AddUser(ada)
	gw.AddUser(brian)
	clk := clock.Fake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	checkins := checkin.NewService(checkin.DefaultLimits(), checkin.Dependencies{
		Messenger: gw,
		Directory: gw,
		Clock:     clk,
		Logger:    log,
	})
	t.Cleanup(checkins.Close)
	permStore := permission.NewInMemoryStore()

	svc := Services{
		Checkins:    checkins,
		Tasks:       tasks.NewService(tasks.NewInMemoryStore(), log),
		Groups:      groups.NewService(groups.NewInMemoryStore(), gw, clk, groups.Options{}, log),
		Permissions: permission.NewService(permStore, log),
		Resolver:    permission.NewResolver(permStore, devUser.ID),
	}
	return &botFixture{bot: NewBot(nil, nil, svc, "", nil, log), gw: gw}
}

func (f *botFixture) run(name string, user gateway.User, opts func(*invocation)) reply {
	inv := invocation{
		GuildID:   "g1",
		GuildName: "Study Hall",
		ChannelID: "chan",
		User:      user,
		Strings:   map[string]string{},
		Ints:      map[string]int64{},
		Users:     map[string]gateway.User{},
	}
	if opts != nil {
		opts(&inv)
	}
	return f.bot.dispatch(context.Background(), name, inv)
}

func TestDefinitionsCoverEveryCommand(t *testing.T) {
	f := newBotFixture(t)
	var names []string
	for _, def := range f.bot.Definitions() {
		names = append(names, def.Name)
		assert.NotEmpty(t, def.Description, def.Name)
	}
	assert.Equal(t, []string{
		"add_guild_manager", "checkin", "create_group", "create_vc", "delete_vc", "end_group",
		"invite_to_group", "join_group", "leave_group", "list_groups", "list_managers",
		"remove_guild_manager", "set_permission_level", "task_add", "task_complete", "task_list",
	}, names)
}

func TestCheckinCommand(t *testing.T) {
	f := newBotFixture(t)

	out := f.run("checkin", ada, func(inv *invocation) {
		inv.Strings["duration"] = "45m"
		inv.Strings["mentions"] = "<@200>"
	})
	assert.Equal(t, reply{Content: checkin.NoticeStarted, Ephemeral: true}, out)
	assert.Len(t, f.gw.Sent(), 1)

	out = f.run("checkin", ada, func(inv *invocation) {
		inv.Strings["duration"] = "5s"
		inv.Strings["mentions"] = "<@200>"
	})
	assert.True(t, out.Ephemeral)
	assert.Contains(t, out.Content, "Duration must be at least")

	out = f.run("checkin", ada, func(inv *invocation) {
		inv.GuildID = ""
		inv.Strings["duration"] = "45m"
	})
	assert.Equal(t, msgGuildOnly, out.Content)
}

func TestTaskCommands(t *testing.T) {
	f := newBotFixture(t)

	out := f.run("task_list", ada, nil)
	assert.Equal(t, "You have no tasks.", out.Content)

	out = f.run("task_add", ada, func(inv *invocation) { inv.Strings["description"] = "read chapter 3" })
	assert.Equal(t, "Task added successfully. Task ID: 1", out.Content)

	out = f.run("task_complete", ada, func(inv *invocation) { inv.Ints["task_id"] = 1 })
	assert.Equal(t, "Task 1 marked as complete.", out.Content)
	out = f.run("task_complete", ada, func(inv *invocation) { inv.Ints["task_id"] = 1 })
	assert.Equal(t, "Task 1 not found or already completed.", out.Content)

	out = f.run("task_list", ada, nil)
	require.Len(t, out.Embeds, 1)
	assert.Equal(t, "ada's Tasks", out.Embeds[0].Title)
	assert.Equal(t, "read chapter 3 - Completed", out.Embeds[0].Fields[0].Value)

	out = f.run("task_add", ada, func(inv *invocation) { inv.Strings["description"] = "   " })
	assert.True(t, out.Ephemeral)
}

func TestGroupCommandsRespectPermissions(t *testing.T) {
	f := newBotFixture(t)

	out := f.run("create_group", brian, func(inv *invocation) { inv.Strings["name"] = "Physics" })
	assert.Equal(t, reply{Content: msgNoPermission, Ephemeral: true}, out)

	out = f.run("create_group", ada, func(inv *invocation) {
		inv.Administrator = true
		inv.Strings["name"] = "Physics"
		inv.Ints["max_size"] = 2
	})
	assert.Contains(t, out.Content, "Study group 'Physics' created!")

	out = f.run("join_group", brian, func(inv *invocation) { inv.Strings["name"] = "Physics" })
	assert.Contains(t, out.Content, "You've joined the study group 'Physics'!")
	out = f.run("join_group", brian, func(inv *invocation) { inv.Strings["name"] = "Physics" })
	assert.Equal(t, "You're already in this study group.", out.Content)
	out = f.run("join_group", devUser, func(inv *invocation) { inv.Strings["name"] = "Physics" })
	assert.Equal(t, "This group is full.", out.Content)
	out = f.run("join_group", brian, func(inv *invocation) { inv.Strings["name"] = "Chemistry" })
	assert.Equal(t, "No study group named 'Chemistry' exists in this server.", out.Content)

	out = f.run("list_groups", brian, nil)
	require.Len(t, out.Embeds, 1)
	assert.Equal(t, "Members: 2/2", out.Embeds[0].Fields[0].Value)

	out = f.run("end_group", brian, func(inv *invocation) { inv.Strings["name"] = "Physics" })
	assert.Equal(t, msgNoPermission, out.Content)
	out = f.run("leave_group", brian, func(inv *invocation) { inv.Strings["name"] = "Physics" })
	assert.Equal(t, "You've left the study group 'Physics'.", out.Content)
}

func TestVoiceAndInviteCommands(t *testing.T) {
	f := newBotFixture(t)
	f.run("create_group", ada, func(inv *invocation) {
		inv.Administrator = true
		inv.Strings["name"] = "Physics"
	})

	out := f.run("invite_to_group", ada, func(inv *invocation) {
		inv.Strings["group_name"] = "Physics"
		inv.Users["user"] = brian
	})
	assert.Equal(t, "You've successfully invited <@200> to the study group 'Physics'.", out.Content)
	assert.Len(t, f.gw.Directs(), 1)

	out = f.run("create_vc", ada, func(inv *invocation) { inv.Strings["group_name"] = "Physics" })
	assert.Contains(t, out.Content, "created for the study group.")
	out = f.run("create_vc", ada, func(inv *invocation) { inv.Strings["group_name"] = "Physics" })
	assert.Equal(t, "A voice channel already exists for this group.", out.Content)

	out = f.run("delete_vc", ada, func(inv *invocation) { inv.Strings["group_name"] = "Physics" })
	assert.Equal(t, "Voice channel deleted.", out.Content)
	out = f.run("delete_vc", ada, func(inv *invocation) { inv.Strings["group_name"] = "Physics" })
	assert.Equal(t, "No voice channel exists for this group.", out.Content)
}

func TestManagerCommands(t *testing.T) {
	f := newBotFixture(t)

	out := f.run("add_guild_manager", ada, func(inv *invocation) { inv.Users["user"] = brian })
	assert.Equal(t, msgNoPermission, out.Content)

	out = f.run("add_guild_manager", devUser, func(inv *invocation) { inv.Users["user"] = brian })
	assert.Equal(t, "brian has been added as a guild manager for this server.", out.Content)

	out = f.run("create_group", brian, func(inv *invocation) { inv.Strings["name"] = "Physics" })
	assert.Contains(t, out.Content, "created!")

	out = f.run("set_permission_level", devUser, func(inv *invocation) {
		inv.Users["user"] = ada
		inv.Ints["level"] = 7
	})
	assert.Equal(t, "Invalid permission level. Please use 0, 1, 2, or 3.", out.Content)

	out = f.run("set_permission_level", devUser, func(inv *invocation) {
		inv.Users["user"] = ada
		inv.Ints["level"] = 3
	})
	assert.Equal(t, "Set ada's permission level to Bot Developer.", out.Content)

	out = f.run("list_managers", brian, nil)
	require.Len(t, out.Embeds, 1)
	assert.Equal(t, []gateway.Field{
		{Name: "Bot Developer", Value: "<@100>"},
		{Name: "Guild Manager", Value: "<@200>"},
	}, out.Embeds[0].Fields)

	out = f.run("remove_guild_manager", ada, func(inv *invocation) { inv.Users["user"] = brian })
	assert.Equal(t, "brian has been removed as a guild manager for this server.", out.Content)
}

func TestUnknownCommand(t *testing.T) {
	f := newBotFixture(t)
	out := f.run("nope", ada, nil)
	assert.True(t, out.Ephemeral)
}

// recordingResponder captures interaction responses along with the prompt
// edits the router had made when each one arrived.
type recordingResponder struct {
	gw     *gateway.Mock
	prompt gateway.MessageRef

	calls      []string
	editsAtAck int
	ack        *discordgo.InteractionResponse
	followups  []*discordgo.WebhookParams
}

func (r *recordingResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	r.calls = append(r.calls, "respond")
	r.editsAtAck = r.gw.Edits(r.prompt)
	r.ack = resp
	return nil
}

func (r *recordingResponder) InteractionResponseEdit(_ *discordgo.Interaction, _ *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.calls = append(r.calls, "edit")
	return &discordgo.Message{}, nil
}

func (r *recordingResponder) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.calls = append(r.calls, "followup")
	r.followups = append(r.followups, data)
	return &discordgo.Message{}, nil
}

func componentPress(customID string, user gateway.User, prompt gateway.MessageRef) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "g1",
		Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
		Member:  &discordgo.Member{User: &discordgo.User{ID: user.ID, Username: user.Name}},
		Message: &discordgo.Message{ID: prompt.MessageID, ChannelID: prompt.ChannelID},
	}}
}

func TestComponentAcknowledgedBeforeHandling(t *testing.T) {
	f := newBotFixture(t)
	f.run("checkin", ada, func(inv *invocation) {
		inv.Strings["duration"] = "45m"
		inv.Strings["mentions"] = "<@200>"
	})
	sessions := f.bot.svc.Checkins.Sessions()
	require.Len(t, sessions, 1)
	prompt := f.gw.Sent()[0]
	before := len(sessions[0].Members)

	r := &recordingResponder{gw: f.gw, prompt: prompt}
	f.bot.handleComponent(context.Background(), r, componentPress(render.CustomID(render.ActionJoin, sessions[0].SessionID), devUser, prompt))

	assert.Equal(t, []string{"respond", "followup"}, r.calls)
	require.NotNil(t, r.ack)
	assert.Equal(t, discordgo.InteractionResponseDeferredMessageUpdate, r.ack.Type)
	assert.Zero(t, r.editsAtAck)
	assert.Equal(t, 1, f.gw.Edits(prompt))
	assert.Len(t, f.bot.svc.Checkins.Sessions()[0].Members, before+1)

	require.Len(t, r.followups, 1)
	assert.Equal(t, checkin.NoticeJoined, r.followups[0].Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, r.followups[0].Flags)
}

func TestComponentUnknownControlStillAnswered(t *testing.T) {
	f := newBotFixture(t)
	r := &recordingResponder{gw: f.gw}
	f.bot.handleComponent(context.Background(), r, componentPress("bogus", ada, gateway.MessageRef{ChannelID: "chan", MessageID: "1"}))

	assert.Equal(t, []string{"respond", "followup"}, r.calls)
	require.Len(t, r.followups, 1)
	assert.Equal(t, checkin.NoticeUnknownControl, r.followups[0].Content)
}
