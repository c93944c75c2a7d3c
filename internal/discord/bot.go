package discord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/checkin"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/groups"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/observability"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/permission"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/reliability"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/tasks"
)

const (
	interactionTimeout = 30 * time.Second
	intents            = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildVoiceStates
)

var ErrNotConnected = errors.New("discord gateway not connected")

// NewSession creates an unopened gateway session with the intents the bot
// needs. Member and voice state caches feed mention resolution and voice
// occupancy.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = intents
	s.StateEnabled = true
	s.State.TrackMembers = true
	s.State.TrackVoice = true
	return s, nil
}

type Services struct {
	Checkins    *checkin.Service
	Tasks       *tasks.Service
	Groups      *groups.Service
	Permissions *permission.Service
	Resolver    *permission.Resolver
}

// Bot routes gateway events to the services: slash commands through the
// command table, buttons to the check-in router and voice disconnects to
// study group cleanup.
type Bot struct {
	session  *discordgo.Session
	client   *Client
	svc      Services
	guildID  string
	metrics  *observability.Metrics
	log      logrus.FieldLogger
	commands map[string]command
	ready    atomic.Bool
	detach   []func()
}

// NewBot wires a bot. guildID scopes command registration to one guild;
// empty registers them globally.
func NewBot(session *discordgo.Session, client *Client, svc Services, guildID string, metrics *observability.Metrics, log logrus.FieldLogger) *Bot {
	b := &Bot{
		session: session,
		client:  client,
		svc:     svc,
		guildID: guildID,
		metrics: metrics,
		log:     log.WithField("component", "discord_bot"),
	}
	b.commands = b.buildCommands()
	return b
}

// Definitions returns the slash command definitions in name order.
func (b *Bot) Definitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(b.commands))
	for _, c := range b.commands {
		defs = append(defs, c.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Open attaches the event handlers and connects, retrying transient
// connection failures.
func (b *Bot) Open(ctx context.Context) error {
	b.detach = append(b.detach,
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onResumed),
		b.session.AddHandler(b.onDisconnect),
		b.session.AddHandler(b.onInteraction),
		b.session.AddHandler(b.onVoiceStateUpdate),
	)
	policy := reliability.Policy{Attempts: 5, Base: time.Second, Cap: 30 * time.Second}
	err := policy.Do(ctx, func(err error) bool { return !errors.Is(err, discordgo.ErrWSAlreadyOpen) }, func(context.Context) error {
		err := b.session.Open()
		if err != nil {
			b.log.WithError(err).Warn("discord gateway connect failed")
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

// SyncCommands overwrites the registered slash commands with Definitions.
func (b *Bot) SyncCommands(ctx context.Context) error {
	appID, err := b.applicationID(ctx)
	if err != nil {
		return err
	}
	synced, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, b.Definitions(), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sync commands: %w", err)
	}
	for _, c := range synced {
		b.log.WithField("command", c.Name).Debug("command synced")
	}
	b.log.WithFields(logrus.Fields{"count": len(synced), "guild_id": b.guildID}).Info("slash commands synced")
	return nil
}

func (b *Bot) applicationID(ctx context.Context) (string, error) {
	if b.session.State != nil && b.session.State.User != nil {
		return b.session.State.User.ID, nil
	}
	me, err := b.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetch bot user: %w", err)
	}
	return me.ID, nil
}

func (b *Bot) Close() error {
	for _, remove := range b.detach {
		remove()
	}
	b.detach = nil
	b.ready.Store(false)
	return b.session.Close()
}

// Ready reports whether the gateway session is connected.
func (b *Bot) Ready() error {
	if !b.ready.Load() {
		return ErrNotConnected
	}
	return nil
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.ready.Store(true)
	b.log.WithFields(logrus.Fields{"user": r.User.Username, "guilds": len(r.Guilds)}).Info("connected to discord")
}

func (b *Bot) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	b.ready.Store(true)
	b.log.Info("discord session resumed")
}

func (b *Bot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	b.ready.Store(false)
	b.log.Warn("discord gateway disconnected")
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, s, i)
	}
}

func (b *Bot) handleCommand(ctx context.Context, s responder, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	user, admin := actorOf(i)
	strs, ints, users := decodeOptions(data.Options, data.Resolved)
	inv := invocation{
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
		User:          user,
		Administrator: admin,
		Strings:       strs,
		Ints:          ints,
		Users:         users,
	}
	if i.GuildID != "" && b.client != nil {
		inv.GuildName = b.client.GuildName(i.GuildID)
	}
	log := b.log.WithFields(logrus.Fields{"command": data.Name, "user_id": user.ID, "guild_id": i.GuildID})

	cmd, known := b.commands[data.Name]
	if known && cmd.deferred {
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
		}, discordgo.WithContext(ctx))
		if err != nil {
			log.WithError(err).Error("failed to acknowledge command")
			return
		}
		out := b.dispatch(ctx, data.Name, inv)
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
			Content: &out.Content,
			Embeds:  ptr(toEmbeds(out.Embeds)),
		}, discordgo.WithContext(ctx)); err != nil {
			log.WithError(err).Error("failed to deliver command reply")
		}
		return
	}

	out := b.dispatch(ctx, data.Name, inv)
	if err := respond(ctx, s, i, out); err != nil {
		log.WithError(err).Error("failed to deliver command reply")
	}
}

// dispatch resolves the caller's permissions and runs a command.
func (b *Bot) dispatch(ctx context.Context, name string, inv invocation) reply {
	log := b.log.WithFields(logrus.Fields{"command": name, "user_id": inv.User.ID, "guild_id": inv.GuildID})
	cmd, ok := b.commands[name]
	if !ok {
		log.Warn("unknown command")
		b.metrics.Command(name, "unknown")
		return private("Unknown command.")
	}
	if cmd.guildOnly && inv.GuildID == "" {
		b.metrics.Command(name, "rejected")
		return private(msgGuildOnly)
	}

	perm, err := b.svc.Resolver.Resolve(ctx, inv.GuildID, inv.User.ID, inv.Administrator)
	if err != nil {
		log.WithError(err).Error("failed to resolve permissions")
		b.metrics.Command(name, "error")
		return private(msgInternal)
	}
	inv.Perm = perm

	out, err := cmd.run(ctx, inv)
	if err != nil {
		var outcome string
		out, outcome = errorReply(err)
		if outcome == "error" {
			log.WithError(err).Error("command failed")
		} else {
			log.WithError(err).Info("command rejected")
		}
		b.metrics.Command(name, outcome)
		return out
	}
	b.metrics.Command(name, "ok")
	return out
}

func (b *Bot) handleComponent(ctx context.Context, r responder, i *discordgo.InteractionCreate) {
	actor, _ := actorOf(i)
	in := checkin.Interaction{
		CustomID: i.MessageComponentData().CustomID,
		Actor:    actor,
	}
	if i.Message != nil {
		in.Source = gateway.MessageRef{ChannelID: i.Message.ChannelID, MessageID: i.Message.ID}
	}
	log := b.log.WithFields(logrus.Fields{"custom_id": in.CustomID, "user_id": actor.ID})

	// Discord wants the ack within 3s; the router's edits and sends come after.
	acked := true
	if err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}, discordgo.WithContext(ctx)); err != nil {
		log.WithError(err).Warn("failed to acknowledge control interaction")
		acked = false
	}

	res := b.svc.Checkins.Handle(ctx, in)
	if !acked || res.Notice == "" {
		return
	}
	if _, err := r.FollowupMessageCreate(i.Interaction, false, followup(res), discordgo.WithContext(ctx)); err != nil {
		log.WithError(err).Error("failed to deliver control notice")
	}
}

func followup(res checkin.Reply) *discordgo.WebhookParams {
	params := &discordgo.WebhookParams{Content: res.Notice}
	if res.Ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	return params
}

func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.BeforeUpdate == nil || v.BeforeUpdate.ChannelID == "" || v.BeforeUpdate.ChannelID == v.ChannelID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()
	if err := b.svc.Groups.HandleVoiceLeave(ctx, v.GuildID, v.BeforeUpdate.ChannelID); err != nil {
		b.log.WithError(err).WithField("channel_id", v.BeforeUpdate.ChannelID).Error("failed to clean up study group voice channel")
	}
}

// responder is the part of *discordgo.Session that answers interactions.
type responder interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func respond(ctx context.Context, s responder, i *discordgo.InteractionCreate, out reply) error {
	data := &discordgo.InteractionResponseData{
		Content: out.Content,
		Embeds:  toEmbeds(out.Embeds),
	}
	if out.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
}

func ptr[T any](v T) *T { return &v }
