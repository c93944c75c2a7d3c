package discord

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/reliability"
)

const maxButtonsPerRow = 5

var buttonStyles = map[gateway.ControlStyle]discordgo.ButtonStyle{
	gateway.StylePrimary:   discordgo.PrimaryButton,
	gateway.StyleSecondary: discordgo.SecondaryButton,
	gateway.StyleSuccess:   discordgo.SuccessButton,
	gateway.StyleDanger:    discordgo.DangerButton,
}

func toEmbeds(in []gateway.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(in))
	for _, e := range in {
		me := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
		}
		if e.Author != "" {
			me.Author = &discordgo.MessageEmbedAuthor{Name: e.Author}
		}
		if e.Footer != "" {
			me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		for _, f := range e.Fields {
			me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out = append(out, me)
	}
	return out
}

func fromEmbeds(in []*discordgo.MessageEmbed) []gateway.Embed {
	out := make([]gateway.Embed, 0, len(in))
	for _, me := range in {
		if me == nil {
			continue
		}
		e := gateway.Embed{Title: me.Title, Description: me.Description, Color: me.Color}
		if me.Author != nil {
			e.Author = me.Author.Name
		}
		if me.Footer != nil {
			e.Footer = me.Footer.Text
		}
		for _, f := range me.Fields {
			if f != nil {
				e.Fields = append(e.Fields, gateway.Field{Name: f.Name, Value: f.Value, Inline: f.Inline})
			}
		}
		out = append(out, e)
	}
	return out
}

// toComponents lays controls out in action rows of at most five buttons.
func toComponents(controls []gateway.Control) []discordgo.MessageComponent {
	rows := make([]discordgo.MessageComponent, 0, (len(controls)+maxButtonsPerRow-1)/maxButtonsPerRow)
	for start := 0; start < len(controls); start += maxButtonsPerRow {
		end := min(start+maxButtonsPerRow, len(controls))
		buttons := make([]discordgo.MessageComponent, 0, end-start)
		for _, c := range controls[start:end] {
			style, ok := buttonStyles[c.Style]
			if !ok {
				style = discordgo.SecondaryButton
			}
			buttons = append(buttons, discordgo.Button{
				Label:    c.Label,
				Style:    style,
				CustomID: c.CustomID,
				Disabled: c.Disabled,
			})
		}
		rows = append(rows, discordgo.ActionsRow{Components: buttons})
	}
	return rows
}

// fromComponents flattens received action rows back into controls.
// Messages read from the API carry pointer components.
func fromComponents(in []discordgo.MessageComponent) []gateway.Control {
	var out []gateway.Control
	var walk func(discordgo.MessageComponent)
	walk = func(c discordgo.MessageComponent) {
		switch v := c.(type) {
		case discordgo.ActionsRow:
			for _, child := range v.Components {
				walk(child)
			}
		case *discordgo.ActionsRow:
			for _, child := range v.Components {
				walk(child)
			}
		case discordgo.Button:
			out = append(out, fromButton(v))
		case *discordgo.Button:
			out = append(out, fromButton(*v))
		}
	}
	for _, c := range in {
		walk(c)
	}
	return out
}

func fromButton(b discordgo.Button) gateway.Control {
	style := gateway.StyleSecondary
	for s, ds := range buttonStyles {
		if ds == b.Style {
			style = s
			break
		}
	}
	return gateway.Control{Label: b.Label, Style: style, CustomID: b.CustomID, Disabled: b.Disabled}
}

func toMessageSend(msg gateway.Message) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     toEmbeds(msg.Embeds),
		Components: toComponents(msg.Controls),
	}
}

func toMessageEdit(ref gateway.MessageRef, msg gateway.Message) *discordgo.MessageEdit {
	content := msg.Content
	embeds := toEmbeds(msg.Embeds)
	components := toComponents(msg.Controls)
	return &discordgo.MessageEdit{
		ID:         ref.MessageID,
		Channel:    ref.ChannelID,
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}
}

func fromMessage(m *discordgo.Message) gateway.Message {
	return gateway.Message{
		Content:  m.Content,
		Embeds:   fromEmbeds(m.Embeds),
		Controls: fromComponents(m.Components),
	}
}

// toUser prefers the guild nickname, then the global display name.
func toUser(u *discordgo.User, m *discordgo.Member) gateway.User {
	if u == nil && m != nil {
		u = m.User
	}
	if u == nil {
		return gateway.User{}
	}
	name := u.Username
	if u.GlobalName != "" {
		name = u.GlobalName
	}
	if m != nil && m.Nick != "" {
		name = m.Nick
	}
	return gateway.User{ID: u.ID, Name: name}
}

func statusOf(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	return 0
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
			return true
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

func isRetryable(err error) bool {
	return reliability.IsRetryableHTTPStatus(statusOf(err))
}
