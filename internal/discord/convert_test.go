package discord

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
)

func TestMessageRoundTripThroughComponents(t *testing.T) {
	msg := gateway.Message{
		Embeds: []gateway.Embed{{
			Title:  "How's your progress?",
			Author: "ada",
			Footer: "Session created by ada",
			Color:  gateway.ColorBlue,
			Fields: []gateway.Field{{Name: "Present", Value: "<@100>", Inline: true}},
		}},
		Controls: []gateway.Control{
			{Label: "Present", Style: gateway.StyleSuccess, CustomID: "present_s1"},
			{Label: "End", Style: gateway.StyleDanger, CustomID: "end_s1", Disabled: true},
		},
	}

	send := toMessageSend(msg)
	require.Len(t, send.Components, 1)
	row, ok := send.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)
	assert.Equal(t, discordgo.SuccessButton, row.Components[0].(discordgo.Button).Style)

	received := &discordgo.Message{Embeds: send.Embeds, Components: []discordgo.MessageComponent{
		&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.Button{Label: "Present", Style: discordgo.SuccessButton, CustomID: "present_s1"},
			&discordgo.Button{Label: "End", Style: discordgo.DangerButton, CustomID: "end_s1", Disabled: true},
		}},
	}}
	assert.Equal(t, msg, fromMessage(received))
}

func TestComponentsSplitIntoRows(t *testing.T) {
	controls := make([]gateway.Control, 7)
	for i := range controls {
		controls[i] = gateway.Control{Label: fmt.Sprint(i), CustomID: fmt.Sprint("c", i)}
	}
	rows := toComponents(controls)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0].(discordgo.ActionsRow).Components, 5)
	assert.Len(t, rows[1].(discordgo.ActionsRow).Components, 2)
	assert.Empty(t, toComponents(nil))
}

func TestMessageEditReplacesEverything(t *testing.T) {
	ref := gateway.MessageRef{ChannelID: "c", MessageID: "m"}
	edit := toMessageEdit(ref, gateway.Message{Content: "hi"})
	assert.Equal(t, "m", edit.ID)
	assert.Equal(t, "c", edit.Channel)
	require.NotNil(t, edit.Content)
	assert.Equal(t, "hi", *edit.Content)
	require.NotNil(t, edit.Components)
	assert.Empty(t, *edit.Components)
}

func TestToUserPrefersNickname(t *testing.T) {
	u := &discordgo.User{ID: "1", Username: "ada_l", GlobalName: "Ada"}
	assert.Equal(t, gateway.User{ID: "1", Name: "Ada"}, toUser(u, nil))
	assert.Equal(t, gateway.User{ID: "1", Name: "Countess"}, toUser(u, &discordgo.Member{Nick: "Countess"}))
	assert.Equal(t, gateway.User{ID: "1", Name: "ada_l"}, toUser(&discordgo.User{ID: "1", Username: "ada_l"}, nil))
	assert.Equal(t, gateway.User{}, toUser(nil, nil))
}

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code},
	}
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, isNotFound(restError(http.StatusNotFound, 0)))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", restError(http.StatusBadRequest, discordgo.ErrCodeUnknownMessage))))
	assert.False(t, isNotFound(restError(http.StatusForbidden, 0)))
	assert.False(t, isNotFound(errors.New("boom")))

	assert.True(t, isRetryable(restError(http.StatusBadGateway, 0)))
	assert.False(t, isRetryable(restError(http.StatusForbidden, 0)))
	assert.False(t, isRetryable(errors.New("boom")))
}

func TestVoiceOverwrites(t *testing.T) {
	ow := voiceOverwrites("g1", "bot", "role")
	require.Len(t, ow, 3)
	assert.Equal(t, "g1", ow[0].ID)
	assert.Equal(t, int64(discordgo.PermissionVoiceConnect), ow[0].Deny)
	assert.Equal(t, "role", ow[2].ID)
	assert.Equal(t, int64(discordgo.PermissionVoiceConnect), ow[2].Allow)

	assert.Len(t, voiceOverwrites("g1", "", ""), 1)
}

func TestDecodeOptions(t *testing.T) {
	opts := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "name", Type: discordgo.ApplicationCommandOptionString, Value: "Physics"},
		{Name: "max_size", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(4)},
		{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "200"},
	}
	resolved := &discordgo.ApplicationCommandInteractionDataResolved{
		Users:   map[string]*discordgo.User{"200": {ID: "200", Username: "brian"}},
		Members: map[string]*discordgo.Member{"200": {Nick: "Bri"}},
	}
	strs, ints, users := decodeOptions(opts, resolved)
	assert.Equal(t, "Physics", strs["name"])
	assert.Equal(t, int64(4), ints["max_size"])
	assert.Equal(t, gateway.User{ID: "200", Name: "Bri"}, users["user"])
}
