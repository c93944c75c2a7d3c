package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/parse"
)

// CheckinState is the renderable snapshot of a check-in session.
type CheckinState struct {
	SessionID    string         `json:"session_id"`
	Creator      gateway.User   `json:"creator"`
	ChannelID    string         `json:"channel_id"`
	StartedAt    time.Time      `json:"started_at"`
	CycleSeconds int64          `json:"cycle_seconds"`
	Cycle        int            `json:"cycle"`
	MaxAbsences  int            `json:"max_absences"`
	Members      []gateway.User `json:"members"`
	Present      []gateway.User `json:"present"`
	Absences     map[string]int `json:"absences"`
	Exited       []gateway.User `json:"exited"`
}

// Absent lists members not marked present, in member order.
func (s CheckinState) Absent() []gateway.User {
	present := make(map[string]bool, len(s.Present))
	for _, u := range s.Present {
		present[u.ID] = true
	}
	var out []gateway.User
	for _, u := range s.Members {
		if !present[u.ID] {
			out = append(out, u)
		}
	}
	return out
}

var prompts = []string{
	"How's your progress?",
	"Any updates on your task?",
	"What have you achieved so far?",
	"Let's hear about your current status!",
	"How are things going?",
	"How is your work progressing?",
	"What have you done since the last check-in?",
	"What's your status?",
	"Any progress to report?",
}

const initialTitle = "Let's get started!"

// CheckinPrompt renders the interactive check-in message. The initial
// prompt has no Present button since everyone starts out present.
func CheckinPrompt(s CheckinState, initial bool) gateway.Message {
	title := initialTitle
	if !initial {
		title = prompts[s.Cycle%len(prompts)]
	}

	embed := gateway.Embed{
		Title:  title,
		Color:  gateway.ColorBlue,
		Author: s.Creator.Name + "'s Check-in session",
		Footer: "Created by " + s.Creator.Name,
		Fields: []gateway.Field{
			{Name: "Check-in Started", Value: fmt.Sprintf("<t:%d:R>", s.StartedAt.Unix()), Inline: true},
			{Name: "Duration", Value: parse.HMS(s.CycleSeconds), Inline: true},
			{Name: "Members", Value: joinMentions(s.Members, ", ", "None")},
			{Name: "Present", Value: joinMentions(s.Present, "\n", "No one yet!"), Inline: true},
			{Name: "Absent", Value: absentValue(s), Inline: true},
			{Name: "Exited/Dropped", Value: joinMentions(s.Exited, "\n", "None"), Inline: true},
		},
	}

	var controls []gateway.Control
	if !initial {
		controls = append(controls, gateway.Control{Label: "Present", Style: gateway.StyleSuccess, CustomID: CustomID(ActionPresent, s.SessionID)})
	}
	controls = append(controls,
		gateway.Control{Label: "Join", Style: gateway.StylePrimary, CustomID: CustomID(ActionJoin, s.SessionID)},
		gateway.Control{Label: "Leave", Style: gateway.StyleDanger, CustomID: CustomID(ActionLeave, s.SessionID)},
		gateway.Control{Label: "End", Style: gateway.StyleSecondary, CustomID: CustomID(ActionEnd, s.SessionID)},
	)

	return gateway.Message{Embeds: []gateway.Embed{embed}, Controls: controls}
}

// CheckinReminder is the prompt published at the start of each cycle. It
// pings every member.
func CheckinReminder(s CheckinState) gateway.Message {
	msg := CheckinPrompt(s, false)
	msg.Content = joinMentions(s.Members, ", ", "")
	return msg
}

func absentValue(s CheckinState) string {
	absent := s.Absent()
	if len(absent) == 0 {
		return "Everyone is Present!"
	}
	lines := make([]string, 0, len(absent))
	for _, u := range absent {
		n := s.Absences[u.ID]
		if s.MaxAbsences > 0 && n >= s.MaxAbsences-1 {
			lines = append(lines, fmt.Sprintf("%s (%d)", u.Mention(), n))
			continue
		}
		lines = append(lines, u.Mention())
	}
	return strings.Join(lines, "\n")
}

func joinMentions(users []gateway.User, sep, empty string) string {
	if len(users) == 0 {
		return empty
	}
	parts := make([]string, len(users))
	for i, u := range users {
		parts[i] = u.Mention()
	}
	return strings.Join(parts, sep)
}

// EndReason records why a session stopped.
type EndReason string

const (
	EndManual  EndReason = "manual"
	EndEmpty   EndReason = "empty"
	EndAborted EndReason = "aborted"
)

// CheckinEnded renders the channel notice published when a session stops.
func CheckinEnded(reason EndReason, creator gateway.User) gateway.Message {
	embed := gateway.Embed{
		Title: "Check-in Session Ended",
		Color: gateway.ColorRed,
	}
	switch reason {
	case EndManual:
		embed.Description = "The session has been manually ended by " + creator.Name + "."
		embed.Footer = "Session created by " + creator.Name
	default:
		embed.Description = "No more members are left in the session."
	}
	return gateway.Message{Embeds: []gateway.Embed{embed}}
}
