package render

import (
	"errors"
	"fmt"
	"strings"
)

// Action is the kind of button a participant pressed.
type Action string

const (
	ActionPresent Action = "present"
	ActionJoin    Action = "join"
	ActionLeave   Action = "leave"
	ActionEnd     Action = "end"
)

// ControlSeparator joins action and session id in a control's custom id.
// Neither part may contain it.
const ControlSeparator = "_"

var ErrBadCustomID = errors.New("malformed control id")

func CustomID(a Action, sessionID string) string {
	return string(a) + ControlSeparator + sessionID
}

// SplitCustomID decodes "<action>_<sessionID>".
func SplitCustomID(customID string) (Action, string, error) {
	action, sessionID, ok := strings.Cut(customID, ControlSeparator)
	if !ok || sessionID == "" || strings.Contains(sessionID, ControlSeparator) {
		return "", "", fmt.Errorf("%w: %q", ErrBadCustomID, customID)
	}
	switch a := Action(action); a {
	case ActionPresent, ActionJoin, ActionLeave, ActionEnd:
		return a, sessionID, nil
	default:
		return "", "", fmt.Errorf("%w: unknown action %q", ErrBadCustomID, action)
	}
}
