package checkin

import (
	"errors"
	"fmt"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/parse"
)

// User facing replies.
const (
	NoticePresent        = "You are marked as present."
	NoticeJoined         = "You have joined the session."
	NoticeLeft           = "You have left the session."
	NoticeNotMember      = "You are not part of this session."
	NoticeAlreadyPresent = "You are already marked as present."
	NoticeAlreadyMember  = "You are already in the session."
	NoticeNotInSession   = "You are not in the session."
	NoticeNotCreator     = "Only the session creator can end the session."
	NoticeSessionGone    = "The session you're interacting with no longer exists."
	NoticeUnknownControl = "This control is no longer valid."
	NoticeStarted        = "Check-in session started."

	noticeBadFormat = "Wrong duration format used. Use a number and a unit, like '45m', '2 hours' or '30sec'. Units: day(s), hour(s)/hr(s), minute(s)/min(s), second(s)/sec(s)."
	noticeNoMembers = "No valid members found in the mentions. Please mention valid users or roles."
)

func noticeFor(err error) string {
	switch {
	case errors.Is(err, ErrNotMember):
		return NoticeNotMember
	case errors.Is(err, ErrAlreadyPresent):
		return NoticeAlreadyPresent
	case errors.Is(err, ErrAlreadyMember):
		return NoticeAlreadyMember
	case errors.Is(err, ErrNotInSession):
		return NoticeNotInSession
	case errors.Is(err, ErrNotCreator):
		return NoticeNotCreator
	default:
		return NoticeSessionGone
	}
}

func endedNotice(creator gateway.User) string {
	return "Check-in session has been manually ended by " + creator.Mention() + "."
}

func tooShortNotice(minSeconds int64) string {
	return "Duration must be at least " + parse.HMS(minSeconds)
}

func tooManyNotice(max int) string {
	return fmt.Sprintf("A session can't have more than %d members.", max)
}

func sessionLimitNotice(name string) string {
	return name + ", you already have the maximum number of active sessions in this channel."
}
