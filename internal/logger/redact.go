package logger

import (
	"regexp"

	"github.com/sirupsen/logrus"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	// Discord bot tokens: three dot-separated base64url segments.
	tokenPattern = regexp.MustCompile(`\b[A-Za-z0-9_\-]{23,28}\.[A-Za-z0-9_\-]{6,7}\.[A-Za-z0-9_\-]{27,}\b`)
)

// UserTextFields are log fields that may carry free text typed by users.
var UserTextFields = []string{"description", "group"}

// Redact masks emails, card and phone numbers, and bot tokens.
func Redact(input string) (redacted string, changed bool) {
	out := input
	for _, r := range []struct {
		re   *regexp.Regexp
		mask string
	}{
		{tokenPattern, "[REDACTED_TOKEN]"},
		{emailPattern, "[REDACTED_EMAIL]"},
		// cards before phones, a card number also looks like a phone number
		{cardPattern, "[REDACTED_CARD]"},
		{phonePattern, "[REDACTED_PHONE]"},
	} {
		next := r.re.ReplaceAllString(out, r.mask)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// redactHook scrubs the message and the user text fields of every entry.
type redactHook struct {
	fields []string
}

func (h redactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h redactHook) Fire(e *logrus.Entry) error {
	e.Message, _ = Redact(e.Message)
	for _, key := range h.fields {
		s, ok := e.Data[key].(string)
		if !ok {
			continue
		}
		if out, changed := Redact(s); changed {
			e.Data[key] = out
		}
	}
	return nil
}
