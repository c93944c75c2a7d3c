package parse

import (
	"regexp"
	"strings"
)

type MentionKind int

const (
	MentionUser MentionKind = iota + 1
	MentionRole
)

// Mention is a single well-formed mention token.
type Mention struct {
	Kind MentionKind
	ID   string
}

// <@123> and <@!123> address users, <@&123> addresses a role.
var mentionPattern = regexp.MustCompile(`^<@(!|&)?(\d{1,20})>$`)

// Mentions extracts user and role mentions from whitespace separated
// tokens. Malformed tokens are skipped and counted. Duplicates are kept;
// resolving them to members is the caller's job.
func Mentions(raw string) (mentions []Mention, skipped int) {
	for _, token := range strings.Fields(raw) {
		match := mentionPattern.FindStringSubmatch(token)
		if match == nil {
			skipped++
			continue
		}
		kind := MentionUser
		if match[1] == "&" {
			kind = MentionRole
		}
		mentions = append(mentions, Mention{Kind: kind, ID: match[2]})
	}
	return mentions, skipped
}
