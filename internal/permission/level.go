package permission

import (
	"errors"
	"fmt"
)

// Level is a permission tier. Higher levels include the lower ones.
type Level int

const (
	RegularUser  Level = 0
	GroupCreator Level = 1
	GuildManager Level = 2
	BotDeveloper Level = 3
)

var (
	ErrForbidden    = errors.New("permission denied")
	ErrInvalidLevel = errors.New("invalid permission level")
)

var levelNames = [...]string{"Regular User", "Group Creator", "Guild Manager", "Bot Developer"}

func (l Level) String() string {
	if l < RegularUser || l > BotDeveloper {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

func ParseLevel(n int) (Level, error) {
	l := Level(n)
	if l < RegularUser || l > BotDeveloper {
		return 0, fmt.Errorf("%w: %d (use 0, 1, 2 or 3)", ErrInvalidLevel, n)
	}
	return l, nil
}

// Context is the caller's resolved permissions for one request.
type Context struct {
	GuildID       string
	UserID        string
	Level         Level
	Administrator bool
}

// IsManager reports whether the caller may manage study groups in the
// guild. Guild administrators always can.
func (c Context) IsManager() bool {
	return c.Administrator || c.Level >= GuildManager
}

func (c Context) IsDeveloper() bool {
	return c.Level == BotDeveloper
}
