package groups

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists study groups and their membership.
type Store interface {
	// Create inserts g with its initial members. Returns ErrGroupExists when
	// the guild already has a group of that name.
	Create(ctx context.Context, g Group) (Group, error)
	Get(ctx context.Context, guildID, name string) (Group, error)
	ByVoiceChannel(ctx context.Context, guildID, channelID string) (Group, error)
	List(ctx context.Context, guildID string) ([]Group, error)
	// Expired returns groups whose lifetime ended at or before now.
	Expired(ctx context.Context, now time.Time) ([]Group, error)
	// AddMember enrolls userID if the group has room. The membership and
	// capacity checks are atomic with the insert: ErrAlreadyMember,
	// ErrGroupFull.
	AddMember(ctx context.Context, groupID int64, userID string) error
	// RemoveMember drops userID and returns how many members remain, counted
	// in the same step. ErrNotMember when userID was not enrolled.
	RemoveMember(ctx context.Context, groupID int64, userID string) (remaining int, err error)
	SetRoles(ctx context.Context, groupID int64, adminRoleID, sessionRoleID string) error
	SetVoiceChannel(ctx context.Context, groupID int64, channelID string) error
	Delete(ctx context.Context, groupID int64) error
	Close() error
}

// NewStore creates a postgres-backed store when a pool is configured,
// otherwise in-memory.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (Store, error) {
	if pool == nil {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, pool)
}
