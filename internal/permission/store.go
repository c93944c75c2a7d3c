package permission

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Grant is a stored permission tier. An empty GuildID applies to every
// guild.
type Grant struct {
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id,omitempty"`
	Level   Level  `json:"level"`
}

func (g Grant) Global() bool { return g.GuildID == "" }

type Store interface {
	Upsert(ctx context.Context, grant Grant) error
	// Delete removes the grant of userID scoped to guildID. Missing grants
	// are not an error.
	Delete(ctx context.Context, userID, guildID string) error
	// Lookup returns the highest grant of userID that applies in guildID.
	Lookup(ctx context.Context, userID, guildID string) (Grant, bool, error)
	// List returns every grant that applies in guildID, highest first.
	List(ctx context.Context, guildID string) ([]Grant, error)
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
