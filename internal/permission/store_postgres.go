package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists grants in PostgreSQL. The pool is shared and
// owned by the caller.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS managers (
			user_id TEXT NOT NULL,
			guild_id TEXT NOT NULL DEFAULT '',
			permission_level INTEGER NOT NULL,
			PRIMARY KEY (user_id, guild_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_managers_guild ON managers (guild_id);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init permission schema failed on %q: %w", stmt, err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, g Grant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO managers (user_id, guild_id, permission_level) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, guild_id) DO UPDATE SET permission_level = EXCLUDED.permission_level`,
		g.UserID,
		g.GuildID,
		int(g.Level),
	)
	if err != nil {
		return fmt.Errorf("upsert manager: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, guildID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM managers WHERE user_id = $1 AND guild_id = $2`, userID, guildID); err != nil {
		return fmt.Errorf("delete manager: %w", err)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, userID, guildID string) (Grant, bool, error) {
	var g Grant
	var level int
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, guild_id, permission_level FROM managers
		 WHERE user_id = $1 AND (guild_id = $2 OR guild_id = '')
		 ORDER BY permission_level DESC LIMIT 1`,
		userID,
		guildID,
	).Scan(&g.UserID, &g.GuildID, &level)
	if errors.Is(err, pgx.ErrNoRows) {
		return Grant{}, false, nil
	}
	if err != nil {
		return Grant{}, false, fmt.Errorf("lookup manager: %w", err)
	}
	g.Level = Level(level)
	return g, true, nil
}

func (s *PostgresStore) List(ctx context.Context, guildID string) ([]Grant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, guild_id, permission_level FROM managers
		 WHERE guild_id = $1 OR guild_id = ''
		 ORDER BY permission_level DESC, user_id, guild_id`,
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("query managers: %w", err)
	}
	defer rows.Close()

	var out []Grant
	for rows.Next() {
		var g Grant
		var level int
		if err := rows.Scan(&g.UserID, &g.GuildID, &level); err != nil {
			return nil, fmt.Errorf("scan manager row: %w", err)
		}
		g.Level = Level(level)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manager rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error { return nil }
