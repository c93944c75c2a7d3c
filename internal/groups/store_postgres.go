package groups

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const groupColumns = `id, guild_id, name, creator_id, max_size, admin_role_id, session_role_id, voice_channel_id, created_at, end_time`

// PostgresStore persists study groups in PostgreSQL. The pool is shared and
// owned by the caller.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS study_groups (
			id BIGSERIAL PRIMARY KEY,
			guild_id TEXT NOT NULL,
			name TEXT NOT NULL,
			creator_id TEXT NOT NULL,
			max_size INTEGER NOT NULL,
			admin_role_id TEXT NOT NULL DEFAULT '',
			session_role_id TEXT NOT NULL DEFAULT '',
			voice_channel_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			end_time TIMESTAMPTZ NOT NULL,
			UNIQUE (guild_id, name)
		);`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id BIGINT NOT NULL REFERENCES study_groups(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
			PRIMARY KEY (group_id, user_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_study_groups_end_time ON study_groups (end_time);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init study group schema failed on %q: %w", stmt, err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, g Group) (Group, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO study_groups (guild_id, name, creator_id, max_size, created_at, end_time)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			g.GuildID, g.Name, g.CreatorID, g.MaxSize, g.CreatedAt, g.EndsAt,
		).Scan(&g.ID)
		if err != nil {
			return err
		}
		for _, userID := range g.Members {
			if _, err := tx.Exec(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, g.ID, userID); err != nil {
				return err
			}
		}
		return nil
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return Group{}, ErrGroupExists
	}
	if err != nil {
		return Group{}, fmt.Errorf("insert study group: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) Get(ctx context.Context, guildID, name string) (Group, error) {
	return s.one(ctx, `SELECT `+groupColumns+` FROM study_groups WHERE guild_id = $1 AND name = $2`, guildID, name)
}

func (s *PostgresStore) ByVoiceChannel(ctx context.Context, guildID, channelID string) (Group, error) {
	if channelID == "" {
		return Group{}, ErrGroupNotFound
	}
	return s.one(ctx, `SELECT `+groupColumns+` FROM study_groups WHERE guild_id = $1 AND voice_channel_id = $2`, guildID, channelID)
}

func (s *PostgresStore) List(ctx context.Context, guildID string) ([]Group, error) {
	return s.many(ctx, `SELECT `+groupColumns+` FROM study_groups WHERE guild_id = $1 ORDER BY id`, guildID)
}

func (s *PostgresStore) Expired(ctx context.Context, now time.Time) ([]Group, error) {
	return s.many(ctx, `SELECT `+groupColumns+` FROM study_groups WHERE end_time <= $1 ORDER BY id`, now)
}

func (s *PostgresStore) AddMember(ctx context.Context, groupID int64, userID string) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		maxSize, err := lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		var member bool
		var count int
		err = tx.QueryRow(ctx,
			`SELECT count(*), COALESCE(bool_or(user_id = $2), false) FROM group_members WHERE group_id = $1`,
			groupID, userID,
		).Scan(&count, &member)
		if err != nil {
			return err
		}
		switch {
		case member:
			return ErrAlreadyMember
		case count >= maxSize:
			return ErrGroupFull
		}
		_, err = tx.Exec(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, groupID, userID)
		return err
	})
	if err != nil && !isGroupErr(err) {
		return fmt.Errorf("add group member: %w", err)
	}
	return err
}

func (s *PostgresStore) RemoveMember(ctx context.Context, groupID int64, userID string) (int, error) {
	var remaining int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := lockGroup(ctx, tx, groupID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotMember
		}
		return tx.QueryRow(ctx, `SELECT count(*) FROM group_members WHERE group_id = $1`, groupID).Scan(&remaining)
	})
	if err != nil {
		if isGroupErr(err) {
			return 0, err
		}
		return 0, fmt.Errorf("remove group member: %w", err)
	}
	return remaining, nil
}

// lockGroup takes the group row lock that serialises membership changes
// and returns the group's capacity.
func lockGroup(ctx context.Context, tx pgx.Tx, groupID int64) (int, error) {
	var maxSize int
	err := tx.QueryRow(ctx, `SELECT max_size FROM study_groups WHERE id = $1 FOR UPDATE`, groupID).Scan(&maxSize)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrGroupNotFound
	}
	return maxSize, err
}

func isGroupErr(err error) bool {
	return errors.Is(err, ErrGroupNotFound) || errors.Is(err, ErrGroupFull) ||
		errors.Is(err, ErrAlreadyMember) || errors.Is(err, ErrNotMember)
}

func (s *PostgresStore) SetRoles(ctx context.Context, groupID int64, adminRoleID, sessionRoleID string) error {
	return s.exec(ctx, "update group roles",
		`UPDATE study_groups SET admin_role_id = $2, session_role_id = $3 WHERE id = $1`,
		groupID, adminRoleID, sessionRoleID,
	)
}

func (s *PostgresStore) SetVoiceChannel(ctx context.Context, groupID int64, channelID string) error {
	return s.exec(ctx, "update group voice channel",
		`UPDATE study_groups SET voice_channel_id = $2 WHERE id = $1`,
		groupID, channelID,
	)
}

func (s *PostgresStore) Delete(ctx context.Context, groupID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM study_groups WHERE id = $1`, groupID); err != nil {
		return fmt.Errorf("delete study group: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (s *PostgresStore) one(ctx context.Context, sql string, args ...any) (Group, error) {
	groups, err := s.many(ctx, sql, args...)
	if err != nil {
		return Group{}, err
	}
	if len(groups) == 0 {
		return Group{}, ErrGroupNotFound
	}
	return groups[0], nil
}

func (s *PostgresStore) many(ctx context.Context, sql string, args ...any) ([]Group, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query study groups: %w", err)
	}
	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.GuildID, &g.Name, &g.CreatorID, &g.MaxSize,
			&g.AdminRoleID, &g.SessionRoleID, &g.VoiceChannelID, &g.CreatedAt, &g.EndsAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan study group row: %w", err)
		}
		out = append(out, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate study group rows: %w", err)
	}

	for i := range out {
		if out[i].Members, err = s.members(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) members(ctx context.Context, groupID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY joined_at, user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect group members: %w", err)
	}
	return members, nil
}
