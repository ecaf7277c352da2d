package storage

import (
	"context"
	"database/sql"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

type GuildRepo struct{ db *sql.DB }

func NewGuildRepo(db *sql.DB) *GuildRepo { return &GuildRepo{db: db} }

func (r *GuildRepo) GetGuild(ctx context.Context, guildID string) (domain.Guild, error) {
	var g domain.Guild
	err := r.db.QueryRowContext(ctx, `
SELECT id, linked_role_id, banned_role_id FROM guilds WHERE id = $1
`, guildID).Scan(&g.ID, &g.LinkedRoleID, &g.BannedRoleID)
	return g, notFound(err, "guild "+guildID)
}

func (r *GuildRepo) SaveGuild(ctx context.Context, g domain.Guild) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO guilds (id, linked_role_id, banned_role_id)
VALUES ($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET
  linked_role_id = EXCLUDED.linked_role_id,
  banned_role_id = EXCLUDED.banned_role_id,
  updated_at     = now()
`, g.ID, g.LinkedRoleID, g.BannedRoleID)
	return err
}
