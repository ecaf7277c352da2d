package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

type BanRepo struct{ db *sql.DB }

func NewBanRepo(db *sql.DB) *BanRepo { return &BanRepo{db: db} }

func (r *BanRepo) GetBan(ctx context.Context, guildID, userID string) (domain.Ban, bool, error) {
	b := domain.Ban{GuildID: guildID, UserID: userID}
	var until sql.NullTime
	err := r.db.QueryRowContext(ctx, `
SELECT unban_at FROM banned_users WHERE guild_id = $1 AND user_id = $2
`, guildID, userID).Scan(&until)
	if err == sql.ErrNoRows {
		return b, false, nil
	}
	if err != nil {
		return b, false, err
	}
	if until.Valid {
		t := until.Time
		b.UnbanAt = &t
	}
	return b, true, nil
}

func (r *BanRepo) SaveBan(ctx context.Context, b domain.Ban) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO banned_users (guild_id, user_id, unban_at) VALUES ($1,$2,$3)
ON CONFLICT (guild_id, user_id) DO UPDATE SET unban_at = EXCLUDED.unban_at
`, b.GuildID, b.UserID, b.UnbanAt)
	return err
}

func (r *BanRepo) DeleteBan(ctx context.Context, guildID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM banned_users WHERE guild_id = $1 AND user_id = $2`, guildID, userID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ExpiredBans lists timed bans whose unban time is not after now.
func (r *BanRepo) ExpiredBans(ctx context.Context, now time.Time) ([]domain.Ban, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT guild_id, user_id, unban_at FROM banned_users
 WHERE unban_at IS NOT NULL AND unban_at <= $1
 ORDER BY unban_at
`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Ban
	for rows.Next() {
		var b domain.Ban
		var until time.Time
		if err := rows.Scan(&b.GuildID, &b.UserID, &until); err != nil {
			return nil, err
		}
		b.UnbanAt = &until
		out = append(out, b)
	}
	return out, rows.Err()
}
