package storage

import (
	"context"
	"database/sql"

	pq "github.com/lib/pq"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

// MatchRepo persists the channels owned by running matches so teardown
// survives a restart.
type MatchRepo struct{ db *sql.DB }

func NewMatchRepo(db *sql.DB) *MatchRepo { return &MatchRepo{db: db} }

func (r *MatchRepo) SaveMatch(ctx context.Context, m domain.ActiveMatch) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO active_matches
  (match_id, league_id, guild_id, category_id, team_one_channel_id, team_two_channel_id, team_one, team_two, maps, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (match_id) DO UPDATE SET
  category_id = $4, team_one_channel_id = $5, team_two_channel_id = $6,
  team_one = $7, team_two = $8, maps = $9
`,
		m.MatchID, m.LeagueID, m.GuildID, m.CategoryID, m.TeamOneChanID, m.TeamTwoChanID,
		pq.Array(m.TeamOne), pq.Array(m.TeamTwo), pq.Array(m.Maps), m.CreatedAt,
	)
	return err
}

func (r *MatchRepo) DeleteMatch(ctx context.Context, matchID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM active_matches WHERE match_id = $1`, matchID)
	return err
}

func (r *MatchRepo) ListMatches(ctx context.Context) ([]domain.ActiveMatch, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT match_id, league_id, guild_id, category_id, team_one_channel_id, team_two_channel_id,
       team_one, team_two, maps, created_at
  FROM active_matches
 ORDER BY created_at
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActiveMatch
	for rows.Next() {
		var m domain.ActiveMatch
		if err := rows.Scan(&m.MatchID, &m.LeagueID, &m.GuildID, &m.CategoryID, &m.TeamOneChanID, &m.TeamTwoChanID,
			pq.Array(&m.TeamOne), pq.Array(&m.TeamTwo), pq.Array(&m.Maps), &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
