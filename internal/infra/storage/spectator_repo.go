package storage

import (
	"context"
	"database/sql"

	pq "github.com/lib/pq"
)

type SpectatorRepo struct{ q *QueueRepo }

func NewSpectatorRepo(db *sql.DB) *SpectatorRepo { return &SpectatorRepo{q: NewQueueRepo(db)} }

func (r *SpectatorRepo) Spectators(ctx context.Context, leagueID string) ([]string, error) {
	return r.q.ids(ctx, `SELECT user_id FROM spect_users WHERE league_id = $1 ORDER BY user_id`, leagueID)
}

// AddSpectators returns the ids that were not spectators yet.
func (r *SpectatorRepo) AddSpectators(ctx context.Context, leagueID string, userIDs ...string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return r.q.ids(ctx, `
INSERT INTO spect_users (league_id, user_id)
SELECT $1, u FROM unnest($2::text[]) AS u
ON CONFLICT DO NOTHING
RETURNING user_id
`, leagueID, pq.Array(userIDs))
}

func (r *SpectatorRepo) RemoveSpectators(ctx context.Context, leagueID string, userIDs ...string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return r.q.ids(ctx, `
DELETE FROM spect_users WHERE league_id = $1 AND user_id = ANY($2) RETURNING user_id
`, leagueID, pq.Array(userIDs))
}

func (r *SpectatorRepo) IsSpectator(ctx context.Context, leagueID, userID string) (bool, error) {
	var ok bool
	err := r.q.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM spect_users WHERE league_id = $1 AND user_id = $2)
`, leagueID, userID).Scan(&ok)
	return ok, err
}
