package storage

import (
	"context"
	"database/sql"

	pq "github.com/lib/pq"
)

type QueueRepo struct{ db *sql.DB }

func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

// Queued lists a league's queue in join order.
func (r *QueueRepo) Queued(ctx context.Context, leagueID string) ([]string, error) {
	return r.ids(ctx, `
SELECT user_id FROM queued_users WHERE league_id = $1 ORDER BY joined_at, user_id
`, leagueID)
}

// Enqueue adds the user unless it already sits in some queue.
func (r *QueueRepo) Enqueue(ctx context.Context, leagueID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO queued_users (league_id, user_id) VALUES ($1,$2)
ON CONFLICT DO NOTHING
`, leagueID, userID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Dequeue removes the given users and returns the ones that were queued.
func (r *QueueRepo) Dequeue(ctx context.Context, leagueID string, userIDs ...string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return r.ids(ctx, `
DELETE FROM queued_users WHERE league_id = $1 AND user_id = ANY($2) RETURNING user_id
`, leagueID, pq.Array(userIDs))
}

func (r *QueueRepo) ClearQueue(ctx context.Context, leagueID string) ([]string, error) {
	return r.ids(ctx, `DELETE FROM queued_users WHERE league_id = $1 RETURNING user_id`, leagueID)
}

// QueuedIn returns the league the user is queued in, if any.
func (r *QueueRepo) QueuedIn(ctx context.Context, userID string) (string, bool, error) {
	var leagueID string
	err := r.db.QueryRowContext(ctx, `SELECT league_id FROM queued_users WHERE user_id = $1`, userID).Scan(&leagueID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return leagueID, true, nil
}

func (r *QueueRepo) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
