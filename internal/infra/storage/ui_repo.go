package storage

import (
	"context"
	"database/sql"
)

// UIRepo remembers the queue status message of each league.
type UIRepo struct{ db *sql.DB }

func NewUIRepo(db *sql.DB) *UIRepo { return &UIRepo{db: db} }

func (r *UIRepo) QueueMessage(ctx context.Context, leagueID string) (string, string, error) {
	var channelID, messageID string
	err := r.db.QueryRowContext(ctx, `
SELECT channel_id, message_id FROM queue_messages WHERE league_id = $1
`, leagueID).Scan(&channelID, &messageID)
	return channelID, messageID, notFound(err, "queue message "+leagueID)
}

func (r *UIRepo) SaveQueueMessage(ctx context.Context, leagueID, channelID, messageID string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO queue_messages (league_id, channel_id, message_id)
VALUES ($1,$2,$3)
ON CONFLICT (league_id) DO UPDATE SET
  channel_id = EXCLUDED.channel_id,
  message_id = EXCLUDED.message_id,
  updated_at = now()
`, leagueID, channelID, messageID)
	return err
}
