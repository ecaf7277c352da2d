package storage

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

// MatchEventsChannel is the NOTIFY channel carrying ids of matches that ended.
const MatchEventsChannel = "match_events"

// OpenPool opens a pgx pool, used for LISTEN and by the lambdas.
func OpenPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, "pgx parse config")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool new")
	}
	return pool, nil
}

// MatchEventListener forwards match-ended notifications to a callback.
type MatchEventListener struct {
	pool    *pgxpool.Pool
	log     *zap.Logger
	backoff time.Duration
}

func NewMatchEventListener(pool *pgxpool.Pool, log *zap.Logger) *MatchEventListener {
	return &MatchEventListener{pool: pool, log: log, backoff: 2 * time.Second}
}

// Listen blocks until ctx ends, reconnecting after connection errors.
func (l *MatchEventListener) Listen(ctx context.Context, onEnded func(ctx context.Context, matchID string)) {
	for {
		err := l.listenOnce(ctx, onEnded)
		if ctx.Err() != nil {
			return
		}
		l.log.Warn("match events listener dropped", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.backoff):
		}
	}
}

func (l *MatchEventListener) listenOnce(ctx context.Context, onEnded func(ctx context.Context, matchID string)) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire")
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{MatchEventsChannel}.Sanitize()); err != nil {
		return errors.Wrap(err, "listen")
	}
	l.log.Info("listening for match events")
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if id := notifiedMatchID(n.Payload); id != "" {
			go onEnded(ctx, id)
		}
	}
}

// notifiedMatchID extracts the match id from a notification payload.
func notifiedMatchID(payload string) string {
	return strings.TrimSpace(payload)
}

// MatchEvents persists webhook deliveries and wakes the bot through NOTIFY.
type MatchEvents struct {
	pool *pgxpool.Pool
}

func NewMatchEvents(pool *pgxpool.Pool) *MatchEvents { return &MatchEvents{pool: pool} }

// Record stores ev once per body. Ended events notify MatchEventsChannel in
// the same transaction. Duplicates report false.
func (m *MatchEvents) Record(ctx context.Context, ev domain.MatchEvent, body []byte) (bool, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return false, errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO webhook_dedup (dedup_key) VALUES ($1) ON CONFLICT DO NOTHING`,
		domain.DedupKey(body))
	if err != nil {
		return false, errors.Wrap(err, "dedup")
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO match_events (match_id, event, payload) VALUES ($1, $2, $3::jsonb)`,
		ev.MatchID, ev.Event, string(body)); err != nil {
		return false, errors.Wrap(err, "insert event")
	}
	if ev.Ended() {
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, MatchEventsChannel, ev.MatchID); err != nil {
			return false, errors.Wrap(err, "notify")
		}
	}
	return true, errors.Wrap(tx.Commit(ctx), "commit")
}

// Prune drops events and dedup keys older than before.
func (m *MatchEvents) Prune(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for _, q := range []string{
		`DELETE FROM match_events WHERE received_at < $1`,
		`DELETE FROM webhook_dedup WHERE received_at < $1`,
	} {
		tag, err := m.pool.Exec(ctx, q, before)
		if err != nil {
			return n, errors.Wrap(err, "prune")
		}
		n += tag.RowsAffected()
	}
	return n, nil
}
