package storage

import (
	"context"
	"database/sql"

	pq "github.com/lib/pq"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

type LeagueRepo struct{ db *sql.DB }

func NewLeagueRepo(db *sql.DB) *LeagueRepo { return &LeagueRepo{db: db} }

const leagueCols = `id, guild_id, name, region, capacity, team_method, captain_method, map_method,
       match_type_vote, map_pool, text_queue_id, text_commands_id, voice_lobby_id,
       voice_prelobby_id, pug_role_id`

type scanner interface{ Scan(dest ...any) error }

func scanLeague(row scanner) (domain.League, error) {
	var l domain.League
	var team, captain, maps string
	err := row.Scan(&l.ID, &l.GuildID, &l.Name, &l.Region, &l.Capacity, &team, &captain, &maps,
		&l.MatchTypeVote, pq.Array(&l.MapPool), &l.TextQueueID, &l.TextCommandsID, &l.VoiceLobbyID,
		&l.VoicePrelobbyID, &l.PugRoleID)
	l.TeamMethod = domain.TeamMethod(team)
	l.CaptainMethod = domain.CaptainMethod(captain)
	l.MapMethod = domain.MapMethod(maps)
	return l, err
}

func (r *LeagueRepo) GetLeague(ctx context.Context, id string) (domain.League, error) {
	l, err := scanLeague(r.db.QueryRowContext(ctx, `SELECT `+leagueCols+` FROM leagues WHERE id = $1`, id))
	return l, notFound(err, "league "+id)
}

// LeagueByLobby finds the league whose lobby voice channel is channelID.
func (r *LeagueRepo) LeagueByLobby(ctx context.Context, channelID string) (domain.League, error) {
	l, err := scanLeague(r.db.QueryRowContext(ctx, `SELECT `+leagueCols+` FROM leagues WHERE voice_lobby_id = $1`, channelID))
	return l, notFound(err, "lobby "+channelID)
}

func (r *LeagueRepo) ListLeagues(ctx context.Context, guildID string) ([]domain.League, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+leagueCols+` FROM leagues WHERE guild_id = $1 ORDER BY created_at`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.League
	for rows.Next() {
		l, err := scanLeague(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *LeagueRepo) SaveLeague(ctx context.Context, l domain.League) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO leagues (id, guild_id, name, region, capacity, team_method, captain_method, map_method,
                     match_type_vote, map_pool, text_queue_id, text_commands_id, voice_lobby_id,
                     voice_prelobby_id, pug_role_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  name              = EXCLUDED.name,
  region            = EXCLUDED.region,
  capacity          = EXCLUDED.capacity,
  team_method       = EXCLUDED.team_method,
  captain_method    = EXCLUDED.captain_method,
  map_method        = EXCLUDED.map_method,
  match_type_vote   = EXCLUDED.match_type_vote,
  map_pool          = EXCLUDED.map_pool,
  text_queue_id     = EXCLUDED.text_queue_id,
  text_commands_id  = EXCLUDED.text_commands_id,
  voice_lobby_id    = EXCLUDED.voice_lobby_id,
  voice_prelobby_id = EXCLUDED.voice_prelobby_id,
  pug_role_id       = EXCLUDED.pug_role_id,
  updated_at        = now()
`, l.ID, l.GuildID, l.Name, l.Region, l.Capacity, string(l.TeamMethod), string(l.CaptainMethod), string(l.MapMethod),
		l.MatchTypeVote, pq.Array(l.MapPool), l.TextQueueID, l.TextCommandsID, l.VoiceLobbyID,
		l.VoicePrelobbyID, l.PugRoleID)
	return err
}

// DeleteLeague cascades to queue, spectators, matches and the queue message.
func (r *LeagueRepo) DeleteLeague(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM leagues WHERE id = $1`, id)
	return err
}
