package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

const (
	defaultCapacity = 10
	defaultRegion   = "NA"
)

var ErrLeagueBusy = errors.New("league has a match starting or running")

// LeagueService creates, configures and deletes leagues.
type LeagueService struct {
	log      *zap.Logger
	leagues  LeagueStore
	guilds   GuildStore
	queue    *QueueService
	matches  *MatchService
	platform Platform
	catalog  MapCatalog
	pool     []string
}

func NewLeagueService(leagues LeagueStore, guilds GuildStore, queue *QueueService, matches *MatchService, platform Platform, catalog MapCatalog, defaultPool []string, log *zap.Logger) *LeagueService {
	return &LeagueService{
		log:      log,
		leagues:  leagues,
		guilds:   guilds,
		queue:    queue,
		matches:  matches,
		platform: platform,
		catalog:  catalog,
		pool:     defaultPool,
	}
}

// Create builds the channel group of a new league: category, PUG role,
// queue and commands text channels, lobby and pre-lobby voice channels.
func (s *LeagueService) Create(ctx context.Context, guildID, name string) (domain.League, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.League{}, errors.New("league name is empty")
	}
	if err := s.ensureGuild(ctx, guildID); err != nil {
		return domain.League{}, err
	}

	l := domain.League{
		GuildID:       guildID,
		Name:          name,
		Region:        defaultRegion,
		Capacity:      defaultCapacity,
		TeamMethod:    domain.TeamCaptains,
		CaptainMethod: domain.CaptainVolunteer,
		MapMethod:     domain.MapCaptains,
		MapPool:       slices.Clone(s.pool),
	}
	var err error
	if l.PugRoleID, err = s.platform.CreateRole(ctx, guildID, name+" PUG"); err != nil {
		return l, errors.Wrap(err, "create role")
	}
	if l.ID, err = s.platform.CreateCategory(ctx, guildID, name); err != nil {
		return l, errors.Wrap(err, "create category")
	}
	if l.TextQueueID, err = s.platform.CreateTextChannel(ctx, guildID, l.ID, "queue"); err != nil {
		return l, errors.Wrap(err, "create queue channel")
	}
	if l.TextCommandsID, err = s.platform.CreateTextChannel(ctx, guildID, l.ID, "commands"); err != nil {
		return l, errors.Wrap(err, "create commands channel")
	}
	if l.VoiceLobbyID, err = s.platform.CreateVoiceChannel(ctx, guildID, l.ID, "Lobby", l.Capacity); err != nil {
		return l, errors.Wrap(err, "create lobby")
	}
	if l.VoicePrelobbyID, err = s.platform.CreateVoiceChannel(ctx, guildID, l.ID, "Pre-Lobby", 0); err != nil {
		return l, errors.Wrap(err, "create pre-lobby")
	}

	if err := s.platform.SetRoleSend(ctx, l.TextQueueID, guildID, false); err != nil {
		return l, errors.Wrap(err, "lock queue channel")
	}
	if err := s.platform.SetRoleConnect(ctx, l.VoiceLobbyID, guildID, false); err != nil {
		return l, errors.Wrap(err, "lock lobby")
	}
	if err := s.platform.SetRoleConnect(ctx, l.VoiceLobbyID, l.PugRoleID, true); err != nil {
		return l, errors.Wrap(err, "open lobby to role")
	}

	if err := s.leagues.SaveLeague(ctx, l); err != nil {
		return l, errors.Wrap(err, "save league")
	}
	s.log.Info("league created", zap.String("league_id", l.ID), zap.String("name", name))
	return l, nil
}

func (s *LeagueService) ensureGuild(ctx context.Context, guildID string) error {
	_, err := s.guilds.GetGuild(ctx, guildID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.guilds.SaveGuild(ctx, domain.Guild{ID: guildID})
	}
	return err
}

// Delete removes the league and its channels. Refused while a match of the
// league is starting or running.
func (s *LeagueService) Delete(ctx context.Context, league domain.League) error {
	if s.queue.State(league.ID) == domain.LobbyBursting || len(s.matches.Active(league.ID)) > 0 {
		return ErrLeagueBusy
	}
	if err := s.leagues.DeleteLeague(ctx, league.ID); err != nil {
		return errors.Wrap(err, "delete league")
	}
	for _, ch := range []string{league.VoicePrelobbyID, league.VoiceLobbyID, league.TextCommandsID, league.TextQueueID, league.ID} {
		if ch == "" {
			continue
		}
		if err := s.platform.DeleteChannel(ctx, ch); err != nil {
			s.log.Warn("delete league channel", zap.String("channel_id", ch), zap.Error(err))
		}
	}
	if league.PugRoleID != "" {
		if err := s.platform.DeleteRole(ctx, league.GuildID, league.PugRoleID); err != nil {
			s.log.Warn("delete league role", zap.Error(err))
		}
	}
	s.log.Info("league deleted", zap.String("league_id", league.ID))
	return nil
}

// SetCapacity empties the queue, then stores the new capacity and lobby limit.
func (s *LeagueService) SetCapacity(ctx context.Context, league domain.League, n int) (domain.League, error) {
	league.Capacity = n
	if err := league.Validate(); err != nil {
		return league, err
	}
	if _, err := s.queue.Empty(ctx, league); err != nil {
		return league, err
	}
	if err := s.leagues.SaveLeague(ctx, league); err != nil {
		return league, errors.Wrap(err, "save league")
	}
	if err := s.platform.SetUserLimit(ctx, league.VoiceLobbyID, n); err != nil {
		s.log.Warn("set lobby limit", zap.Error(err))
	}
	return league, nil
}

func (s *LeagueService) SetTeamMethod(ctx context.Context, league domain.League, v string) (domain.League, error) {
	m, err := domain.ParseTeamMethod(v)
	if err != nil {
		return league, err
	}
	league.TeamMethod = m
	return league, s.save(ctx, league)
}

func (s *LeagueService) SetCaptainMethod(ctx context.Context, league domain.League, v string) (domain.League, error) {
	m, err := domain.ParseCaptainMethod(v)
	if err != nil {
		return league, err
	}
	league.CaptainMethod = m
	return league, s.save(ctx, league)
}

func (s *LeagueService) SetMapMethod(ctx context.Context, league domain.League, v string) (domain.League, error) {
	m, err := domain.ParseMapMethod(v)
	if err != nil {
		return league, err
	}
	league.MapMethod = m
	return league, s.save(ctx, league)
}

func (s *LeagueService) SetMatchTypeVote(ctx context.Context, league domain.League, on bool) (domain.League, error) {
	league.MatchTypeVote = on
	return league, s.save(ctx, league)
}

func (s *LeagueService) SetRegion(ctx context.Context, league domain.League, region string) (domain.League, error) {
	league.Region = strings.ToUpper(strings.TrimSpace(region))
	return league, s.save(ctx, league)
}

// EditMapPool applies "+map" and "-map" tokens. Unknown maps fail the whole
// edit and the pool must keep domain.MinMapPool maps.
func (s *LeagueService) EditMapPool(ctx context.Context, league domain.League, tokens []string) (domain.League, error) {
	pool := slices.Clone(league.MapPool)
	for _, tok := range tokens {
		if len(tok) < 2 || (tok[0] != '+' && tok[0] != '-') {
			return league, errors.Errorf("bad map token %q, use +map or -map", tok)
		}
		mp, ok := s.catalog.Get(tok[1:])
		if !ok {
			return league, errors.Errorf("unknown map %q", tok[1:])
		}
		if tok[0] == '+' {
			if !slices.Contains(pool, mp.DevName) {
				pool = append(pool, mp.DevName)
			}
			continue
		}
		pool = lo.Without(pool, mp.DevName)
	}
	league.MapPool = pool
	return league, s.save(ctx, league)
}

func (s *LeagueService) save(ctx context.Context, league domain.League) error {
	if err := league.Validate(); err != nil {
		return err
	}
	return errors.Wrap(s.leagues.SaveLeague(ctx, league), "save league")
}

// Describe renders the league configuration.
func (s *LeagueService) Describe(league domain.League) *discordgo.MessageEmbed {
	maps := lo.Map(league.MapPool, func(dev string, _ int) string {
		if mp, ok := s.catalog.Get(dev); ok {
			return mp.Emoji + " " + mp.Name
		}
		return dev
	})
	field := func(name, value string) *discordgo.MessageEmbedField {
		return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: true}
	}
	return &discordgo.MessageEmbed{
		Title: league.Name,
		Color: 0x00ffff,
		Fields: []*discordgo.MessageEmbedField{
			field("Capacity", fmt.Sprint(league.Capacity)),
			field("Region", league.Region),
			field("Teams", string(league.TeamMethod)),
			field("Captains", string(league.CaptainMethod)),
			field("Maps", string(league.MapMethod)),
			field("Match type vote", fmt.Sprint(league.MatchTypeVote)),
			{Name: "Map pool", Value: strings.Join(maps, "\n")},
		},
	}
}
