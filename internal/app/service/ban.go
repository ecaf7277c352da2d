package service

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

var durationPart = regexp.MustCompile(`(\d+)([wdhm])`)

// MaxBanDuration is the longest temporary ban. Use a permanent ban beyond it.
const MaxBanDuration = 10 * 365 * 24 * time.Hour

// ParseBanDuration reads durations like "1w", "2d12h" or "30m". Empty means
// permanent and returns zero.
func ParseBanDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.ReplaceAll(s, " ", ""))
	if s == "" {
		return 0, nil
	}
	parts := durationPart.FindAllStringSubmatch(s, -1)
	consumed := 0
	var d time.Duration
	for _, p := range parts {
		consumed += len(p[0])
		n, err := strconv.Atoi(p[1])
		if err != nil {
			return 0, errors.Wrapf(err, "duration %q", s)
		}
		unit := time.Minute
		switch p[2] {
		case "w":
			unit = 7 * 24 * time.Hour
		case "d":
			unit = 24 * time.Hour
		case "h":
			unit = time.Hour
		}
		if time.Duration(n) > (MaxBanDuration-d)/unit {
			return 0, errors.Errorf("duration %q exceeds %d days, ban permanently instead", s, MaxBanDuration/(24*time.Hour))
		}
		d += time.Duration(n) * unit
	}
	if consumed != len(s) || d <= 0 {
		return 0, errors.Errorf("bad duration %q, use e.g. 1w2d3h4m", s)
	}
	return d, nil
}

// BanService bans users from queueing in a guild.
type BanService struct {
	log      *zap.Logger
	bans     BanStore
	guilds   GuildStore
	leagues  LeagueStore
	queue    *QueueService
	platform Platform
	now      func() time.Time
}

func NewBanService(bans BanStore, guilds GuildStore, leagues LeagueStore, queue *QueueService, platform Platform, log *zap.Logger) *BanService {
	return &BanService{log: log, bans: bans, guilds: guilds, leagues: leagues, queue: queue, platform: platform, now: time.Now}
}

// Ban stores the ban, gives the banned role and pulls the user out of any
// queue. A zero d bans permanently.
func (s *BanService) Ban(ctx context.Context, guildID, userID string, d time.Duration) (domain.Ban, error) {
	b := domain.Ban{GuildID: guildID, UserID: userID}
	if d > 0 {
		until := s.now().Add(d)
		b.UnbanAt = &until
	}
	if err := s.bans.SaveBan(ctx, b); err != nil {
		return b, errors.Wrap(err, "save ban")
	}
	s.setRole(ctx, guildID, userID, true)

	leagueID, ok, err := s.queue.queue.QueuedIn(ctx, userID)
	if err != nil {
		return b, errors.Wrap(err, "check queued")
	}
	if ok {
		league, err := s.leagues.GetLeague(ctx, leagueID)
		if err != nil {
			return b, errors.Wrap(err, "load league")
		}
		if _, err := s.queue.Remove(ctx, league, userID); err != nil {
			s.log.Warn("remove banned player", zap.String("user_id", userID), zap.Error(err))
		}
	}
	s.log.Info("ban", zap.String("user_id", userID), zap.Duration("for", d))
	return b, nil
}

// Unban reports whether a ban existed.
func (s *BanService) Unban(ctx context.Context, guildID, userID string) (bool, error) {
	ok, err := s.bans.DeleteBan(ctx, guildID, userID)
	if err != nil {
		return false, errors.Wrap(err, "delete ban")
	}
	s.setRole(ctx, guildID, userID, false)
	return ok, nil
}

// Sweep lifts every ban that has run out.
func (s *BanService) Sweep(ctx context.Context) (int, error) {
	expired, err := s.bans.ExpiredBans(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "expired bans")
	}
	n := 0
	for _, b := range expired {
		ok, err := s.Unban(ctx, b.GuildID, b.UserID)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	if n > 0 {
		s.log.Info("bans lifted", zap.Int("count", n))
	}
	return n, nil
}

// Run sweeps until ctx is done.
func (s *BanService) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Warn("ban sweep", zap.Error(err))
			}
		}
	}
}

func (s *BanService) setRole(ctx context.Context, guildID, userID string, add bool) {
	g, err := s.guilds.GetGuild(ctx, guildID)
	if err != nil || g.BannedRoleID == "" {
		return
	}
	if add {
		err = s.platform.AddRole(ctx, guildID, userID, g.BannedRoleID)
	} else {
		err = s.platform.RemoveRole(ctx, guildID, userID, g.BannedRoleID)
	}
	if err != nil {
		s.log.Warn("banned role", zap.String("user_id", userID), zap.Bool("add", add), zap.Error(err))
	}
}
