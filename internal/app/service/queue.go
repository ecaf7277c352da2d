package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

// RejectReason says why a join was refused. Empty means admitted.
type RejectReason string

const (
	RejectNone            RejectReason = ""
	RejectNotLinked       RejectReason = "not_linked"
	RejectCannotVerify    RejectReason = "cannot_verify"
	RejectAlreadyQueued   RejectReason = "already_queued"
	RejectQueuedElsewhere RejectReason = "queued_elsewhere"
	RejectSpectator       RejectReason = "spectator"
	RejectInMatch         RejectReason = "in_match"
	RejectBanned          RejectReason = "banned"
	RejectFull            RejectReason = "queue_full"
	RejectBursting        RejectReason = "bursting"
)

var (
	ErrIllegalTransition = errors.New("illegal lobby transition")
	ErrBursting          = errors.New("league is starting a match")
)

// MatchStarter runs a burst. Implemented by MatchService.
type MatchStarter interface {
	Start(ctx context.Context, league domain.League, members []string) (Outcome, error)
	InMatch(userID string) bool
}

// JoinResult is what happened to a join attempt.
type JoinResult struct {
	Admitted     bool
	Reason       RejectReason
	BanRemaining time.Duration
	BanPermanent bool
	Size         int
	Capacity     int
	Burst        *BurstResult
}

// BurstResult is set when the join filled the queue.
type BurstResult struct {
	Outcome Outcome
	Err     error
}

// Message renders the result for the queue embed title.
func (r JoinResult) Message(name string) string {
	switch r.Reason {
	case RejectNone:
		return fmt.Sprintf("%s joined the queue", name)
	case RejectNotLinked:
		return fmt.Sprintf("%s has not linked an account", name)
	case RejectCannotVerify:
		return fmt.Sprintf("Could not verify %s, try again later", name)
	case RejectAlreadyQueued:
		return fmt.Sprintf("%s is already in this queue", name)
	case RejectQueuedElsewhere:
		return fmt.Sprintf("%s is in another queue", name)
	case RejectSpectator:
		return fmt.Sprintf("%s is a spectator", name)
	case RejectInMatch:
		return fmt.Sprintf("%s is in a match", name)
	case RejectBanned:
		if r.BanPermanent {
			return fmt.Sprintf("%s is banned", name)
		}
		return fmt.Sprintf("%s is banned for %s", name, r.BanRemaining.Round(time.Second))
	case RejectFull:
		return fmt.Sprintf("%s cannot join, queue is full", name)
	case RejectBursting:
		return fmt.Sprintf("%s cannot join, a match is starting", name)
	}
	return string(r.Reason)
}

// LeaveResult is what happened to a leave.
type LeaveResult struct {
	Removed bool
	Ignored bool
	Size    int
}

// QueueService is the admission controller. Joins and leaves of one league
// are serialized. The lobby guard makes a burst own the whole queue until
// the match attempt is over.
type QueueService struct {
	log      *zap.Logger
	leagues  LeagueStore
	queue    QueueStore
	spects   SpectatorStore
	bans     BanStore
	api      LeagueAPI
	matches  MatchStarter
	platform Platform
	display  *QueueDisplay
	metrics  Recorder
	now      func() time.Time

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	states map[string]domain.LobbyState
}

type QueueDeps struct {
	Leagues    LeagueStore
	Queue      QueueStore
	Spectators SpectatorStore
	Bans       BanStore
	API        LeagueAPI
	Matches    MatchStarter
	Platform   Platform
	Display    *QueueDisplay
	Metrics    Recorder
}

func NewQueueService(d QueueDeps, log *zap.Logger) *QueueService {
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	return &QueueService{
		log:      log,
		leagues:  d.Leagues,
		queue:    d.Queue,
		spects:   d.Spectators,
		bans:     d.Bans,
		api:      d.API,
		matches:  d.Matches,
		platform: d.Platform,
		display:  d.Display,
		metrics:  d.Metrics,
		now:      time.Now,
		locks:    map[string]*sync.Mutex{},
		states:   map[string]domain.LobbyState{},
	}
}

func (s *QueueService) lock(leagueID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[leagueID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[leagueID] = l
	}
	return l
}

// State is the league's current guard state.
func (s *QueueService) State(leagueID string) domain.LobbyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[leagueID]
}

func (s *QueueService) transition(leagueID string, to domain.LobbyState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.states[leagueID]
	if !from.CanTransition(to) {
		return errors.Wrapf(ErrIllegalTransition, "%s -> %s", from, to)
	}
	if to == domain.LobbyIdle {
		delete(s.states, leagueID)
	} else {
		s.states[leagueID] = to
	}
	return nil
}

// OnVoiceState handles a member moving between voice channels: the leave
// from the old lobby runs before the join to the new one.
func (s *QueueService) OnVoiceState(ctx context.Context, guildID, userID, before, after string) error {
	if before == after {
		return nil
	}
	if before != "" {
		league, err := s.leagues.LeagueByLobby(ctx, before)
		switch {
		case err == nil:
			if _, err := s.Leave(ctx, league, userID); err != nil {
				return err
			}
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
	}
	if after != "" {
		league, err := s.leagues.LeagueByLobby(ctx, after)
		switch {
		case err == nil:
			if _, err := s.Join(ctx, league, userID); err != nil {
				return err
			}
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
	}
	return nil
}

// Join validates and admits userID. When the join fills the queue it runs
// the burst before returning.
func (s *QueueService) Join(ctx context.Context, league domain.League, userID string) (JoinResult, error) {
	l := s.lock(league.ID)
	l.Lock()
	res, members, err := s.admit(ctx, league, userID)
	l.Unlock()
	if err != nil {
		return res, err
	}

	result := "admitted"
	if !res.Admitted {
		result = string(res.Reason)
	}
	s.metrics.Admission(league.ID, result)
	s.log.Info("join",
		zap.String("league_id", league.ID),
		zap.String("user_id", userID),
		zap.String("result", result),
		zap.Int("size", res.Size),
	)

	if members != nil {
		res.Burst = s.burst(ctx, league, members)
		return res, nil
	}
	s.refresh(ctx, league, res.Message(s.name(league, userID)))
	return res, nil
}

// admit runs under the league lock. It returns the burst members when the
// queue just filled; the guard is then left in Bursting.
func (s *QueueService) admit(ctx context.Context, league domain.League, userID string) (res JoinResult, members []string, err error) {
	res.Capacity = league.Capacity
	if s.State(league.ID) == domain.LobbyBursting {
		res.Reason = RejectBursting
		return res, nil, nil
	}
	if err := s.transition(league.ID, domain.LobbyAdmitting); err != nil {
		return res, nil, err
	}
	bursting := false
	defer func() {
		if !bursting {
			if terr := s.transition(league.ID, domain.LobbyIdle); terr != nil && err == nil {
				err = terr
			}
		}
	}()

	queued, err := s.queue.Queued(ctx, league.ID)
	if err != nil {
		return res, nil, errors.Wrap(err, "list queue")
	}
	res.Size = len(queued)
	if err := s.validate(ctx, league, userID, queued, &res); err != nil || res.Reason != RejectNone {
		return res, nil, err
	}

	ok, err := s.queue.Enqueue(ctx, league.ID, userID)
	if err != nil {
		return res, nil, errors.Wrap(err, "enqueue")
	}
	if !ok {
		res.Reason = RejectQueuedElsewhere
		return res, nil, nil
	}
	res.Admitted = true
	res.Size++

	if res.Size < league.Capacity {
		return res, nil, nil
	}
	if err := s.transition(league.ID, domain.LobbyBursting); err != nil {
		return res, nil, err
	}
	bursting = true
	return res, append(queued, userID), nil
}

func (s *QueueService) validate(ctx context.Context, league domain.League, userID string, queued []string, res *JoinResult) error {
	ban, banned, err := s.bans.GetBan(ctx, league.GuildID, userID)
	if err != nil {
		return errors.Wrap(err, "load ban")
	}
	if now := s.now(); banned && ban.Active(now) {
		res.Reason = RejectBanned
		res.BanPermanent = ban.Permanent()
		res.BanRemaining = ban.Remaining(now)
		return nil
	}

	spect, err := s.spects.IsSpectator(ctx, league.ID, userID)
	if err != nil {
		return errors.Wrap(err, "check spectator")
	}
	if spect {
		res.Reason = RejectSpectator
		return nil
	}

	in, ok, err := s.queue.QueuedIn(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "check queued")
	}
	if ok {
		res.Reason = RejectQueuedElsewhere
		if in == league.ID {
			res.Reason = RejectAlreadyQueued
		}
		return nil
	}

	if len(queued) >= league.Capacity {
		res.Reason = RejectFull
		return nil
	}
	if s.matches.InMatch(userID) {
		res.Reason = RejectInMatch
		return nil
	}

	prof, err := s.api.GetPlayer(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		res.Reason = RejectNotLinked
	case err != nil:
		s.log.Warn("verify player", zap.String("user_id", userID), zap.Error(err))
		res.Reason = RejectCannotVerify
	case prof.InMatch:
		res.Reason = RejectInMatch
	}
	return nil
}

// burst runs the match attempt. Whatever happens the members leave the
// queue, the guard goes back to Idle and the lobbies reopen.
func (s *QueueService) burst(ctx context.Context, league domain.League, members []string) *BurstResult {
	log := s.log.With(zap.String("league_id", league.ID))
	s.metrics.Burst(league.ID)
	log.Info("queue full", zap.Strings("members", members))

	defer func() {
		ctx := context.WithoutCancel(ctx)
		if _, err := s.queue.Dequeue(ctx, league.ID, members...); err != nil {
			log.Error("clear burst", zap.Error(err))
		}
		if err := s.transition(league.ID, domain.LobbyIdle); err != nil {
			log.Error("release guard", zap.Error(err))
		}
		s.restoreLobbies(ctx, league.GuildID)
		s.refresh(ctx, league, "")
	}()

	s.lockLobbies(ctx, league.GuildID)
	if err := s.display.Remove(ctx, league); err != nil {
		log.Warn("remove queue message", zap.Error(err))
	}

	outcome, err := s.matches.Start(ctx, league, members)
	if err != nil {
		log.Error("match start", zap.Stringer("outcome", outcome), zap.Error(err))
	} else {
		log.Info("match attempt done", zap.Stringer("outcome", outcome))
	}
	return &BurstResult{Outcome: outcome, Err: err}
}

func (s *QueueService) lockLobbies(ctx context.Context, guildID string) {
	leagues, err := s.leagues.ListLeagues(ctx, guildID)
	if err != nil {
		s.log.Error("list leagues", zap.Error(err))
		return
	}
	for _, l := range leagues {
		if err := s.platform.SetRoleConnect(ctx, l.VoiceLobbyID, l.PugRoleID, false); err != nil {
			s.log.Warn("lock lobby", zap.String("league_id", l.ID), zap.Error(err))
		}
	}
}

// restoreLobbies reopens every lobby of the guild once no league of it is
// bursting. The last burst to finish does the reopening.
func (s *QueueService) restoreLobbies(ctx context.Context, guildID string) {
	leagues, err := s.leagues.ListLeagues(ctx, guildID)
	if err != nil {
		s.log.Error("list leagues", zap.Error(err))
		return
	}
	if l, ok := lo.Find(leagues, func(l domain.League) bool { return s.State(l.ID) == domain.LobbyBursting }); ok {
		s.log.Debug("lobbies stay locked", zap.String("bursting", l.ID))
		return
	}
	for _, l := range leagues {
		if err := s.platform.SetRoleConnect(ctx, l.VoiceLobbyID, l.PugRoleID, true); err != nil {
			s.log.Warn("unlock lobby", zap.String("league_id", l.ID), zap.Error(err))
		}
	}
}

// Leave removes userID from the league queue. Ignored while bursting.
func (s *QueueService) Leave(ctx context.Context, league domain.League, userID string) (LeaveResult, error) {
	l := s.lock(league.ID)
	l.Lock()
	defer l.Unlock()

	if s.State(league.ID) == domain.LobbyBursting {
		return LeaveResult{Ignored: true}, nil
	}
	removed, err := s.queue.Dequeue(ctx, league.ID, userID)
	if err != nil {
		return LeaveResult{}, errors.Wrap(err, "dequeue")
	}
	res := LeaveResult{Removed: len(removed) > 0}
	queued, err := s.queue.Queued(ctx, league.ID)
	if err != nil {
		return res, errors.Wrap(err, "list queue")
	}
	res.Size = len(queued)

	name := s.name(league, userID)
	title := fmt.Sprintf("%s left the queue", name)
	if !res.Removed {
		title = fmt.Sprintf("%s was not in the queue", name)
	}
	s.refresh(ctx, league, title)
	return res, nil
}

// Queued lists the queue in join order.
func (s *QueueService) Queued(ctx context.Context, league domain.League) ([]string, error) {
	return s.queue.Queued(ctx, league.ID)
}

// Remove takes userID out of the queue and the lobby.
func (s *QueueService) Remove(ctx context.Context, league domain.League, userID string) (bool, error) {
	l := s.lock(league.ID)
	l.Lock()
	defer l.Unlock()

	if s.State(league.ID) == domain.LobbyBursting {
		return false, ErrBursting
	}
	removed, err := s.queue.Dequeue(ctx, league.ID, userID)
	if err != nil {
		return false, err
	}
	if s.platform.VoiceChannelOf(league.GuildID, userID) == league.VoiceLobbyID {
		if err := s.platform.MoveMember(ctx, league.GuildID, userID, league.VoicePrelobbyID); err != nil {
			s.log.Warn("move removed player", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if len(removed) > 0 {
		s.refresh(ctx, league, fmt.Sprintf("%s was removed from the queue", s.name(league, userID)))
	}
	return len(removed) > 0, nil
}

// Empty clears the queue and sends everyone in the lobby to the pre-lobby.
func (s *QueueService) Empty(ctx context.Context, league domain.League) (int, error) {
	l := s.lock(league.ID)
	l.Lock()
	defer l.Unlock()

	if s.State(league.ID) == domain.LobbyBursting {
		return 0, ErrBursting
	}
	cleared, err := s.queue.ClearQueue(ctx, league.ID)
	if err != nil {
		return 0, errors.Wrap(err, "clear queue")
	}
	for _, id := range s.platform.VoiceMembers(league.GuildID, league.VoiceLobbyID) {
		if err := s.platform.MoveMember(ctx, league.GuildID, id, league.VoicePrelobbyID); err != nil {
			s.log.Warn("evacuate lobby", zap.String("user_id", id), zap.Error(err))
		}
	}
	s.refresh(ctx, league, "Queue emptied")
	return len(cleared), nil
}

// Sync reconciles the queue with who sits in the lobby, used after a restart.
func (s *QueueService) Sync(ctx context.Context, league domain.League) error {
	queued, err := s.queue.Queued(ctx, league.ID)
	if err != nil {
		return errors.Wrap(err, "list queue")
	}
	inLobby := s.platform.VoiceMembers(league.GuildID, league.VoiceLobbyID)
	if gone := lo.Without(queued, inLobby...); len(gone) > 0 {
		if _, err := s.queue.Dequeue(ctx, league.ID, gone...); err != nil {
			return errors.Wrap(err, "drop absent players")
		}
	}
	for _, id := range lo.Without(inLobby, queued...) {
		if _, err := s.Join(ctx, league, id); err != nil {
			s.log.Warn("sync lobby", zap.String("user_id", id), zap.Error(err))
		}
	}
	s.refresh(ctx, league, "")
	return nil
}

func (s *QueueService) refresh(ctx context.Context, league domain.League, title string) {
	if err := s.display.Update(ctx, league, title); err != nil {
		s.log.Warn("update queue message", zap.String("league_id", league.ID), zap.Error(err))
	}
}

func (s *QueueService) name(league domain.League, userID string) string {
	if n := s.platform.DisplayName(league.GuildID, userID); n != "" {
		return n
	}
	return "<@" + userID + ">"
}
