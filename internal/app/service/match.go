package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
	"github.com/jose-valero/pug-league-bot/internal/draft"
)

// Outcome of a match attempt.
type Outcome int

const (
	OutcomeAborted Outcome = iota
	OutcomeStarted
	OutcomeNotReady
	OutcomeNoServer
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeNotReady:
		return "not_ready"
	case OutcomeNoServer:
		return "no_server"
	}
	return "aborted"
}

// MatchService turns a full queue into a running match and tears matches
// down once they end.
type MatchService struct {
	log        *zap.Logger
	api        LeagueAPI
	profiles   ProfileSource
	leagues    LeagueStore
	queue      QueueStore
	spectators SpectatorStore
	store      MatchStore
	catalog    MapCatalog
	platform   Platform
	runner     *draft.Runner
	metrics    Recorder
	now        func() time.Time

	mu     sync.Mutex
	active map[string]domain.ActiveMatch
	ending map[string]bool
}

type MatchDeps struct {
	API        LeagueAPI
	Profiles   ProfileSource
	Leagues    LeagueStore
	Queue      QueueStore
	Spectators SpectatorStore
	Matches    MatchStore
	Catalog    MapCatalog
	Platform   Platform
	Runner     *draft.Runner
	Metrics    Recorder
}

func NewMatchService(d MatchDeps, log *zap.Logger) *MatchService {
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	if d.Profiles == nil {
		d.Profiles = d.API
	}
	return &MatchService{
		log:        log,
		api:        d.API,
		profiles:   d.Profiles,
		leagues:    d.Leagues,
		queue:      d.Queue,
		spectators: d.Spectators,
		store:      d.Matches,
		catalog:    d.Catalog,
		platform:   d.Platform,
		runner:     d.Runner,
		metrics:    d.Metrics,
		now:        time.Now,
		active:     map[string]domain.ActiveMatch{},
		ending:     map[string]bool{},
	}
}

// Start runs ready check, team formation, map selection and server
// allocation for members. NotReady and NoServer are outcomes, not errors.
func (m *MatchService) Start(ctx context.Context, league domain.League, members []string) (Outcome, error) {
	log := m.log.With(zap.String("league_id", league.ID))
	ps := m.participants(ctx, league.GuildID, members)
	byID := lo.KeyBy(ps, func(p draft.Participant) string { return p.ID })

	msgID, err := m.platform.SendMessage(ctx, league.TextQueueID, mentions(members),
		draft.Embed("Queue is full", "Get ready"))
	if err != nil {
		m.metrics.MatchFailed(league.ID, "platform")
		return OutcomeAborted, errors.Wrap(err, "send match message")
	}
	msg := draft.Message{ChannelID: league.TextQueueID, ID: msgID}

	readied, err := m.runner.Ready(ctx, league.ID, msg, ps)
	if err != nil {
		m.metrics.MatchFailed(league.ID, "ready")
		return OutcomeAborted, errors.Wrap(err, "ready check")
	}
	m.clearReactions(ctx, msg)
	if missing := lo.Without(members, readied...); len(missing) > 0 {
		m.evict(ctx, league, missing)
		m.edit(ctx, msg, draft.Embed("Not everyone readied", mentions(missing)+" removed from the queue"))
		m.metrics.ReadyFailed(league.ID)
		log.Info("ready check failed", zap.Strings("missing", missing))
		return OutcomeNotReady, nil
	}

	one, two, err := m.formTeams(ctx, league, msg, ps)
	if err != nil {
		m.fail(ctx, league, msg, "teams", err)
		return OutcomeAborted, errors.Wrap(err, "form teams")
	}
	m.clearReactions(ctx, msg)

	pool, err := m.catalog.Resolve(league.MapPool)
	if err != nil {
		m.fail(ctx, league, msg, "maps", err)
		return OutcomeAborted, errors.Wrap(err, "resolve map pool")
	}
	maps, err := m.pickMaps(ctx, league, msg, pool, ps, byID[one[0]], byID[two[0]])
	if err != nil {
		m.fail(ctx, league, msg, "maps", err)
		return OutcomeAborted, errors.Wrap(err, "select maps")
	}
	m.clearReactions(ctx, msg)

	spect, err := m.spectators.Spectators(ctx, league.ID)
	if err != nil {
		log.Warn("load spectators", zap.Error(err))
	}
	mapNames := lo.Map(maps, func(mp domain.Map, _ int) string { return mp.DevName })

	m.edit(ctx, msg, teamsEmbed("Fetching server", byID, one, two, maps, ""))
	match, err := m.api.StartMatch(ctx, domain.MatchRequest{
		LeagueID:   league.ID,
		TeamOne:    one,
		TeamTwo:    two,
		Spectators: spect,
		Maps:       mapNames,
	})
	if err != nil {
		log.Warn("no server", zap.Error(err))
		m.edit(ctx, msg, teamsEmbed("No servers available", byID, one, two, maps, "Try again later"))
		m.metrics.MatchFailed(league.ID, "no_server")
		return OutcomeNoServer, nil
	}

	m.edit(ctx, msg, teamsEmbed("Server ready", byID, one, two, maps, connectText(match)))

	am := domain.ActiveMatch{
		MatchID:   match.ID,
		LeagueID:  league.ID,
		GuildID:   league.GuildID,
		TeamOne:   one,
		TeamTwo:   two,
		Maps:      mapNames,
		CreatedAt: m.now(),
	}
	if err := m.createChannels(ctx, league, &am, byID); err != nil {
		log.Error("create match channels", zap.String("match_id", match.ID), zap.Error(err))
	}
	m.register(ctx, am)
	m.metrics.MatchStarted(league.ID)
	log.Info("match started", zap.String("match_id", match.ID), zap.Strings("maps", mapNames))
	return OutcomeStarted, nil
}

func (m *MatchService) participants(ctx context.Context, guildID string, ids []string) []draft.Participant {
	profs, err := m.profiles.GetPlayers(ctx, ids)
	if err != nil {
		m.log.Warn("load profiles", zap.Error(err))
	}
	byID := lo.KeyBy(profs, func(p domain.PlayerProfile) string { return p.DiscordID })
	out := make([]draft.Participant, 0, len(ids))
	for _, id := range ids {
		name := m.platform.DisplayName(guildID, id)
		if name == "" {
			name = id
		}
		out = append(out, draft.Participant{ID: id, Name: name, Profile: byID[id]})
	}
	return out
}

func (m *MatchService) evict(ctx context.Context, league domain.League, ids []string) {
	if _, err := m.queue.Dequeue(ctx, league.ID, ids...); err != nil {
		m.log.Error("evict unready", zap.Error(err))
	}
	for _, id := range ids {
		if m.platform.VoiceChannelOf(league.GuildID, id) != league.VoiceLobbyID {
			continue
		}
		if err := m.platform.MoveMember(ctx, league.GuildID, id, league.VoicePrelobbyID); err != nil {
			m.log.Warn("move unready", zap.String("user_id", id), zap.Error(err))
		}
	}
}

func (m *MatchService) formTeams(ctx context.Context, league domain.League, msg draft.Message, ps []draft.Participant) ([]string, []string, error) {
	rng := m.runner.Rand()
	if len(ps) == 2 {
		one, two := draft.RandomSplit(ps, rng)
		return one, two, nil
	}
	switch league.TeamMethod {
	case domain.TeamRandom:
		one, two := draft.RandomSplit(ps, rng)
		return one, two, nil
	case domain.TeamAutobalance:
		return draft.Autobalance(ps)
	case domain.TeamCaptains:
		return m.runner.DraftTeams(ctx, league.ID, msg, ps, league.CaptainMethod)
	}
	return nil, nil, errors.Wrapf(domain.ErrUnknownMethod, "team method %q", league.TeamMethod)
}

func (m *MatchService) pickMaps(ctx context.Context, league domain.League, msg draft.Message, pool []domain.Map, ps []draft.Participant, capOne, capTwo draft.Participant) ([]domain.Map, error) {
	switch league.MapMethod {
	case domain.MapCaptains:
		n := 1
		if league.MatchTypeVote {
			var err error
			n, err = m.runner.MatchType(ctx, league.ID, msg, []string{capOne.ID, capTwo.ID}, min(draft.MaxMatchType, len(pool)-1))
			if err != nil {
				return nil, err
			}
			m.clearReactions(ctx, msg)
		}
		return m.runner.Veto(ctx, league.ID, msg, pool, capOne, capTwo, n)
	case domain.MapVote:
		mp, err := m.runner.VoteMap(ctx, league.ID, msg, pool, ps)
		if err != nil {
			return nil, err
		}
		return []domain.Map{mp}, nil
	case domain.MapRandom:
		return []domain.Map{pool[m.runner.Rand().IntN(len(pool))]}, nil
	}
	return nil, errors.Wrapf(domain.ErrUnknownMethod, "map method %q", league.MapMethod)
}

// createChannels opens the match category with one voice channel per team
// and moves every player in. @everyone is denied connect on both channels.
func (m *MatchService) createChannels(ctx context.Context, league domain.League, am *domain.ActiveMatch, byID map[string]draft.Participant) error {
	catID, err := m.platform.CreateCategory(ctx, league.GuildID, "Match "+am.MatchID)
	if err != nil {
		return errors.Wrap(err, "create category")
	}
	am.CategoryID = catID

	for i, roster := range [][]string{am.TeamOne, am.TeamTwo} {
		chID, err := m.platform.CreateVoiceChannel(ctx, league.GuildID, catID, "Team "+byID[roster[0]].Name, len(roster))
		if err != nil {
			return errors.Wrapf(err, "create team %d channel", i+1)
		}
		if i == 0 {
			am.TeamOneChanID = chID
		} else {
			am.TeamTwoChanID = chID
		}
		if err := m.platform.SetRoleConnect(ctx, chID, league.GuildID, false); err != nil {
			return errors.Wrap(err, "lock team channel")
		}
		for _, id := range roster {
			if err := m.platform.SetMemberConnect(ctx, chID, id, true); err != nil {
				m.log.Warn("allow team channel", zap.String("user_id", id), zap.Error(err))
			}
			if err := m.platform.SetMemberConnect(ctx, league.VoiceLobbyID, id, false); err != nil {
				m.log.Warn("deny lobby", zap.String("user_id", id), zap.Error(err))
			}
			if m.platform.VoiceChannelOf(league.GuildID, id) == "" {
				continue
			}
			if err := m.platform.MoveMember(ctx, league.GuildID, id, chID); err != nil {
				m.log.Warn("move to team channel", zap.String("user_id", id), zap.Error(err))
			}
		}
	}
	return nil
}

func (m *MatchService) register(ctx context.Context, am domain.ActiveMatch) {
	m.mu.Lock()
	m.active[am.MatchID] = am
	n := len(m.active)
	m.mu.Unlock()
	m.metrics.SetActiveMatches(n)
	if err := m.store.SaveMatch(ctx, am); err != nil {
		m.log.Error("save match", zap.String("match_id", am.MatchID), zap.Error(err))
	}
}

// Restore loads the matches that were running before a restart.
func (m *MatchService) Restore(ctx context.Context) error {
	ms, err := m.store.ListMatches(ctx)
	if err != nil {
		return errors.Wrap(err, "list matches")
	}
	m.mu.Lock()
	for _, am := range ms {
		m.active[am.MatchID] = am
	}
	n := len(m.active)
	m.mu.Unlock()
	m.metrics.SetActiveMatches(n)
	return nil
}

// InMatch reports whether userID plays in a running match.
func (m *MatchService) InMatch(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, am := range m.active {
		if am.Has(userID) {
			return true
		}
	}
	return false
}

// Active lists the running matches of a league, oldest first.
func (m *MatchService) Active(leagueID string) []domain.ActiveMatch {
	m.mu.Lock()
	out := lo.Filter(lo.Values(m.active), func(am domain.ActiveMatch, _ int) bool { return am.LeagueID == leagueID })
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b domain.ActiveMatch) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func (m *MatchService) activeIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Keys(m.active)
}

// Reconcile asks the league API which matches are over and tears them down.
func (m *MatchService) Reconcile(ctx context.Context) error {
	ids := m.activeIDs()
	if len(ids) == 0 {
		return nil
	}
	live, err := m.api.MatchesStatus(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "matches status")
	}
	for _, id := range ids {
		if running, ok := live[id]; ok && !running {
			if _, err := m.Teardown(ctx, id); err != nil {
				m.log.Error("teardown", zap.String("match_id", id), zap.Error(err))
			}
		}
	}
	return nil
}

// Run polls Reconcile until ctx is done.
func (m *MatchService) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := m.Reconcile(ctx); err != nil {
				m.log.Warn("reconcile matches", zap.Error(err))
			}
		}
	}
}

// Ended is called when the league reports a match finished.
func (m *MatchService) Ended(ctx context.Context, matchID string) {
	ok, err := m.Teardown(ctx, matchID)
	if err != nil {
		m.log.Error("teardown", zap.String("match_id", matchID), zap.Error(err))
		return
	}
	if ok {
		m.log.Info("match ended", zap.String("match_id", matchID))
	}
}

// ForceEnd stops a running match of the league.
func (m *MatchService) ForceEnd(ctx context.Context, leagueID, matchID string) (bool, error) {
	m.mu.Lock()
	am, ok := m.active[matchID]
	m.mu.Unlock()
	if !ok || am.LeagueID != leagueID {
		return false, nil
	}
	if err := m.api.EndMatch(ctx, matchID); err != nil {
		return false, errors.Wrap(err, "end match")
	}
	return m.Teardown(ctx, matchID)
}

// Teardown evacuates the match channels to the pre-lobby and only then
// deletes them. Runs at most once per match; a teardown that fails before
// the channels are gone leaves the match active so it can be retried.
func (m *MatchService) Teardown(ctx context.Context, matchID string) (bool, error) {
	m.mu.Lock()
	am, ok := m.active[matchID]
	if !ok || m.ending[matchID] {
		m.mu.Unlock()
		return false, nil
	}
	m.ending[matchID] = true
	m.mu.Unlock()

	var evacuated bool
	defer func() {
		m.mu.Lock()
		if evacuated {
			delete(m.active, matchID)
		}
		delete(m.ending, matchID)
		n := len(m.active)
		m.mu.Unlock()
		m.metrics.SetActiveMatches(n)
	}()

	var lobby, prelobby string
	league, err := m.leagues.GetLeague(ctx, am.LeagueID)
	switch {
	case err == nil:
		lobby, prelobby = league.VoiceLobbyID, league.VoicePrelobbyID
	case !errors.Is(err, domain.ErrNotFound):
		return false, errors.Wrap(err, "load league")
	}

	if lobby != "" {
		for _, id := range am.Players() {
			if err := m.platform.ClearMemberOverride(ctx, lobby, id); err != nil {
				m.log.Warn("clear lobby override", zap.String("user_id", id), zap.Error(err))
			}
		}
	}
	for _, ch := range []string{am.TeamOneChanID, am.TeamTwoChanID} {
		if ch == "" {
			continue
		}
		for _, id := range m.platform.VoiceMembers(am.GuildID, ch) {
			if err := m.platform.MoveMember(ctx, am.GuildID, id, prelobby); err != nil {
				m.log.Warn("evacuate match channel", zap.String("user_id", id), zap.Error(err))
			}
		}
	}
	for _, ch := range []string{am.TeamTwoChanID, am.TeamOneChanID, am.CategoryID} {
		if ch == "" {
			continue
		}
		if err := m.platform.DeleteChannel(ctx, ch); err != nil {
			m.log.Warn("delete match channel", zap.String("channel_id", ch), zap.Error(err))
		}
	}
	evacuated = true
	if err := m.store.DeleteMatch(ctx, matchID); err != nil {
		return true, errors.Wrap(err, "delete match")
	}
	return true, nil
}

func (m *MatchService) fail(ctx context.Context, league domain.League, msg draft.Message, reason string, err error) {
	m.metrics.MatchFailed(league.ID, reason)
	m.edit(ctx, msg, draft.Embed("Match aborted", err.Error()))
}

func (m *MatchService) edit(ctx context.Context, msg draft.Message, e *discordgo.MessageEmbed) {
	if err := m.platform.EditEmbed(ctx, msg.ChannelID, msg.ID, e); err != nil {
		m.log.Warn("edit match message", zap.Error(err))
	}
}

func (m *MatchService) clearReactions(ctx context.Context, msg draft.Message) {
	if err := m.platform.ClearReactions(ctx, msg.ChannelID, msg.ID); err != nil {
		m.log.Warn("clear reactions", zap.Error(err))
	}
}

func teamsEmbed(title string, byID map[string]draft.Participant, one, two []string, maps []domain.Map, desc string) *discordgo.MessageEmbed {
	e := draft.Embed(title, desc)
	e.Fields = draft.TeamsFields(byID, one, two)
	names := lo.Map(maps, func(mp domain.Map, _ int) string { return mp.Emoji + " " + mp.Name })
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Maps", Value: strings.Join(names, "\n")})
	if len(maps) == 1 && maps[0].ImageURL != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: maps[0].ImageURL}
	}
	return e
}

func connectText(m domain.Match) string {
	var b strings.Builder
	if m.ConnectURL != "" {
		fmt.Fprintf(&b, "Connect: %s\n", m.ConnectURL)
	}
	if m.ConnectCommand != "" {
		fmt.Fprintf(&b, "`%s`\n", m.ConnectCommand)
	}
	if m.PageURL != "" {
		fmt.Fprintf(&b, "Match page: %s", m.PageURL)
	}
	return b.String()
}

func mentions(ids []string) string {
	return strings.Join(lo.Map(ids, func(id string, _ int) string { return "<@" + id + ">" }), " ")
}
