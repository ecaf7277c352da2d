package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
	"github.com/jose-valero/pug-league-bot/internal/draft"
)

// memStore implements every store port in memory.
type memStore struct {
	mu      sync.Mutex
	leagues map[string]domain.League
	guilds  map[string]domain.Guild
	queue   map[string][]string
	spects  map[string][]string
	bans    map[string]domain.Ban
	matches map[string]domain.ActiveMatch
	msgs    map[string][2]string
	maxSeen map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		leagues: map[string]domain.League{},
		guilds:  map[string]domain.Guild{},
		queue:   map[string][]string{},
		spects:  map[string][]string{},
		bans:    map[string]domain.Ban{},
		matches: map[string]domain.ActiveMatch{},
		msgs:    map[string][2]string{},
		maxSeen: map[string]int{},
	}
}

func (s *memStore) GetGuild(_ context.Context, id string) (domain.Guild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[id]
	if !ok {
		return g, domain.ErrNotFound
	}
	return g, nil
}

func (s *memStore) SaveGuild(_ context.Context, g domain.Guild) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[g.ID] = g
	return nil
}

func (s *memStore) GetLeague(_ context.Context, id string) (domain.League, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leagues[id]
	if !ok {
		return l, domain.ErrNotFound
	}
	return l, nil
}

func (s *memStore) LeagueByLobby(_ context.Context, ch string) (domain.League, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leagues {
		if l.VoiceLobbyID == ch {
			return l, nil
		}
	}
	return domain.League{}, domain.ErrNotFound
}

func (s *memStore) ListLeagues(_ context.Context, guildID string) ([]domain.League, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.League
	for _, l := range s.leagues {
		if l.GuildID == guildID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SaveLeague(_ context.Context, l domain.League) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leagues[l.ID] = l
	return nil
}

func (s *memStore) DeleteLeague(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leagues, id)
	delete(s.queue, id)
	delete(s.spects, id)
	return nil
}

func (s *memStore) Queued(_ context.Context, leagueID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.queue[leagueID]), nil
}

func (s *memStore) Enqueue(_ context.Context, leagueID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queue {
		if slices.Contains(q, userID) {
			return false, nil
		}
	}
	s.queue[leagueID] = append(s.queue[leagueID], userID)
	s.maxSeen[leagueID] = max(s.maxSeen[leagueID], len(s.queue[leagueID]))
	return true, nil
}

func (s *memStore) Dequeue(_ context.Context, leagueID string, userIDs ...string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed, kept []string
	for _, id := range s.queue[leagueID] {
		if slices.Contains(userIDs, id) {
			removed = append(removed, id)
		} else {
			kept = append(kept, id)
		}
	}
	s.queue[leagueID] = kept
	return removed, nil
}

func (s *memStore) ClearQueue(_ context.Context, leagueID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue[leagueID]
	delete(s.queue, leagueID)
	return out, nil
}

func (s *memStore) QueuedIn(_ context.Context, userID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for l, q := range s.queue {
		if slices.Contains(q, userID) {
			return l, true, nil
		}
	}
	return "", false, nil
}

func (s *memStore) Spectators(_ context.Context, leagueID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.spects[leagueID]), nil
}

func (s *memStore) AddSpectators(_ context.Context, leagueID string, ids ...string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var added []string
	for _, id := range ids {
		if !slices.Contains(s.spects[leagueID], id) {
			s.spects[leagueID] = append(s.spects[leagueID], id)
			added = append(added, id)
		}
	}
	return added, nil
}

func (s *memStore) RemoveSpectators(_ context.Context, leagueID string, ids ...string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed, kept []string
	for _, id := range s.spects[leagueID] {
		if slices.Contains(ids, id) {
			removed = append(removed, id)
		} else {
			kept = append(kept, id)
		}
	}
	s.spects[leagueID] = kept
	return removed, nil
}

func (s *memStore) IsSpectator(_ context.Context, leagueID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.spects[leagueID], userID), nil
}

func (s *memStore) GetBan(_ context.Context, guildID, userID string) (domain.Ban, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bans[guildID+"/"+userID]
	return b, ok, nil
}

func (s *memStore) SaveBan(_ context.Context, b domain.Ban) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans[b.GuildID+"/"+b.UserID] = b
	return nil
}

func (s *memStore) DeleteBan(_ context.Context, guildID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bans[guildID+"/"+userID]
	delete(s.bans, guildID+"/"+userID)
	return ok, nil
}

func (s *memStore) ExpiredBans(_ context.Context, now time.Time) ([]domain.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ban
	for _, b := range s.bans {
		if !b.Active(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) SaveMatch(_ context.Context, m domain.ActiveMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.MatchID] = m
	return nil
}

func (s *memStore) DeleteMatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, id)
	return nil
}

func (s *memStore) ListMatches(context.Context) ([]domain.ActiveMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ActiveMatch
	for _, m := range s.matches {
		out = append(out, m)
	}
	return out, nil
}

func (s *memStore) QueueMessage(_ context.Context, leagueID string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[leagueID]
	if !ok {
		return "", "", domain.ErrNotFound
	}
	return m[0], m[1], nil
}

func (s *memStore) SaveQueueMessage(_ context.Context, leagueID, ch, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[leagueID] = [2]string{ch, msg}
	return nil
}

func (s *memStore) queued(leagueID string) []string {
	q, _ := s.Queued(context.Background(), leagueID)
	return q
}

type sentMessage struct {
	channelID, id, content, title string
}

// fakePlatform keeps voice positions and an ordered log of side effects.
type fakePlatform struct {
	mu       sync.Mutex
	seq      int
	voice    map[string]string
	sent     []sentMessage
	titles   map[string][]string
	channels map[string]bool
	perms    map[string]bool
	roles    map[string]bool
	dms      map[string]string
	ops      []string
	members  []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		voice:    map[string]string{},
		titles:   map[string][]string{},
		channels: map[string]bool{},
		perms:    map[string]bool{},
		roles:    map[string]bool{},
		dms:      map[string]string{},
	}
}

func (f *fakePlatform) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakePlatform) op(format string, args ...any) {
	f.ops = append(f.ops, fmt.Sprintf(format, args...))
}

func (f *fakePlatform) EditEmbed(_ context.Context, _, msgID string, e *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles[msgID] = append(f.titles[msgID], e.Title)
	return nil
}

func (f *fakePlatform) AddReaction(context.Context, string, string, string) error { return nil }
func (f *fakePlatform) RemoveReaction(context.Context, string, string, string, string) error {
	return nil
}
func (f *fakePlatform) ClearReaction(context.Context, string, string, string) error { return nil }
func (f *fakePlatform) ClearReactions(context.Context, string, string) error        { return nil }

func (f *fakePlatform) SendMessage(_ context.Context, ch, content string, e *discordgo.MessageEmbed) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("msg")
	title := ""
	if e != nil {
		title = e.Title
	}
	f.sent = append(f.sent, sentMessage{channelID: ch, id: id, content: content, title: title})
	return id, nil
}

func (f *fakePlatform) DeleteMessage(_ context.Context, _, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.op("delete-message %s", id)
	return nil
}

func (f *fakePlatform) SendDM(_ context.Context, userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms[userID] = content
	return nil
}

func (f *fakePlatform) DisplayName(_, userID string) string { return "name-" + userID }

func (f *fakePlatform) VoiceChannelOf(_, userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voice[userID]
}

func (f *fakePlatform) VoiceMembers(_, ch string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for u, c := range f.voice {
		if c == ch {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

func (f *fakePlatform) GuildMembers(string) []string { return f.members }

func (f *fakePlatform) MoveMember(_ context.Context, _, userID, ch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.voice[userID] == "" {
		return errors.New("member not in voice")
	}
	f.voice[userID] = ch
	f.op("move %s %s", userID, ch)
	return nil
}

func (f *fakePlatform) create(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID(prefix)
	f.channels[id] = true
	f.op("create %s", id)
	return id
}

func (f *fakePlatform) CreateCategory(context.Context, string, string) (string, error) {
	return f.create("cat"), nil
}

func (f *fakePlatform) CreateTextChannel(context.Context, string, string, string) (string, error) {
	return f.create("text"), nil
}

func (f *fakePlatform) CreateVoiceChannel(context.Context, string, string, string, int) (string, error) {
	return f.create("voice"), nil
}

func (f *fakePlatform) SetUserLimit(_ context.Context, ch string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.op("limit %s %d", ch, n)
	return nil
}

func (f *fakePlatform) DeleteChannel(_ context.Context, ch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for u, c := range f.voice {
		if c == ch {
			return fmt.Errorf("channel %s still holds %s", ch, u)
		}
	}
	delete(f.channels, ch)
	f.op("delete %s", ch)
	return nil
}

func (f *fakePlatform) SetMemberConnect(_ context.Context, ch, userID string, allow bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perms[ch+"/"+userID] = allow
	return nil
}

func (f *fakePlatform) ClearMemberOverride(_ context.Context, ch, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.perms, ch+"/"+userID)
	f.op("clear-override %s %s", ch, userID)
	return nil
}

func (f *fakePlatform) SetRoleConnect(_ context.Context, ch, role string, allow bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perms[ch+"/"+role] = allow
	return nil
}

func (f *fakePlatform) SetRoleSend(_ context.Context, ch, role string, allow bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perms["send:"+ch+"/"+role] = allow
	return nil
}

func (f *fakePlatform) CreateRole(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextID("role"), nil
}

func (f *fakePlatform) DeleteRole(_ context.Context, _, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.op("delete-role %s", role)
	return nil
}

func (f *fakePlatform) AddRole(_ context.Context, _, userID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[userID+"/"+role] = true
	return nil
}

func (f *fakePlatform) RemoveRole(_ context.Context, _, userID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.roles, userID+"/"+role)
	return nil
}

func (f *fakePlatform) perm(ch, who string) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.perms[ch+"/"+who]
	return v, ok
}

func (f *fakePlatform) hasRole(userID, role string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[userID+"/"+role]
}

func (f *fakePlatform) where(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voice[userID]
}

func (f *fakePlatform) opsLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ops)
}

// sentWithTitle returns the id of the first message sent with title.
func (f *fakePlatform) sentWithTitle(title string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.sent {
		if m.title == title {
			return m.id, true
		}
	}
	return "", false
}

func (f *fakePlatform) sawTitle(msgID, title string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.titles[msgID], title)
}

type fakeAPI struct {
	mu        sync.Mutex
	profiles  map[string]domain.PlayerProfile
	down      bool
	startErr  error
	requests  []domain.MatchRequest
	seq       int
	live      map[string]bool
	ended     []string
	unlinked  []string
	linkCalls int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{profiles: map[string]domain.PlayerProfile{}, live: map[string]bool{}}
}

func (a *fakeAPI) link(ids ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, id := range ids {
		a.profiles[id] = domain.PlayerProfile{DiscordID: id, Score: 1000 + i}
	}
}

func (a *fakeAPI) IsLinked(_ context.Context, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.profiles[id]
	return ok, nil
}

func (a *fakeAPI) GetPlayer(_ context.Context, id string) (domain.PlayerProfile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down {
		return domain.PlayerProfile{}, errors.New("league api unavailable")
	}
	p, ok := a.profiles[id]
	if !ok {
		return p, domain.ErrNotFound
	}
	return p, nil
}

func (a *fakeAPI) GetPlayers(_ context.Context, ids []string) ([]domain.PlayerProfile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.PlayerProfile
	for _, id := range ids {
		if p, ok := a.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (a *fakeAPI) StartMatch(_ context.Context, req domain.MatchRequest) (domain.Match, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if a.startErr != nil {
		return domain.Match{}, a.startErr
	}
	a.seq++
	id := fmt.Sprintf("match-%d", a.seq)
	a.live[id] = true
	return domain.Match{ID: id, ConnectURL: "steam://connect/127.0.0.1:27015"}, nil
}

func (a *fakeAPI) MatchesStatus(_ context.Context, ids []string) (map[string]bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := map[string]bool{}
	for _, id := range ids {
		if v, ok := a.live[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (a *fakeAPI) EndMatch(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ended = append(a.ended, id)
	a.live[id] = false
	return nil
}

func (a *fakeAPI) LinkURL(_ context.Context, id string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.linkCalls++
	return "https://league.test/link/" + id, nil
}

func (a *fakeAPI) Unlink(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.profiles[id]; !ok {
		return domain.ErrNotFound
	}
	delete(a.profiles, id)
	a.unlinked = append(a.unlinked, id)
	return nil
}

type fakeCatalog struct{ maps []domain.Map }

func (c fakeCatalog) Get(dev string) (domain.Map, bool) {
	for _, m := range c.maps {
		if m.DevName == dev {
			return m, true
		}
	}
	return domain.Map{}, false
}

func (c fakeCatalog) Resolve(devs []string) ([]domain.Map, error) {
	out := make([]domain.Map, 0, len(devs))
	for _, d := range devs {
		m, ok := c.Get(d)
		if !ok {
			return nil, errors.Errorf("unknown map %s", d)
		}
		out = append(out, m)
	}
	return out, nil
}

var testCatalog = fakeCatalog{maps: []domain.Map{
	{DevName: "de_dust2", Name: "Dust II", Emoji: "🏜️"},
	{DevName: "de_mirage", Name: "Mirage", Emoji: "🕌"},
	{DevName: "de_inferno", Name: "Inferno", Emoji: "🔥"},
	{DevName: "de_nuke", Name: "Nuke", Emoji: "☢️"},
}}

// fakeStarter stands in for the orchestrator in admission tests.
type fakeStarter struct {
	mu      sync.Mutex
	calls   [][]string
	release chan struct{}
	outcome Outcome
	err     error
}

func (f *fakeStarter) Start(_ context.Context, _ domain.League, members []string) (Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, slices.Clone(members))
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return f.outcome, f.err
}

func (f *fakeStarter) InMatch(string) bool { return false }

func (f *fakeStarter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLeague(id string, capacity int) domain.League {
	return domain.League{
		ID:              id,
		GuildID:         "guild",
		Name:            "League " + id,
		Capacity:        capacity,
		TeamMethod:      domain.TeamRandom,
		CaptainMethod:   domain.CaptainVolunteer,
		MapMethod:       domain.MapRandom,
		MapPool:         []string{"de_dust2", "de_mirage", "de_inferno"},
		TextQueueID:     "queue-" + id,
		TextCommandsID:  "commands-" + id,
		VoiceLobbyID:    "lobby-" + id,
		VoicePrelobbyID: "pre-" + id,
		PugRoleID:       "role-" + id,
	}
}

type fixture struct {
	store    *memStore
	platform *fakePlatform
	api      *fakeAPI
	bus      *draft.Bus
	queue    *QueueService
	matches  *MatchService
}

// newFixture wires the admission controller to the real orchestrator. Pass
// a starter to replace the orchestrator in the controller.
func newFixture(t *testing.T, starter MatchStarter, opts ...draft.Option) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), platform: newFakePlatform(), api: newFakeAPI(), bus: draft.NewBus()}
	log := zap.NewNop()
	base := []draft.Option{
		draft.WithReadyTimeout(5 * time.Second),
		draft.WithRand(rand.New(rand.NewPCG(7, 7))),
	}
	runner := draft.NewRunner(f.platform, f.bus, log, append(base, opts...)...)
	f.matches = NewMatchService(MatchDeps{
		API:        f.api,
		Leagues:    f.store,
		Queue:      f.store,
		Spectators: f.store,
		Matches:    f.store,
		Catalog:    testCatalog,
		Platform:   f.platform,
		Runner:     runner,
	}, log)
	if starter == nil {
		starter = f.matches
	}
	f.queue = NewQueueService(QueueDeps{
		Leagues:    f.store,
		Queue:      f.store,
		Spectators: f.store,
		Bans:       f.store,
		API:        f.api,
		Matches:    starter,
		Platform:   f.platform,
		Display:    NewQueueDisplay(f.platform, f.store, f.store, f.api, log),
	}, log)
	return f
}

// addLeague saves the league and puts users in its lobby.
func (f *fixture) addLeague(l domain.League) domain.League {
	_ = f.store.SaveLeague(context.Background(), l)
	return l
}

func (f *fixture) enterLobby(l domain.League, ids ...string) {
	f.platform.mu.Lock()
	defer f.platform.mu.Unlock()
	for _, id := range ids {
		f.platform.voice[id] = l.VoiceLobbyID
	}
}

// ready reacts with the ready emoji for each user on the ready message.
func (f *fixture) ready(t *testing.T, ids ...string) {
	t.Helper()
	var msgID string
	require.Eventually(t, func() bool {
		var ok bool
		msgID, ok = f.platform.sentWithTitle("Queue is full")
		return ok
	}, 2*time.Second, time.Millisecond)
	for _, id := range ids {
		r := draft.Reaction{MessageID: msgID, UserID: id, Emoji: draft.EmojiReady}
		require.Eventually(t, func() bool { return f.bus.Publish(context.Background(), r) }, 2*time.Second, time.Millisecond)
	}
}
