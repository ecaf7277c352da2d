package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

func newLeagueService(f *fixture) *LeagueService {
	return NewLeagueService(f.store, f.store, f.queue, f.matches, f.platform, testCatalog,
		[]string{"de_dust2", "de_mirage", "de_inferno"}, zap.NewNop())
}

func TestCreateLeague(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	svc := newLeagueService(f)

	l, err := svc.Create(ctx, "guild", "  Scrims ")
	require.NoError(t, err)
	assert.Equal(t, "Scrims", l.Name)
	assert.NoError(t, l.Validate())
	assert.NotEmpty(t, l.VoiceLobbyID)
	assert.NotEmpty(t, l.VoicePrelobbyID)

	stored, err := f.store.GetLeague(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l, stored)
	_, err = f.store.GetGuild(ctx, "guild")
	assert.NoError(t, err)

	everyone, _ := f.platform.perm(l.VoiceLobbyID, "guild")
	role, _ := f.platform.perm(l.VoiceLobbyID, l.PugRoleID)
	assert.False(t, everyone)
	assert.True(t, role)

	_, err = svc.Create(ctx, "guild", " ")
	assert.Error(t, err)
}

func TestLeagueSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	svc := newLeagueService(f)
	l := f.addLeague(testLeague("L1", 4))

	l, err := svc.SetTeamMethod(ctx, l, "Autobalance")
	require.NoError(t, err)
	assert.Equal(t, domain.TeamAutobalance, l.TeamMethod)

	_, err = svc.SetTeamMethod(ctx, l, "coinflip")
	assert.ErrorIs(t, err, domain.ErrUnknownMethod)

	l, err = svc.SetMapMethod(ctx, l, "ban")
	require.NoError(t, err)
	assert.Equal(t, domain.MapCaptains, l.MapMethod)

	l, err = svc.SetCaptainMethod(ctx, l, "rank")
	require.NoError(t, err)
	assert.Equal(t, domain.CaptainRank, l.CaptainMethod)

	stored, err := f.store.GetLeague(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaptainRank, stored.CaptainMethod)
}

func TestLeagueSettingsMustFitTeamMethod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	svc := newLeagueService(f)
	l := f.addLeague(testLeague("L1", 5))

	_, err := svc.SetTeamMethod(ctx, l, "autobalance")
	assert.ErrorIs(t, err, domain.ErrIncompatible)

	l, err = svc.SetTeamMethod(ctx, l, "captains")
	require.NoError(t, err)
	_, err = svc.SetCapacity(ctx, l, domain.MaxDraftCapacity+2)
	assert.ErrorIs(t, err, domain.ErrIncompatible)

	stored, err := f.store.GetLeague(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TeamCaptains, stored.TeamMethod)
	assert.Equal(t, 5, stored.Capacity)
}

func TestSetCapacityEmptiesQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	svc := newLeagueService(f)
	l := f.addLeague(testLeague("L1", 4))
	f.api.link("u1")
	f.enterLobby(l, "u1")
	_, err := f.queue.Join(ctx, l, "u1")
	require.NoError(t, err)

	_, err = svc.SetCapacity(ctx, l, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidCapacity)
	assert.Len(t, f.store.queued(l.ID), 1)

	l, err = svc.SetCapacity(ctx, l, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, l.Capacity)
	assert.Empty(t, f.store.queued(l.ID))
	assert.Equal(t, l.VoicePrelobbyID, f.platform.where("u1"))
	assert.Contains(t, f.platform.opsLog(), "limit "+l.VoiceLobbyID+" 6")
}

func TestEditMapPool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	svc := newLeagueService(f)
	l := f.addLeague(testLeague("L1", 4))

	l, err := svc.EditMapPool(ctx, l, []string{"+de_nuke", "-de_dust2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"de_mirage", "de_inferno", "de_nuke"}, l.MapPool)

	_, err = svc.EditMapPool(ctx, l, []string{"-de_nuke"})
	assert.ErrorIs(t, err, domain.ErrMapPoolTooSmall)

	_, err = svc.EditMapPool(ctx, l, []string{"+de_cache"})
	assert.Error(t, err)

	_, err = svc.EditMapPool(ctx, l, []string{"de_nuke"})
	assert.Error(t, err)
}

func TestDeleteLeagueRefusedWhileMatchRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	svc := newLeagueService(f)
	l := f.addLeague(testLeague("L1", 4))
	require.NoError(t, f.store.SaveMatch(ctx, domain.ActiveMatch{MatchID: "m1", LeagueID: l.ID, TeamOne: []string{"a"}, TeamTwo: []string{"b"}}))
	require.NoError(t, f.matches.Restore(ctx))

	assert.ErrorIs(t, svc.Delete(ctx, l), ErrLeagueBusy)

	_, err := f.matches.Teardown(ctx, "m1")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, l))
	_, err = f.store.GetLeague(ctx, l.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, f.platform.opsLog(), "delete "+l.VoiceLobbyID)
}

func TestParseBanDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"30m", 30 * time.Minute, false},
		{"2d12h", 60 * time.Hour, false},
		{"1w", 7 * 24 * time.Hour, false},
		{"1W 2H", 7*24*time.Hour + 2*time.Hour, false},
		{"abc", 0, true},
		{"10x", 0, true},
		{"0m", 0, true},
		{"520w", 520 * 7 * 24 * time.Hour, false},
		{"99999999999w", 0, true},
		{"15250w15250w", 0, true},
		{"99999999999999999999m", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBanDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBanLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	l := f.addLeague(testLeague("L1", 4))
	require.NoError(t, f.store.SaveGuild(ctx, domain.Guild{ID: "guild", BannedRoleID: "banned"}))
	f.api.link("u1")
	f.enterLobby(l, "u1")
	_, err := f.queue.Join(ctx, l, "u1")
	require.NoError(t, err)

	bans := NewBanService(f.store, f.store, f.store, f.queue, f.platform, zap.NewNop())
	now := time.Now()
	bans.now = func() time.Time { return now }

	b, err := bans.Ban(ctx, "guild", "u1", time.Hour)
	require.NoError(t, err)
	assert.False(t, b.Permanent())
	assert.True(t, f.platform.hasRole("u1", "banned"))
	assert.Empty(t, f.store.queued(l.ID))
	assert.Equal(t, l.VoicePrelobbyID, f.platform.where("u1"))

	n, err := bans.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(2 * time.Hour)
	n, err = bans.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, f.platform.hasRole("u1", "banned"))

	ok, err := bans.Unban(ctx, "guild", "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLinkFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	require.NoError(t, f.store.SaveGuild(ctx, domain.Guild{ID: "guild", LinkedRoleID: "linked"}))
	links := NewLinkService(f.api, nil, f.store, f.platform, zap.NewNop())

	msg, err := links.Link(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, msg, "DM")
	assert.Equal(t, "Link your account: https://league.test/link/u1", f.platform.dms["u1"])

	msg, err = links.Check(ctx, "guild", "u1")
	require.NoError(t, err)
	assert.Contains(t, msg, "not linked")
	assert.False(t, f.platform.hasRole("u1", "linked"))

	f.api.link("u1")
	_, err = links.Check(ctx, "guild", "u1")
	require.NoError(t, err)
	assert.True(t, f.platform.hasRole("u1", "linked"))

	msg, err = links.Link(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, msg, "already linked")
	assert.Equal(t, 1, f.api.linkCalls)

	_, err = links.Unlink(ctx, "guild", "u1")
	require.NoError(t, err)
	assert.False(t, f.platform.hasRole("u1", "linked"))
	assert.Equal(t, []string{"u1"}, f.api.unlinked)
}

func TestLeaders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	links := NewLinkService(f.api, nil, f.store, f.platform, zap.NewNop())
	f.platform.members = []string{"a", "b", "c", "d", "e", "f", "unlinked"}
	f.api.link("a", "b", "c", "d", "e", "f")

	e, err := links.Leaders(ctx, "guild")
	require.NoError(t, err)
	assert.Contains(t, e.Description, "1. <@f> 1005")
	assert.Contains(t, e.Description, "5. <@b> 1001")
	assert.NotContains(t, e.Description, "<@a>")
}

func TestSpectatorsLeaveQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	l := f.addLeague(testLeague("L1", 4))
	f.api.link("u1")
	_, err := f.queue.Join(ctx, l, "u1")
	require.NoError(t, err)

	spects := NewSpectatorService(f.store, f.queue)
	added, err := spects.Add(ctx, l, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, added)
	assert.Empty(t, f.store.queued(l.ID))

	added, err = spects.Add(ctx, l, "u1")
	require.NoError(t, err)
	assert.Empty(t, added)

	removed, err := spects.Remove(ctx, l, "u2", "nobody")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, removed)

	list, err := spects.List(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, list)
}
