package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

func TestJoinRejections(t *testing.T) {
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name  string
		setup func(f *fixture, l domain.League)
		want  RejectReason
	}{
		{"admitted", func(*fixture, domain.League) {}, RejectNone},
		{"not linked", func(f *fixture, _ domain.League) {
			f.api.mu.Lock()
			delete(f.api.profiles, "u1")
			f.api.mu.Unlock()
		}, RejectNotLinked},
		{"api down", func(f *fixture, _ domain.League) { f.api.down = true }, RejectCannotVerify},
		{"already queued", func(f *fixture, l domain.League) {
			_, _ = f.store.Enqueue(ctx, l.ID, "u1")
		}, RejectAlreadyQueued},
		{"queued elsewhere", func(f *fixture, _ domain.League) {
			_, _ = f.store.Enqueue(ctx, "other", "u1")
		}, RejectQueuedElsewhere},
		{"spectator", func(f *fixture, l domain.League) {
			_, _ = f.store.AddSpectators(ctx, l.ID, "u1")
		}, RejectSpectator},
		{"in match on the league", func(f *fixture, _ domain.League) {
			f.api.mu.Lock()
			f.api.profiles["u1"] = domain.PlayerProfile{DiscordID: "u1", InMatch: true}
			f.api.mu.Unlock()
		}, RejectInMatch},
		{"banned", func(f *fixture, _ domain.League) {
			_ = f.store.SaveBan(ctx, domain.Ban{GuildID: "guild", UserID: "u1", UnbanAt: &future})
		}, RejectBanned},
		{"full", func(f *fixture, l domain.League) {
			_, _ = f.store.Enqueue(ctx, l.ID, "a")
			_, _ = f.store.Enqueue(ctx, l.ID, "b")
			_, _ = f.store.Enqueue(ctx, l.ID, "c")
		}, RejectFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &fakeStarter{})
			l := f.addLeague(testLeague("L1", 3))
			f.api.link("u1")
			tt.setup(f, l)

			res, err := f.queue.Join(ctx, l, "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Reason)
			assert.Equal(t, tt.want == RejectNone, res.Admitted)
			assert.Equal(t, domain.LobbyIdle, f.queue.State(l.ID))
		})
	}
}

func TestJoinBannedReportsRemaining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	l := f.addLeague(testLeague("L1", 4))
	f.api.link("u1")
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f.queue.now = func() time.Time { return now }
	until := now.Add(90 * time.Minute)
	require.NoError(t, f.store.SaveBan(ctx, domain.Ban{GuildID: "guild", UserID: "u1", UnbanAt: &until}))

	res, err := f.queue.Join(ctx, l, "u1")
	require.NoError(t, err)
	assert.Equal(t, RejectBanned, res.Reason)
	assert.Equal(t, 90*time.Minute, res.BanRemaining)
	assert.Contains(t, res.Message("bob"), "1h30m0s")

	expired := now.Add(-time.Minute)
	require.NoError(t, f.store.SaveBan(ctx, domain.Ban{GuildID: "guild", UserID: "u1", UnbanAt: &expired}))
	res, err = f.queue.Join(ctx, l, "u1")
	require.NoError(t, err)
	assert.True(t, res.Admitted)
}

func TestLeave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	l := f.addLeague(testLeague("L1", 4))
	f.api.link("u1")

	_, err := f.queue.Join(ctx, l, "u1")
	require.NoError(t, err)

	res, err := f.queue.Leave(ctx, l, "u1")
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Empty(t, f.store.queued(l.ID))

	res, err = f.queue.Leave(ctx, l, "u1")
	require.NoError(t, err)
	assert.False(t, res.Removed)
}

func TestVoiceMoveLeavesBeforeJoining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	a := f.addLeague(testLeague("A", 4))
	b := f.addLeague(testLeague("B", 4))
	f.api.link("u1")

	require.NoError(t, f.queue.OnVoiceState(ctx, "guild", "u1", "", a.VoiceLobbyID))
	assert.Equal(t, []string{"u1"}, f.store.queued(a.ID))

	require.NoError(t, f.queue.OnVoiceState(ctx, "guild", "u1", a.VoiceLobbyID, b.VoiceLobbyID))
	assert.Empty(t, f.store.queued(a.ID))
	assert.Equal(t, []string{"u1"}, f.store.queued(b.ID))

	require.NoError(t, f.queue.OnVoiceState(ctx, "guild", "u1", b.VoiceLobbyID, "somewhere-else"))
	assert.Empty(t, f.store.queued(b.ID))
}

func TestBurstRunsOnceAndClearsQueue(t *testing.T) {
	ctx := context.Background()
	starter := &fakeStarter{outcome: OutcomeStarted}
	f := newFixture(t, starter)
	l := f.addLeague(testLeague("L1", 2))
	f.api.link("u1", "u2")

	res, err := f.queue.Join(ctx, l, "u1")
	require.NoError(t, err)
	assert.Nil(t, res.Burst)

	res, err = f.queue.Join(ctx, l, "u2")
	require.NoError(t, err)
	require.NotNil(t, res.Burst)
	assert.Equal(t, OutcomeStarted, res.Burst.Outcome)
	assert.Equal(t, [][]string{{"u1", "u2"}}, starter.calls)
	assert.Empty(t, f.store.queued(l.ID))
	assert.Equal(t, domain.LobbyIdle, f.queue.State(l.ID))

	open, ok := f.platform.perm(l.VoiceLobbyID, l.PugRoleID)
	assert.True(t, ok)
	assert.True(t, open)
}

func TestGuardReleasedWhenStartFails(t *testing.T) {
	ctx := context.Background()
	starter := &fakeStarter{err: errors.New("boom")}
	f := newFixture(t, starter)
	l := f.addLeague(testLeague("L1", 2))
	f.api.link("u1", "u2", "u3")

	_, err := f.queue.Join(ctx, l, "u1")
	require.NoError(t, err)
	res, err := f.queue.Join(ctx, l, "u2")
	require.NoError(t, err)
	require.NotNil(t, res.Burst)
	assert.Error(t, res.Burst.Err)

	assert.Equal(t, domain.LobbyIdle, f.queue.State(l.ID))
	assert.Empty(t, f.store.queued(l.ID))

	res, err = f.queue.Join(ctx, l, "u3")
	require.NoError(t, err)
	assert.True(t, res.Admitted)
}

func TestJoinsDuringBurstAreRejected(t *testing.T) {
	ctx := context.Background()
	starter := &fakeStarter{release: make(chan struct{}), outcome: OutcomeStarted}
	f := newFixture(t, starter)
	l := f.addLeague(testLeague("L1", 2))
	other := f.addLeague(testLeague("L2", 4))
	f.api.link("u1", "u2", "u3")

	_, err := f.queue.Join(ctx, l, "u1")
	require.NoError(t, err)

	done := make(chan JoinResult)
	go func() {
		res, _ := f.queue.Join(ctx, l, "u2")
		done <- res
	}()
	require.Eventually(t, func() bool { return f.queue.State(l.ID) == domain.LobbyBursting }, 2*time.Second, time.Millisecond)

	res, err := f.queue.Join(ctx, l, "u3")
	require.NoError(t, err)
	assert.Equal(t, RejectBursting, res.Reason)

	leave, err := f.queue.Leave(ctx, l, "u1")
	require.NoError(t, err)
	assert.True(t, leave.Ignored)

	// every lobby of the guild is closed while the burst runs
	require.Eventually(t, func() bool {
		open, ok := f.platform.perm(other.VoiceLobbyID, other.PugRoleID)
		return ok && !open
	}, 2*time.Second, time.Millisecond)

	close(starter.release)
	burst := <-done
	require.NotNil(t, burst.Burst)
	assert.Equal(t, 1, starter.callCount())
	open, _ := f.platform.perm(other.VoiceLobbyID, other.PugRoleID)
	assert.True(t, open)
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	ctx := context.Background()
	starter := &fakeStarter{release: make(chan struct{}), outcome: OutcomeStarted}
	f := newFixture(t, starter)
	l := f.addLeague(testLeague("L1", 4))

	var ids []string
	for i := range 12 {
		ids = append(ids, fmt.Sprintf("u%d", i))
	}
	f.api.link(ids...)

	var wg sync.WaitGroup
	results := make(chan JoinResult, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.queue.Join(ctx, l, id)
			assert.NoError(t, err)
			results <- res
		}()
	}
	// the bursting join blocks until released, every other one returns first
	var got []JoinResult
	for range len(ids) - 1 {
		got = append(got, <-results)
	}
	close(starter.release)
	wg.Wait()
	got = append(got, <-results)

	admitted, bursts := 0, 0
	for _, res := range got {
		if res.Admitted {
			admitted++
		}
		if res.Burst != nil {
			bursts++
		}
	}
	assert.Equal(t, 4, admitted)
	assert.Equal(t, 1, bursts)
	assert.Equal(t, 1, starter.callCount())
	assert.LessOrEqual(t, f.store.maxSeen[l.ID], 4)
	assert.Empty(t, f.store.queued(l.ID))
}

func TestConcurrentBurstsInDifferentLeagues(t *testing.T) {
	ctx := context.Background()
	starter := &fakeStarter{outcome: OutcomeStarted}
	f := newFixture(t, starter)
	a := f.addLeague(testLeague("A", 2))
	b := f.addLeague(testLeague("B", 2))
	f.api.link("a1", "a2", "b1", "b2")

	var wg sync.WaitGroup
	for _, j := range []struct {
		l  domain.League
		id string
	}{{a, "a1"}, {a, "a2"}, {b, "b1"}, {b, "b2"}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.queue.Join(ctx, j.l, j.id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, starter.callCount())
	assert.Equal(t, domain.LobbyIdle, f.queue.State(a.ID))
	assert.Equal(t, domain.LobbyIdle, f.queue.State(b.ID))
}

// gatedStarter holds each league's match start until its gate closes.
type gatedStarter struct {
	gates map[string]chan struct{}
}

func (g *gatedStarter) Start(_ context.Context, league domain.League, _ []string) (Outcome, error) {
	<-g.gates[league.ID]
	return OutcomeStarted, nil
}

func (g *gatedStarter) InMatch(string) bool { return false }

func TestLobbiesReopenAfterLastBurst(t *testing.T) {
	ctx := context.Background()
	starter := &gatedStarter{gates: map[string]chan struct{}{"A": make(chan struct{}), "B": make(chan struct{})}}
	f := newFixture(t, starter)
	a := f.addLeague(testLeague("A", 2))
	b := f.addLeague(testLeague("B", 2))
	f.api.link("a1", "a2", "b1", "b2")
	f.enterLobby(a, "a1", "a2")
	f.enterLobby(b, "b1", "b2")

	burst := func(l domain.League, ids ...string) <-chan struct{} {
		res, err := f.queue.Join(ctx, l, ids[0])
		require.NoError(t, err)
		require.True(t, res.Admitted)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, err := f.queue.Join(ctx, l, ids[1])
			assert.NoError(t, err)
		}()
		require.Eventually(t, func() bool { return f.queue.State(l.ID) == domain.LobbyBursting }, 2*time.Second, time.Millisecond)
		return done
	}
	wait := func(done <-chan struct{}) {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("burst did not finish")
		}
	}
	open := func(l domain.League) bool {
		allowed, _ := f.platform.perm(l.VoiceLobbyID, l.PugRoleID)
		return allowed
	}

	doneA := burst(a, "a1", "a2")
	doneB := burst(b, "b1", "b2")
	assert.False(t, open(a))
	assert.False(t, open(b))

	close(starter.gates["A"])
	wait(doneA)
	assert.Equal(t, domain.LobbyIdle, f.queue.State(a.ID))
	assert.False(t, open(a), "lobby A reopened while B bursts")
	assert.False(t, open(b))

	close(starter.gates["B"])
	wait(doneB)
	assert.True(t, open(a))
	assert.True(t, open(b))
}

func TestGuardTransitions(t *testing.T) {
	f := newFixture(t, &fakeStarter{})
	require.NoError(t, f.queue.transition("L", domain.LobbyBursting))
	err := f.queue.transition("L", domain.LobbyAdmitting)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	require.NoError(t, f.queue.transition("L", domain.LobbyIdle))
	assert.Equal(t, domain.LobbyIdle, f.queue.State("L"))
}

func TestRemoveAndEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	l := f.addLeague(testLeague("L1", 5))
	f.api.link("u1", "u2", "u3")
	f.enterLobby(l, "u1", "u2", "u3")
	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := f.queue.Join(ctx, l, id)
		require.NoError(t, err)
	}

	queued, err := f.queue.Queued(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, queued)

	removed, err := f.queue.Remove(ctx, l, "u1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, l.VoicePrelobbyID, f.platform.where("u1"))

	removed, err = f.queue.Remove(ctx, l, "u1")
	require.NoError(t, err)
	assert.False(t, removed)

	n, err := f.queue.Empty(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, f.store.queued(l.ID))
	assert.Equal(t, l.VoicePrelobbyID, f.platform.where("u2"))
	assert.Equal(t, l.VoicePrelobbyID, f.platform.where("u3"))
}

func TestSyncMatchesLobby(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	l := f.addLeague(testLeague("L1", 5))
	f.api.link("gone", "here", "new")
	_, _ = f.store.Enqueue(ctx, l.ID, "gone")
	_, _ = f.store.Enqueue(ctx, l.ID, "here")
	f.enterLobby(l, "here", "new")

	require.NoError(t, f.queue.Sync(ctx, l))
	assert.Equal(t, []string{"here", "new"}, f.store.queued(l.ID))
}

func TestDisplayRepostsMissingMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeStarter{})
	l := f.addLeague(testLeague("L1", 5))
	f.api.link("u1")

	_, err := f.queue.Join(ctx, l, "u1")
	require.NoError(t, err)
	ch, first, err := f.store.QueueMessage(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.TextQueueID, ch)

	// a message stored for another channel is replaced
	require.NoError(t, f.store.SaveQueueMessage(ctx, l.ID, "elsewhere", first))
	_, err = f.queue.Leave(ctx, l, "u1")
	require.NoError(t, err)
	_, second, err := f.store.QueueMessage(ctx, l.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
