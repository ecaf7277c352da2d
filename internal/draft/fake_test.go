package draft

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

type fakeSurface struct {
	mu      sync.Mutex
	titles  []string
	added   []string
	removed []string
	cleared []string
}

func (f *fakeSurface) EditEmbed(_ context.Context, _, _ string, e *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, e.Title)
	return nil
}

func (f *fakeSurface) AddReaction(_ context.Context, _, _, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, emoji)
	return nil
}

func (f *fakeSurface) RemoveReaction(_ context.Context, _, _, emoji, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, userID+":"+emoji)
	return nil
}

func (f *fakeSurface) ClearReaction(_ context.Context, _, _, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, emoji)
	return nil
}

func (f *fakeSurface) ClearReactions(context.Context, string, string) error { return nil }

func (f *fakeSurface) sawTitle(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.titles {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

func (f *fakeSurface) removedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removed)
}

var testMsg = Message{ChannelID: "chan", ID: "msg"}

func newTestRunner(t *testing.T, opts ...Option) (*Runner, *Bus, *fakeSurface) {
	t.Helper()
	surface := &fakeSurface{}
	bus := NewBus()
	base := []Option{
		WithReadyTimeout(5 * time.Second),
		WithDraftTimeout(5 * time.Second),
		WithVoteTimeout(5 * time.Second),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	}
	return NewRunner(surface, bus, zap.NewNop(), append(base, opts...)...), bus, surface
}

// react publishes once the session has subscribed to the message.
func react(t *testing.T, bus *Bus, userID, emoji string) {
	t.Helper()
	r := Reaction{ChannelID: testMsg.ChannelID, MessageID: testMsg.ID, UserID: userID, Emoji: emoji}
	require.Eventually(t, func() bool { return bus.Publish(context.Background(), r) }, 2*time.Second, time.Millisecond)
}

func players(idsAndScores ...any) []Participant {
	var out []Participant
	for i := 0; i+1 < len(idsAndScores); i += 2 {
		id := idsAndScores[i].(string)
		out = append(out, Participant{ID: id, Name: strings.ToUpper(id), Profile: domain.PlayerProfile{DiscordID: id, Score: idsAndScores[i+1].(int)}})
	}
	return out
}

func testMaps(n int) []domain.Map {
	all := []domain.Map{
		{DevName: "de_dust2", Name: "Dust II", Emoji: "🏜️"},
		{DevName: "de_mirage", Name: "Mirage", Emoji: "🕌"},
		{DevName: "de_inferno", Name: "Inferno", Emoji: "🔥"},
		{DevName: "de_nuke", Name: "Nuke", Emoji: "☢️"},
		{DevName: "de_overpass", Name: "Overpass", Emoji: "🌉"},
		{DevName: "de_vertigo", Name: "Vertigo", Emoji: "🏗️"},
		{DevName: "de_ancient", Name: "Ancient", Emoji: "🗿"},
	}
	return all[:n]
}
