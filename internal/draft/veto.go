package draft

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

// Veto lets two captains ban maps in alternating turns until target maps
// remain. With an even pool the second captain bans first.
type Veto struct {
	captains [2]string
	pool     []domain.Map
	banned   []domain.Map
	target   int
}

func NewVeto(pool []domain.Map, one, two string, target int) *Veto {
	caps := [2]string{one, two}
	if len(pool)%2 == 0 {
		caps = [2]string{two, one}
	}
	if target < 1 {
		target = 1
	}
	return &Veto{captains: caps, pool: slices.Clone(pool), target: target}
}

func (v *Veto) ActiveCaptain() string { return v.captains[len(v.banned)%2] }

// Ban removes the map labelled emoji when userID holds the turn. Anything
// else is ignored.
func (v *Veto) Ban(userID, emoji string) (domain.Map, bool) {
	if v.Done() || userID != v.ActiveCaptain() {
		return domain.Map{}, false
	}
	for _, m := range v.Remaining() {
		if m.Emoji == emoji {
			v.banned = append(v.banned, m)
			return m, true
		}
	}
	return domain.Map{}, false
}

// Remaining lists the maps not banned yet, in pool order.
func (v *Veto) Remaining() []domain.Map {
	out := make([]domain.Map, 0, len(v.pool))
	for _, m := range v.pool {
		if !slices.ContainsFunc(v.banned, func(b domain.Map) bool { return b.DevName == m.DevName }) {
			out = append(out, m)
		}
	}
	return out
}

func (v *Veto) Banned() []domain.Map { return slices.Clone(v.banned) }

func (v *Veto) Done() bool { return len(v.pool)-len(v.banned) <= v.target }

// Veto runs a ban phase between the two captains and returns n maps in
// random order. n is clamped to 1..len(pool). Captains get the draft
// timeout; on timeout the first n remaining maps are kept.
func (r *Runner) Veto(ctx context.Context, leagueID string, msg Message, pool []domain.Map, one, two Participant, n int) ([]domain.Map, error) {
	n = min(max(n, 1), len(pool))
	v := NewVeto(pool, one.ID, two.ID, n)
	if v.Done() {
		return r.shuffleMaps(v.Remaining()[:n]), nil
	}

	s, err := r.open(leagueID, KindVeto, msg)
	if err != nil {
		return nil, err
	}
	defer s.close()

	byID := map[string]Participant{one.ID: one, two.ID: two}
	title := fmt.Sprintf("Map veto: %d map(s) will be played", n)
	s.edit(ctx, vetoEmbed(title, byID, v))
	for _, m := range v.Remaining() {
		s.react(ctx, m.Emoji)
	}

	timedOut, err := s.await(ctx, r.draftTimeout, func(ev Reaction) bool {
		m, ok := v.Ban(ev.UserID, ev.Emoji)
		if !ok {
			s.unreact(ctx, ev)
			return false
		}
		s.clear(ctx, ev.Emoji)
		title = fmt.Sprintf("%s banned %s", byID[ev.UserID].Name, m.Name)
		s.edit(ctx, vetoEmbed(title, byID, v))
		return v.Done()
	})
	if err != nil {
		return nil, err
	}
	left := v.Remaining()
	if timedOut {
		s.log.Warn("veto timed out, keeping first maps", zap.Int("remaining", len(left)), zap.Int("want", n))
		left = left[:n]
	}
	return r.shuffleMaps(left), nil
}

func (r *Runner) shuffleMaps(maps []domain.Map) []domain.Map {
	out := slices.Clone(maps)
	r.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
