package draft

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

// maxVoteRounds bounds re-votes that keep tying on three or more maps.
const maxVoteRounds = 5

// MapVote is one round of voting: every voter gets one vote.
type MapVote struct {
	voters []string
	pool   []domain.Map
	counts map[string]int
	voted  map[string]bool
}

func NewMapVote(pool []domain.Map, voters []string) *MapVote {
	return &MapVote{
		voters: slices.Clone(voters),
		pool:   slices.Clone(pool),
		counts: make(map[string]int, len(pool)),
		voted:  make(map[string]bool, len(voters)),
	}
}

// Vote counts the first valid vote of each voter.
func (v *MapVote) Vote(userID, emoji string) bool {
	if v.voted[userID] || !slices.Contains(v.voters, userID) {
		return false
	}
	if !slices.ContainsFunc(v.pool, func(m domain.Map) bool { return m.Emoji == emoji }) {
		return false
	}
	v.voted[userID] = true
	v.counts[emoji]++
	return true
}

func (v *MapVote) Done() bool { return len(v.voted) == len(v.voters) }

func (v *MapVote) Voted() int { return len(v.voted) }

func (v *MapVote) Count(emoji string) int { return v.counts[emoji] }

func (v *MapVote) Pool() []domain.Map { return slices.Clone(v.pool) }

// Winners are the maps sharing the highest count, in pool order.
func (v *MapVote) Winners() []domain.Map {
	best := -1
	var out []domain.Map
	for _, m := range v.pool {
		switch c := v.counts[m.Emoji]; {
		case c > best:
			best = c
			out = []domain.Map{m}
		case c == best:
			out = append(out, m)
		}
	}
	return out
}

// VoteMap lets voters pick one map from pool. Ties are re-voted among the
// tied maps; a second two-way tie is settled at random.
func (r *Runner) VoteMap(ctx context.Context, leagueID string, msg Message, pool []domain.Map, voters []Participant) (domain.Map, error) {
	if len(pool) == 1 {
		return pool[0], nil
	}
	s, err := r.open(leagueID, KindMapVote, msg)
	if err != nil {
		return domain.Map{}, err
	}
	defer s.close()

	ties := 0
	for round := 1; ; round++ {
		v := NewMapVote(pool, ids(voters))
		title := "Vote for the map"
		if round > 1 {
			title = "Tie! Vote again"
		}
		s.clearAll(ctx)
		s.sub.drain()
		s.edit(ctx, voteEmbed(title, v, len(voters)))
		for _, m := range pool {
			s.react(ctx, m.Emoji)
		}

		_, err := s.await(ctx, r.voteTimeout, func(ev Reaction) bool {
			if !v.Vote(ev.UserID, ev.Emoji) {
				s.unreact(ctx, ev)
				return false
			}
			s.edit(ctx, voteEmbed(title, v, len(voters)))
			return v.Done()
		})
		if err != nil {
			return domain.Map{}, err
		}

		winners := v.Winners()
		switch {
		case len(winners) == 1:
			return winners[0], nil
		case len(winners) == 2 && ties == 1, round >= maxVoteRounds:
			s.log.Info("vote tied, picking at random", zap.Int("round", round), zap.Int("tied", len(winners)))
			return winners[r.rng.IntN(len(winners))], nil
		}
		if len(winners) == 2 {
			ties++
		}
		pool = winners
	}
}
