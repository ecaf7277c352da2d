package draft

import (
	"context"
	"slices"
)

// MaxMatchType is the longest series captains can vote for.
const MaxMatchType = 5

// MatchTypeVote lets the captains pick best-of-N.
type MatchTypeVote struct {
	captains []string
	options  int
	counts   map[int]int
	voted    map[string]bool
}

func NewMatchTypeVote(captains []string, options int) *MatchTypeVote {
	return &MatchTypeVote{
		captains: slices.Clone(captains),
		options:  options,
		counts:   make(map[int]int),
		voted:    make(map[string]bool),
	}
}

func (v *MatchTypeVote) Vote(userID, emoji string) bool {
	if v.voted[userID] || !slices.Contains(v.captains, userID) {
		return false
	}
	for n := 1; n <= v.options; n++ {
		if NumberEmoji(n) == emoji {
			v.voted[userID] = true
			v.counts[n]++
			return true
		}
	}
	return false
}

func (v *MatchTypeVote) Count(n int) int { return v.counts[n] }

func (v *MatchTypeVote) Done() bool { return len(v.voted) == len(v.captains) }

// Result is the single most voted option, best-of-1 otherwise.
func (v *MatchTypeVote) Result() int {
	best, winner, tied := 0, 1, false
	for n := 1; n <= v.options; n++ {
		switch c := v.counts[n]; {
		case c > best:
			best, winner, tied = c, n, false
		case c == best && c > 0:
			tied = true
		}
	}
	if best == 0 || tied {
		return 1
	}
	return winner
}

// MatchType asks the captains how many maps to play, up to options.
func (r *Runner) MatchType(ctx context.Context, leagueID string, msg Message, captains []string, options int) (int, error) {
	options = min(options, MaxMatchType)
	if options <= 1 {
		return 1, nil
	}
	s, err := r.open(leagueID, KindMatchType, msg)
	if err != nil {
		return 0, err
	}
	defer s.close()

	v := NewMatchTypeVote(captains, options)
	s.clearAll(ctx)
	s.edit(ctx, matchTypeEmbed(options, v))
	for n := 1; n <= options; n++ {
		s.react(ctx, NumberEmoji(n))
	}
	_, err = s.await(ctx, r.voteTimeout, func(ev Reaction) bool {
		if !v.Vote(ev.UserID, ev.Emoji) {
			s.unreact(ctx, ev)
			return false
		}
		s.edit(ctx, matchTypeEmbed(options, v))
		return v.Done()
	})
	if err != nil {
		return 0, err
	}
	return v.Result(), nil
}
