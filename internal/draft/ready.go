package draft

import (
	"context"
	"slices"
)

// ReadyCheck tracks who confirmed among a fixed set of members.
type ReadyCheck struct {
	members []string
	readied map[string]bool
}

func NewReadyCheck(members []string) *ReadyCheck {
	return &ReadyCheck{members: slices.Clone(members), readied: make(map[string]bool, len(members))}
}

// React records a ready reaction. Reactions from non-members, with another
// emoji, or repeated ones are not accepted.
func (c *ReadyCheck) React(userID, emoji string) bool {
	if emoji != EmojiReady || c.readied[userID] || !slices.Contains(c.members, userID) {
		return false
	}
	c.readied[userID] = true
	return true
}

func (c *ReadyCheck) Has(userID string) bool { return c.readied[userID] }

func (c *ReadyCheck) Done() bool { return len(c.readied) == len(c.members) }

// Readied lists the confirmed members in member order.
func (c *ReadyCheck) Readied() []string {
	out := make([]string, 0, len(c.readied))
	for _, id := range c.members {
		if c.readied[id] {
			out = append(out, id)
		}
	}
	return out
}

// Missing lists the members that did not confirm.
func (c *ReadyCheck) Missing() []string {
	var out []string
	for _, id := range c.members {
		if !c.readied[id] {
			out = append(out, id)
		}
	}
	return out
}

// Ready asks every member to react with the ready emoji on msg and returns
// who did before the ready timeout.
func (r *Runner) Ready(ctx context.Context, leagueID string, msg Message, members []Participant) ([]string, error) {
	s, err := r.open(leagueID, KindReady, msg)
	if err != nil {
		return nil, err
	}
	defer s.close()

	check := NewReadyCheck(ids(members))
	s.edit(ctx, readyEmbed(members, check, r.readyTimeout))
	s.react(ctx, EmojiReady)

	_, err = s.await(ctx, r.readyTimeout, func(ev Reaction) bool {
		if !check.React(ev.UserID, ev.Emoji) {
			s.unreact(ctx, ev)
			return false
		}
		s.edit(ctx, readyEmbed(members, check, r.readyTimeout))
		return check.Done()
	})
	if err != nil {
		return nil, err
	}
	return check.Readied(), nil
}
