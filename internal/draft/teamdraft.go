package draft

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

// pickOrder holds the team ('1' or '2') picking at each pick number.
var pickOrder = "1" + strings.Repeat("2211", 20)

// PickReason says why a pick was refused.
type PickReason string

const (
	ReasonNotParticipant PickReason = "picker-not-participant"
	ReasonPickSelf       PickReason = "picker-pick-self"
	ReasonNotTurn        PickReason = "picker-not-turn"
	ReasonNotCaptain     PickReason = "picker-not-captain"
	ReasonTeamFull       PickReason = "team-full"
	ReasonUnavailable    PickReason = "pickee-unavailable"
)

type PickError struct {
	Reason PickReason
}

func (e *PickError) Error() string { return string(e.Reason) }

// Visible reports whether the picker should be told about the refusal.
func (e *PickError) Visible() bool {
	return e.Reason != ReasonNotParticipant && e.Reason != ReasonUnavailable
}

var (
	ErrBadCaptains      = errors.New("captains must be two distinct participants")
	ErrTooManyToDraft   = errors.New("too many players for a captains draft")
	ErrNotEnoughPlayers = errors.New("not enough players")
)

// TeamDraft is the captains pick state. Captains are either set up front or
// established by the first two volunteers that pick.
type TeamDraft struct {
	members []string
	left    []string
	teams   [2][]string
	picks   int
}

func NewTeamDraft(members []string) *TeamDraft {
	return &TeamDraft{members: slices.Clone(members), left: slices.Clone(members)}
}

func (d *TeamDraft) SetCaptains(one, two string) error {
	if one == two || !slices.Contains(d.left, one) || !slices.Contains(d.left, two) {
		return ErrBadCaptains
	}
	d.teams[0] = []string{one}
	d.teams[1] = []string{two}
	d.left = without(d.left, one, two)
	d.settle()
	return nil
}

func (d *TeamDraft) turn() int { return int(pickOrder[d.picks%len(pickOrder)] - '1') }

func (d *TeamDraft) maxTeam() int { return (len(d.members) + 1) / 2 }

// ActivePicker is the captain whose turn it is, empty while captains are
// still being volunteered.
func (d *TeamDraft) ActivePicker() string {
	t := d.turn()
	if d.Done() || len(d.teams[t]) == 0 {
		return ""
	}
	return d.teams[t][0]
}

// Pick moves pickee into the picker's team. Refused picks return a
// *PickError and leave the draft untouched.
func (d *TeamDraft) Pick(picker, pickee string) error {
	if !slices.Contains(d.members, picker) {
		return &PickError{ReasonNotParticipant}
	}
	if picker == pickee {
		return &PickError{ReasonPickSelf}
	}
	if !slices.Contains(d.left, pickee) {
		return &PickError{ReasonUnavailable}
	}

	team, volunteer := -1, false
	switch {
	case len(d.teams[0]) == 0:
		team, volunteer = 0, true
	case len(d.teams[1]) == 0:
		if picker == d.teams[0][0] {
			return &PickError{ReasonNotTurn}
		}
		if slices.Contains(d.teams[0], picker) {
			return &PickError{ReasonNotCaptain}
		}
		team, volunteer = 1, true
	case picker == d.teams[0][0]:
		team = 0
	case picker == d.teams[1][0]:
		team = 1
	default:
		return &PickError{ReasonNotCaptain}
	}
	if team != d.turn() {
		return &PickError{ReasonNotTurn}
	}
	size := len(d.teams[team])
	if volunteer {
		size++
	}
	if size >= d.maxTeam() {
		return &PickError{ReasonTeamFull}
	}

	if volunteer {
		d.teams[team] = append(d.teams[team], picker)
		d.left = without(d.left, picker)
	}
	d.teams[team] = append(d.teams[team], pickee)
	d.left = without(d.left, pickee)
	d.picks++
	d.settle()
	return nil
}

// settle gives the last unpicked player to the smaller team, team one on a tie.
func (d *TeamDraft) settle() {
	if len(d.left) == 1 {
		d.assignSmaller(d.left[0])
	}
}

func (d *TeamDraft) assignSmaller(id string) {
	t := 0
	if len(d.teams[1]) < len(d.teams[0]) {
		t = 1
	}
	d.teams[t] = append(d.teams[t], id)
	d.left = without(d.left, id)
}

// AutoFill hands every remaining player to the smaller team in turn.
func (d *TeamDraft) AutoFill() {
	for len(d.left) > 0 {
		d.assignSmaller(d.left[0])
	}
}

func (d *TeamDraft) Done() bool { return len(d.left) == 0 }

func (d *TeamDraft) Left() []string { return slices.Clone(d.left) }

func (d *TeamDraft) Teams() ([]string, []string) {
	return slices.Clone(d.teams[0]), slices.Clone(d.teams[1])
}

// ChooseCaptains picks the two captains for rank and random drafts. Volunteer
// drafts have no captains up front and return empty ids.
func ChooseCaptains(method domain.CaptainMethod, members []Participant, rng Rand) (string, string, error) {
	if len(members) < 2 {
		return "", "", ErrNotEnoughPlayers
	}
	switch method {
	case domain.CaptainVolunteer:
		return "", "", nil
	case domain.CaptainRank:
		sorted := slices.Clone(members)
		slices.SortStableFunc(sorted, func(a, b Participant) int {
			return cmp.Compare(b.Profile.Score, a.Profile.Score)
		})
		return sorted[0].ID, sorted[1].ID, nil
	case domain.CaptainRandom:
		i := rng.IntN(len(members))
		j := rng.IntN(len(members) - 1)
		if j >= i {
			j++
		}
		return members[i].ID, members[j].ID, nil
	}
	return "", "", errors.Wrapf(domain.ErrUnknownMethod, "captain method %q", method)
}

// DraftTeams runs a captains draft on msg and returns both rosters, captain
// first. A timed out draft auto-assigns whoever is left.
func (r *Runner) DraftTeams(ctx context.Context, leagueID string, msg Message, members []Participant, method domain.CaptainMethod) ([]string, []string, error) {
	if len(members) > len(pickEmojis) {
		return nil, nil, errors.Wrapf(ErrTooManyToDraft, "%d players", len(members))
	}
	one, two, err := ChooseCaptains(method, members, r.rng)
	if err != nil {
		return nil, nil, err
	}
	d := NewTeamDraft(ids(members))
	if one != "" {
		if err := d.SetCaptains(one, two); err != nil {
			return nil, nil, err
		}
	}
	if d.Done() {
		a, b := d.Teams()
		return a, b, nil
	}

	s, err := r.open(leagueID, KindTeamDraft, msg)
	if err != nil {
		return nil, nil, err
	}
	defer s.close()

	byID := make(map[string]Participant, len(members))
	emojiOf := make(map[string]string, len(members))
	memberOf := make(map[string]string, len(members))
	for i, p := range members {
		byID[p.ID] = p
		emojiOf[p.ID] = pickEmojis[i]
		memberOf[pickEmojis[i]] = p.ID
	}

	title := "Team draft"
	s.edit(ctx, draftEmbed(title, byID, d, emojiOf))
	for _, id := range d.Left() {
		s.react(ctx, emojiOf[id])
	}

	timedOut, err := s.await(ctx, r.draftTimeout, func(ev Reaction) bool {
		pickee, ok := memberOf[ev.Emoji]
		if !ok {
			s.unreact(ctx, ev)
			return false
		}
		before := d.Left()
		if err := d.Pick(ev.UserID, pickee); err != nil {
			s.unreact(ctx, ev)
			var pe *PickError
			if errors.As(err, &pe) && pe.Visible() {
				title = fmt.Sprintf("%s: %s", byID[ev.UserID].Name, pickMessage(pe.Reason))
				s.edit(ctx, draftEmbed(title, byID, d, emojiOf))
			}
			return false
		}
		for _, id := range without(before, d.Left()...) {
			s.clear(ctx, emojiOf[id])
		}
		title = fmt.Sprintf("%s picked %s", byID[ev.UserID].Name, byID[pickee].Name)
		s.edit(ctx, draftEmbed(title, byID, d, emojiOf))
		return d.Done()
	})
	if err != nil {
		return nil, nil, err
	}
	if timedOut {
		s.log.Warn("draft timed out, auto assigning", zap.Strings("left", d.Left()))
		d.AutoFill()
	}
	a, b := d.Teams()
	return a, b, nil
}

func pickMessage(r PickReason) string {
	switch r {
	case ReasonPickSelf:
		return "you cannot pick yourself"
	case ReasonNotTurn:
		return "it is not your turn to pick"
	case ReasonNotCaptain:
		return "only captains can pick"
	case ReasonTeamFull:
		return "your team is full"
	}
	return string(r)
}

func without(list []string, drop ...string) []string {
	out := make([]string, 0, len(list))
	for _, id := range list {
		if !slices.Contains(drop, id) {
			out = append(out, id)
		}
	}
	return out
}
