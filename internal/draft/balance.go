package draft

import (
	"cmp"
	"slices"

	"github.com/pkg/errors"
)

var ErrOddMembers = errors.New("members-must-even")

// Autobalance splits members into two equal teams by score. The best player
// goes to team one and the next to team two, then each player goes to the
// team with fewer members, or the lower score sum when sizes match.
func Autobalance(members []Participant) ([]string, []string, error) {
	if len(members)%2 != 0 {
		return nil, nil, errors.Wrapf(ErrOddMembers, "%d members", len(members))
	}
	sorted := slices.Clone(members)
	slices.SortStableFunc(sorted, func(a, b Participant) int {
		return cmp.Compare(b.Profile.Score, a.Profile.Score)
	})

	size := len(sorted) / 2
	var one, two []string
	var sumOne, sumTwo int
	for i, p := range sorted {
		toOne := false
		switch {
		case i == 0:
			toOne = true
		case i == 1:
			toOne = false
		case len(one) >= size:
			toOne = false
		case len(two) >= size:
			toOne = true
		case len(one) != len(two):
			toOne = len(one) < len(two)
		default:
			toOne = sumOne < sumTwo
		}
		if toOne {
			one = append(one, p.ID)
			sumOne += p.Profile.Score
		} else {
			two = append(two, p.ID)
			sumTwo += p.Profile.Score
		}
	}
	return one, two, nil
}

// RandomSplit shuffles members and cuts the list in half, first half being
// team one.
func RandomSplit(members []Participant, rng Rand) ([]string, []string) {
	shuffled := ids(members)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	half := len(shuffled) / 2
	return slices.Clone(shuffled[:half]), shuffled[half:]
}
