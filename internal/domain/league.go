package domain

import (
	"strings"

	"github.com/pkg/errors"
)

// TeamMethod decides how a burst of queued players is split into two teams.
type TeamMethod string

const (
	TeamCaptains    TeamMethod = "captains"
	TeamAutobalance TeamMethod = "autobalance"
	TeamRandom      TeamMethod = "random"
)

// CaptainMethod decides who captains a captains draft.
type CaptainMethod string

const (
	CaptainVolunteer CaptainMethod = "volunteer"
	CaptainRank      CaptainMethod = "rank"
	CaptainRandom    CaptainMethod = "random"
)

// MapMethod decides how the played map(s) are picked.
type MapMethod string

const (
	MapCaptains MapMethod = "captains"
	MapVote     MapMethod = "vote"
	MapRandom   MapMethod = "random"
)

const (
	MinCapacity = 2
	MaxCapacity = 100
	MinMapPool  = 3

	// MaxDraftCapacity is how many players a captains draft can label.
	MaxDraftCapacity = 36
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownMethod   = errors.New("unknown method")
	ErrInvalidCapacity = errors.New("capacity out of range")
	ErrMapPoolTooSmall = errors.New("map pool too small")
	ErrIncompatible    = errors.New("incompatible league settings")
)

func ParseTeamMethod(s string) (TeamMethod, error) {
	switch m := TeamMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case TeamCaptains, TeamAutobalance, TeamRandom:
		return m, nil
	}
	return "", errors.Wrapf(ErrUnknownMethod, "team method %q", s)
}

func ParseCaptainMethod(s string) (CaptainMethod, error) {
	switch m := CaptainMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case CaptainVolunteer, CaptainRank, CaptainRandom:
		return m, nil
	}
	return "", errors.Wrapf(ErrUnknownMethod, "captain method %q", s)
}

// ParseMapMethod accepts "ban" as an alias of captains.
func ParseMapMethod(s string) (MapMethod, error) {
	m := MapMethod(strings.ToLower(strings.TrimSpace(s)))
	if m == "ban" {
		return MapCaptains, nil
	}
	switch m {
	case MapCaptains, MapVote, MapRandom:
		return m, nil
	}
	return "", errors.Wrapf(ErrUnknownMethod, "map method %q", s)
}

// League is one PUG queue hosted in a guild. Its id is the id of the
// category channel that groups its text and voice channels.
type League struct {
	ID       string
	GuildID  string
	Name     string
	Region   string
	Capacity int

	TeamMethod    TeamMethod
	CaptainMethod CaptainMethod
	MapMethod     MapMethod
	MatchTypeVote bool
	MapPool       []string

	TextQueueID     string
	TextCommandsID  string
	VoiceLobbyID    string
	VoicePrelobbyID string
	PugRoleID       string
}

// Validate checks the configurable parts of a league.
func (l League) Validate() error {
	if l.Capacity < MinCapacity || l.Capacity > MaxCapacity {
		return errors.Wrapf(ErrInvalidCapacity, "capacity %d (want %d..%d)", l.Capacity, MinCapacity, MaxCapacity)
	}
	if _, err := ParseTeamMethod(string(l.TeamMethod)); err != nil {
		return err
	}
	if _, err := ParseCaptainMethod(string(l.CaptainMethod)); err != nil {
		return err
	}
	if _, err := ParseMapMethod(string(l.MapMethod)); err != nil {
		return err
	}
	switch {
	case l.TeamMethod == TeamAutobalance && l.Capacity%2 != 0:
		return errors.Wrapf(ErrIncompatible, "autobalance needs an even capacity, got %d", l.Capacity)
	case l.TeamMethod == TeamCaptains && l.Capacity > MaxDraftCapacity:
		return errors.Wrapf(ErrIncompatible, "captains draft takes at most %d players, got %d", MaxDraftCapacity, l.Capacity)
	}
		if len(l.MapPool) < MinMapPool {
		return errors.Wrapf(ErrMapPoolTooSmall, "%d maps (want at least %d)", len(l.MapPool), MinMapPool)
	}
	return nil
}

// Guild holds the guild wide settings shared by all of its leagues.
type Guild struct {
	ID           string
	LinkedRoleID string
	BannedRoleID string
}
