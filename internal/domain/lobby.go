package domain

import "fmt"

// LobbyState is the admission state of one league. Only Idle admits players,
// Bursting owns the whole queue until the match attempt is over.
type LobbyState int

const (
	LobbyIdle LobbyState = iota
	LobbyAdmitting
	LobbyBursting
)

func (s LobbyState) String() string {
	switch s {
	case LobbyIdle:
		return "idle"
	case LobbyAdmitting:
		return "admitting"
	case LobbyBursting:
		return "bursting"
	}
	return fmt.Sprintf("LobbyState(%d)", int(s))
}

// CanTransition lists the legal guard moves.
func (s LobbyState) CanTransition(to LobbyState) bool {
	switch s {
	case LobbyIdle:
		return to == LobbyAdmitting || to == LobbyBursting
	case LobbyAdmitting:
		return to == LobbyIdle || to == LobbyBursting
	case LobbyBursting:
		return to == LobbyIdle
	}
	return false
}
