package leagueapi

import (
	"fmt"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

// ErrNotFound is returned on 404, for players that never linked an account
// among others.
var ErrNotFound = domain.ErrNotFound

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("league api status %d: %s", e.Status, e.Body)
}
