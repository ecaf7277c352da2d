package discord

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxTrackedUsers = 10000

// userLimiter gives each user a token bucket for slash commands.
type userLimiter struct {
	mu    sync.Mutex
	users map[string]*rate.Limiter
	every time.Duration
	burst int
}

func newUserLimiter(every time.Duration, burst int) *userLimiter {
	return &userLimiter{users: map[string]*rate.Limiter{}, every: every, burst: burst}
}

func (l *userLimiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.users[userID]
	if !ok {
		if len(l.users) >= maxTrackedUsers {
			l.users = map[string]*rate.Limiter{}
		}
		lim = rate.NewLimiter(rate.Every(l.every), l.burst)
		l.users[userID] = lim
	}
	return lim.Allow()
}
