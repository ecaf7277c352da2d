package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

// SpectatorService manages who watches a league's matches. Spectators are
// pulled out of the queue when added.
type SpectatorService struct {
	spects SpectatorStore
	queue  *QueueService
}

func NewSpectatorService(spects SpectatorStore, queue *QueueService) *SpectatorService {
	return &SpectatorService{spects: spects, queue: queue}
}

// Add returns the ids that were not spectators before.
func (s *SpectatorService) Add(ctx context.Context, league domain.League, userIDs ...string) ([]string, error) {
	added, err := s.spects.AddSpectators(ctx, league.ID, userIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "add spectators")
	}
	for _, id := range added {
		if _, err := s.queue.Remove(ctx, league, id); err != nil && !errors.Is(err, ErrBursting) {
			return added, err
		}
	}
	return added, nil
}

// Remove returns the ids that were spectators.
func (s *SpectatorService) Remove(ctx context.Context, league domain.League, userIDs ...string) ([]string, error) {
	removed, err := s.spects.RemoveSpectators(ctx, league.ID, userIDs...)
	return removed, errors.Wrap(err, "remove spectators")
}

func (s *SpectatorService) List(ctx context.Context, league domain.League) ([]string, error) {
	return s.spects.Spectators(ctx, league.ID)
}
