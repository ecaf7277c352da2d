package leagueapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

type linkedDTO struct {
	Linked bool `json:"linked"`
}

type linkDTO struct {
	URL string `json:"url"`
}

type matchStatusDTO struct {
	ID   string `json:"id"`
	Live bool   `json:"live"`
}

func (c *Client) IsLinked(ctx context.Context, discordID string) (bool, error) {
	var dto linkedDTO
	err := c.doJSON(ctx, http.MethodGet, "/discord/"+url.PathEscape(discordID)+"/linked", nil, nil, &dto)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return dto.Linked, err
}

func (c *Client) GetPlayer(ctx context.Context, discordID string) (domain.PlayerProfile, error) {
	var p domain.PlayerProfile
	if err := c.doJSON(ctx, http.MethodGet, "/players/discord/"+url.PathEscape(discordID), nil, nil, &p); err != nil {
		return domain.PlayerProfile{}, err
	}
	p.DiscordID = discordID
	return p, nil
}

const playersPerRequest = 100

// GetPlayers returns the profiles of the linked ids only.
func (c *Client) GetPlayers(ctx context.Context, discordIDs []string) ([]domain.PlayerProfile, error) {
	var out []domain.PlayerProfile
	for _, chunk := range lo.Chunk(discordIDs, playersPerRequest) {
		var page []domain.PlayerProfile
		if err := c.doJSON(ctx, http.MethodGet, "/players", url.Values{"discord_id": chunk}, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page...)
	}
	return out, nil
}

// StartMatch asks for a server. Any error means no match was created.
func (c *Client) StartMatch(ctx context.Context, req domain.MatchRequest) (domain.Match, error) {
	var m domain.Match
	if err := c.doJSON(ctx, http.MethodPost, "/matches", nil, req, &m); err != nil {
		return domain.Match{}, err
	}
	if m.ID == "" {
		return domain.Match{}, errors.New("league api returned a match without id")
	}
	return m, nil
}

// MatchesStatus reports whether each known match is still live. Ids the API
// does not know are left out.
func (c *Client) MatchesStatus(ctx context.Context, matchIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(matchIDs))
	if len(matchIDs) == 0 {
		return out, nil
	}
	var dtos []matchStatusDTO
	if err := c.doJSON(ctx, http.MethodGet, "/matches/status", url.Values{"id": matchIDs}, nil, &dtos); err != nil {
		return nil, err
	}
	for _, d := range dtos {
		out[d.ID] = d.Live
	}
	return out, nil
}

func (c *Client) EndMatch(ctx context.Context, matchID string) error {
	return c.doJSON(ctx, http.MethodPost, "/matches/"+url.PathEscape(matchID)+"/end", nil, nil, nil)
}

func (c *Client) LinkURL(ctx context.Context, discordID string) (string, error) {
	var dto linkDTO
	if err := c.doJSON(ctx, http.MethodPost, "/discord/"+url.PathEscape(discordID)+"/link", nil, nil, &dto); err != nil {
		return "", err
	}
	return dto.URL, nil
}

func (c *Client) Unlink(ctx context.Context, discordID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/discord/"+url.PathEscape(discordID)+"/link", nil, nil, nil)
}
