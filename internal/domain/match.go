package domain

import "time"

// Map is a playable map from the catalog.
type Map struct {
	DevName  string `yaml:"dev_name" json:"dev_name"`
	Name     string `yaml:"name" json:"name"`
	Emoji    string `yaml:"emoji" json:"emoji"`
	ImageURL string `yaml:"image_url" json:"image_url"`
}

// MatchRequest is sent to the league API to allocate a server.
type MatchRequest struct {
	LeagueID   string   `json:"league_id"`
	TeamOne    []string `json:"team_one"`
	TeamTwo    []string `json:"team_two"`
	Spectators []string `json:"spectators"`
	Maps       []string `json:"maps"`
}

// Match is a server-backed match returned by the league API.
type Match struct {
	ID             string `json:"id"`
	ConnectURL     string `json:"connect_url"`
	ConnectCommand string `json:"connect_command"`
	PageURL        string `json:"page_url"`
}

// ActiveMatch tracks the voice channels owned by a running match.
type ActiveMatch struct {
	MatchID       string
	LeagueID      string
	GuildID       string
	CategoryID    string
	TeamOneChanID string
	TeamTwoChanID string
	TeamOne       []string
	TeamTwo       []string
	Maps          []string
	CreatedAt     time.Time
}

// Players returns both rosters, team one first.
func (m ActiveMatch) Players() []string {
	out := make([]string, 0, len(m.TeamOne)+len(m.TeamTwo))
	out = append(out, m.TeamOne...)
	return append(out, m.TeamTwo...)
}

// Has reports whether userID plays in the match.
func (m ActiveMatch) Has(userID string) bool {
	for _, id := range m.Players() {
		if id == userID {
			return true
		}
	}
	return false
}
