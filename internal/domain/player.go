package domain

import "time"

// PlayerProfile is what the league API knows about a linked player.
type PlayerProfile struct {
	DiscordID     string  `json:"discord_id"`
	SteamID       string  `json:"steam_id"`
	ProfileURL    string  `json:"profile_url"`
	Score         int     `json:"score"`
	MatchesPlayed int     `json:"matches_played"`
	WinPercent    float64 `json:"win_percent"`
	KDRatio       float64 `json:"kd_ratio"`
	ADR           float64 `json:"adr"`
	HSPercent     float64 `json:"hs_percent"`
	FirstBlood    float64 `json:"first_blood_rate"`
	InMatch       bool    `json:"in_match"`
}

// Ban marks a user as unable to queue in a guild. A nil UnbanAt is a
// permanent ban.
type Ban struct {
	GuildID string
	UserID  string
	UnbanAt *time.Time
}

func (b Ban) Permanent() bool { return b.UnbanAt == nil }

// Active reports whether the ban still applies at now.
func (b Ban) Active(now time.Time) bool {
	return b.UnbanAt == nil || now.Before(*b.UnbanAt)
}

// Remaining is zero for permanent or expired bans.
func (b Ban) Remaining(now time.Time) time.Duration {
	if b.UnbanAt == nil || !now.Before(*b.UnbanAt) {
		return 0
	}
	return b.UnbanAt.Sub(now)
}
