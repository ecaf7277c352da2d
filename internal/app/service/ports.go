package service

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/pug-league-bot/internal/domain"
	"github.com/jose-valero/pug-league-bot/internal/draft"
)

// LeagueAPI is implemented by internal/adapters/leagueapi.Client. GetPlayer
// returns domain.ErrNotFound for users that never linked an account.
type LeagueAPI interface {
	IsLinked(ctx context.Context, discordID string) (bool, error)
	GetPlayer(ctx context.Context, discordID string) (domain.PlayerProfile, error)
	GetPlayers(ctx context.Context, discordIDs []string) ([]domain.PlayerProfile, error)
	StartMatch(ctx context.Context, req domain.MatchRequest) (domain.Match, error)
	MatchesStatus(ctx context.Context, matchIDs []string) (map[string]bool, error)
	EndMatch(ctx context.Context, matchID string) error
	LinkURL(ctx context.Context, discordID string) (string, error)
	Unlink(ctx context.Context, discordID string) error
}

// ProfileSource serves profiles for display. The API client or the redis
// cache in front of it.
type ProfileSource interface {
	GetPlayers(ctx context.Context, discordIDs []string) ([]domain.PlayerProfile, error)
}

// MapCatalog is implemented by internal/infra/catalog.Catalog.
type MapCatalog interface {
	Resolve(devNames []string) ([]domain.Map, error)
	Get(devName string) (domain.Map, bool)
}

// Platform is the chat and voice surface, implemented by
// internal/adapters/discord.Platform. @everyone's role id is the guild id.
type Platform interface {
	draft.Surface

	SendMessage(ctx context.Context, channelID, content string, embed *discordgo.MessageEmbed) (string, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendDM(ctx context.Context, userID, content string) error

	DisplayName(guildID, userID string) string
	VoiceChannelOf(guildID, userID string) string
	VoiceMembers(guildID, channelID string) []string
	GuildMembers(guildID string) []string
	MoveMember(ctx context.Context, guildID, userID, channelID string) error

	CreateCategory(ctx context.Context, guildID, name string) (string, error)
	CreateTextChannel(ctx context.Context, guildID, parentID, name string) (string, error)
	CreateVoiceChannel(ctx context.Context, guildID, parentID, name string, userLimit int) (string, error)
	SetUserLimit(ctx context.Context, channelID string, limit int) error
	DeleteChannel(ctx context.Context, channelID string) error

	SetMemberConnect(ctx context.Context, channelID, userID string, allow bool) error
	ClearMemberOverride(ctx context.Context, channelID, userID string) error
	SetRoleConnect(ctx context.Context, channelID, roleID string, allow bool) error
	SetRoleSend(ctx context.Context, channelID, roleID string, allow bool) error

	CreateRole(ctx context.Context, guildID, name string) (string, error)
	DeleteRole(ctx context.Context, guildID, roleID string) error
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

// Stores, implemented by internal/infra/storage.

type GuildStore interface {
	GetGuild(ctx context.Context, guildID string) (domain.Guild, error)
	SaveGuild(ctx context.Context, g domain.Guild) error
}

type LeagueStore interface {
	GetLeague(ctx context.Context, id string) (domain.League, error)
	LeagueByLobby(ctx context.Context, channelID string) (domain.League, error)
	ListLeagues(ctx context.Context, guildID string) ([]domain.League, error)
	SaveLeague(ctx context.Context, l domain.League) error
	DeleteLeague(ctx context.Context, id string) error
}

type QueueStore interface {
	Queued(ctx context.Context, leagueID string) ([]string, error)
	Enqueue(ctx context.Context, leagueID, userID string) (bool, error)
	Dequeue(ctx context.Context, leagueID string, userIDs ...string) ([]string, error)
	ClearQueue(ctx context.Context, leagueID string) ([]string, error)
	QueuedIn(ctx context.Context, userID string) (string, bool, error)
}

type SpectatorStore interface {
	Spectators(ctx context.Context, leagueID string) ([]string, error)
	AddSpectators(ctx context.Context, leagueID string, userIDs ...string) ([]string, error)
	RemoveSpectators(ctx context.Context, leagueID string, userIDs ...string) ([]string, error)
	IsSpectator(ctx context.Context, leagueID, userID string) (bool, error)
}

type BanStore interface {
	GetBan(ctx context.Context, guildID, userID string) (domain.Ban, bool, error)
	SaveBan(ctx context.Context, b domain.Ban) error
	DeleteBan(ctx context.Context, guildID, userID string) (bool, error)
	ExpiredBans(ctx context.Context, now time.Time) ([]domain.Ban, error)
}

type MatchStore interface {
	SaveMatch(ctx context.Context, m domain.ActiveMatch) error
	DeleteMatch(ctx context.Context, matchID string) error
	ListMatches(ctx context.Context) ([]domain.ActiveMatch, error)
}

type QueueMessageStore interface {
	QueueMessage(ctx context.Context, leagueID string) (string, string, error)
	SaveQueueMessage(ctx context.Context, leagueID, channelID, messageID string) error
}

// Recorder is implemented by internal/infra/metrics.Metrics.
type Recorder interface {
	Admission(leagueID, result string)
	Burst(leagueID string)
	ReadyFailed(leagueID string)
	MatchStarted(leagueID string)
	MatchFailed(leagueID, reason string)
	SetActiveMatches(n int)
}

type nopRecorder struct{}

func (nopRecorder) Admission(string, string)   {}
func (nopRecorder) Burst(string)               {}
func (nopRecorder) ReadyFailed(string)         {}
func (nopRecorder) MatchStarted(string)        {}
func (nopRecorder) MatchFailed(string, string) {}
func (nopRecorder) SetActiveMatches(int)       {}
