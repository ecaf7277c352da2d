package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pug")
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("DISCORD_GUILD_ID", "guild")
}

func TestParseDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_ROLE_IDS", "r1,r2")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"r1", "r2"}, cfg.AdminRoleIDs)
	assert.Equal(t, 10*time.Second, cfg.MatchPoll())
	assert.Equal(t, 60*time.Second, cfg.ReadyTimeout())
	assert.Equal(t, 10*time.Minute, cfg.DraftTimeout())
	assert.Empty(t, cfg.RedisURL)
}

func TestParseMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("DISCORD_GUILD_ID", "guild")
	_, err := Parse()
	assert.Error(t, err)
}

func TestParseRejectsNonPositiveTimeouts(t *testing.T) {
	setRequired(t)
	t.Setenv("VOTE_TIMEOUT_SECONDS", "0")
	_, err := Parse()
	assert.ErrorContains(t, err, "VOTE_TIMEOUT_SECONDS")
}

func TestParseLambda(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pug")
	cfg, err := ParseLambda()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cfg.EventRetention())

	t.Setenv("EVENT_RETENTION_DAYS", "-1")
	_, err = ParseLambda()
	assert.ErrorContains(t, err, "EVENT_RETENTION_DAYS")
}
