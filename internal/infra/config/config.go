package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	DatabaseURL  string `env:"DATABASE_URL,required,notEmpty"`
	DiscordToken string `env:"DISCORD_BOT_TOKEN,required,notEmpty"`
	DiscordGuild string `env:"DISCORD_GUILD_ID,required,notEmpty"`

	LeagueAPIURL  string `env:"LEAGUE_API_URL" envDefault:"http://localhost:3000"`
	LeagueAPIKey  string `env:"LEAGUE_API_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`

	// empty disables the profile cache
	RedisURL string `env:"REDIS_URL"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	AdminRoleIDs []string `env:"ADMIN_ROLE_IDS" envSeparator:","`

	MatchPollSeconds    int `env:"MATCH_POLL_SECONDS" envDefault:"10"`
	BanSweepSeconds     int `env:"BAN_SWEEP_SECONDS" envDefault:"60"`
	ReadyTimeoutSeconds int `env:"READY_TIMEOUT_SECONDS" envDefault:"60"`
	DraftTimeoutSeconds int `env:"DRAFT_TIMEOUT_SECONDS" envDefault:"600"`
	VoteTimeoutSeconds  int `env:"VOTE_TIMEOUT_SECONDS" envDefault:"60"`

	MapsFile string `env:"MAPS_FILE"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "parse env")
	}
	for name, v := range map[string]int{
		"MATCH_POLL_SECONDS":    cfg.MatchPollSeconds,
		"BAN_SWEEP_SECONDS":     cfg.BanSweepSeconds,
		"READY_TIMEOUT_SECONDS": cfg.ReadyTimeoutSeconds,
		"DRAFT_TIMEOUT_SECONDS": cfg.DraftTimeoutSeconds,
		"VOTE_TIMEOUT_SECONDS":  cfg.VoteTimeoutSeconds,
	} {
		if v <= 0 {
			return cfg, errors.Errorf("%s must be positive, got %d", name, v)
		}
	}
	return cfg, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c Config) MatchPoll() time.Duration    { return seconds(c.MatchPollSeconds) }
func (c Config) BanSweep() time.Duration     { return seconds(c.BanSweepSeconds) }
func (c Config) ReadyTimeout() time.Duration { return seconds(c.ReadyTimeoutSeconds) }
func (c Config) DraftTimeout() time.Duration { return seconds(c.DraftTimeoutSeconds) }
func (c Config) VoteTimeout() time.Duration  { return seconds(c.VoteTimeoutSeconds) }

// LambdaConfig is what the webhook and janitor functions read.
type LambdaConfig struct {
	DatabaseURL   string `env:"DATABASE_URL,required,notEmpty"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	EventRetentionDays int `env:"EVENT_RETENTION_DAYS" envDefault:"7"`
}

func ParseLambda() (LambdaConfig, error) {
	var cfg LambdaConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "parse env")
	}
	if cfg.EventRetentionDays <= 0 {
		return cfg, errors.Errorf("EVENT_RETENTION_DAYS must be positive, got %d", cfg.EventRetentionDays)
	}
	return cfg, nil
}

func (c LambdaConfig) EventRetention() time.Duration {
	return time.Duration(c.EventRetentionDays) * 24 * time.Hour
}
