package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/adapters/discord"
	"github.com/jose-valero/pug-league-bot/internal/adapters/httpapi"
	"github.com/jose-valero/pug-league-bot/internal/adapters/leagueapi"
	"github.com/jose-valero/pug-league-bot/internal/app/service"
	"github.com/jose-valero/pug-league-bot/internal/draft"
	"github.com/jose-valero/pug-league-bot/internal/infra/cache"
	"github.com/jose-valero/pug-league-bot/internal/infra/catalog"
	"github.com/jose-valero/pug-league-bot/internal/infra/config"
	"github.com/jose-valero/pug-league-bot/internal/infra/logging"
	"github.com/jose-valero/pug-league-bot/internal/infra/metrics"
	"github.com/jose-valero/pug-league-bot/internal/infra/storage"
)

func main() {
	app := &cli.App{
		Name:           "pug-bot",
		Usage:          "Discord PUG queues for the league",
		DefaultCommand: "run",
		Commands: []*cli.Command{
			{Name: "run", Usage: "connect to Discord and serve the queues", Action: run},
			{Name: "migrate", Usage: "apply database migrations and exit", Action: migrate},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logging.New("info", "json").Fatal("exit", zap.Error(err))
	}
}

func migrate(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	db, err := storage.Open(c.Context, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		return errors.Wrap(err, "migrate")
	}
	log.Info("migrations applied")
	return nil
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		return errors.Wrap(err, "migrate")
	}
	pool, err := storage.OpenPool(ctx, cfg.DatabaseURL, 4)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("database ready")

	guilds := storage.NewGuildRepo(db)
	leagues := storage.NewLeagueRepo(db)
	queue := storage.NewQueueRepo(db)
	spectators := storage.NewSpectatorRepo(db)
	bans := storage.NewBanRepo(db)
	matchRepo := storage.NewMatchRepo(db)
	ui := storage.NewUIRepo(db)

	api := leagueapi.New(cfg.LeagueAPIURL, cfg.LeagueAPIKey, leagueapi.WithLogger(log.Named("leagueapi")))
	var profiles service.ProfileSource = api
	if cfg.RedisURL != "" {
		rdb, err := cache.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		profiles = cache.NewProfiles(rdb, api, cache.TTLProfile, log.Named("cache"))
		log.Info("profile cache enabled")
	}

	maps, err := catalog.Load(cfg.MapsFile)
	if err != nil {
		return err
	}
	m := metrics.New()

	// Discord session
	auth := strings.TrimSpace(cfg.DiscordToken)
	if !strings.HasPrefix(strings.ToLower(auth), "bot ") {
		auth = "Bot " + auth
	}
	s, err := discordgo.New(auth)
	if err != nil {
		return errors.Wrap(err, "discord session")
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessageReactions
	s.State.TrackVoice = true
	s.State.TrackMembers = true
	platform := discord.NewPlatform(s)

	bus := draft.NewBus()
	runner := draft.NewRunner(platform, bus, log.Named("draft"),
		draft.WithReadyTimeout(cfg.ReadyTimeout()),
		draft.WithDraftTimeout(cfg.DraftTimeout()),
		draft.WithVoteTimeout(cfg.VoteTimeout()),
		draft.WithObserver(m),
	)

	// Services
	matchSvc := service.NewMatchService(service.MatchDeps{
		API:        api,
		Profiles:   profiles,
		Leagues:    leagues,
		Queue:      queue,
		Spectators: spectators,
		Matches:    matchRepo,
		Catalog:    maps,
		Platform:   platform,
		Runner:     runner,
		Metrics:    m,
	}, log.Named("matches"))
	queueSvc := service.NewQueueService(service.QueueDeps{
		Leagues:    leagues,
		Queue:      queue,
		Spectators: spectators,
		Bans:       bans,
		API:        api,
		Matches:    matchSvc,
		Platform:   platform,
		Display:    service.NewQueueDisplay(platform, ui, queue, profiles, log.Named("display")),
		Metrics:    m,
	}, log.Named("queue"))
	leagueSvc := service.NewLeagueService(leagues, guilds, queueSvc, matchSvc, platform, maps, catalog.DefaultPool, log.Named("leagues"))
	banSvc := service.NewBanService(bans, guilds, leagues, queueSvc, platform, log.Named("bans"))
	linkSvc := service.NewLinkService(api, profiles, guilds, platform, log.Named("links"))
	spectSvc := service.NewSpectatorService(spectators, queueSvc)

	router := discord.NewRouter(s, discord.Services{
		Queue:      queueSvc,
		Matches:    matchSvc,
		Leagues:    leagueSvc,
		Bans:       banSvc,
		Links:      linkSvc,
		Spectators: spectSvc,
		LeagueRepo: leagues,
		Bus:        bus,
	}, cfg.AdminRoleIDs, log.Named("discord"))
	router.Register()

	if err := matchSvc.Restore(ctx); err != nil {
		return err
	}

	// Voice states arrive with GUILD_CREATE, the lobbies are synced after it.
	var lobbiesSynced sync.Once
	s.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		if g.ID != cfg.DiscordGuild {
			return
		}
		lobbiesSynced.Do(func() { go syncLobbies(ctx, log, g.ID, queueSvc, leagues) })
	})

	if err := s.Open(); err != nil {
		return errors.Wrap(err, "discord open")
	}
	defer s.Close()
	log.Info("connected", zap.String("user", s.State.User.Username), zap.String("user_id", s.State.User.ID))

	if err := router.RegisterCommands(cfg.DiscordGuild); err != nil {
		return err
	}
	log.Info("commands registered", zap.String("guild_id", cfg.DiscordGuild))

	// Background loops
	go banSvc.Run(ctx, cfg.BanSweep())
	go matchSvc.Run(ctx, cfg.MatchPoll())
	go storage.NewMatchEventListener(pool, log.Named("events")).Listen(ctx, matchSvc.Ended)

	web := httpapi.New(cfg.WebhookSecret, storage.NewMatchEvents(pool), matchSvc.Ended, m.Handler(), log.Named("http"))
	errc := make(chan error, 1)
	go func() { errc <- web.ListenAndServe(ctx, cfg.HTTPAddr) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return <-errc
	case err := <-errc:
		return err
	}
}

func syncLobbies(ctx context.Context, log *zap.Logger, guildID string, queue *service.QueueService, leagues service.LeagueStore) {
	ls, err := leagues.ListLeagues(ctx, guildID)
	if err != nil {
		log.Error("list leagues", zap.Error(err))
		return
	}
	for _, l := range ls {
		if err := queue.Sync(ctx, l); err != nil {
			log.Warn("sync queue", zap.String("league_id", l.ID), zap.Error(err))
		}
	}
	log.Info("lobbies synced", zap.Int("leagues", len(ls)))
}
