package discord

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/app/service"
	"github.com/jose-valero/pug-league-bot/internal/domain"
	"github.com/jose-valero/pug-league-bot/internal/draft"
)

const (
	commandTimeout  = 15 * time.Second
	reactionTimeout = 5 * time.Second
)

// Services is what the router dispatches to.
type Services struct {
	Queue      *service.QueueService
	Matches    *service.MatchService
	Leagues    *service.LeagueService
	Bans       *service.BanService
	Links      *service.LinkService
	Spectators *service.SpectatorService
	LeagueRepo service.LeagueStore
	Bus        *draft.Bus
}

type Router struct {
	s            *discordgo.Session
	log          *zap.Logger
	svc          Services
	adminRoleIDs []string
	limiter      *userLimiter
}

func NewRouter(s *discordgo.Session, svc Services, adminRoleIDs []string, log *zap.Logger) *Router {
	return &Router{
		s:            s,
		log:          log,
		svc:          svc,
		adminRoleIDs: adminRoleIDs,
		limiter:      newUserLimiter(2*time.Second, 3),
	}
}

// Register adds the gateway handlers to the session.
func (r *Router) Register() {
	r.s.AddHandler(r.onInteraction)
	r.s.AddHandler(r.onVoiceState)
	r.s.AddHandler(r.onReaction)
}

func (r *Router) recoverPanic(event string) {
	if rec := recover(); rec != nil {
		r.log.Error("handler panic",
			zap.String("event", event),
			zap.Any("panic", rec),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}

// onVoiceState feeds lobby joins and leaves to the queue. A join that fills
// the queue blocks here for the whole burst.
func (r *Router) onVoiceState(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	defer r.recoverPanic("voice_state")
	if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
		return
	}
	before := ""
	if vs.BeforeUpdate != nil {
		before = vs.BeforeUpdate.ChannelID
	}
	if err := r.svc.Queue.OnVoiceState(context.Background(), vs.GuildID, vs.UserID, before, vs.ChannelID); err != nil {
		r.log.Error("voice state", zap.String("user_id", vs.UserID), zap.Error(err))
	}
}

func (r *Router) onReaction(s *discordgo.Session, ev *discordgo.MessageReactionAdd) {
	defer r.recoverPanic("reaction")
	if s.State.User != nil && ev.UserID == s.State.User.ID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), reactionTimeout)
	defer cancel()
	r.svc.Bus.Publish(ctx, draft.Reaction{
		ChannelID: ev.ChannelID,
		MessageID: ev.MessageID,
		UserID:    ev.UserID,
		Emoji:     emojiName(ev.Emoji),
	})
}

func (r *Router) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	defer r.recoverPanic("interaction")
	if ic.Type != discordgo.InteractionApplicationCommand || ic.Member == nil || ic.Member.User == nil {
		return
	}
	userID := ic.Member.User.ID
	if !r.limiter.Allow(userID) {
		_ = s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "⏳ Slow down a bit.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		return
	}
	r.deferEphemeral(ic)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	name := ic.ApplicationCommandData().Name
	start := time.Now()
	r.dispatch(ctx, ic, name)
	r.log.Debug("command",
		zap.String("command", name),
		zap.String("subcommand", subcmdName(ic)),
		zap.String("user_id", userID),
		zap.Duration("took", time.Since(start)),
	)
}

// leagueOf resolves the league whose category holds the channel the
// command was used in.
func (r *Router) leagueOf(ctx context.Context, ic *discordgo.InteractionCreate) (domain.League, bool) {
	ch, err := r.s.State.Channel(ic.ChannelID)
	if err != nil {
		if ch, err = r.s.Channel(ic.ChannelID, discordgo.WithContext(ctx)); err != nil {
			r.fail(ic, "resolve channel", err)
			return domain.League{}, false
		}
		_ = r.s.State.ChannelAdd(ch)
	}
	if ch.ParentID == "" {
		r.reply(ic, "Use this command in a league channel.")
		return domain.League{}, false
	}
	league, err := r.svc.LeagueRepo.GetLeague(ctx, ch.ParentID)
	if errors.Is(err, domain.ErrNotFound) {
		r.reply(ic, "Use this command in a league channel.")
		return domain.League{}, false
	}
	if err != nil {
		r.fail(ic, "load league", err)
		return domain.League{}, false
	}
	return league, true
}

func (r *Router) fail(ic *discordgo.InteractionCreate, what string, err error) {
	r.log.Error(what, zap.String("command", ic.ApplicationCommandData().Name), zap.Error(err))
	r.reply(ic, "❌ Something went wrong, try again later.")
}

// RegisterCommands replaces the guild's slash commands with Commands.
func (r *Router) RegisterCommands(guildID string) error {
	if r.s.State.User == nil {
		return errors.New("session not open")
	}
	_, err := r.s.ApplicationCommandBulkOverwrite(r.s.State.User.ID, guildID, Commands)
	return errors.Wrap(err, "register commands")
}
