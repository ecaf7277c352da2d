package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"github.com/jose-valero/pug-league-bot/internal/app/service"
	"github.com/jose-valero/pug-league-bot/internal/domain"
)

func (r *Router) dispatch(ctx context.Context, ic *discordgo.InteractionCreate, name string) {
	userID := ic.Member.User.ID
	switch name {
	case "link":
		r.text(ic, "link")(r.svc.Links.Link(ctx, userID))
	case "unlink":
		r.text(ic, "unlink")(r.svc.Links.Unlink(ctx, ic.GuildID, userID))
	case "check":
		r.text(ic, "check")(r.svc.Links.Check(ctx, ic.GuildID, userID))
	case "stats":
		e, err := r.svc.Links.Stats(ctx, ic.GuildID, userID)
		if errors.Is(err, domain.ErrNotFound) {
			r.reply(ic, "Your account is not linked, use /link")
			return
		}
		r.embed(ic, "stats", e, err)
	case "leaders":
		e, err := r.svc.Links.Leaders(ctx, ic.GuildID)
		r.embed(ic, "leaders", e, err)
	case "queue":
		r.cmdQueue(ctx, ic)
	case "league":
		r.cmdLeague(ctx, ic)
	case "spectators":
		r.cmdSpectators(ctx, ic)
	case "ban":
		r.cmdBan(ctx, ic)
	case "unban":
		if !r.requireAdmin(ic) {
			return
		}
		target := optUser(ic, "member")
		ok, err := r.svc.Bans.Unban(ctx, ic.GuildID, target)
		switch {
		case err != nil:
			r.fail(ic, "unban", err)
		case !ok:
			r.reply(ic, fmt.Sprintf("<@%s> is not banned.", target))
		default:
			r.reply(ic, fmt.Sprintf("✅ <@%s> unbanned.", target))
		}
	case "end":
		r.cmdEnd(ctx, ic)
	default:
		r.reply(ic, "Unknown command.")
	}
}

// text replies with the message of a service call, or reports its error.
func (r *Router) text(ic *discordgo.InteractionCreate, what string) func(string, error) {
	return func(msg string, err error) {
		if err != nil {
			r.fail(ic, what, err)
			return
		}
		r.reply(ic, msg)
	}
}

func (r *Router) embed(ic *discordgo.InteractionCreate, what string, e *discordgo.MessageEmbed, err error) {
	if err != nil {
		r.fail(ic, what, err)
		return
	}
	r.reply(ic, "", e)
}

func (r *Router) cmdQueue(ctx context.Context, ic *discordgo.InteractionCreate) {
	league, ok := r.leagueOf(ctx, ic)
	if !ok {
		return
	}
	switch subcmdName(ic) {
	case "show":
		ids, err := r.svc.Queue.Queued(ctx, league)
		if err != nil {
			r.fail(ic, "queue show", err)
			return
		}
		r.reply(ic, fmt.Sprintf("**%s** queue (%d/%d): %s", league.Name, len(ids), league.Capacity, mentionList(ids)))
	case "remove":
		if !r.requireAdmin(ic) {
			return
		}
		target := optUser(ic, "member")
		removed, err := r.svc.Queue.Remove(ctx, league, target)
		switch {
		case errors.Is(err, service.ErrBursting):
			r.reply(ic, "A match is starting, try again in a moment.")
		case err != nil:
			r.fail(ic, "queue remove", err)
		case !removed:
			r.reply(ic, fmt.Sprintf("<@%s> is not in the queue.", target))
		default:
			r.reply(ic, fmt.Sprintf("✅ Removed <@%s> from the queue.", target))
		}
	case "empty":
		if !r.requireAdmin(ic) {
			return
		}
		n, err := r.svc.Queue.Empty(ctx, league)
		switch {
		case errors.Is(err, service.ErrBursting):
			r.reply(ic, "A match is starting, try again in a moment.")
		case err != nil:
			r.fail(ic, "queue empty", err)
		default:
			r.reply(ic, fmt.Sprintf("✅ Queue emptied, %d removed.", n))
		}
	}
}

func (r *Router) cmdLeague(ctx context.Context, ic *discordgo.InteractionCreate) {
	if !r.requireAdmin(ic) {
		return
	}
	sub := subcmdName(ic)
	if sub == "create" {
		l, err := r.svc.Leagues.Create(ctx, ic.GuildID, optStr(ic, "name"))
		if err != nil {
			r.fail(ic, "league create", err)
			return
		}
		r.reply(ic, fmt.Sprintf("✅ League **%s** created.", l.Name), r.svc.Leagues.Describe(l))
		return
	}

	league, ok := r.leagueOf(ctx, ic)
	if !ok {
		return
	}
	var (
		updated domain.League
		err     error
	)
	switch sub {
	case "show":
		r.reply(ic, "", r.svc.Leagues.Describe(league))
		return
	case "delete":
		// the command's own channel goes away with the league
		if err := r.svc.Leagues.Delete(ctx, league); err != nil {
			r.userError(ic, "league delete", err)
		}
		return
	case "cap":
		n, _ := optInt(ic, "capacity")
		updated, err = r.svc.Leagues.SetCapacity(ctx, league, n)
	case "teams":
		updated, err = r.svc.Leagues.SetTeamMethod(ctx, league, optStr(ic, "method"))
	case "captains":
		updated, err = r.svc.Leagues.SetCaptainMethod(ctx, league, optStr(ic, "method"))
	case "maps":
		updated, err = r.svc.Leagues.SetMapMethod(ctx, league, optStr(ic, "method"))
	case "matchtype":
		updated, err = r.svc.Leagues.SetMatchTypeVote(ctx, league, optBool(ic, "enabled"))
	case "mpool":
		updated, err = r.svc.Leagues.EditMapPool(ctx, league, strings.Fields(optStr(ic, "changes")))
	case "region":
		updated, err = r.svc.Leagues.SetRegion(ctx, league, optStr(ic, "region"))
	default:
		r.reply(ic, "Unknown subcommand.")
		return
	}
	if err != nil {
		r.userError(ic, "league "+sub, err)
		return
	}
	r.reply(ic, "✅ Saved.", r.svc.Leagues.Describe(updated))
}

// userError reports errors the admin can fix in plain words.
func (r *Router) userError(ic *discordgo.InteractionCreate, what string, err error) {
	switch {
	case errors.Is(err, service.ErrLeagueBusy), errors.Is(err, service.ErrBursting):
		r.reply(ic, "A match of this league is starting or running, try again later.")
	case errors.Is(err, domain.ErrInvalidCapacity),
		errors.Is(err, domain.ErrUnknownMethod),
		errors.Is(err, domain.ErrMapPoolTooSmall),
		errors.Is(err, domain.ErrIncompatible),
		errors.Is(err, domain.ErrNotFound):
		r.reply(ic, "❌ "+err.Error())
	default:
		r.fail(ic, what, err)
	}
}

func (r *Router) cmdSpectators(ctx context.Context, ic *discordgo.InteractionCreate) {
	if !r.requireAdmin(ic) {
		return
	}
	league, ok := r.leagueOf(ctx, ic)
	if !ok {
		return
	}
	ids := parseIDs(optStr(ic, "members"))
	switch subcmdName(ic) {
	case "add":
		added, err := r.svc.Spectators.Add(ctx, league, ids...)
		if err != nil {
			r.fail(ic, "spectators add", err)
			return
		}
		r.reply(ic, "Added spectators: "+mentionList(added))
	case "remove":
		removed, err := r.svc.Spectators.Remove(ctx, league, ids...)
		if err != nil {
			r.fail(ic, "spectators remove", err)
			return
		}
		r.reply(ic, "Removed spectators: "+mentionList(removed))
	case "list":
		all, err := r.svc.Spectators.List(ctx, league)
		if err != nil {
			r.fail(ic, "spectators list", err)
			return
		}
		r.reply(ic, "Spectators: "+mentionList(all))
	}
}

func (r *Router) cmdBan(ctx context.Context, ic *discordgo.InteractionCreate) {
	if !r.requireAdmin(ic) {
		return
	}
	d, err := service.ParseBanDuration(optStr(ic, "duration"))
	if err != nil {
		r.reply(ic, "❌ "+err.Error())
		return
	}
	target := optUser(ic, "member")
	if _, err := r.svc.Bans.Ban(ctx, ic.GuildID, target, d); err != nil {
		r.fail(ic, "ban", err)
		return
	}
	r.reply(ic, fmt.Sprintf("🔨 <@%s> banned %s.", target, fmtRemain(d)))
}

func (r *Router) cmdEnd(ctx context.Context, ic *discordgo.InteractionCreate) {
	if !r.requireAdmin(ic) {
		return
	}
	league, ok := r.leagueOf(ctx, ic)
	if !ok {
		return
	}
	matchID := strings.TrimSpace(optStr(ic, "match"))
	ended, err := r.svc.Matches.ForceEnd(ctx, league.ID, matchID)
	switch {
	case err != nil:
		r.fail(ic, "end match", err)
	case !ended:
		r.reply(ic, fmt.Sprintf("No running match `%s` in this league.", matchID))
	default:
		r.reply(ic, fmt.Sprintf("✅ Match `%s` ended.", matchID))
	}
}
