package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

const leadersShown = 5

// invalidator is implemented by the redis profile cache.
type invalidator interface {
	Invalidate(ctx context.Context, discordIDs ...string)
}

// LinkService ties Discord users to league accounts.
type LinkService struct {
	log      *zap.Logger
	api      LeagueAPI
	profiles ProfileSource
	guilds   GuildStore
	platform Platform
}

func NewLinkService(api LeagueAPI, profiles ProfileSource, guilds GuildStore, platform Platform, log *zap.Logger) *LinkService {
	if profiles == nil {
		profiles = api
	}
	return &LinkService{log: log, api: api, profiles: profiles, guilds: guilds, platform: platform}
}

// Link DMs the user their link URL.
func (s *LinkService) Link(ctx context.Context, userID string) (string, error) {
	linked, err := s.api.IsLinked(ctx, userID)
	if err != nil {
		return "", errors.Wrap(err, "check link")
	}
	if linked {
		return "Your account is already linked", nil
	}
	url, err := s.api.LinkURL(ctx, userID)
	if err != nil {
		return "", errors.Wrap(err, "link url")
	}
	if err := s.platform.SendDM(ctx, userID, "Link your account: "+url); err != nil {
		return "", errors.Wrap(err, "send dm")
	}
	return "Check your DMs for the link", nil
}

func (s *LinkService) Unlink(ctx context.Context, guildID, userID string) (string, error) {
	if err := s.api.Unlink(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "Your account is not linked", nil
		}
		return "", errors.Wrap(err, "unlink")
	}
	s.invalidate(ctx, userID)
	s.setRole(ctx, guildID, userID, false)
	return "Account unlinked", nil
}

// Check grants the linked role once the account is linked.
func (s *LinkService) Check(ctx context.Context, guildID, userID string) (string, error) {
	s.invalidate(ctx, userID)
	linked, err := s.api.IsLinked(ctx, userID)
	if err != nil {
		return "", errors.Wrap(err, "check link")
	}
	if !linked {
		s.setRole(ctx, guildID, userID, false)
		return "Your account is not linked, use /link", nil
	}
	s.setRole(ctx, guildID, userID, true)
	return "Account linked", nil
}

// Stats renders the profile of userID.
func (s *LinkService) Stats(ctx context.Context, guildID, userID string) (*discordgo.MessageEmbed, error) {
	p, err := s.api.GetPlayer(ctx, userID)
	if err != nil {
		return nil, err
	}
	field := func(name, value string) *discordgo.MessageEmbedField {
		return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: true}
	}
	return &discordgo.MessageEmbed{
		Title: s.platform.DisplayName(guildID, userID),
		URL:   p.ProfileURL,
		Color: 0x00ffff,
		Fields: []*discordgo.MessageEmbedField{
			field("Score", fmt.Sprint(p.Score)),
			field("Matches", fmt.Sprint(p.MatchesPlayed)),
			field("Win %", fmt.Sprintf("%.1f", p.WinPercent)),
			field("K/D", fmt.Sprintf("%.2f", p.KDRatio)),
			field("ADR", fmt.Sprintf("%.1f", p.ADR)),
			field("HS %", fmt.Sprintf("%.1f", p.HSPercent)),
		},
	}, nil
}

// Leaders ranks the guild's linked members by score.
func (s *LinkService) Leaders(ctx context.Context, guildID string) (*discordgo.MessageEmbed, error) {
	members := s.platform.GuildMembers(guildID)
	profs, err := s.profiles.GetPlayers(ctx, members)
	if err != nil {
		return nil, errors.Wrap(err, "load profiles")
	}
	slices.SortStableFunc(profs, func(a, b domain.PlayerProfile) int { return b.Score - a.Score })
	if len(profs) > leadersShown {
		profs = profs[:leadersShown]
	}
	desc := "_No linked players_"
	if len(profs) > 0 {
		desc = ""
		for i, p := range profs {
			desc += fmt.Sprintf("%d. <@%s> %d\n", i+1, p.DiscordID, p.Score)
		}
	}
	return &discordgo.MessageEmbed{Title: "Leaderboard", Description: desc, Color: 0x00ffff}, nil
}

func (s *LinkService) invalidate(ctx context.Context, userID string) {
	if c, ok := s.profiles.(invalidator); ok {
		c.Invalidate(ctx, userID)
	}
}

func (s *LinkService) setRole(ctx context.Context, guildID, userID string, add bool) {
	g, err := s.guilds.GetGuild(ctx, guildID)
	if err != nil || g.LinkedRoleID == "" {
		return
	}
	if add {
		err = s.platform.AddRole(ctx, guildID, userID, g.LinkedRoleID)
	} else {
		err = s.platform.RemoveRole(ctx, guildID, userID, g.LinkedRoleID)
	}
	if err != nil {
		s.log.Warn("linked role", zap.String("user_id", userID), zap.Bool("add", add), zap.Error(err))
	}
}
