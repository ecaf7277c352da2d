package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"github.com/jose-valero/pug-league-bot/internal/app/service"
)

var _ service.Platform = (*Platform)(nil)

// Platform runs the bot's chat and voice operations on a discordgo session.
// Lookups read the session state cache, everything else goes to REST.
type Platform struct {
	s *discordgo.Session
}

func NewPlatform(s *discordgo.Session) *Platform {
	return &Platform{s: s}
}

func withCtx(ctx context.Context) discordgo.RequestOption { return discordgo.WithContext(ctx) }

func (p *Platform) EditEmbed(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error {
	_, err := p.s.ChannelMessageEditEmbed(channelID, messageID, embed, withCtx(ctx))
	return err
}

func (p *Platform) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return p.s.MessageReactionAdd(channelID, messageID, emoji, withCtx(ctx))
}

func (p *Platform) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	return p.s.MessageReactionRemove(channelID, messageID, emoji, userID, withCtx(ctx))
}

func (p *Platform) ClearReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return p.s.MessageReactionsRemoveEmoji(channelID, messageID, emoji, withCtx(ctx))
}

func (p *Platform) ClearReactions(ctx context.Context, channelID, messageID string) error {
	return p.s.MessageReactionsRemoveAll(channelID, messageID, withCtx(ctx))
}

func (p *Platform) SendMessage(ctx context.Context, channelID, content string, embed *discordgo.MessageEmbed) (string, error) {
	send := &discordgo.MessageSend{Content: content}
	if embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}
	msg, err := p.s.ChannelMessageSendComplex(channelID, send, withCtx(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return p.s.ChannelMessageDelete(channelID, messageID, withCtx(ctx))
}

func (p *Platform) SendDM(ctx context.Context, userID, content string) error {
	ch, err := p.s.UserChannelCreate(userID, withCtx(ctx))
	if err != nil {
		return errors.Wrap(err, "open dm")
	}
	_, err = p.s.ChannelMessageSend(ch.ID, content, withCtx(ctx))
	return err
}

func (p *Platform) DisplayName(guildID, userID string) string {
	m, err := p.s.State.Member(guildID, userID)
	if err != nil || m.User == nil {
		return ""
	}
	return m.DisplayName()
}

func (p *Platform) VoiceChannelOf(guildID, userID string) string {
	vs, err := p.s.State.VoiceState(guildID, userID)
	if err != nil {
		return ""
	}
	return vs.ChannelID
}

func (p *Platform) VoiceMembers(guildID, channelID string) []string {
	g, err := p.s.State.Guild(guildID)
	if err != nil {
		return nil
	}
	p.s.State.RLock()
	defer p.s.State.RUnlock()
	var ids []string
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == channelID {
			ids = append(ids, vs.UserID)
		}
	}
	return ids
}

func (p *Platform) GuildMembers(guildID string) []string {
	g, err := p.s.State.Guild(guildID)
	if err != nil {
		return nil
	}
	p.s.State.RLock()
	defer p.s.State.RUnlock()
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if m.User != nil && !m.User.Bot {
			ids = append(ids, m.User.ID)
		}
	}
	return ids
}

// MoveMember moves userID to channelID. An empty channelID disconnects.
func (p *Platform) MoveMember(ctx context.Context, guildID, userID, channelID string) error {
	var target *string
	if channelID != "" {
		target = &channelID
	}
	return p.s.GuildMemberMove(guildID, userID, target, withCtx(ctx))
}

func (p *Platform) createChannel(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (string, error) {
	ch, err := p.s.GuildChannelCreateComplex(guildID, data, withCtx(ctx))
	if err != nil {
		return "", errors.Wrapf(err, "create channel %q", data.Name)
	}
	return ch.ID, nil
}

func (p *Platform) CreateCategory(ctx context.Context, guildID, name string) (string, error) {
	return p.createChannel(ctx, guildID, discordgo.GuildChannelCreateData{Name: name, Type: discordgo.ChannelTypeGuildCategory})
}

func (p *Platform) CreateTextChannel(ctx context.Context, guildID, parentID, name string) (string, error) {
	return p.createChannel(ctx, guildID, discordgo.GuildChannelCreateData{Name: name, Type: discordgo.ChannelTypeGuildText, ParentID: parentID})
}

func (p *Platform) CreateVoiceChannel(ctx context.Context, guildID, parentID, name string, userLimit int) (string, error) {
	return p.createChannel(ctx, guildID, discordgo.GuildChannelCreateData{
		Name: name, Type: discordgo.ChannelTypeGuildVoice, ParentID: parentID, UserLimit: userLimit,
	})
}

func (p *Platform) SetUserLimit(ctx context.Context, channelID string, limit int) error {
	_, err := p.s.ChannelEdit(channelID, &discordgo.ChannelEdit{UserLimit: limit}, withCtx(ctx))
	return err
}

func (p *Platform) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := p.s.ChannelDelete(channelID, withCtx(ctx))
	return err
}

func allowDeny(perm int64, allow bool) (int64, int64) {
	if allow {
		return perm, 0
	}
	return 0, perm
}

func (p *Platform) SetMemberConnect(ctx context.Context, channelID, userID string, allow bool) error {
	a, d := allowDeny(discordgo.PermissionVoiceConnect, allow)
	return p.s.ChannelPermissionSet(channelID, userID, discordgo.PermissionOverwriteTypeMember, a, d, withCtx(ctx))
}

func (p *Platform) ClearMemberOverride(ctx context.Context, channelID, userID string) error {
	return p.s.ChannelPermissionDelete(channelID, userID, withCtx(ctx))
}

func (p *Platform) SetRoleConnect(ctx context.Context, channelID, roleID string, allow bool) error {
	a, d := allowDeny(discordgo.PermissionVoiceConnect, allow)
	return p.s.ChannelPermissionSet(channelID, roleID, discordgo.PermissionOverwriteTypeRole, a, d, withCtx(ctx))
}

func (p *Platform) SetRoleSend(ctx context.Context, channelID, roleID string, allow bool) error {
	a, d := allowDeny(discordgo.PermissionSendMessages, allow)
	return p.s.ChannelPermissionSet(channelID, roleID, discordgo.PermissionOverwriteTypeRole, a, d, withCtx(ctx))
}

func (p *Platform) CreateRole(ctx context.Context, guildID, name string) (string, error) {
	role, err := p.s.GuildRoleCreate(guildID, &discordgo.RoleParams{Name: name}, withCtx(ctx))
	if err != nil {
		return "", errors.Wrapf(err, "create role %q", name)
	}
	return role.ID, nil
}

func (p *Platform) DeleteRole(ctx context.Context, guildID, roleID string) error {
	return p.s.GuildRoleDelete(guildID, roleID, withCtx(ctx))
}

func (p *Platform) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return p.s.GuildMemberRoleAdd(guildID, userID, roleID, withCtx(ctx))
}

func (p *Platform) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return p.s.GuildMemberRoleRemove(guildID, userID, roleID, withCtx(ctx))
}
