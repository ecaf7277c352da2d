package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (r *Router) deferEphemeral(ic *discordgo.InteractionCreate) {
	err := r.s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		r.log.Warn("defer interaction", zap.Error(err))
	}
}

// reply follows up a deferred interaction, or answers it directly when no
// response went out yet.
func (r *Router) reply(ic *discordgo.InteractionCreate, content string, embeds ...*discordgo.MessageEmbed) {
	_, err := r.s.FollowupMessageCreate(ic.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Embeds:  embeds,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err == nil {
		return
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownWebhook {
		_ = r.s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Embeds:  embeds,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		return
	}
	r.log.Warn("reply", zap.Error(err))
}
