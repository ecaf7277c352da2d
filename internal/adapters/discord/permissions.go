package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// isAdmin: owner, Administrator permission or one of the configured roles.
func (r *Router) isAdmin(ic *discordgo.InteractionCreate) bool {
	if ic.Member == nil || ic.Member.User == nil {
		return false
	}
	if g, _ := r.s.State.Guild(ic.GuildID); g != nil && ic.Member.User.ID == g.OwnerID {
		return true
	}
	if ic.Member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	for _, rid := range ic.Member.Roles {
		if slices.Contains(r.adminRoleIDs, rid) {
			return true
		}
	}
	return false
}

func (r *Router) requireAdmin(ic *discordgo.InteractionCreate) bool {
	if r.isAdmin(ic) {
		return true
	}
	r.reply(ic, "🔒 You are not allowed to do that.")
	return false
}
