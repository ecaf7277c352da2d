package discord

import "github.com/bwmarrin/discordgo"

func strOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Description: desc, Required: required}
}

func subCmd(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: desc, Options: opts}
}

func choices(values ...string) []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, len(values))
	for i, v := range values {
		out[i] = &discordgo.ApplicationCommandOptionChoice{Name: v, Value: v}
	}
	return out
}

func methodOpt(values ...string) *discordgo.ApplicationCommandOption {
	o := strOpt("method", "Method", true)
	o.Choices = choices(values...)
	return o
}

var Commands = []*discordgo.ApplicationCommand{
	{Name: "link", Description: "Link your league account"},
	{Name: "unlink", Description: "Unlink your league account"},
	{Name: "check", Description: "Get the linked role once your account is linked"},
	{Name: "stats", Description: "Show your league stats"},
	{Name: "leaders", Description: "Top players of the server"},
	{
		Name:        "queue",
		Description: "League queue",
		Options: []*discordgo.ApplicationCommandOption{
			subCmd("show", "Show the queue"),
			subCmd("remove", "Remove a member from the queue (admins)",
				&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: "member", Description: "Member", Required: true}),
			subCmd("empty", "Empty the queue (admins)"),
		},
	},
	{
		Name:        "league",
		Description: "League settings (admins)",
		Options: []*discordgo.ApplicationCommandOption{
			subCmd("create", "Create a league", strOpt("name", "League name", true)),
			subCmd("delete", "Delete this league"),
			subCmd("show", "Show this league's settings"),
			subCmd("cap", "Set queue capacity", &discordgo.ApplicationCommandOption{
				Type: discordgo.ApplicationCommandOptionInteger, Name: "capacity", Description: "2 to 100", Required: true,
			}),
			subCmd("teams", "How teams are formed", methodOpt("captains", "autobalance", "random")),
			subCmd("captains", "How captains are chosen", methodOpt("volunteer", "rank", "random")),
			subCmd("maps", "How maps are chosen", methodOpt("captains", "vote", "random")),
			subCmd("matchtype", "Let captains vote a best-of before the veto", &discordgo.ApplicationCommandOption{
				Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "On or off", Required: true,
			}),
			subCmd("mpool", "Edit the map pool", strOpt("changes", "e.g. +de_nuke -de_dust2", true)),
			subCmd("region", "Set the server region", strOpt("region", "Region code", true)),
		},
	},
	{
		Name:        "spectators",
		Description: "League spectators (admins)",
		Options: []*discordgo.ApplicationCommandOption{
			subCmd("add", "Add spectators", strOpt("members", "Mentions or ids", true)),
			subCmd("remove", "Remove spectators", strOpt("members", "Mentions or ids", true)),
			subCmd("list", "List spectators"),
		},
	},
	{
		Name:        "ban",
		Description: "Ban a member from queueing (admins)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "member", Description: "Member", Required: true},
			strOpt("duration", "e.g. 2d12h, empty for permanent", false),
		},
	},
	{
		Name:        "unban",
		Description: "Lift a ban (admins)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "member", Description: "Member", Required: true},
		},
	},
	{
		Name:        "end",
		Description: "Force end a match of this league (admins)",
		Options:     []*discordgo.ApplicationCommandOption{strOpt("match", "Match id", true)},
	},
}
