package discord

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

var reMention = regexp.MustCompile(`<@!?(\d+)>`)

// parseIDs reads mentions and raw ids from free text.
func parseIDs(raw string) []string {
	ids := []string{}
	for _, tok := range strings.Fields(raw) {
		if m := reMention.FindStringSubmatch(tok); len(m) == 2 {
			ids = append(ids, m[1])
			continue
		}
		allDigits := true
		for _, r := range tok {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			ids = append(ids, tok)
		}
	}
	return ids
}

func mentionList(ids []string) string {
	if len(ids) == 0 {
		return "nobody"
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "<@" + id + ">"
	}
	return strings.Join(out, ", ")
}

func fmtRemain(d time.Duration) string {
	if d <= 0 {
		return "permanently"
	}
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	mins := int(d % time.Hour / time.Minute)
	var b strings.Builder
	for _, p := range []struct {
		n    int
		unit string
	}{{days, "d"}, {hours, "h"}, {mins, "m"}} {
		if p.n > 0 {
			fmt.Fprintf(&b, "%d%s", p.n, p.unit)
		}
	}
	return "for " + b.String()
}

// options flattens the options of the command or its subcommand.
func options(ic *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := map[string]*discordgo.ApplicationCommandInteractionDataOption{}
	for _, o := range ic.ApplicationCommandData().Options {
		if o.Type == discordgo.ApplicationCommandOptionSubCommand {
			for _, so := range o.Options {
				out[so.Name] = so
			}
			continue
		}
		out[o.Name] = o
	}
	return out
}

func optStr(ic *discordgo.InteractionCreate, name string) string {
	if o, ok := options(ic)[name]; ok && o.Type == discordgo.ApplicationCommandOptionString {
		return o.StringValue()
	}
	return ""
}

func optInt(ic *discordgo.InteractionCreate, name string) (int, bool) {
	if o, ok := options(ic)[name]; ok && o.Type == discordgo.ApplicationCommandOptionInteger {
		return int(o.IntValue()), true
	}
	return 0, false
}

func optBool(ic *discordgo.InteractionCreate, name string) bool {
	if o, ok := options(ic)[name]; ok && o.Type == discordgo.ApplicationCommandOptionBoolean {
		return o.BoolValue()
	}
	return false
}

// optUser returns the id of a user option. The value is the id itself.
func optUser(ic *discordgo.InteractionCreate, name string) string {
	if o, ok := options(ic)[name]; ok && o.Type == discordgo.ApplicationCommandOptionUser {
		if id, ok := o.Value.(string); ok {
			return id
		}
	}
	return ""
}

func subcmdName(ic *discordgo.InteractionCreate) string {
	for _, o := range ic.ApplicationCommandData().Options {
		if o.Type == discordgo.ApplicationCommandOptionSubCommand {
			return o.Name
		}
	}
	return ""
}

// emojiName is the form reactions are compared with: the unicode itself,
// or name:id for custom emojis.
func emojiName(e discordgo.Emoji) string {
	if e.ID == "" {
		return e.Name
	}
	return e.APIName()
}
