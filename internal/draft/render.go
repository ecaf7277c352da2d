package draft

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

const (
	colorPending = 0x00FFFF
	colorDone    = 0x2ECC71
)

// Embed builds the standard status embed used by every primitive.
func Embed(title, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       colorPending,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func playerLine(p Participant) string {
	if p.Profile.ProfileURL != "" {
		return fmt.Sprintf("[%s](%s)", p.Name, p.Profile.ProfileURL)
	}
	return "**" + p.Name + "**"
}

func readyEmbed(members []Participant, c *ReadyCheck, timeout time.Duration) *discordgo.MessageEmbed {
	var b strings.Builder
	for _, p := range members {
		mark := "❌"
		if c.Has(p.ID) {
			mark = EmojiReady
		}
		fmt.Fprintf(&b, "%s %s\n", mark, playerLine(p))
	}
	e := Embed(fmt.Sprintf("Queue is full! React %s to ready up (%s)", EmojiReady, timeout.Round(time.Second)), b.String())
	e.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d/%d ready", len(c.Readied()), len(members))}
	return e
}

// TeamsFields renders both rosters as inline fields, captain first.
func TeamsFields(byID map[string]Participant, one, two []string) []*discordgo.MessageEmbedField {
	team := func(ids []string) string {
		if len(ids) == 0 {
			return "_empty_"
		}
		var b strings.Builder
		for i, id := range ids {
			name := byID[id].Name
			if i == 0 {
				name = "👑 " + name
			}
			b.WriteString(name + "\n")
		}
		return b.String()
	}
	title := func(n int, ids []string) string {
		if len(ids) == 0 {
			return fmt.Sprintf("Team %d", n)
		}
		return "Team " + byID[ids[0]].Name
	}
	return []*discordgo.MessageEmbedField{
		{Name: title(1, one), Value: team(one), Inline: true},
		{Name: title(2, two), Value: team(two), Inline: true},
	}
}

func draftEmbed(title string, byID map[string]Participant, d *TeamDraft, emojiOf map[string]string) *discordgo.MessageEmbed {
	var b strings.Builder
	for _, id := range d.Left() {
		fmt.Fprintf(&b, "%s %s\n", emojiOf[id], playerLine(byID[id]))
	}
	e := Embed(title, "")
	one, two := d.Teams()
	e.Fields = TeamsFields(byID, one, two)
	left := b.String()
	if left == "" {
		left = "_none_"
	}
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Players left", Value: left})
	if picker := d.ActivePicker(); picker != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: byID[picker].Name + " is picking"}
	} else if !d.Done() {
		e.Footer = &discordgo.MessageEmbedFooter{Text: "React to pick a teammate and become captain"}
	}
	return e
}

func mapsField(name string, maps []domain.Map) *discordgo.MessageEmbedField {
	var b strings.Builder
	for _, m := range maps {
		fmt.Fprintf(&b, "%s %s\n", m.Emoji, m.Name)
	}
	v := b.String()
	if v == "" {
		v = "_none_"
	}
	return &discordgo.MessageEmbedField{Name: name, Value: v, Inline: true}
}

func vetoEmbed(title string, byID map[string]Participant, v *Veto) *discordgo.MessageEmbed {
	e := Embed(title, "")
	e.Fields = []*discordgo.MessageEmbedField{
		mapsField("Maps left", v.Remaining()),
		mapsField("Banned", v.Banned()),
	}
	if !v.Done() {
		e.Footer = &discordgo.MessageEmbedFooter{Text: byID[v.ActiveCaptain()].Name + " bans next"}
	}
	return e
}

func voteEmbed(title string, v *MapVote, total int) *discordgo.MessageEmbed {
	var b strings.Builder
	for _, m := range v.Pool() {
		fmt.Fprintf(&b, "%s %s (%d)\n", m.Emoji, m.Name, v.Count(m.Emoji))
	}
	e := Embed(title, b.String())
	e.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d/%d voted", v.Voted(), total)}
	return e
}

func matchTypeEmbed(options int, v *MatchTypeVote) *discordgo.MessageEmbed {
	var b strings.Builder
	for n := 1; n <= options; n++ {
		fmt.Fprintf(&b, "%s Best of %d (%d)\n", NumberEmoji(n), n, v.Count(n))
	}
	return Embed("Captains, vote for the match type", b.String())
}
