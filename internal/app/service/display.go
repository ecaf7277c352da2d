package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

// QueueDisplay keeps one status message per league in its queue channel.
type QueueDisplay struct {
	platform Platform
	store    QueueMessageStore
	queue    QueueStore
	profiles ProfileSource
	log      *zap.Logger
	now      func() time.Time
}

func NewQueueDisplay(platform Platform, store QueueMessageStore, queue QueueStore, profiles ProfileSource, log *zap.Logger) *QueueDisplay {
	return &QueueDisplay{platform: platform, store: store, queue: queue, profiles: profiles, log: log, now: time.Now}
}

// Update re-renders the league's queue embed with title on top. A stale or
// missing message is replaced by a fresh one.
func (d *QueueDisplay) Update(ctx context.Context, league domain.League, title string) error {
	ids, err := d.queue.Queued(ctx, league.ID)
	if err != nil {
		return errors.Wrap(err, "list queue")
	}
	embed := d.render(ctx, league, title, ids)

	ch, msgID, err := d.store.QueueMessage(ctx, league.ID)
	switch {
	case err == nil && ch == league.TextQueueID:
		if err := d.platform.EditEmbed(ctx, ch, msgID, embed); err == nil {
			return nil
		}
		d.log.Debug("queue message gone, reposting", zap.String("league_id", league.ID))
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return errors.Wrap(err, "load queue message")
	}

	msgID, err = d.platform.SendMessage(ctx, league.TextQueueID, "", embed)
	if err != nil {
		return errors.Wrap(err, "send queue message")
	}
	return d.store.SaveQueueMessage(ctx, league.ID, league.TextQueueID, msgID)
}

// Remove deletes the league's queue message so a burst owns the channel.
func (d *QueueDisplay) Remove(ctx context.Context, league domain.League) error {
	ch, msgID, err := d.store.QueueMessage(ctx, league.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return d.platform.DeleteMessage(ctx, ch, msgID)
}

func (d *QueueDisplay) render(ctx context.Context, league domain.League, title string, ids []string) *discordgo.MessageEmbed {
	scores := map[string]int{}
	if len(ids) > 0 && d.profiles != nil {
		profs, err := d.profiles.GetPlayers(ctx, ids)
		if err != nil {
			d.log.Warn("queue profiles", zap.Error(err))
		}
		for _, p := range profs {
			scores[p.DiscordID] = p.Score
		}
	}

	lines := "_Queue is empty_"
	if len(ids) > 0 {
		var b strings.Builder
		for i, id := range ids {
			fmt.Fprintf(&b, "%d. <@%s>", i+1, id)
			if s, ok := scores[id]; ok {
				fmt.Fprintf(&b, " (%d)", s)
			}
			b.WriteByte('\n')
		}
		lines = b.String()
	}

	if title == "" {
		title = fmt.Sprintf("%s queue", league.Name)
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: lines,
		Color:       0x00ffff,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Players in queue: %d/%d", len(ids), league.Capacity),
		},
		Timestamp: d.now().Format(time.RFC3339),
	}
}
