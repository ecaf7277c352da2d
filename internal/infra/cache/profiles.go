package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

const (
	keyProfile = "pugbot:profile:%s"
	TTLProfile = 30 * time.Second
)

// ProfileSource is where profiles come from on a cache miss.
type ProfileSource interface {
	GetPlayer(ctx context.Context, discordID string) (domain.PlayerProfile, error)
	GetPlayers(ctx context.Context, discordIDs []string) ([]domain.PlayerProfile, error)
}

// Dial parses url and checks the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

// Profiles caches player profiles in redis for display purposes. Redis
// failures fall through to the source.
type Profiles struct {
	rdb *redis.Client
	src ProfileSource
	ttl time.Duration
	log *zap.Logger
}

func NewProfiles(rdb *redis.Client, src ProfileSource, ttl time.Duration, log *zap.Logger) *Profiles {
	if ttl <= 0 {
		ttl = TTLProfile
	}
	return &Profiles{rdb: rdb, src: src, ttl: ttl, log: log}
}

func key(id string) string { return fmt.Sprintf(keyProfile, id) }

func (p *Profiles) GetPlayer(ctx context.Context, discordID string) (domain.PlayerProfile, error) {
	raw, err := p.rdb.Get(ctx, key(discordID)).Bytes()
	if err == nil {
		var prof domain.PlayerProfile
		if jerr := json.Unmarshal(raw, &prof); jerr == nil {
			return prof, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		p.log.Warn("redis get profile", zap.String("user_id", discordID), zap.Error(err))
	}

	prof, err := p.src.GetPlayer(ctx, discordID)
	if err != nil {
		return prof, err
	}
	p.store(ctx, prof)
	return prof, nil
}

// GetPlayers returns the known profiles of ids, in ids order.
func (p *Profiles) GetPlayers(ctx context.Context, discordIDs []string) ([]domain.PlayerProfile, error) {
	if len(discordIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(discordIDs))
	for i, id := range discordIDs {
		keys[i] = key(id)
	}

	found := make(map[string]domain.PlayerProfile, len(discordIDs))
	vals, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		p.log.Warn("redis mget profiles", zap.Int("n", len(keys)), zap.Error(err))
	}
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var prof domain.PlayerProfile
		if json.Unmarshal([]byte(s), &prof) == nil {
			found[prof.DiscordID] = prof
		}
	}

	var missing []string
	for _, id := range discordIDs {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		fresh, err := p.src.GetPlayers(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, prof := range fresh {
			found[prof.DiscordID] = prof
			p.store(ctx, prof)
		}
	}

	out := make([]domain.PlayerProfile, 0, len(found))
	for _, id := range discordIDs {
		if prof, ok := found[id]; ok {
			out = append(out, prof)
		}
	}
	return out, nil
}

// Invalidate drops cached profiles, e.g. after a link change.
func (p *Profiles) Invalidate(ctx context.Context, discordIDs ...string) {
	if len(discordIDs) == 0 {
		return
	}
	keys := make([]string, len(discordIDs))
	for i, id := range discordIDs {
		keys[i] = key(id)
	}
	if err := p.rdb.Del(ctx, keys...).Err(); err != nil {
		p.log.Warn("redis del profiles", zap.Error(err))
	}
}

func (p *Profiles) store(ctx context.Context, prof domain.PlayerProfile) {
	raw, err := json.Marshal(prof)
	if err != nil {
		return
	}
	if err := p.rdb.Set(ctx, key(prof.DiscordID), raw, p.ttl).Err(); err != nil {
		p.log.Warn("redis set profile", zap.String("user_id", prof.DiscordID), zap.Error(err))
	}
}
