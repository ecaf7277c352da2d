package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/infra/config"
	"github.com/jose-valero/pug-league-bot/internal/infra/logging"
	"github.com/jose-valero/pug-league-bot/internal/infra/storage"
)

type pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type janitor struct {
	events    pruner
	retention time.Duration
	log       *zap.Logger
	now       func() time.Time
}

func (j *janitor) handle(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	n, err := j.events.Prune(ctx, j.now().Add(-j.retention))
	if err != nil {
		j.log.Error("prune events", zap.Error(err))
		return "", err
	}
	j.log.Info("pruned", zap.Int64("rows", n))
	return "ok", nil
}

func main() {
	log := logging.New("info", "json")
	cfg, err := config.ParseLambda()
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	log = logging.New(cfg.LogLevel, "json")
	pool, err := storage.OpenPool(context.Background(), cfg.DatabaseURL, 2)
	if err != nil {
		log.Fatal("open pool", zap.Error(err))
	}
	j := &janitor{events: storage.NewMatchEvents(pool), retention: cfg.EventRetention(), log: log, now: time.Now}
	lambda.Start(j.handle)
}
