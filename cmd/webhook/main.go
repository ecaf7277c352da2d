package main

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/adapters/httpapi"
	"github.com/jose-valero/pug-league-bot/internal/domain"
	"github.com/jose-valero/pug-league-bot/internal/infra/config"
	"github.com/jose-valero/pug-league-bot/internal/infra/logging"
	"github.com/jose-valero/pug-league-bot/internal/infra/storage"
)

type webhook struct {
	secret string
	events httpapi.EventStore
	log    *zap.Logger
}

func reply(code int, body string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: code,
		Headers:    map[string]string{"Content-Type": "text/plain"},
		Body:       body,
	}
}

// header looks name up ignoring case, API Gateway lowercases them.
func header(req events.APIGatewayV2HTTPRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func (h *webhook) handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	got := header(req, httpapi.SecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		h.log.Warn("unauthorized", zap.String("ip", req.RequestContext.HTTP.SourceIP))
		return reply(http.StatusUnauthorized, "unauthorized"), nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		dec, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return reply(http.StatusBadRequest, "invalid base64"), nil
		}
		body = dec
	}
	ev, err := domain.ParseMatchEvent(body)
	if err != nil {
		return reply(http.StatusBadRequest, err.Error()), nil
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	fresh, err := h.events.Record(ctx, ev, body)
	if err != nil {
		h.log.Error("record match event", zap.String("match_id", ev.MatchID), zap.Error(err))
		return reply(http.StatusInternalServerError, "store error"), nil
	}
	h.log.Info("match event",
		zap.String("match_id", ev.MatchID),
		zap.String("event", ev.Event),
		zap.Bool("duplicate", !fresh),
	)
	return reply(http.StatusAccepted, "accepted"), nil
}

func main() {
	log := logging.New("info", "json")
	cfg, err := config.ParseLambda()
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	log = logging.New(cfg.LogLevel, "json")
	pool, err := storage.OpenPool(context.Background(), cfg.DatabaseURL, 4)
	if err != nil {
		log.Fatal("open pool", zap.Error(err))
	}
	h := &webhook{secret: cfg.WebhookSecret, events: storage.NewMatchEvents(pool), log: log}
	lambda.Start(h.handle)
}
