package leagueapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client talks to the league web API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(20, 5),
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// doJSON sends in as the JSON body when non nil and decodes the response
// into out when non nil. A 429 with Retry-After is retried once.
func (c *Client) doJSON(ctx context.Context, method, path string, q url.Values, in, out any) error {
	return c.do(ctx, method, path, q, in, out, true)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any, retry bool) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "league api %s %s", method, path)
	}
	defer res.Body.Close()
	c.log.Debug("league api",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", res.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if res.StatusCode == http.StatusTooManyRequests && retry {
		if sec, _ := strconv.Atoi(res.Header.Get("Retry-After")); sec > 0 {
			select {
			case <-time.After(time.Duration(sec) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			return c.do(ctx, method, path, q, in, out, false)
		}
	}

	if res.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &APIError{Status: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	return errors.Wrap(json.NewDecoder(res.Body).Decode(out), "decode response")
}
