package leagueapi

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRateLimit caps outgoing requests per second. Zero disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}
