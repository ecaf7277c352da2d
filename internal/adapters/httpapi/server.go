package httpapi

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

// EventStore persists webhook deliveries, see storage.MatchEvents.
type EventStore interface {
	Record(ctx context.Context, ev domain.MatchEvent, body []byte) (bool, error)
}

type Server struct {
	secret  string
	events  EventStore
	onEnded func(ctx context.Context, matchID string)
	metrics http.Handler
	log     *zap.Logger
	router  chi.Router
}

// New builds the router. With a nil events store ended matches go straight
// to onEnded; otherwise the store's NOTIFY delivers them.
func New(secret string, events EventStore, onEnded func(ctx context.Context, matchID string), metrics http.Handler, log *zap.Logger) *Server {
	s := &Server{secret: secret, events: events, onEnded: onEnded, metrics: metrics, log: log}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.Post("/webhook/match", s.handleMatchWebhook)
	s.router = r
}

func (s *Server) handleMatchWebhook(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(SecretHeader)
	if s.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}
	ev, err := domain.ParseMatchEvent(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log := s.log.With(zap.String("match_id", ev.MatchID), zap.String("event", ev.Event))

	if s.events != nil {
		fresh, err := s.events.Record(r.Context(), ev, body)
		if err != nil {
			log.Error("record match event", zap.Error(err))
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
		if !fresh {
			log.Debug("duplicate match event")
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if ev.Ended() && s.onEnded != nil {
		// teardown outlives the request
		go s.onEnded(context.WithoutCancel(r.Context()), ev.MatchID)
	}
	log.Info("match event")
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		s.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ListenAndServe runs the server until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}
