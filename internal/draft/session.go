package draft

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

// Kind names a primitive. A league runs at most one session per kind.
type Kind string

const (
	KindReady     Kind = "ready"
	KindTeamDraft Kind = "team_draft"
	KindVeto      Kind = "veto"
	KindMapVote   Kind = "map_vote"
	KindMatchType Kind = "match_type"
)

var ErrSessionActive = errors.New("session already running")

// Surface is the part of the chat platform a session touches: the single
// message it renders and the reactions on it.
type Surface interface {
	EditEmbed(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error
	ClearReaction(ctx context.Context, channelID, messageID, emoji string) error
	ClearReactions(ctx context.Context, channelID, messageID string) error
}

// Observer gets told how long each session ran.
type Observer interface {
	ObserveSession(kind Kind, took time.Duration, timedOut bool)
}

// Rand is the randomness the primitives need. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

type globalRand struct{}

func (globalRand) IntN(n int) int                     { return rand.IntN(n) }
func (globalRand) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// Participant is a member taking part in a primitive.
type Participant struct {
	ID      string
	Name    string
	Profile domain.PlayerProfile
}

// Message is the message a session drives.
type Message struct {
	ChannelID string
	ID        string
}

// Runner runs the primitives against a Surface.
type Runner struct {
	surface  Surface
	bus      *Bus
	log      *zap.Logger
	rng      Rand
	observer Observer

	readyTimeout time.Duration
	draftTimeout time.Duration
	voteTimeout  time.Duration

	mu     sync.Mutex
	active map[string]string
}

type Option func(*Runner)

func WithReadyTimeout(d time.Duration) Option { return func(r *Runner) { r.readyTimeout = d } }
func WithDraftTimeout(d time.Duration) Option { return func(r *Runner) { r.draftTimeout = d } }
func WithVoteTimeout(d time.Duration) Option  { return func(r *Runner) { r.voteTimeout = d } }
func WithRand(rng Rand) Option                { return func(r *Runner) { r.rng = rng } }
func WithObserver(o Observer) Option          { return func(r *Runner) { r.observer = o } }

func NewRunner(surface Surface, bus *Bus, log *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		surface:      surface,
		bus:          bus,
		log:          log,
		rng:          globalRand{},
		readyTimeout: 60 * time.Second,
		draftTimeout: 10 * time.Minute,
		voteTimeout:  60 * time.Second,
		active:       make(map[string]string),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Rand exposes the runner's randomness to callers that pick without a session.
func (r *Runner) Rand() Rand { return r.rng }

// Active reports whether a session of kind runs for the league.
func (r *Runner) Active(leagueID string, kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[leagueID+"/"+string(kind)]
	return ok
}

type session struct {
	id       string
	kind     Kind
	leagueID string
	msg      Message
	sub      *Subscription
	runner   *Runner
	log      *zap.Logger
	started  time.Time
	timedOut bool
}

// open claims (league, kind) and the message. Callers must defer close.
func (r *Runner) open(leagueID string, kind Kind, msg Message) (*session, error) {
	key := leagueID + "/" + string(kind)
	r.mu.Lock()
	if id, ok := r.active[key]; ok {
		r.mu.Unlock()
		return nil, errors.Wrapf(ErrSessionActive, "%s (session %s)", key, id)
	}
	id := uuid.NewString()
	r.active[key] = id
	r.mu.Unlock()

	sub, err := r.bus.Subscribe(msg.ID)
	if err != nil {
		r.mu.Lock()
		delete(r.active, key)
		r.mu.Unlock()
		return nil, err
	}
	return &session{
		id:       id,
		kind:     kind,
		leagueID: leagueID,
		msg:      msg,
		sub:      sub,
		runner:   r,
		log:      r.log.With(zap.String("session", id), zap.String("kind", string(kind)), zap.String("league_id", leagueID)),
		started:  time.Now(),
	}, nil
}

func (s *session) close() {
	s.sub.Close()
	r := s.runner
	r.mu.Lock()
	delete(r.active, s.leagueID+"/"+string(s.kind))
	r.mu.Unlock()
	if r.observer != nil {
		r.observer.ObserveSession(s.kind, time.Since(s.started), s.timedOut)
	}
}

// await feeds reactions to handle until it returns true, the timeout fires or
// ctx ends. The bool result is true on timeout.
func (s *session) await(ctx context.Context, timeout time.Duration, handle func(Reaction) bool) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-s.sub.Events():
			if handle(ev) {
				return false, nil
			}
		case <-timer.C:
			s.timedOut = true
			s.log.Info("session timed out", zap.Duration("timeout", timeout))
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (s *session) edit(ctx context.Context, e *discordgo.MessageEmbed) {
	if err := s.runner.surface.EditEmbed(ctx, s.msg.ChannelID, s.msg.ID, e); err != nil {
		s.log.Warn("edit embed", zap.Error(err))
	}
}

func (s *session) react(ctx context.Context, emojis ...string) {
	for _, e := range emojis {
		if err := s.runner.surface.AddReaction(ctx, s.msg.ChannelID, s.msg.ID, e); err != nil {
			s.log.Warn("add reaction", zap.String("emoji", e), zap.Error(err))
		}
	}
}

func (s *session) unreact(ctx context.Context, ev Reaction) {
	if err := s.runner.surface.RemoveReaction(ctx, s.msg.ChannelID, s.msg.ID, ev.Emoji, ev.UserID); err != nil {
		s.log.Debug("remove reaction", zap.Error(err))
	}
}

func (s *session) clear(ctx context.Context, emoji string) {
	if err := s.runner.surface.ClearReaction(ctx, s.msg.ChannelID, s.msg.ID, emoji); err != nil {
		s.log.Debug("clear reaction", zap.String("emoji", emoji), zap.Error(err))
	}
}

func (s *session) clearAll(ctx context.Context) {
	if err := s.runner.surface.ClearReactions(ctx, s.msg.ChannelID, s.msg.ID); err != nil {
		s.log.Debug("clear reactions", zap.Error(err))
	}
}

func ids(ps []Participant) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
