package round

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/event"
	"github.com/victornm/quizbot/internal/session"
)

const (
	defaultQuestions = 1
	defaultMax       = 50
)

// Questions is the question store rounds draw from.
type Questions interface {
	FetchRandom(ctx context.Context, n int) ([]domain.Question, error)
}

// Members resolves the display name of winners.
type Members interface {
	GetMember(ctx context.Context, userID string) (*domain.Member, error)
}

// Chat publishes questions and standings.
type Chat interface {
	Publish(ctx context.Context, channelID string, m domain.Message) (domain.MessageHandle, error)
	AttachSelectable(ctx context.Context, h domain.MessageHandle, letter string) error
}

type Config struct {
	EventBus  *event.Bus
	Questions Questions
	Members   Members
	Chat      Chat
	Sessions  *session.Registry
	// MaxQuestions bounds the number of questions of a single round.
	MaxQuestions int
}

// Service runs rounds of questions, one round at a time per channel.
type Service struct {
	eb        *event.Bus
	questions Questions
	members   Members
	chat      Chat
	sessions  *session.Registry
	max       int

	wg     sync.WaitGroup
	mu     sync.Mutex
	rounds map[string]*state
}

func NewService(c Config) *Service {
	s := &Service{
		eb:        c.EventBus,
		questions: c.Questions,
		members:   c.Members,
		chat:      c.Chat,
		sessions:  c.Sessions,
		max:       c.MaxQuestions,
		rounds:    make(map[string]*state),
	}

	if s.max <= 0 {
		s.max = defaultMax
	}

	return s
}

// RunRequest represents a request to run a round in a channel.
type RunRequest struct {
	ChannelID string
	// Count is the number of questions, 1 when not set.
	Count int
}

// Run plays a round and returns its standings once every question is resolved.
// It fails with AlreadyActive, and leaves the running round untouched, when the channel is busy.
func (s *Service) Run(ctx context.Context, req RunRequest) (*domain.Standings, error) {
	st, count, err := s.acquire(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.play(ctx, st, count)
}

// Start plays a round in the background.
// Errors preventing the round from starting are returned, the others are logged.
func (s *Service) Start(ctx context.Context, req RunRequest) error {
	st, count, err := s.acquire(ctx, req)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if _, err := s.play(ctx, st, count); err != nil {
			slog.ErrorContext(ctx, "round: play failed",
				"channel", req.ChannelID,
				"error", err,
			)
		}
	}()

	return nil
}

// Wait blocks until every round started in the background is over.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Standings returns the current standings of the round running in the channel.
func (s *Service) Standings(_ context.Context, channelID string) (*domain.Standings, error) {
	s.mu.Lock()
	st, ok := s.rounds[channelID]
	s.mu.Unlock()

	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("no round running: channel=%s", channelID))
	}

	standings := st.standings()
	return &standings, nil
}

func (s *Service) acquire(ctx context.Context, req RunRequest) (*state, int, error) {
	count := req.Count
	if count <= 0 {
		count = defaultQuestions
	}
	if count > s.max {
		return nil, 0, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("a round has at most %d questions, got %d", s.max, count))
	}

	if _, ok := s.sessions.Get(req.ChannelID); ok {
		s.notifyBusy(ctx, req.ChannelID)
		return nil, 0, errors.AlreadyActive(req.ChannelID)
	}

	s.mu.Lock()
	if _, ok := s.rounds[req.ChannelID]; ok {
		s.mu.Unlock()
		s.notifyBusy(ctx, req.ChannelID)
		return nil, 0, errors.AlreadyActive(req.ChannelID)
	}
	st := newState(req.ChannelID)
	s.rounds[req.ChannelID] = st
	s.mu.Unlock()

	return st, count, nil
}

func (s *Service) release(st *state) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rounds[st.channelID] == st {
		delete(s.rounds, st.channelID)
	}
}

func (s *Service) play(ctx context.Context, st *state, count int) (*domain.Standings, error) {
	defer s.release(st)

	qs, err := s.questions.FetchRandom(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("round: fetch %d questions: %w", count, err)
	}

	slog.InfoContext(ctx, "round: started",
		"channel", st.channelID,
		"questions", len(qs),
	)

	for _, q := range qs {
		sess, err := s.sessions.Open(ctx, st.channelID, q)
		if err != nil {
			return nil, fmt.Errorf("round: open session: %w", err)
		}

		s.publish(ctx, sess)
		res := sess.Resolve(ctx)

		for _, id := range res.Winners {
			m, err := s.members.GetMember(ctx, id)
			if err != nil {
				slog.WarnContext(ctx, "round: skip winner, get member failed",
					"channel", st.channelID,
					"user", id,
					"error", err,
				)
				continue
			}
			st.win(m.DisplayName)
		}
	}

	standings := st.standings()
	s.announce(ctx, standings)

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventRoundFinished{Standings: standings})
	}

	return &standings, nil
}

// publish sends the question of the session and one selectable symbol per proposition.
// Failures are logged, the session still runs its full voting window.
func (s *Service) publish(ctx context.Context, sess *session.Session) {
	q := sess.Question

	h, err := s.chat.Publish(ctx, sess.ChannelID, domain.Message{
		Title:  q.Title,
		Author: q.Theme,
		Body:   strings.Join(q.Propositions, "\n"),
		Footer: "Author: " + q.Author,
	})
	if err != nil {
		slog.ErrorContext(ctx, "round: publish question failed",
			"session", sess.ID,
			"error", err,
		)
		return
	}
	sess.Attach(h)

	for _, l := range q.Letters() {
		if err := s.chat.AttachSelectable(ctx, h, l); err != nil {
			slog.ErrorContext(ctx, "round: attach selectable failed",
				"session", sess.ID,
				"letter", l,
				"error", err,
			)
		}
	}
}

func (s *Service) announce(ctx context.Context, standings domain.Standings) {
	if _, err := s.chat.Publish(ctx, standings.ChannelID, Format(standings)); err != nil {
		slog.ErrorContext(ctx, "round: publish standings failed",
			"channel", standings.ChannelID,
			"error", err,
		)
	}
}

func (s *Service) notifyBusy(ctx context.Context, channelID string) {
	slog.InfoContext(ctx, "round: channel busy, request ignored", "channel", channelID)

	if _, err := s.chat.Publish(ctx, channelID, domain.Message{
		Body: "A quiz round is already running in this channel.",
	}); err != nil {
		slog.ErrorContext(ctx, "round: publish busy notice failed",
			"channel", channelID,
			"error", err,
		)
	}
}
