package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/score"
)

type State int32

const (
	StateOpen State = iota
	StateResolving
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateResolving:
		return "resolving"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var timeUpFooters = []string{
	"Time is up!",
	"Ding ding, it's over",
	"Pencils down!",
	"Come on, pack it up!",
	"Run out has the time",
	"The last grain of sand has fallen",
	"Have you seen the time!? Over!",
}

// Session is the live state of one published question, from publish to close.
type Session struct {
	ID         string
	ChannelID  string
	Question   domain.Question
	CreateTime time.Time
	Timeout    time.Duration

	r *Registry

	// expired is closed once the voting window is over.
	expired chan struct{}

	mu      sync.Mutex
	state   State
	message domain.MessageHandle
	winners []string
	losers  []string

	once   sync.Once
	result domain.QuestionResult
}

func (s *Session) schedule(after func(d time.Duration) <-chan time.Time) {
	c := after(s.Timeout)
	go func() {
		<-c
		close(s.expired)
	}()
}

// openLocked reports whether votes are accepted, moving to Resolving when the window is over.
func (s *Session) openLocked() bool {
	if s.state != StateOpen {
		return false
	}

	select {
	case <-s.expired:
		s.state = StateResolving
		return false
	default:
		return true
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.openLocked()
	return s.state
}

// Attach binds the session to the chat message it was published as.
func (s *Session) Attach(h domain.MessageHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.message = h
}

func (s *Session) Message() domain.MessageHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.message
}

// Tally returns a copy of the current winners and losers, in arrival order.
func (s *Session) Tally() (winners, losers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.winners), slices.Clone(s.losers)
}

// Expired is closed when the voting window is over.
func (s *Session) Expired() <-chan struct{} {
	return s.expired
}

// Resolve waits for the end of the voting window, then scores the frozen tally,
// announces the results and closes the session.
// Scores are applied once, later calls return the same result.
func (s *Session) Resolve(ctx context.Context) domain.QuestionResult {
	<-s.expired

	s.once.Do(func() {
		s.result = s.resolve(ctx)
	})

	return s.result
}

func (s *Session) resolve(ctx context.Context) domain.QuestionResult {
	s.mu.Lock()
	s.state = StateResolving
	res := domain.QuestionResult{
		SessionID: s.ID,
		ChannelID: s.ChannelID,
		Winners:   slices.Clone(s.winners),
		Losers:    slices.Clone(s.losers),
	}
	s.mu.Unlock()

	n := len(res.Winners) + len(res.Losers)

	for i, id := range res.Winners {
		e, ok := s.settle(ctx, id, func(m *domain.Member) (int, error) {
			return score.Win(n, i+1, m.Level)
		}, 1)
		if ok {
			res.WinnerScores = append(res.WinnerScores, e)
		}
	}

	for _, id := range res.Losers {
		e, ok := s.settle(ctx, id, func(*domain.Member) (int, error) {
			return score.Lose(n), nil
		}, -1)
		if ok {
			res.LoserScores = append(res.LoserScores, e)
		}
	}

	res.ResolveTime = s.r.now()
	s.announce(ctx, res)

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.r.close(s)

	slog.InfoContext(ctx, "session: closed",
		"session", s.ID,
		"channel", s.ChannelID,
		"winners", len(res.Winners),
		"losers", len(res.Losers),
	)

	if s.r.eb != nil {
		s.r.eb.Publish(ctx, domain.EventQuestionResolved{Result: res})
	}

	return res
}

// settle scores one participant and applies the XP delta. Participants that cannot be scored are skipped.
func (s *Session) settle(ctx context.Context, userID string, points func(m *domain.Member) (int, error), sign int) (domain.ScoreEntry, bool) {
	m, err := s.r.members.GetMember(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "session: skip scoring, get member failed",
			"session", s.ID,
			"user", userID,
			"error", err,
		)
		return domain.ScoreEntry{}, false
	}

	p, err := points(m)
	if err != nil {
		slog.WarnContext(ctx, "session: skip scoring, compute score failed",
			"session", s.ID,
			"user", userID,
			"error", err,
		)
		return domain.ScoreEntry{}, false
	}

	if err := s.r.members.AdjustXP(ctx, userID, sign*p); err != nil {
		slog.ErrorContext(ctx, "session: adjust XP failed",
			"session", s.ID,
			"user", userID,
			"error", err,
		)
		return domain.ScoreEntry{}, false
	}

	return domain.ScoreEntry{
		UserID:      userID,
		DisplayName: m.DisplayName,
		Points:      p,
	}, true
}

func (s *Session) announce(ctx context.Context, res domain.QuestionResult) {
	if s.r.chat == nil {
		return
	}

	var b strings.Builder
	if len(res.WinnerScores) > 0 {
		b.WriteString("**Winners**:\n")
		for i, e := range res.WinnerScores {
			fmt.Fprintf(&b, "%d. %s: +%dXP\n", i+1, e.DisplayName, e.Points)
		}
	}

	if len(res.LoserScores) > 0 {
		b.WriteString("\n**Losers**:\n")
		for _, e := range res.LoserScores {
			fmt.Fprintf(&b, "🔻 %s: -%dXP\n", e.DisplayName, e.Points)
		}
	}

	_, err := s.r.chat.Publish(ctx, s.ChannelID, domain.Message{
		Title:  "⌛ Question results:",
		Body:   b.String(),
		Footer: timeUpFooters[rand.IntN(len(timeUpFooters))],
	})
	if err != nil {
		slog.ErrorContext(ctx, "session: publish results failed",
			"session", s.ID,
			"error", err,
		)
	}
}
