package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/event"
)

const defaultTimeout = 30 * time.Second

// Members reads member levels and applies XP deltas.
type Members interface {
	GetMember(ctx context.Context, userID string) (*domain.Member, error)
	AdjustXP(ctx context.Context, userID string, delta int) error
}

// Chat publishes the results of a question.
type Chat interface {
	Publish(ctx context.Context, channelID string, m domain.Message) (domain.MessageHandle, error)
}

type Config struct {
	EventBus *event.Bus
	Members  Members
	Chat     Chat
	// Timeout is the voting window of every question.
	Timeout time.Duration
	// AfterFunc schedules the end of the voting window, time.After by default.
	AfterFunc func(d time.Duration) <-chan time.Time
	NowFunc   func() time.Time
}

// Registry holds at most one active session per channel.
// Channels never contend with each other, open and close of the same channel are atomic.
type Registry struct {
	eb      *event.Bus
	members Members
	chat    Chat
	timeout time.Duration
	after   func(d time.Duration) <-chan time.Time
	now     func() time.Time

	sessions sync.Map // channel ID -> *Session
}

func NewRegistry(c Config) *Registry {
	r := &Registry{
		eb:      c.EventBus,
		members: c.Members,
		chat:    c.Chat,
		timeout: c.Timeout,
		after:   c.AfterFunc,
		now:     c.NowFunc,
	}

	if r.timeout <= 0 {
		r.timeout = defaultTimeout
	}
	if r.after == nil {
		r.after = time.After
	}
	if r.now == nil {
		r.now = time.Now
	}

	return r
}

// Open starts a session for the question in the channel and its voting window.
// It fails with AlreadyActive when the channel has a session that is not closed yet.
func (r *Registry) Open(ctx context.Context, channelID string, q domain.Question) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	s := &Session{
		ID:         id.String(),
		ChannelID:  channelID,
		Question:   q,
		CreateTime: r.now(),
		Timeout:    r.timeout,
		r:          r,
		expired:    make(chan struct{}),
	}

	if _, loaded := r.sessions.LoadOrStore(channelID, s); loaded {
		return nil, errors.AlreadyActive(channelID)
	}

	s.schedule(r.after)
	sessionsOpen.Inc()

	slog.InfoContext(ctx, "session: opened",
		"session", s.ID,
		"channel", channelID,
		"question", q.QuestionID,
		"timeout", r.timeout,
	)

	return s, nil
}

// Get returns the open or resolving session of the channel.
func (r *Registry) Get(channelID string) (*Session, bool) {
	v, ok := r.sessions.Load(channelID)
	if !ok {
		return nil, false
	}

	return v.(*Session), true
}

// close removes the session from the registry, unless the channel already moved on.
func (r *Registry) close(s *Session) {
	if r.sessions.CompareAndDelete(s.ChannelID, s) {
		sessionsOpen.Dec()
	}
}
