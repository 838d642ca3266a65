// Package authoring runs the dialogue through which members submit new questions.
package authoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/member"
	"github.com/victornm/quizbot/internal/question"
)

const (
	defaultThemeTimeout        = 30 * time.Second
	defaultTitleTimeout        = 60 * time.Second
	defaultPropositionsTimeout = 180 * time.Second

	timeoutNotice = "You took too long to answer, your question was not saved."
)

type Questions interface {
	Insert(ctx context.Context, q *domain.Question) error
}

type Members interface {
	AdjustXP(ctx context.Context, userID string, delta int) error
}

type Chat interface {
	Publish(ctx context.Context, channelID string, m domain.Message) (domain.MessageHandle, error)
	Notify(ctx context.Context, userID, text string) error
}

type Config struct {
	Questions Questions
	Members   Members
	Chat      Chat

	ThemeTimeout        time.Duration
	TitleTimeout        time.Duration
	PropositionsTimeout time.Duration

	AfterFunc func(d time.Duration) <-chan time.Time
}

type flowKey struct {
	channelID string
	userID    string
}

type Service struct {
	questions Questions
	members   Members
	chat      Chat
	after     func(d time.Duration) <-chan time.Time

	themeTimeout        time.Duration
	titleTimeout        time.Duration
	propositionsTimeout time.Duration

	wg    sync.WaitGroup
	mu    sync.Mutex
	flows map[flowKey]chan string
}

func NewService(c Config) *Service {
	s := &Service{
		questions:           c.Questions,
		members:             c.Members,
		chat:                c.Chat,
		after:               c.AfterFunc,
		themeTimeout:        c.ThemeTimeout,
		titleTimeout:        c.TitleTimeout,
		propositionsTimeout: c.PropositionsTimeout,
		flows:               make(map[flowKey]chan string),
	}

	if s.after == nil {
		s.after = time.After
	}
	if s.themeTimeout <= 0 {
		s.themeTimeout = defaultThemeTimeout
	}
	if s.titleTimeout <= 0 {
		s.titleTimeout = defaultTitleTimeout
	}
	if s.propositionsTimeout <= 0 {
		s.propositionsTimeout = defaultPropositionsTimeout
	}

	return s
}

// AuthorRequest represents a member asking to submit a question in a channel.
type AuthorRequest struct {
	ChannelID string
	UserID    string
	UserName  string
}

// Start runs the dialogue in the background.
func (s *Service) Start(ctx context.Context, req AuthorRequest) error {
	replies, err := s.register(req)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unregister(req)

		if _, err := s.author(ctx, req, replies); err != nil {
			slog.InfoContext(ctx, "authoring: question not saved",
				"channel", req.ChannelID,
				"user", req.UserID,
				"error", err,
			)
		}
	}()

	return nil
}

// Author asks the member for the theme, the title and the propositions of a question, then saves it.
// Each answer must arrive through Deliver before its step times out.
func (s *Service) Author(ctx context.Context, req AuthorRequest) (*domain.Question, error) {
	replies, err := s.register(req)
	if err != nil {
		return nil, err
	}
	defer s.unregister(req)

	return s.author(ctx, req, replies)
}

// Deliver hands a chat message to the dialogue the author has open in the channel.
// It reports whether the message was consumed by a dialogue.
func (s *Service) Deliver(channelID, userID, content string) bool {
	s.mu.Lock()
	replies, ok := s.flows[flowKey{channelID: channelID, userID: userID}]
	s.mu.Unlock()

	if !ok {
		return false
	}

	select {
	case replies <- content:
	default:
	}

	return true
}

// Wait blocks until every dialogue started in the background is over.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) register(req AuthorRequest) (chan string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := flowKey{channelID: req.ChannelID, userID: req.UserID}
	if _, ok := s.flows[k]; ok {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonAlreadyActive),
			errors.WithMessagef("question authoring already in progress: channel=%s user=%s", req.ChannelID, req.UserID),
		)
	}

	replies := make(chan string, 1)
	s.flows[k] = replies
	return replies, nil
}

func (s *Service) unregister(req AuthorRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.flows, flowKey{channelID: req.ChannelID, userID: req.UserID})
}

func (s *Service) author(ctx context.Context, req AuthorRequest, replies <-chan string) (*domain.Question, error) {
	d := question.Draft{Author: req.UserName}

	steps := []struct {
		name    string
		prompt  string
		timeout time.Duration
		answer  *string
	}{
		{"theme", "What is the theme of your question?", s.themeTimeout, &d.Theme},
		{"title", "What is your question?", s.titleTimeout, &d.Title},
		{"propositions", "What are the propositions? Separate them with \"/\" and end the correct one with \"*\".", s.propositionsTimeout, &d.Propositions},
	}

	for _, st := range steps {
		s.prompt(ctx, req, st.prompt, st.timeout)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.after(st.timeout):
			if err := s.chat.Notify(ctx, req.UserID, timeoutNotice); err != nil {
				slog.ErrorContext(ctx, "authoring: notify timeout failed", "user", req.UserID, "error", err)
			}
			return nil, errors.AuthoringTimeout(st.name)
		case r := <-replies:
			*st.answer = r
		}
	}

	q, err := question.ParseDraft(d)
	if err != nil {
		slog.WarnContext(ctx, "authoring: invalid question", "user", req.UserID, "error", err)
		if err := s.chat.Notify(ctx, req.UserID, "Your question was not saved: "+errors.Convert(err).Message); err != nil {
			slog.ErrorContext(ctx, "authoring: notify invalid question failed", "user", req.UserID, "error", err)
		}
		return nil, err
	}

	if err := s.questions.Insert(ctx, &q); err != nil {
		return nil, fmt.Errorf("authoring: save question: %w", err)
	}

	if err := s.members.AdjustXP(ctx, req.UserID, member.QuestionXP); err != nil {
		slog.WarnContext(ctx, "authoring: credit author failed", "user", req.UserID, "error", err)
	}

	if _, err := s.chat.Publish(ctx, req.ChannelID, domain.Message{
		Title: "Question saved",
		Body:  fmt.Sprintf("Thank you for your question %s! +%dXP", req.UserName, member.QuestionXP),
	}); err != nil {
		slog.ErrorContext(ctx, "authoring: publish thanks failed", "channel", req.ChannelID, "error", err)
	}

	slog.InfoContext(ctx, "authoring: question saved",
		"question", q.QuestionID,
		"user", req.UserID,
	)

	return &q, nil
}

func (s *Service) prompt(ctx context.Context, req AuthorRequest, text string, timeout time.Duration) {
	if _, err := s.chat.Publish(ctx, req.ChannelID, domain.Message{
		Title:  "New question",
		Body:   text,
		Footer: fmt.Sprintf("%s, you have %s to answer.", req.UserName, timeout),
	}); err != nil {
		slog.ErrorContext(ctx, "authoring: publish prompt failed", "channel", req.ChannelID, "error", err)
	}
}
