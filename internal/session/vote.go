package session

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
)

// Apply records the vote of a user, replacing any previous vote of the same user.
// It fails with SessionNotOpen once the voting window is over.
func (s *Session) Apply(userID, letter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.openLocked() {
		votesTotal.WithLabelValues("rejected").Inc()
		return errors.SessionNotOpen(s.ID)
	}

	s.winners = slices.DeleteFunc(s.winners, func(id string) bool { return id == userID })
	s.losers = slices.DeleteFunc(s.losers, func(id string) bool { return id == userID })

	if strings.EqualFold(letter, s.Question.Answer) {
		s.winners = append(s.winners, userID)
		votesTotal.WithLabelValues("winner").Inc()
	} else {
		s.losers = append(s.losers, userID)
		votesTotal.WithLabelValues("loser").Inc()
	}

	return nil
}

// Route applies a vote made on a published message to the session of its channel.
// Votes on any other message than the one of the current session fail with SessionNotOpen.
func (r *Registry) Route(ctx context.Context, msg domain.MessageHandle, userID, letter string) error {
	s, ok := r.Get(msg.ChannelID)
	if !ok || s.Message().MessageID == "" || s.Message().MessageID != msg.MessageID {
		return errors.SessionNotOpen(msg.MessageID)
	}

	if err := s.Apply(userID, letter); err != nil {
		return err
	}

	slog.DebugContext(ctx, "session: vote applied",
		"session", s.ID,
		"user", userID,
		"letter", letter,
	)

	return nil
}
