package member

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/event"
)

// XP credited for activity outside the quiz.
const (
	MessageXP  = 25
	QuestionXP = 500
)

// DB is the subset of pgxpool.Pool used by the service.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Config struct {
	EventBus *event.Bus
	DB       DB
}

// Service reads and updates the member records of the chat server.
type Service struct {
	eb *event.Bus
	db DB
}

func NewService(c Config) *Service {
	return &Service{
		eb: c.EventBus,
		db: c.DB,
	}
}

// GetMember returns the member record of a user, failing with MemberNotFound on a miss.
func (s *Service) GetMember(ctx context.Context, userID string) (*domain.Member, error) {
	const stmt = `SELECT display_name, level, xp FROM members WHERE user_id = $1;`

	m := domain.Member{UserID: userID}
	err := s.db.QueryRow(ctx, stmt, userID).Scan(&m.DisplayName, &m.Level, &m.XP)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.MemberNotFound(userID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("get member %s: %w", userID, err)
	}

	return &m, nil
}

// AdjustXP adds delta, possibly negative, to the XP of a user.
func (s *Service) AdjustXP(ctx context.Context, userID string, delta int) error {
	const stmt = `
UPDATE members SET xp = xp + $2
WHERE user_id = $1
RETURNING display_name, level, xp;`

	m := domain.Member{UserID: userID}
	err := s.db.QueryRow(ctx, stmt, userID, delta).Scan(&m.DisplayName, &m.Level, &m.XP)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.MemberNotFound(userID, err)
	}
	if err != nil {
		return fmt.Errorf("adjust XP of %s: %w", userID, err)
	}

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventXPAdjusted{
			Member: m,
			Delta:  delta,
		})
	}

	return nil
}
