package question

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/event"
)

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Config struct {
	EventBus *event.Bus
	DB       DB
}

// Store persists quiz questions in PostgreSQL.
type Store struct {
	eb *event.Bus
	db DB
}

func NewStore(c Config) *Store {
	return &Store{
		eb: c.EventBus,
		db: c.DB,
	}
}

// FetchRandom returns up to n questions in random order.
func (s *Store) FetchRandom(ctx context.Context, n int) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, author, theme, title, propositions, answer
FROM questions
ORDER BY random()
LIMIT $1;`

	rows, err := s.db.Query(ctx, stmt, n)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}

	qs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var (
			q  domain.Question
			id uuid.UUID
		)
		if err := r.Scan(&id, &q.Author, &q.Theme, &q.Title, &q.Propositions, &q.Answer); err != nil {
			return domain.Question{}, err
		}
		q.QuestionID = id.String()
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect questions: %w", err)
	}

	return qs, nil
}

// Insert validates and stores a question, setting its ID.
func (s *Store) Insert(ctx context.Context, q *domain.Question) error {
	if err := Validate(*q); err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate question ID: %w", err)
	}

	const stmt = `
INSERT INTO questions (question_id, author, theme, title, propositions, answer)
VALUES ($1, $2, $3, $4, $5, $6);`

	if _, err := s.db.Exec(ctx, stmt, id, q.Author, q.Theme, q.Title, q.Propositions, q.Answer); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	q.QuestionID = id.String()

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventQuestionAdded{Question: *q})
	}

	return nil
}
