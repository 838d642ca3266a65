package question

import (
	"fmt"
	"strings"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
)

const (
	minPropositions = 3
	maxPropositions = 26

	propositionSeparator = "/"
	answerMarker         = "*"
)

// Draft is the raw input of a question author.
type Draft struct {
	Author string
	Theme  string
	Title  string
	// Propositions are separated by "/", the correct one ends with "*", e.g. "Paris* / Lyon / Nice".
	Propositions string
}

// ParseDraft turns a draft into a question, giving each proposition its display letter.
func ParseDraft(d Draft) (domain.Question, error) {
	q := domain.Question{
		Author: strings.TrimSpace(d.Author),
		Theme:  strings.TrimSpace(d.Theme),
		Title:  strings.TrimSpace(d.Title),
	}

	parts := strings.Split(d.Propositions, propositionSeparator)
	if len(parts) > maxPropositions {
		return domain.Question{}, errors.Validation("at most %d propositions are allowed, got %d", maxPropositions, len(parts))
	}

	for i, p := range parts {
		letter := string(rune('A' + i))

		p = strings.TrimSpace(p)
		if strings.HasSuffix(p, answerMarker) {
			if q.Answer != "" {
				return domain.Question{}, errors.Validation("only one proposition can be marked as correct, found %s and %s", q.Answer, letter)
			}
			q.Answer = letter
			p = strings.TrimRight(p, answerMarker+" ")
		}

		q.Propositions = append(q.Propositions, fmt.Sprintf("%s) %s", letter, p))
	}

	if err := Validate(q); err != nil {
		return domain.Question{}, err
	}

	return q, nil
}

// Validate checks a question can be published: a title, at least three lettered propositions
// and exactly one of them marked as the answer.
func Validate(q domain.Question) error {
	if q.Title == "" {
		return errors.Validation("question has no title")
	}

	if len(q.Propositions) < minPropositions {
		return errors.Validation("question %q needs at least %d propositions, got %d", q.Title, minPropositions, len(q.Propositions))
	}

	answered := false
	for i, p := range q.Propositions {
		prefix := string(rune('A'+i)) + ")"
		if !strings.HasPrefix(p, prefix) || strings.TrimSpace(strings.TrimPrefix(p, prefix)) == "" {
			return errors.Validation("proposition %d of question %q must be %q followed by a text", i+1, q.Title, prefix)
		}
		if q.Answer == string(rune('A'+i)) {
			answered = true
		}
	}

	if !answered {
		return errors.Validation("question %q has no correct answer", q.Title)
	}

	return nil
}
