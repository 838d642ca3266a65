package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/event"
)

// QuizMetrics counts what happens in the quiz from the events of the bus.
type QuizMetrics struct {
	questionsResolved prometheus.Counter
	participants      prometheus.Histogram
	xp                *prometheus.CounterVec
	roundsFinished    prometheus.Counter
	questionsAdded    prometheus.Counter
}

func ObserveQuiz(eb *event.Bus, reg prometheus.Registerer) *QuizMetrics {
	f := promauto.With(reg)

	m := &QuizMetrics{
		questionsResolved: f.NewCounter(prometheus.CounterOpts{
			Namespace: "quizbot",
			Name:      "questions_resolved_total",
			Help:      "Questions whose voting window is over.",
		}),
		participants: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quizbot",
			Name:      "question_participants",
			Help:      "Members who voted on a question.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		xp: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizbot",
			Name:      "question_xp_total",
			Help:      "XP won and lost on questions.",
		}, []string{"outcome"}),
		roundsFinished: f.NewCounter(prometheus.CounterOpts{
			Namespace: "quizbot",
			Name:      "rounds_finished_total",
			Help:      "Rounds played until their last question.",
		}),
		questionsAdded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "quizbot",
			Name:      "questions_added_total",
			Help:      "Questions written by members.",
		}),
	}

	eb.Subscribe(domain.EventNameQuestionResolved, func(_ context.Context, e event.Event) error {
		m.observeResult(e.(domain.EventQuestionResolved).Result)
		return nil
	})
	eb.Subscribe(domain.EventNameRoundFinished, func(context.Context, event.Event) error {
		m.roundsFinished.Inc()
		return nil
	})
	eb.Subscribe(domain.EventNameQuestionAdded, func(context.Context, event.Event) error {
		m.questionsAdded.Inc()
		return nil
	})

	return m
}

func (m *QuizMetrics) observeResult(res domain.QuestionResult) {
	m.questionsResolved.Inc()
	m.participants.Observe(float64(len(res.Winners) + len(res.Losers)))

	for _, s := range res.WinnerScores {
		m.xp.WithLabelValues("won").Add(float64(s.Points))
	}
	for _, s := range res.LoserScores {
		m.xp.WithLabelValues("lost").Add(float64(s.Points))
	}
}
