package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizbot",
		Subsystem: "session",
		Name:      "votes_total",
		Help:      "Votes received by question sessions, by outcome.",
	}, []string{"outcome"})

	sessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizbot",
		Subsystem: "session",
		Name:      "open",
		Help:      "Question sessions not closed yet.",
	})
)
