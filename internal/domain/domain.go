package domain

import (
	"strings"
	"time"
)

// Question represents a multiple choice quiz question.
// Propositions are prefixed with their display letter, e.g. "A) Paris".
type Question struct {
	QuestionID   string
	Author       string
	Theme        string
	Title        string
	Propositions []string
	Answer       string
}

// Letters returns the display letter of every proposition, in order.
func (q Question) Letters() []string {
	letters := make([]string, 0, len(q.Propositions))
	for _, p := range q.Propositions {
		if p == "" {
			continue
		}
		letters = append(letters, strings.ToUpper(p[:1]))
	}
	return letters
}

// Member is the chat member record the quiz reads levels from and writes XP to.
type Member struct {
	UserID      string
	DisplayName string
	Level       int
	XP          int
}

// Message is a rich chat message: a title, a body and an optional author line and footer.
type Message struct {
	Title  string
	Author string
	Body   string
	Footer string
}

// MessageHandle identifies a message published on a channel.
type MessageHandle struct {
	ChannelID string
	MessageID string
}

// Reaction is a user selecting a symbol on a published message.
type Reaction struct {
	Message MessageHandle
	UserID  string
	Symbol  string
}

// ScoreEntry is the XP a participant gained or lost on a single question.
type ScoreEntry struct {
	UserID      string
	DisplayName string
	Points      int
}

// QuestionResult represents the frozen outcome of a question session.
// Winners and Losers hold user IDs in arrival order, Scores only the users that could be scored.
type QuestionResult struct {
	SessionID    string
	ChannelID    string
	Winners      []string
	Losers       []string
	WinnerScores []ScoreEntry
	LoserScores  []ScoreEntry
	ResolveTime  time.Time
}

// Standings represents the ranking of a round in a channel, sorted by wins in descending order.
type Standings struct {
	ChannelID string
	Entries   []Standing
}

type Standing struct {
	Rank  int
	Label string
	Name  string
	Wins  int
}

// Leaderboard represents members and their total XP, sorted in descending order.
type Leaderboard struct {
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	UserID      string
	DisplayName string
	XP          float64
}
