package domain

const (
	EventNameQuestionResolved   = "question.resolved"
	EventNameRoundFinished      = "round.finished"
	EventNameXPAdjusted         = "member.xp_adjusted"
	EventNameQuestionAdded      = "question.added"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventQuestionResolved struct {
	Result QuestionResult
}

func (EventQuestionResolved) Name() string { return EventNameQuestionResolved }

type EventRoundFinished struct {
	Standings Standings
}

func (EventRoundFinished) Name() string { return EventNameRoundFinished }

type EventXPAdjusted struct {
	Member Member
	Delta  int
}

func (EventXPAdjusted) Name() string { return EventNameXPAdjusted }

type EventQuestionAdded struct {
	Question Question
}

func (EventQuestionAdded) Name() string { return EventNameQuestionAdded }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
