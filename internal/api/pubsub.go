package api

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizbot/internal/domain"
)

const maxConcurrent = 100

type (
	Leaderboard struct {
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
		XP          string `json:"xp"`
	}
)

// PublishLeaderboardUpdated broadcasts the XP standings and sends them to every member on the board.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := toLeaderboard(e.Leaderboard)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	eg.Go(func() error {
		return a.gateway.Broadcast(ctx, e.Name(), data)
	})

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.gateway.NotifyEvent(ctx, entry.UserID, e.Name(), data)
		})
	}

	return eg.Wait()
}

func toLeaderboard(l domain.Leaderboard) Leaderboard {
	data := Leaderboard{
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, entry := range l.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			UserID:      entry.UserID,
			DisplayName: entry.DisplayName,
			XP:          strconv.FormatFloat(entry.XP, 'f', -1, 64),
		})
	}

	return data
}
