package round

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/victornm/quizbot/internal/domain"
)

var medals = []string{"🥇", "🥈", "🥉"}

// state is the tally of a round in progress: wins per display name, in order of first win.
type state struct {
	channelID string

	mu    sync.Mutex
	names []string
	wins  map[string]int
}

func newState(channelID string) *state {
	return &state{
		channelID: channelID,
		wins:      make(map[string]int),
	}
}

func (st *state) win(name string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.wins[name]; !ok {
		st.names = append(st.names, name)
	}
	st.wins[name]++
}

func (st *state) standings() domain.Standings {
	st.mu.Lock()
	defer st.mu.Unlock()

	return rank(st.channelID, st.names, st.wins)
}

// rank sorts names by wins in descending order, keeping the given order between ties.
// The first three are labelled with a medal.
func rank(channelID string, names []string, wins map[string]int) domain.Standings {
	sorted := slices.Clone(names)
	slices.SortStableFunc(sorted, func(a, b string) int {
		return wins[b] - wins[a]
	})

	s := domain.Standings{
		ChannelID: channelID,
		Entries:   make([]domain.Standing, 0, len(sorted)),
	}

	for i, name := range sorted {
		label := strconv.Itoa(i + 1)
		if i < len(medals) {
			label = medals[i]
		}

		s.Entries = append(s.Entries, domain.Standing{
			Rank:  i + 1,
			Label: label,
			Name:  name,
			Wins:  wins[name],
		})
	}

	return s
}

// Format renders standings as a chat message, one line per member.
func Format(s domain.Standings) domain.Message {
	var b strings.Builder
	for _, e := range s.Entries {
		fmt.Fprintf(&b, "%s  %s : %d points\n", e.Label, e.Name, e.Wins)
	}

	return domain.Message{
		Title: "Quiz standings:",
		Body:  b.String(),
	}
}
