package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbot/internal/api"
	"github.com/victornm/quizbot/internal/authoring"
	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/event"
	"github.com/victornm/quizbot/internal/gateway"
	"github.com/victornm/quizbot/internal/leaderboard"
	"github.com/victornm/quizbot/internal/round"
)

var _ api.LeaderboardReader = (*leaderboard.Service)(nil)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestAPI_HTTP(t *testing.T) {
	t.Parallel()

	type inputs struct {
		method string
		path   string
		body   string
	}

	tests := map[string]struct {
		arrange func(f *fixture) inputs
		assert  func(t *testing.T, f *fixture, w *httptest.ResponseRecorder)
	}{
		"should start a round": {
			arrange: func(f *fixture) inputs {
				return inputs{method: http.MethodPost, path: "/v1/channels/c1/rounds", body: `{"count":3}`}
			},
			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusAccepted, w.Code)
				assert.JSONEq(t, `{"channel_id":"c1","count":3}`, w.Body.String())
				assert.Equal(t, []round.RunRequest{{ChannelID: "c1", Count: 3}}, f.rounds.started)
			},
		},

		"should start a round of one question without body": {
			arrange: func(f *fixture) inputs {
				return inputs{method: http.MethodPost, path: "/v1/channels/c1/rounds"}
			},
			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusAccepted, w.Code)
				assert.JSONEq(t, `{"channel_id":"c1","count":1}`, w.Body.String())
			},
		},

		"should leave the running round of a busy channel untouched": {
			arrange: func(f *fixture) inputs {
				f.rounds.err = errors.AlreadyActive("c1")
				return inputs{method: http.MethodPost, path: "/v1/channels/c1/rounds", body: `{"count":3}`}
			},
			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusAccepted, w.Code)
				assert.JSONEq(t, `{"channel_id":"c1","count":3,"already_running":true}`, w.Body.String())
			},
		},

		"should return the standings of the running round": {
			arrange: func(f *fixture) inputs {
				f.rounds.standings = &domain.Standings{
					ChannelID: "c1",
					Entries:   []domain.Standing{{Rank: 1, Label: "🥇", Name: "Ann", Wins: 2}},
				}
				return inputs{method: http.MethodGet, path: "/v1/channels/c1/standings"}
			},
			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusOK, w.Code)
				assert.JSONEq(t, `{"channel_id":"c1","entries":[{"rank":1,"label":"🥇","name":"Ann","wins":2}]}`, w.Body.String())
			},
		},

		"should return not found without running round": {
			arrange: func(f *fixture) inputs {
				return inputs{method: http.MethodGet, path: "/v1/channels/c1/standings"}
			},
			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusNotFound, w.Code)
			},
		},

		"should route a reaction as a vote": {
			arrange: func(f *fixture) inputs {
				return inputs{method: http.MethodPost, path: "/v1/channels/c1/reactions", body: `{"message_id":"m1","user_id":"u1","symbol":"🇧"}`}
			},
			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusNoContent, w.Code)
				assert.Equal(t, []vote{{channelID: "c1", messageID: "m1", userID: "u1", letter: "B"}}, f.sessions.votes)
			},
		},

		"should ignore a reaction without open question": {
			arrange: func(f *fixture) inputs {
				f.sessions.err = errors.SessionNotOpen("m1")
				return inputs{method: http.MethodPost, path: "/v1/channels/c1/reactions", body: `{"message_id":"m1","user_id":"u1","symbol":"🇧"}`}
			},
			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusNoContent, w.Code)
			},
		},

		"should reject a reaction without user": {
			arrange: func(f *fixture) inputs {
				return inputs{method: http.MethodPost, path: "/v1/channels/c1/reactions", body: `{"message_id":"m1","symbol":"🇧"}`}
			},
			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, w.Code)
				assert.Empty(t, f.sessions.votes)
			},
		},

		"should credit a chat message": {
			arrange: func(f *fixture) inputs {
				return inputs{method: http.MethodPost, path: "/v1/channels/c1/messages", body: `{"user_id":"u1","content":"hello"}`}
			},
			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusNoContent, w.Code)
				assert.Equal(t, map[string]int{"u1": 25}, f.members.xp)
			},
		},

		"should start a question dialogue": {
			arrange: func(f *fixture) inputs {
				return inputs{method: http.MethodPost, path: "/v1/channels/c1/questions", body: `{"user_id":"u1","user_name":"Ann"}`}
			},
			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusAccepted, w.Code)
				assert.Equal(t, []authoring.AuthorRequest{{ChannelID: "c1", UserID: "u1", UserName: "Ann"}}, f.authoring.started)
			},
		},

		"should return the XP leaderboard": {
			arrange: func(f *fixture) inputs {
				f.leaderboard.l = &domain.Leaderboard{Entries: []domain.LeaderboardEntry{{UserID: "u1", DisplayName: "Ann", XP: 525}}}
				return inputs{method: http.MethodGet, path: "/v1/leaderboard?limit=5"}
			},
			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusOK, w.Code)
				assert.JSONEq(t, `{"entries":[{"user_id":"u1","display_name":"Ann","xp":"525"}]}`, w.Body.String())
				assert.Equal(t, 5, f.leaderboard.limit)
			},
		},

		"should reject an invalid limit": {
			arrange: func(f *fixture) inputs {
				return inputs{method: http.MethodGet, path: "/v1/leaderboard?limit=ten"}
			},
			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, w.Code)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f, e := makeAPI(t)
			in := tt.arrange(f)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(in.method, in.path, strings.NewReader(in.body))
			if in.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			e.ServeHTTP(w, req)

			tt.assert(t, f, w)
		})
	}
}

func TestAPI_HandleMessage(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		arrange func(f *fixture)
		message gateway.ChatMessage
		assert  func(t *testing.T, f *fixture, err error)
	}{
		"should credit 25 XP": {
			message: gateway.ChatMessage{ChannelID: "c1", UserID: "u1", Content: "hello"},
			assert: func(t *testing.T, f *fixture, err error) {
				require.NoError(t, err)
				assert.Equal(t, map[string]int{"u1": 25}, f.members.xp)
			},
		},

		"should not credit commands": {
			message: gateway.ChatMessage{ChannelID: "c1", UserID: "u1", Content: "!quiz 3"},
			assert: func(t *testing.T, f *fixture, err error) {
				require.NoError(t, err)
				assert.Empty(t, f.members.xp)
			},
		},

		"should not credit the bot": {
			message: gateway.ChatMessage{ChannelID: "c1", UserID: "bot", Content: "hello"},
			assert: func(t *testing.T, f *fixture, err error) {
				require.NoError(t, err)
				assert.Empty(t, f.members.xp)
			},
		},

		"should hand the message to the question dialogue": {
			arrange: func(f *fixture) {
				f.authoring.dialogues = map[string]bool{"c1/u1": true}
			},
			message: gateway.ChatMessage{ChannelID: "c1", UserID: "u1", Content: "Geography"},
			assert: func(t *testing.T, f *fixture, err error) {
				require.NoError(t, err)
				assert.Equal(t, []string{"Geography"}, f.authoring.delivered)
				assert.Empty(t, f.members.xp)
			},
		},

		"should ignore unknown members": {
			arrange: func(f *fixture) {
				f.members.err = errors.MemberNotFound("u9", nil)
			},
			message: gateway.ChatMessage{ChannelID: "c1", UserID: "u9", Content: "hello"},
			assert: func(t *testing.T, f *fixture, err error) {
				require.NoError(t, err)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f, _ := makeAPI(t)
			if tt.arrange != nil {
				tt.arrange(f)
			}

			err := f.api.HandleMessage(context.Background(), tt.message)
			tt.assert(t, f, err)
		})
	}
}

func TestAPI_HandleReaction(t *testing.T) {
	t.Parallel()

	f, _ := makeAPI(t)
	ctx := context.Background()
	msg := domain.MessageHandle{ChannelID: "c1", MessageID: "m1"}

	require.NoError(t, f.api.HandleReaction(ctx, domain.Reaction{Message: msg, UserID: "u1", Symbol: ":regional_indicator_c:"}))
	require.NoError(t, f.api.HandleReaction(ctx, domain.Reaction{Message: msg, UserID: "u2", Symbol: "👍"}))
	require.NoError(t, f.api.HandleReaction(ctx, domain.Reaction{Message: msg, UserID: "bot", Symbol: "🇦"}))

	assert.Equal(t, []vote{{channelID: "c1", messageID: "m1", userID: "u1", letter: "C"}}, f.sessions.votes)
}

func TestAPI_HandleCommand(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		arrange func(f *fixture)
		name    string
		command gateway.Command
		assert  func(t *testing.T, f *fixture, err error)
	}{
		"should start a round": {
			name:    gateway.EventRoundRequested,
			command: gateway.Command{ChannelID: "c1", UserID: "u1", Count: 2},
			assert: func(t *testing.T, f *fixture, err error) {
				require.NoError(t, err)
				assert.Equal(t, []round.RunRequest{{ChannelID: "c1", Count: 2}}, f.rounds.started)
			},
		},

		"should swallow busy channel": {
			arrange: func(f *fixture) {
				f.rounds.err = errors.AlreadyActive("c1")
			},
			name:    gateway.EventRoundRequested,
			command: gateway.Command{ChannelID: "c1"},
			assert: func(t *testing.T, f *fixture, err error) {
				require.NoError(t, err)
			},
		},

		"should tell the channel a round is too long": {
			arrange: func(f *fixture) {
				f.rounds.err = errors.New(errors.CodeInvalidArgument, errors.WithMessagef("a round has at most 50 questions, got 99"))
			},
			name:    gateway.EventRoundRequested,
			command: gateway.Command{ChannelID: "c1", Count: 99},
			assert: func(t *testing.T, f *fixture, err error) {
				require.NoError(t, err)
				require.Len(t, f.gateway.published, 1)
				assert.Equal(t, "a round has at most 50 questions, got 99", f.gateway.published[0].Body)
			},
		},

		"should publish the standings": {
			arrange: func(f *fixture) {
				f.rounds.standings = &domain.Standings{
					ChannelID: "c1",
					Entries:   []domain.Standing{{Rank: 1, Label: "🥇", Name: "Ann", Wins: 2}},
				}
			},
			name:    gateway.EventStandingsRequested,
			command: gateway.Command{ChannelID: "c1"},
			assert: func(t *testing.T, f *fixture, err error) {
				require.NoError(t, err)
				require.Len(t, f.gateway.published, 1)
				assert.Equal(t, "🥇  Ann : 2 points\n", f.gateway.published[0].Body)
			},
		},

		"should tell no round is running": {
			name:    gateway.EventStandingsRequested,
			command: gateway.Command{ChannelID: "c1"},
			assert: func(t *testing.T, f *fixture, err error) {
				require.NoError(t, err)
				require.Len(t, f.gateway.published, 1)
				assert.Equal(t, "No quiz round is running in this channel.", f.gateway.published[0].Body)
			},
		},

		"should notify an author already writing": {
			arrange: func(f *fixture) {
				f.authoring.err = errors.New(errors.CodeAlreadyExists, errors.WithReason(errors.ReasonAlreadyActive))
			},
			name:    gateway.EventQuestionRequested,
			command: gateway.Command{ChannelID: "c1", UserID: "u1", UserName: "Ann"},
			assert: func(t *testing.T, f *fixture, err error) {
				require.NoError(t, err)
				assert.Equal(t, []string{"u1"}, f.gateway.notified)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f, _ := makeAPI(t)
			if tt.arrange != nil {
				tt.arrange(f)
			}

			err := f.api.HandleCommand(context.Background(), tt.name, tt.command)
			tt.assert(t, f, err)
		})
	}
}

func TestAPI_PublishLeaderboardUpdated(t *testing.T) {
	t.Parallel()

	f, _ := makeAPI(t)

	err := f.api.PublishLeaderboardUpdated(context.Background(), domain.EventLeaderboardUpdated{
		Leaderboard: domain.Leaderboard{Entries: []domain.LeaderboardEntry{
			{UserID: "u1", DisplayName: "Ann", XP: 525},
			{UserID: "u2", DisplayName: "Bob", XP: 25},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.gateway.broadcasts)
	assert.ElementsMatch(t, []string{"u1", "u2"}, f.gateway.events)

	b, err := json.Marshal(f.gateway.lastData)
	require.NoError(t, err)
	assert.JSONEq(t, `{"entries":[{"user_id":"u1","display_name":"Ann","xp":"525"},{"user_id":"u2","display_name":"Bob","xp":"25"}]}`, string(b))
}

type fixture struct {
	api         *api.API
	rounds      *fakeRounds
	sessions    *fakeSessions
	authoring   *fakeAuthoring
	members     *fakeMembers
	leaderboard *fakeLeaderboard
	gateway     *fakeGateway
}

func makeAPI(t *testing.T) (*fixture, *gin.Engine) {
	e := gin.New()

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	f := &fixture{
		rounds:      &fakeRounds{},
		sessions:    &fakeSessions{},
		authoring:   &fakeAuthoring{},
		members:     &fakeMembers{xp: make(map[string]int)},
		leaderboard: &fakeLeaderboard{},
		gateway:     &fakeGateway{},
	}

	f.api = api.New(api.Config{
		Router:      e,
		EventBus:    eb,
		Rounds:      f.rounds,
		Sessions:    f.sessions,
		Authoring:   f.authoring,
		Members:     f.members,
		Leaderboard: f.leaderboard,
		Gateway:     f.gateway,
		BotUserID:   "bot",
	})

	return f, e
}

type fakeRounds struct {
	started   []round.RunRequest
	standings *domain.Standings
	err       error
}

func (f *fakeRounds) Start(_ context.Context, req round.RunRequest) error {
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, req)
	return nil
}

func (f *fakeRounds) Standings(_ context.Context, channelID string) (*domain.Standings, error) {
	if f.standings == nil {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("no round running: channel=%s", channelID))
	}
	return f.standings, nil
}

type vote struct {
	channelID, messageID, userID, letter string
}

type fakeSessions struct {
	votes []vote
	err   error
}

func (f *fakeSessions) Route(_ context.Context, msg domain.MessageHandle, userID, letter string) error {
	if f.err != nil {
		return f.err
	}
	f.votes = append(f.votes, vote{channelID: msg.ChannelID, messageID: msg.MessageID, userID: userID, letter: letter})
	return nil
}

type fakeAuthoring struct {
	dialogues map[string]bool
	started   []authoring.AuthorRequest
	delivered []string
	err       error
}

func (f *fakeAuthoring) Start(_ context.Context, req authoring.AuthorRequest) error {
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, req)
	return nil
}

func (f *fakeAuthoring) Deliver(channelID, userID, content string) bool {
	if !f.dialogues[channelID+"/"+userID] {
		return false
	}
	f.delivered = append(f.delivered, content)
	return true
}

type fakeMembers struct {
	xp  map[string]int
	err error
}

func (f *fakeMembers) AdjustXP(_ context.Context, userID string, delta int) error {
	if f.err != nil {
		return f.err
	}
	f.xp[userID] += delta
	return nil
}

type fakeLeaderboard struct {
	l     *domain.Leaderboard
	limit int
}

func (f *fakeLeaderboard) GetLeaderboard(_ context.Context, req leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error) {
	f.limit = req.Limit
	if f.l == nil {
		return nil, errors.New(errors.CodeNotFound)
	}
	return f.l, nil
}

type fakeGateway struct {
	mu         sync.Mutex
	published  []domain.Message
	notified   []string
	events     []string
	broadcasts int
	lastData   any
}

func (f *fakeGateway) Publish(_ context.Context, channelID string, m domain.Message) (domain.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, m)
	return domain.MessageHandle{ChannelID: channelID, MessageID: "m"}, nil
}

func (f *fakeGateway) Notify(_ context.Context, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, userID)
	return nil
}

func (f *fakeGateway) NotifyEvent(_ context.Context, userID, _ string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, userID)
	f.lastData = data
	return nil
}

func (f *fakeGateway) Broadcast(_ context.Context, _ string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts++
	f.lastData = data
	return nil
}
