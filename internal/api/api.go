package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/victornm/quizbot/internal/authoring"
	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/event"
	"github.com/victornm/quizbot/internal/gateway"
	"github.com/victornm/quizbot/internal/leaderboard"
	"github.com/victornm/quizbot/internal/round"
)

const defaultCommandPrefix = "!"

type Rounds interface {
	Start(ctx context.Context, req round.RunRequest) error
	Standings(ctx context.Context, channelID string) (*domain.Standings, error)
}

type Sessions interface {
	Route(ctx context.Context, msg domain.MessageHandle, userID, letter string) error
}

type Authoring interface {
	Start(ctx context.Context, req authoring.AuthorRequest) error
	Deliver(channelID, userID, content string) bool
}

type Members interface {
	AdjustXP(ctx context.Context, userID string, delta int) error
}

type LeaderboardReader interface {
	GetLeaderboard(ctx context.Context, req leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error)
}

type Gateway interface {
	Publish(ctx context.Context, channelID string, m domain.Message) (domain.MessageHandle, error)
	Notify(ctx context.Context, userID, text string) error
	NotifyEvent(ctx context.Context, userID, event string, data any) error
	Broadcast(ctx context.Context, event string, data any) error
}

type Config struct {
	Router      gin.IRouter
	EventBus    *event.Bus
	Rounds      Rounds
	Sessions    Sessions
	Authoring   Authoring
	Members     Members
	Leaderboard LeaderboardReader
	Gateway     Gateway

	BotUserID     string
	CommandPrefix string
}

// API serves the quiz over HTTP and handles what users do in the chat.
type API struct {
	rounds      Rounds
	sessions    Sessions
	authoring   Authoring
	members     Members
	leaderboard LeaderboardReader
	gateway     Gateway

	bot    string
	prefix string
}

var _ gateway.Handler = (*API)(nil)

func New(c Config) *API {
	a := &API{
		rounds:      c.Rounds,
		sessions:    c.Sessions,
		authoring:   c.Authoring,
		members:     c.Members,
		leaderboard: c.Leaderboard,
		gateway:     c.Gateway,
		bot:         c.BotUserID,
		prefix:      c.CommandPrefix,
	}

	if a.prefix == "" {
		a.prefix = defaultCommandPrefix
	}

	// HTTP APIs
	v1 := c.Router.Group("/v1")
	v1.POST("/channels/:channel/rounds", a.StartRound)
	v1.GET("/channels/:channel/standings", a.GetStandings)
	v1.POST("/channels/:channel/reactions", a.AddReaction)
	v1.POST("/channels/:channel/messages", a.CreateMessage)
	v1.POST("/channels/:channel/questions", a.StartAuthoring)
	v1.GET("/leaderboard", a.GetLeaderboard)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

type (
	StartRoundRequest struct {
		Count int `json:"count"`
	}

	StartRoundResponse struct {
		ChannelID      string `json:"channel_id"`
		Count          int    `json:"count"`
		AlreadyRunning bool   `json:"already_running,omitempty"`
	}

	ReactionRequest struct {
		MessageID string `json:"message_id" binding:"required"`
		UserID    string `json:"user_id" binding:"required"`
		Symbol    string `json:"symbol" binding:"required"`
	}

	MessageRequest struct {
		UserID   string `json:"user_id" binding:"required"`
		UserName string `json:"user_name"`
		Content  string `json:"content"`
	}

	AuthoringRequest struct {
		UserID   string `json:"user_id" binding:"required"`
		UserName string `json:"user_name" binding:"required"`
	}

	Standings struct {
		ChannelID string     `json:"channel_id"`
		Entries   []Standing `json:"entries"`
	}

	Standing struct {
		Rank  int    `json:"rank"`
		Label string `json:"label"`
		Name  string `json:"name"`
		Wins  int    `json:"wins"`
	}
)

func (a *API) StartRound(c *gin.Context) {
	var req StartRoundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, invalidBody(err))
			return
		}
	}

	channelID := c.Param("channel")
	err := a.rounds.Start(c.Request.Context(), round.RunRequest{
		ChannelID: channelID,
		Count:     req.Count,
	})

	// A round already running in the channel is left untouched, like in the chat.
	running := errors.HasReason(err, errors.ReasonAlreadyActive)
	if err != nil && !running {
		writeError(c, err)
		return
	}

	count := req.Count
	if count <= 0 {
		count = 1
	}

	c.JSON(http.StatusAccepted, StartRoundResponse{
		ChannelID:      channelID,
		Count:          count,
		AlreadyRunning: running,
	})
}

func (a *API) GetStandings(c *gin.Context) {
	s, err := a.rounds.Standings(c.Request.Context(), c.Param("channel"))
	if err != nil {
		writeError(c, err)
		return
	}

	resp := Standings{
		ChannelID: s.ChannelID,
		Entries:   make([]Standing, 0, len(s.Entries)),
	}
	for _, e := range s.Entries {
		resp.Entries = append(resp.Entries, Standing{
			Rank:  e.Rank,
			Label: e.Label,
			Name:  e.Name,
			Wins:  e.Wins,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) AddReaction(c *gin.Context) {
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err))
		return
	}

	err := a.HandleReaction(c.Request.Context(), domain.Reaction{
		Message: domain.MessageHandle{ChannelID: c.Param("channel"), MessageID: req.MessageID},
		UserID:  req.UserID,
		Symbol:  req.Symbol,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) CreateMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err))
		return
	}

	err := a.HandleMessage(c.Request.Context(), gateway.ChatMessage{
		ChannelID: c.Param("channel"),
		UserID:    req.UserID,
		UserName:  req.UserName,
		Content:   req.Content,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) StartAuthoring(c *gin.Context) {
	var req AuthoringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err))
		return
	}

	if err := a.authoring.Start(c.Request.Context(), authoring.AuthorRequest{
		ChannelID: c.Param("channel"),
		UserID:    req.UserID,
		UserName:  req.UserName,
	}); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (a *API) GetLeaderboard(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid limit: %q", c.Query("limit"))))
		return
	}

	l, err := a.leaderboard.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		Limit: limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(*l))
}

func invalidBody(err error) error {
	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("invalid request body: %v", err),
		errors.WithCause(err),
	)
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}
