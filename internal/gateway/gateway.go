// Package gateway is the chat transport of the bot. A chat bridge subscribed to Redis renders what
// the bot publishes and forwards reactions, messages and commands on the gateway channel.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizbot/internal/domain"
)

const (
	EventMessageCreated     = "message.created"
	EventReactionAttached   = "reaction.attached"
	EventReactionAdded      = "reaction.added"
	EventDirectMessage      = "direct.message"
	EventRoundRequested     = "round.requested"
	EventStandingsRequested = "standings.requested"
	EventQuestionRequested  = "question.requested"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Envelope struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}

	Message struct {
		ChannelID string `json:"channel_id"`
		MessageID string `json:"message_id"`
		Title     string `json:"title,omitempty"`
		Author    string `json:"author,omitempty"`
		Body      string `json:"body"`
		Footer    string `json:"footer,omitempty"`
	}

	Selectable struct {
		ChannelID string `json:"channel_id"`
		MessageID string `json:"message_id"`
		Symbol    string `json:"symbol"`
	}

	DirectMessage struct {
		UserID string `json:"user_id"`
		Text   string `json:"text"`
	}

	Reaction struct {
		ChannelID string `json:"channel_id"`
		MessageID string `json:"message_id"`
		UserID    string `json:"user_id"`
		Symbol    string `json:"symbol"`
	}

	ChatMessage struct {
		ChannelID string `json:"channel_id"`
		UserID    string `json:"user_id"`
		UserName  string `json:"user_name"`
		Content   string `json:"content"`
	}

	Command struct {
		ChannelID string `json:"channel_id"`
		UserID    string `json:"user_id"`
		UserName  string `json:"user_name"`
		Count     int    `json:"count,omitempty"`
	}
)

// Handler receives what users do in the chat.
type Handler interface {
	HandleReaction(ctx context.Context, r domain.Reaction) error
	HandleMessage(ctx context.Context, m ChatMessage) error
	HandleCommand(ctx context.Context, name string, c Command) error
}

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
	// BotUserID is the user the bot acts as, its own reactions and messages are ignored.
	BotUserID string
}

type Gateway struct {
	redis  redis.UniversalClient
	prefix string
	bot    string
}

func New(c Config) *Gateway {
	return &Gateway{
		redis:  c.Redis,
		prefix: c.Prefix,
		bot:    c.BotUserID,
	}
}

// Publish sends a message to a channel.
func (g *Gateway) Publish(ctx context.Context, channelID string, m domain.Message) (domain.MessageHandle, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.MessageHandle{}, fmt.Errorf("generate message ID: %w", err)
	}

	h := domain.MessageHandle{ChannelID: channelID, MessageID: id.String()}
	err = g.notify(ctx, g.ChannelKey(channelID), EventMessageCreated, Message{
		ChannelID: channelID,
		MessageID: h.MessageID,
		Title:     m.Title,
		Author:    m.Author,
		Body:      m.Body,
		Footer:    m.Footer,
	})
	if err != nil {
		return domain.MessageHandle{}, err
	}

	return h, nil
}

// AttachSelectable adds the reaction of a proposition letter under a message.
func (g *Gateway) AttachSelectable(ctx context.Context, h domain.MessageHandle, letter string) error {
	symbol := Symbol(letter)
	if symbol == "" {
		return fmt.Errorf("gateway: no symbol for letter %q", letter)
	}

	return g.notify(ctx, g.ChannelKey(h.ChannelID), EventReactionAttached, Selectable{
		ChannelID: h.ChannelID,
		MessageID: h.MessageID,
		Symbol:    symbol,
	})
}

// Notify sends a direct message to a user.
func (g *Gateway) Notify(ctx context.Context, userID, text string) error {
	return g.NotifyEvent(ctx, userID, EventDirectMessage, DirectMessage{
		UserID: userID,
		Text:   text,
	})
}

// NotifyEvent sends an event to the bridge of a single user.
func (g *Gateway) NotifyEvent(ctx context.Context, userID, event string, data any) error {
	return g.notify(ctx, g.UserKey(userID), event, data)
}

// Broadcast publishes an event every bridge listens to.
func (g *Gateway) Broadcast(ctx context.Context, event string, data any) error {
	return g.notify(ctx, g.BroadcastKey(), event, data)
}

func (g *Gateway) notify(ctx context.Context, key, event string, data any) error {
	b, err := json.Marshal(Notification{
		Event: event,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("gateway: marshal %s: %w", event, err)
	}

	if err := g.redis.Publish(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("gateway: publish %s: %w", event, err)
	}

	return nil
}

// Listen dispatches the events of the gateway channel to h until ctx is done.
func (g *Gateway) Listen(ctx context.Context, h Handler) error {
	sub := g.redis.Subscribe(ctx, g.InboundKey())
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("gateway: subscribe: %w", err)
	}

	slog.InfoContext(ctx, "gateway: listening", "channel", g.InboundKey())

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := g.dispatch(ctx, h, msg.Payload); err != nil {
				slog.ErrorContext(ctx, "gateway: handle event failed", "error", err)
			}
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, h Handler, payload string) error {
	var e Envelope
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch e.Event {
	case EventReactionAdded:
		var r Reaction
		if err := json.Unmarshal(e.Data, &r); err != nil {
			return fmt.Errorf("unmarshal %s: %w", e.Event, err)
		}
		if r.UserID == g.bot {
			return nil
		}
		return h.HandleReaction(ctx, domain.Reaction{
			Message: domain.MessageHandle{ChannelID: r.ChannelID, MessageID: r.MessageID},
			UserID:  r.UserID,
			Symbol:  r.Symbol,
		})

	case EventMessageCreated:
		var m ChatMessage
		if err := json.Unmarshal(e.Data, &m); err != nil {
			return fmt.Errorf("unmarshal %s: %w", e.Event, err)
		}
		if m.UserID == g.bot {
			return nil
		}
		return h.HandleMessage(ctx, m)

	case EventRoundRequested, EventStandingsRequested, EventQuestionRequested:
		var c Command
		if err := json.Unmarshal(e.Data, &c); err != nil {
			return fmt.Errorf("unmarshal %s: %w", e.Event, err)
		}
		return h.HandleCommand(ctx, e.Event, c)

	default:
		slog.DebugContext(ctx, "gateway: unknown event ignored", "event", e.Event)
		return nil
	}
}

func (g *Gateway) ChannelKey(channelID string) string {
	return fmt.Sprintf("%s:channel:%s", g.prefix, channelID)
}

func (g *Gateway) UserKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", g.prefix, userID)
}

func (g *Gateway) BroadcastKey() string {
	return fmt.Sprintf("%s:broadcast", g.prefix)
}

func (g *Gateway) InboundKey() string {
	return fmt.Sprintf("%s:gateway", g.prefix)
}
