package api

import (
	"context"
	"log/slog"
	"strings"

	"github.com/victornm/quizbot/internal/authoring"
	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/gateway"
	"github.com/victornm/quizbot/internal/member"
	"github.com/victornm/quizbot/internal/round"
)

// HandleReaction turns a reaction into a vote for the session of the reacted message.
// Reactions that are not a proposition symbol, or not on an open question, are ignored.
func (a *API) HandleReaction(ctx context.Context, r domain.Reaction) error {
	if r.UserID == a.bot {
		return nil
	}

	letter, ok := gateway.Letter(r.Symbol)
	if !ok {
		slog.DebugContext(ctx, "api: reaction ignored, not a proposition", "symbol", r.Symbol)
		return nil
	}

	err := a.sessions.Route(ctx, r.Message, r.UserID, letter)
	if errors.HasReason(err, errors.ReasonSessionNotOpen) {
		slog.DebugContext(ctx, "api: reaction ignored, no open question",
			"channel", r.Message.ChannelID,
			"message", r.Message.MessageID,
			"user", r.UserID,
		)
		return nil
	}

	return err
}

// HandleMessage gives the message to the author's question dialogue if any,
// otherwise credits the author for chatting.
func (a *API) HandleMessage(ctx context.Context, m gateway.ChatMessage) error {
	if m.UserID == a.bot {
		return nil
	}

	if a.authoring.Deliver(m.ChannelID, m.UserID, m.Content) {
		return nil
	}

	if strings.HasPrefix(m.Content, a.prefix) {
		return nil
	}

	err := a.members.AdjustXP(ctx, m.UserID, member.MessageXP)
	if errors.HasReason(err, errors.ReasonMemberNotFound) {
		slog.DebugContext(ctx, "api: activity not credited, unknown member", "user", m.UserID)
		return nil
	}

	return err
}

func (a *API) HandleCommand(ctx context.Context, name string, c gateway.Command) error {
	switch name {
	case gateway.EventRoundRequested:
		err := a.rounds.Start(ctx, round.RunRequest{
			ChannelID: c.ChannelID,
			Count:     c.Count,
		})
		if errors.HasReason(err, errors.ReasonAlreadyActive) {
			return nil
		}
		if err != nil && errors.Convert(err).Code == errors.CodeInvalidArgument {
			a.reply(ctx, c.ChannelID, errors.Convert(err).Message)
			return nil
		}
		return err

	case gateway.EventStandingsRequested:
		s, err := a.rounds.Standings(ctx, c.ChannelID)
		if err != nil && errors.Convert(err).Code == errors.CodeNotFound {
			a.reply(ctx, c.ChannelID, "No quiz round is running in this channel.")
			return nil
		}
		if err != nil {
			return err
		}
		_, err = a.gateway.Publish(ctx, c.ChannelID, round.Format(*s))
		return err

	case gateway.EventQuestionRequested:
		err := a.authoring.Start(ctx, authoring.AuthorRequest{
			ChannelID: c.ChannelID,
			UserID:    c.UserID,
			UserName:  c.UserName,
		})
		if errors.HasReason(err, errors.ReasonAlreadyActive) {
			return a.gateway.Notify(ctx, c.UserID, "You are already writing a question in this channel.")
		}
		return err

	default:
		slog.DebugContext(ctx, "api: unknown command ignored", "command", name)
		return nil
	}
}

func (a *API) reply(ctx context.Context, channelID, text string) {
	if _, err := a.gateway.Publish(ctx, channelID, domain.Message{Body: text}); err != nil {
		slog.ErrorContext(ctx, "api: reply failed", "channel", channelID, "error", err)
	}
}
