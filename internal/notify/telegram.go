package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/errandly/backend/internal/apperr"
	"github.com/errandly/backend/internal/retry"
)

const (
	sendAttempts = 3
	sendBackoff  = 500 * time.Millisecond
)

// TelegramGateway implements Gateway on the Telegram Bot API. Channels are
// forum topics inside a pre-provisioned workspace supergroup: the bot opens
// one topic per task and invites both participants with single-use links.
type TelegramGateway struct {
	api         *tgbotapi.BotAPI
	workspaceID int64
	logger      *slog.Logger
}

func NewTelegramGateway(token string, workspaceID int64, logger *slog.Logger) (*TelegramGateway, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	logger.Info("telegram gateway authorized", "bot", api.Self.UserName)
	return &TelegramGateway{api: api, workspaceID: workspaceID, logger: logger}, nil
}

func (g *TelegramGateway) SendMessage(ctx context.Context, recipientID int64, text string) error {
	err := retry.Do(ctx, sendAttempts, sendBackoff, func(context.Context) error {
		_, err := g.api.Send(tgbotapi.NewMessage(recipientID, text))
		return classify(err)
	})
	if err != nil {
		return apperr.External("telegram", err)
	}
	return nil
}

func (g *TelegramGateway) CreateChannel(ctx context.Context, title string, participantIDs []int64) (int64, error) {
	var topicID int64
	err := retry.Do(ctx, sendAttempts, sendBackoff, func(context.Context) error {
		params := tgbotapi.Params{}
		params.AddNonZero64("chat_id", g.workspaceID)
		params.AddNonEmpty("name", title)
		resp, err := g.api.MakeRequest("createForumTopic", params)
		if err != nil {
			return classify(err)
		}
		var topic struct {
			MessageThreadID int64 `json:"message_thread_id"`
		}
		if err := json.Unmarshal(resp.Result, &topic); err != nil {
			return fmt.Errorf("decode createForumTopic response: %w", err)
		}
		topicID = topic.MessageThreadID
		return nil
	})
	if err != nil {
		return 0, apperr.External("telegram", err)
	}

	for _, pid := range participantIDs {
		if err := g.invite(ctx, pid, title); err != nil {
			return 0, err
		}
	}
	return topicID, nil
}

// invite issues a single-use invite link to the workspace group and delivers
// it to the participant.
func (g *TelegramGateway) invite(ctx context.Context, participantID int64, title string) error {
	err := retry.Do(ctx, sendAttempts, sendBackoff, func(context.Context) error {
		params := tgbotapi.Params{}
		params.AddNonZero64("chat_id", g.workspaceID)
		params.AddNonZero("member_limit", 1)
		resp, err := g.api.MakeRequest("createChatInviteLink", params)
		if err != nil {
			return classify(err)
		}
		var link struct {
			InviteLink string `json:"invite_link"`
		}
		if err := json.Unmarshal(resp.Result, &link); err != nil {
			return fmt.Errorf("decode invite link: %w", err)
		}
		_, err = g.api.Send(tgbotapi.NewMessage(participantID,
			fmt.Sprintf("Your private channel for %s is ready: %s", title, link.InviteLink)))
		return classify(err)
	})
	if err != nil {
		return apperr.External("telegram", err)
	}
	return nil
}

func (g *TelegramGateway) DeleteChannel(ctx context.Context, channelID int64) error {
	err := retry.Do(ctx, sendAttempts, sendBackoff, func(context.Context) error {
		params := tgbotapi.Params{}
		params.AddNonZero64("chat_id", g.workspaceID)
		params.AddNonEmpty("message_thread_id", strconv.FormatInt(channelID, 10))
		_, err := g.api.MakeRequest("deleteForumTopic", params)
		return classify(err)
	})
	if err != nil {
		return apperr.External("telegram", err)
	}
	return nil
}

func (g *TelegramGateway) PromoteMember(ctx context.Context, channelID, memberID int64) error {
	err := retry.Do(ctx, sendAttempts, sendBackoff, func(context.Context) error {
		params := tgbotapi.Params{}
		params.AddNonZero64("chat_id", g.workspaceID)
		params.AddNonZero64("user_id", memberID)
		params.AddBool("can_manage_topics", true)
		_, err := g.api.MakeRequest("promoteChatMember", params)
		return classify(err)
	})
	if err != nil {
		return apperr.External("telegram", err)
	}
	return nil
}

// classify marks rate limits and provider-side failures as transient so the
// retry wrapper tries again; client errors propagate immediately.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		if tgErr.Code == 429 || tgErr.Code >= 500 {
			return retry.Transient(err)
		}
		return err
	}
	// Network-level failure.
	return retry.Transient(err)
}
