package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"tasker/utils"
)

const (
	connectAttempts = 10
	connectInterval = 2 * time.Second
	pollTimeout     = 30
	updateTimeout   = 30 * time.Second
)

// Connect logs in to Telegram. Network failures are retried at a fixed
// interval; an API error such as a rejected token is returned right away.
func Connect(ctx context.Context, token string) (*tgbotapi.BotAPI, error) {
	var api *tgbotapi.BotAPI

	operation := func() error {
		var err error
		api, err = tgbotapi.NewBotAPI(token)
		if err == nil {
			return nil
		}

		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return backoff.Permanent(err)
		}
		logrus.WithError(err).Warn("Telegram is not reachable, retrying")
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(connectInterval), connectAttempts),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return api, nil
}

// Bot pulls updates from Telegram and feeds them to a Handler one at a time,
// so a user's messages are processed in order.
type Bot struct {
	api     *tgbotapi.BotAPI
	handler *Handler
	logger  *logrus.Entry
}

func New(api *tgbotapi.BotAPI, handler *Handler) *Bot {
	return &Bot{
		api:     api,
		handler: handler,
		logger:  logrus.WithField("component", "bot"),
	}
}

// Run long-polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(cfg)

	b.logger.Infof("Bot started as @%s", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping bot...")
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			utils.LogError("bot_panic", fmt.Errorf("%v", r), map[string]interface{}{
				"update_id": update.UpdateID,
			})
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()
	b.handler.HandleUpdate(ctx, update)
}
