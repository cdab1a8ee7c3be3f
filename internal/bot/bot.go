package bot

import (
	"context"
	"fmt"

	"mail-relay-bot/internal/logging"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const updateTimeout = 60

type Bot struct {
	api       *tgbotapi.BotAPI
	registrar *Registrar
}

func New(api *tgbotapi.BotAPI, registrar *Registrar) *Bot {
	return &Bot{api: api, registrar: registrar}
}

// Run long-polls Telegram for commands until ctx is cancelled. Only a registry failure
// ends it early.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	logging.Log.Infof("Bot @%s is listening for commands", b.api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := b.handleUpdate(ctx, update); err != nil {
				return err
			}
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || !msg.IsCommand() || msg.Command() != "start" {
		return nil
	}

	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}
	logging.Log.WithField("user_id", userID).Infof("Registration request from chat %d", msg.Chat.ID)

	reply, err := b.registrar.HandleStart(ctx, msg.Chat.ID, msg.Text)
	if err != nil {
		return fmt.Errorf("registering chat %d: %w", msg.Chat.ID, err)
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		logging.Log.WithError(err).Errorf("Error replying to chat %d", msg.Chat.ID)
	}
	return nil
}
