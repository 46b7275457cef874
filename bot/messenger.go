package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Messenger is the outgoing side of the chat.
type Messenger interface {
	Send(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) error
	// Edit replaces the text of a message the bot sent earlier. Implementations
	// fall back to sending a new message when the edit is rejected.
	Edit(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(callbackID, text string, alert bool) error
}

type telegramMessenger struct {
	api    *tgbotapi.BotAPI
	logger *logrus.Entry
}

func NewTelegramMessenger(api *tgbotapi.BotAPI) Messenger {
	return &telegramMessenger{
		api:    api,
		logger: logrus.WithField("component", "telegram"),
	}
}

func (m *telegramMessenger) Send(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, err := m.api.Send(msg)
	return err
}

func (m *telegramMessenger) Edit(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	if messageID == 0 {
		return m.Send(chatID, text, kb)
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if kb != nil {
		edit.ReplyMarkup = kb
	}
	if _, err := m.api.Request(edit); err != nil {
		m.logger.WithError(err).WithField("chat_id", chatID).Debug("edit rejected, sending new message")
		return m.Send(chatID, text, kb)
	}
	return nil
}

func (m *telegramMessenger) AnswerCallback(callbackID, text string, alert bool) error {
	cfg := tgbotapi.NewCallback(callbackID, text)
	cfg.ShowAlert = alert
	_, err := m.api.Request(cfg)
	return err
}
