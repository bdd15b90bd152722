// Package filters решает, кому и где бот отвечает.
package filters

import (
	"context"
	"errors"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/features/members"
)

// Users ищет участника по привязанному Telegram-аккаунту.
type Users interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*members.User, error)
}

// AccessFilter пропускает только личные сообщения и определяет,
// к какой учётной записи привязан отправитель.
type AccessFilter struct {
	users Users
	send  common.SendFunc
}

func NewAccessFilter(users Users, send common.SendFunc) *AccessFilter {
	return &AccessFilter{users: users, send: send}
}

// CheckAccess возвращает участника (nil, если аккаунт ещё не привязан)
// и признак того, что сообщение надо обрабатывать.
func (f *AccessFilter) CheckAccess(ctx context.Context, message *telego.Message) (*members.User, bool) {
	if message == nil {
		log.WithField("component", "AccessFilter").Warn("nil message")
		return nil, false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "AccessFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Warn("nil message.From (service/channel message?)")
		return nil, false
	}

	chatID := message.Chat.ID
	telegramID := message.From.ID
	logger := log.WithFields(log.Fields{
		"component":   "AccessFilter",
		"chat_id":     chatID,
		"chat_type":   message.Chat.Type,
		"telegram_id": telegramID,
	})

	// Балансы и покупки — только в личке
	if message.Chat.Type != telego.ChatTypePrivate {
		logger.Debug("deny: not a private chat")
		return nil, false
	}

	user, err := f.users.GetUserByTelegramID(ctx, telegramID)
	switch {
	case errors.Is(err, common.ErrUserNotFound):
		logger.Debug("allow: private (not linked)")
		return nil, true
	case err != nil:
		logger.WithError(err).Error("member lookup failed (db)")
		return nil, false
	}

	if !user.IsActive {
		logger.WithField("user_id", user.ID).Info("deny: inactive user")
		f.send(chatID, "❌ Учётная запись отключена, обратитесь к администратору")
		return nil, false
	}

	logger.WithField("user_id", user.ID).Debug("allow: private (linked)")
	return user, true
}
