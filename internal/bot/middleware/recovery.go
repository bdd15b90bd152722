package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
)

const panicReply = "❌ Произошла ошибка, попробуйте позже"

// RecoverFromPanic вызывается через defer в горутине обработки апдейта.
// Если апдейт пришёл из чата и передан notify, пользователь получает ответ,
// а не тишину.
func RecoverFromPanic(update telego.Update, notify common.SendFunc) {
	r := recover()
	if r == nil {
		return
	}

	fields := log.Fields{
		"component": "panic_recovery",
		"update_id": update.UpdateID,
		"panic":     fmt.Sprintf("%v", r),
		"stack":     string(debug.Stack()),
	}
	if update.Message != nil {
		fields["chat_id"] = update.Message.Chat.ID
	}
	log.WithFields(fields).Error("Паника в обработчике апдейта")

	if notify != nil && update.Message != nil {
		notify(update.Message.Chat.ID, panicReply)
	}
}
