// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	"time"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

const maxLoggedText = 50

// LogMessage логирует входящее сообщение.
// Записывает: telegram_id, chat_id, username, текст (первые 50 символов).
// Коды привязки в лог не попадают.
func LogMessage(message *telego.Message) {
	if message == nil || message.From == nil {
		return
	}

	log.WithFields(log.Fields{
		"telegram_id": message.From.ID,
		"chat_id":     message.Chat.ID,
		"username":    message.From.Username,
		"text":        redact(message.Text),
		"time":        time.Now().Format("15:04:05"),
	}).Debug("Входящее сообщение")
}

func redact(text string) string {
	if len(text) >= 5 && (text[:5] == "/link" || text[:5] == "!link") {
		return text[:5] + " ***"
	}
	if utf8.RuneCountInString(text) > maxLoggedText {
		runes := []rune(text)
		return string(runes[:maxLoggedText]) + "..."
	}
	return text
}
