// Package members — handlers.go обрабатывает команды /link username код
// (привязка Telegram-аккаунта) и /students (ростер для начислений).
package members

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
)

type Handler struct {
	service *Service
	send    common.SendFunc
}

func NewHandler(service *Service, send common.SendFunc) *Handler {
	return &Handler{service: service, send: send}
}

// HandleLink привязывает аккаунт. Код выдаёт администратор через astroctl link-code.
func (h *Handler) HandleLink(ctx context.Context, chatID, telegramID int64, args []string) {
	if len(args) < 2 {
		h.send(chatID, "❌ Формат: /link username код")
		return
	}

	user, err := h.service.LinkTelegram(ctx, args[0], args[1], telegramID)
	if err != nil {
		if !common.IsUserFacing(err) {
			log.WithError(err).WithField("telegram_id", telegramID).Error("Ошибка привязки Telegram")
		}
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	h.send(chatID, fmt.Sprintf("✅ Аккаунт привязан: %s (%s)", user.DisplayName(), user.Role.Title()))
}

// HandleStudents показывает учеников, которым участник может начислять.
// /students 7 — только группа 7.
func (h *Handler) HandleStudents(ctx context.Context, chatID int64, actor *User, args []string) {
	var groupID *int64
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			h.send(chatID, "❌ ID группы должен быть числом")
			return
		}
		groupID = &id
	}

	students, err := h.service.ListStudents(ctx, actor, groupID)
	if err != nil {
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	if len(students) == 0 {
		h.send(chatID, "👥 Учеников не найдено")
		return
	}

	var sb strings.Builder
	sb.WriteString("👥 Ученики:\n\n")
	for _, s := range students {
		sb.WriteString(fmt.Sprintf("#%d @%s %s\n", s.ID, s.Username, s.FullName))
	}
	h.send(chatID, sb.String())
}
