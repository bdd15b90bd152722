// Package ledger — handlers.go обрабатывает команды:
// /balance (баланс), /transfer (перевод), /history (история операций).
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/features/members"
)

// Handler обрабатывает команды журнала.
type Handler struct {
	service *Service
	send    common.SendFunc
}

func NewHandler(service *Service, send common.SendFunc) *Handler {
	return &Handler{service: service, send: send}
}

// HandleBalance показывает баланс.
//
// Формат ответа:
//
//	💰 Баланс: 150 AC
//	Заработано: 300 AC · Потрачено: 150 AC
func (h *Handler) HandleBalance(ctx context.Context, chatID int64, user *members.User) {
	b, err := h.service.Summary(ctx, user.ID)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("Ошибка получения баланса")
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	h.send(chatID, fmt.Sprintf("💰 Баланс: %s\nЗаработано: %s · Потрачено: %s",
		common.FormatCoins(b.Balance), common.FormatCoins(b.TotalEarned), common.FormatCoins(b.TotalSpent)))
}

// HandleTransfer обрабатывает /transfer @username 100.
func (h *Handler) HandleTransfer(ctx context.Context, chatID int64, sender *members.User, args []string) {
	if len(args) < 2 {
		h.send(chatID, "❌ Формат: /transfer @username сумма")
		return
	}

	username := strings.TrimPrefix(args[0], "@")
	if username == "" {
		h.send(chatID, "❌ Укажите @username получателя")
		return
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		h.send(chatID, "❌ Сумма должна быть числом")
		return
	}

	res, err := h.service.Transfer(ctx, sender, username, amount)
	if err != nil {
		if !common.IsUserFacing(err) {
			log.WithError(err).WithField("user_id", sender.ID).Error("Ошибка перевода")
		}
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	h.send(chatID, fmt.Sprintf("✅ %s\nТвой баланс: %s", res.Message, common.FormatCoins(res.NewSenderBalance)))
}

// HandleHistory показывает последние операции.
func (h *Handler) HandleHistory(ctx context.Context, chatID int64, user *members.User) {
	txs, err := h.service.History(ctx, user.ID, 0)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("Ошибка получения истории")
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	if len(txs) == 0 {
		h.send(chatID, "📋 Операций пока нет")
		return
	}

	loc := h.service.cfg.Location()
	var sb strings.Builder
	sb.WriteString("📋 Последние операции:\n\n")
	for _, t := range txs {
		sb.WriteString(fmt.Sprintf("%s  %s  %s\n",
			common.FormatDateTime(t.CreatedAt, loc), common.FormatSignedCoins(t.Delta()), t.Description))
	}
	h.send(chatID, sb.String())
}
