// Package awards — handlers.go обрабатывает команды преподавателей:
// /reasons, /award ученик причина [комментарий], /revoke ID.
package awards

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/features/members"
)

// Students находит ученика по @username.
type Students interface {
	GetUserByUsername(ctx context.Context, username string) (*members.User, error)
}

type Handler struct {
	service  *Service
	students Students
	send     common.SendFunc
}

func NewHandler(service *Service, students Students, send common.SendFunc) *Handler {
	return &Handler{service: service, students: students, send: send}
}

// HandleReasons показывает справочник причин.
//
//	#3 Активность на уроке — 10 AC (раз в 1 день)
func (h *Handler) HandleReasons(ctx context.Context, chatID int64, user *members.User) {
	if !user.CanAward() {
		h.send(chatID, "❌ "+common.UserMessage(common.ErrForbidden))
		return
	}
	reasons, err := h.service.ListReasons(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения причин")
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}

	var sb strings.Builder
	sb.WriteString("🏅 Причины начисления:\n\n")
	for _, r := range reasons {
		sb.WriteString(fmt.Sprintf("#%d %s — %s", r.ID, r.Name, common.FormatCoins(r.Coins)))
		if r.CooldownDays > 0 {
			sb.WriteString(fmt.Sprintf(" (раз в %d %s)", r.CooldownDays, common.PluralizeDays(r.CooldownDays)))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nНачислить: /award @username ID [комментарий]")
	h.send(chatID, sb.String())
}

// HandleAward обрабатывает /award @username 3 Отличный проект.
// Ученика можно указать и числовым ID.
func (h *Handler) HandleAward(ctx context.Context, chatID int64, teacher *members.User, args []string) {
	if len(args) < 2 {
		h.send(chatID, "❌ Формат: /award @username ID_причины [комментарий]")
		return
	}

	studentID, err := h.resolveStudent(ctx, args[0])
	if err != nil {
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	reasonID, err := strconv.ParseInt(strings.TrimPrefix(args[1], "#"), 10, 64)
	if err != nil {
		h.send(chatID, "❌ ID причины должен быть числом")
		return
	}

	res, err := h.service.Grant(ctx, teacher, studentID, reasonID, strings.Join(args[2:], " "))
	if err != nil {
		if !common.IsUserFacing(err) {
			log.WithError(err).WithField("teacher_id", teacher.ID).Error("Ошибка начисления")
		}
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	h.send(chatID, fmt.Sprintf("✅ %s (начисление #%d)\nБаланс ученика: %s",
		res.Message, res.AwardID, common.FormatCoins(res.NewBalance)))
}

// HandleRevoke обрабатывает /revoke 42.
func (h *Handler) HandleRevoke(ctx context.Context, chatID int64, teacher *members.User, args []string) {
	if len(args) < 1 {
		h.send(chatID, "❌ Формат: /revoke ID_начисления")
		return
	}
	awardID, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		h.send(chatID, "❌ ID начисления должен быть числом")
		return
	}

	res, err := h.service.Revoke(ctx, teacher, awardID)
	if err != nil {
		if !common.IsUserFacing(err) {
			log.WithError(err).WithField("teacher_id", teacher.ID).Error("Ошибка отмены начисления")
		}
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	h.send(chatID, fmt.Sprintf("✅ Начисление #%d отменено\nБаланс ученика: %s", awardID, common.FormatCoins(res.NewBalance)))
}

func (h *Handler) resolveStudent(ctx context.Context, arg string) (int64, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return id, nil
	}
	u, err := h.students.GetUserByUsername(ctx, arg)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}
