// Package shop — handlers.go обрабатывает команды:
// /shop (каталог своего города), /buy ID (покупка), /orders (мои заказы),
// /pending и /deliver КОД для администраторов города.
package shop

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/features/members"
)

type Handler struct {
	service *Service
	send    common.SendFunc
}

func NewHandler(service *Service, send common.SendFunc) *Handler {
	return &Handler{service: service, send: send}
}

// HandleShop показывает каталог, сгруппированный по категориям.
//
//	🛍 Коврики для мыши
//	  #12 Коврик «Космос» — 300 AC (осталось 5 штук)
func (h *Handler) HandleShop(ctx context.Context, chatID int64, user *members.User) {
	catalog, err := h.service.ListCatalog(ctx, user)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("Ошибка получения каталога")
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	if len(catalog) == 0 {
		h.send(chatID, "🛍 В магазине вашего города пока нет товаров")
		return
	}

	var sb strings.Builder
	for _, group := range catalog {
		sb.WriteString("🛍 " + group.Category.Name + "\n")
		for _, p := range group.Products {
			sb.WriteString(fmt.Sprintf("  #%d %s — %s", p.ID, p.Name, common.FormatCoins(p.Price)))
			if p.Stock > 0 {
				sb.WriteString(fmt.Sprintf(" (осталось %d %s)", p.Stock, common.PluralizePieces(int64(p.Stock))))
			} else {
				sb.WriteString(" (нет в наличии)")
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Купить: /buy ID")
	h.send(chatID, sb.String())
}

// HandleBuy обрабатывает /buy 12.
func (h *Handler) HandleBuy(ctx context.Context, chatID int64, user *members.User, args []string) {
	if len(args) < 1 {
		h.send(chatID, "❌ Формат: /buy ID товара")
		return
	}
	productID, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		h.send(chatID, "❌ ID товара должен быть числом")
		return
	}

	res, err := h.service.Purchase(ctx, user, productID)
	if err != nil {
		if !common.IsUserFacing(err) {
			log.WithError(err).WithField("user_id", user.ID).Error("Ошибка покупки")
		}
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	h.send(chatID, fmt.Sprintf("✅ %s\nТвой баланс: %s", res.Message, common.FormatCoins(res.NewBalance)))
}

// HandleOrders показывает последние заказы и их статус выдачи.
func (h *Handler) HandleOrders(ctx context.Context, chatID int64, user *members.User) {
	orders, err := h.service.Orders(ctx, user.ID, 10)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("Ошибка получения заказов")
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	if len(orders) == 0 {
		h.send(chatID, "📦 Заказов пока нет")
		return
	}

	loc := h.service.cfg.Location()
	var sb strings.Builder
	sb.WriteString("📦 Мои заказы:\n\n")
	for _, o := range orders {
		status := "ожидает выдачи"
		if o.Delivered {
			status = "выдан"
		}
		sb.WriteString(fmt.Sprintf("%s  %s  %s — %s\n",
			common.FormatDateTime(o.CreatedAt, loc), ShortCode(o.OrderCode), o.ProductName, status))
	}
	h.send(chatID, sb.String())
}

// FormatDigest собирает сообщение о невыданных заказах для администраторов города.
func FormatDigest(orders []*Order, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📦 Невыданные заказы: %d\n\n", len(orders)))
	for _, o := range orders {
		sb.WriteString(fmt.Sprintf("%s  @%s  %s\n%s\n",
			common.FormatDateTime(o.CreatedAt, loc), o.Username, o.ProductName, o.OrderCode))
	}
	sb.WriteString("\nОтметить выдачу: /deliver КОД")
	return sb.String()
}

// HandlePending показывает администратору невыданные заказы его городов.
func (h *Handler) HandlePending(ctx context.Context, chatID int64, user *members.User) {
	orders, err := h.service.PendingDeliveries(ctx, user, 0)
	if err != nil {
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	if len(orders) == 0 {
		h.send(chatID, "📦 Все заказы выданы")
		return
	}
	h.send(chatID, FormatDigest(orders, h.service.cfg.Location()))
}

// HandleDeliver обрабатывает /deliver КОД.
func (h *Handler) HandleDeliver(ctx context.Context, chatID int64, user *members.User, args []string) {
	if len(args) < 1 {
		h.send(chatID, "❌ Формат: /deliver код заказа")
		return
	}
	order, err := h.service.MarkDelivered(ctx, user, args[0])
	if err != nil {
		if !common.IsUserFacing(err) {
			log.WithError(err).WithField("user_id", user.ID).Error("Ошибка отметки выдачи")
		}
		h.send(chatID, "❌ "+common.UserMessage(err))
		return
	}
	h.send(chatID, fmt.Sprintf("✅ Заказ выдан: %s для @%s", order.ProductName, order.Username))
}
