// Package bot содержит главный модуль бота — инициализацию, запуск и остановку.
// bot.go подключает обработчики и запускает long polling.
package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/bot/filters"
	"astrocoins.ru/ledger/internal/bot/middleware"
	"astrocoins.ru/ledger/internal/config"
	"astrocoins.ru/ledger/internal/features/awards"
	"astrocoins.ru/ledger/internal/features/ledger"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/shop"
)

const sendTimeout = 10 * time.Second

const helpText = `AstroCoins — школьная валюта.

/balance — баланс
/history — последние операции
/transfer @username сумма — перевод (мин. 20 AC, комиссия 5%)
/shop — магазин вашего города
/buy ID — купить товар
/orders — мои заказы
/link username код — привязать Telegram

Преподавателям: /students, /reasons, /award @username ID, /revoke ID
Администраторам города: /pending, /deliver КОД`

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *telego.Bot
	cfg *config.Config

	access      *filters.AccessFilter
	rateLimiter *middleware.RateLimiter

	memberHandler *members.Handler
	ledgerHandler *ledger.Handler
	awardsHandler *awards.Handler
	shopHandler   *shop.Handler

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
	wg       sync.WaitGroup
}

// New создаёт бота. Ответы обработчиков уходят через SendMessageToUser.
func New(
	api *telego.Bot,
	cfg *config.Config,
	memberService *members.Service,
	ledgerService *ledger.Service,
	awardsService *awards.Service,
	shopService *shop.Service,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	b := &Bot{
		api:         api,
		cfg:         cfg,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		parser:      NewCommandParser(),
		inflight:    make(chan struct{}, maxInFlight),
	}
	b.access = filters.NewAccessFilter(memberService, b.SendMessageToUser)
	b.memberHandler = members.NewHandler(memberService, b.SendMessageToUser)
	b.ledgerHandler = ledger.NewHandler(ledgerService, b.SendMessageToUser)
	b.awardsHandler = awards.NewHandler(awardsService, memberService, b.SendMessageToUser)
	b.shopHandler = shop.NewHandler(shopService, b.SendMessageToUser)
	return b
}

// Start запускает long polling и блокируется до отмены ctx.
// Перед возвратом дожидается обработки уже принятых апдейтов.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: b.cfg.BotUpdateTimeoutSeconds,
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	defer b.rateLimiter.Close()
	for update := range updates {
		// лимит параллелизма
		select {
		case b.inflight <- struct{}{}:
		case <-ctx.Done():
			continue
		}
		b.wg.Add(1)
		go func(upd telego.Update) {
			defer func() {
				<-b.inflight
				b.wg.Done()
			}()
			b.handleUpdate(ctx, upd)
		}(update)
	}

	b.wg.Wait()
	log.Info("Канал updates закрыт, бот остановлен")
	return nil
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic(update, b.SendMessageToUser)

	message := update.Message
	if message == nil || message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	user, ok := b.access.CheckAccess(ctx, message)
	if !ok {
		return
	}

	telegramID := message.From.ID
	if !b.rateLimiter.Allow(telegramID) {
		log.WithField("telegram_id", telegramID).Debug("rate limited")
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": len(args),
	}).Debug("parsed command")

	b.routeCommand(ctx, message.Chat.ID, telegramID, user, cmd, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
// user == nil — аккаунт не привязан, доступны только /help и /link.
func (b *Bot) routeCommand(ctx context.Context, chatID, telegramID int64, user *members.User, cmd string, args []string) {
	switch cmd {
	case "start", "help", "помощь":
		b.SendMessageToUser(chatID, helpText)
		return
	case "link", "привязать":
		b.memberHandler.HandleLink(ctx, chatID, telegramID, args)
		return
	}

	if user == nil {
		b.SendMessageToUser(chatID, "🔗 Сначала привяжите аккаунт: /link username код\nКод выдаёт администратор школы.")
		return
	}

	switch cmd {
	case "balance", "баланс":
		b.ledgerHandler.HandleBalance(ctx, chatID, user)
	case "history", "история":
		b.ledgerHandler.HandleHistory(ctx, chatID, user)
	case "transfer", "перевод":
		b.ledgerHandler.HandleTransfer(ctx, chatID, user, args)
	case "shop", "магазин":
		b.shopHandler.HandleShop(ctx, chatID, user)
	case "buy", "купить":
		b.shopHandler.HandleBuy(ctx, chatID, user, args)
	case "orders", "заказы":
		b.shopHandler.HandleOrders(ctx, chatID, user)
	case "pending":
		b.shopHandler.HandlePending(ctx, chatID, user)
	case "deliver", "выдать":
		b.shopHandler.HandleDeliver(ctx, chatID, user, args)
	case "students", "ученики":
		b.memberHandler.HandleStudents(ctx, chatID, user, args)
	case "reasons", "причины":
		b.awardsHandler.HandleReasons(ctx, chatID, user)
	case "award", "начислить":
		b.awardsHandler.HandleAward(ctx, chatID, user, args)
	case "revoke", "отменить":
		b.awardsHandler.HandleRevoke(ctx, chatID, user, args)
	default:
		b.SendMessageToUser(chatID, "Неизвестная команда. Список команд: /help")
	}
}

// SendMessageToUser отправляет сообщение в чат (ответы, уведомления, сводки).
func (b *Bot) SendMessageToUser(chatID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if _, err := b.api.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Debug("Не удалось отправить сообщение")
		return
	}
	log.WithField("chat_id", chatID).Debug("message sent")
}

// CommandParser разбирает команды с префиксами / и !.
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс "@имя_бота" в групповом формате команды отбрасывается.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}
