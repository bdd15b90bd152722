// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: выбирает хранилище, создаёт сервисы,
// бота (если задан токен) и планировщик задач.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/bot"
	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/config"
	"astrocoins.ru/ledger/internal/db/memory"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/awards"
	"astrocoins.ru/ledger/internal/features/ledger"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/shop"
	"astrocoins.ru/ledger/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot // nil, если TELEGRAM_BOT_TOKEN не задан
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool // nil для STORE_DRIVER=memory

	Members *members.Service
	Ledger  *ledger.Service
	Awards  *awards.Service
	Shop    *shop.Service
}

type stores struct {
	members members.Store
	ledger  ledger.Store
	awards  awards.Store
	shop    shop.Store
	tx      ledger.TxRunner
}

// NewCore собирает хранилище и сервисы без бота и планировщика.
// Используется утилитой astroctl.
func NewCore(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	// === 1. Хранилище ===
	st, err := a.openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// === 2. Сервисы ===
	a.Members = members.NewService(st.members, cfg)
	a.Ledger = ledger.NewService(st.ledger, st.tx, a.Members, cfg)
	a.Awards = awards.NewService(st.awards, st.tx, a.Ledger, a.Members, cfg)
	a.Shop = shop.NewService(st.shop, st.tx, a.Ledger, cfg)

	// В памяти справочник пуст после каждого старта
	if cfg.StoreDriver == config.StoreMemory {
		if _, err := a.Awards.SeedDefaultReasons(ctx); err != nil {
			return nil, fmt.Errorf("ошибка заполнения причин начисления: %w", err)
		}
	}
	return a, nil
}

// New создаёт и инициализирует приложение целиком.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a, err := NewCore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// === 3. Telegram ===
	var send common.SendFunc
	if cfg.TelegramBotToken != "" {
		api, err := newBotAPI(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Bot = bot.New(api, cfg, a.Members, a.Ledger, a.Awards, a.Shop)
		send = a.Bot.SendMessageToUser
		a.Awards.SetSender(send)
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN не задан — бот не запускается")
	}

	// === 4. Планировщик задач ===
	a.Scheduler = jobs.NewScheduler(cfg, a.Ledger, a.Shop, a.Members, send)
	return a, nil
}

// Close освобождает пул соединений.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

func (a *App) openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("STORE_DRIVER=memory — данные не сохраняются между перезапусками")
		m := memory.NewStore()
		return &stores{members: m, ledger: m, awards: m, shop: m, tx: m}, nil

	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		a.DB = pool
		return &stores{
			members: members.NewRepository(pool),
			ledger:  ledger.NewRepository(pool),
			awards:  awards.NewRepository(pool),
			shop:    shop.NewRepository(pool),
			tx:      postgres.NewTxManager(pool, cfg.LedgerLockTimeout),
		}, nil
	}
	return nil, fmt.Errorf("неизвестный STORE_DRIVER %q", cfg.StoreDriver)
}

func newBotAPI(ctx context.Context, cfg *config.Config) (*telego.Bot, error) {
	opt := telego.WithDefaultLogger(false, true)
	if cfg.AppEnv == "development" {
		opt = telego.WithDefaultDebugLogger()
	}

	api, err := telego.NewBot(cfg.TelegramBotToken, opt)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	me, err := api.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка авторизации в Telegram: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)
	return api, nil
}
