// Package testutil собирает сервисы поверх хранилища в памяти для тестов.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"astrocoins.ru/ledger/internal/config"
	"astrocoins.ru/ledger/internal/db/memory"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/awards"
	"astrocoins.ru/ledger/internal/features/ledger"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/shop"
)

// Clock — управляемые часы. Начинает с понедельника 2 сентября 2024, 10:00 UTC.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock() *Clock {
	return &Clock{t: time.Date(2024, time.September, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type Env struct {
	Cfg   *config.Config
	Store *memory.Store
	Clock *Clock

	Members *members.Service
	Ledger  *ledger.Service
	Awards  *awards.Service
	Shop    *shop.Service
}

// NewEnv создаёт окружение с конфигурацией по умолчанию и заполненным справочником причин.
func NewEnv(t testing.TB) *Env {
	t.Helper()

	cfg := config.Default()
	st := memory.NewStore()
	clock := NewClock()
	st.SetClock(clock.Now)

	e := &Env{Cfg: cfg, Store: st, Clock: clock}
	e.Members = members.NewService(st, cfg)
	e.Ledger = ledger.NewService(st, st, e.Members, cfg)
	e.Awards = awards.NewService(st, st, e.Ledger, e.Members, cfg)
	e.Shop = shop.NewService(st, st, e.Ledger, cfg)

	e.Members.SetClock(clock.Now)
	e.Ledger.SetClock(clock.Now)
	e.Awards.SetClock(clock.Now)
	e.Shop.SetClock(clock.Now)

	_, err := e.Awards.SeedDefaultReasons(context.Background())
	require.NoError(t, err)
	return e
}

func (e *Env) City(t testing.TB, name string) int64 {
	t.Helper()
	c, err := e.Members.CreateCity(context.Background(), name)
	require.NoError(t, err)
	return c.ID
}

// User создаёт активного пользователя. cityID == 0 — без домашнего города.
func (e *Env) User(t testing.TB, username string, role members.Role, cityID int64, opts ...func(*members.User)) *members.User {
	t.Helper()
	u := &members.User{
		Username: username,
		FullName: username,
		Role:     role,
		IsActive: true,
	}
	if cityID > 0 {
		u.CityID = &cityID
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, e.Members.CreateUser(context.Background(), u))
	return u
}

func (e *Env) Student(t testing.TB, username string, cityID int64) *members.User {
	t.Helper()
	return e.User(t, username, members.RoleStudent, cityID)
}

// Superuser — глобальный суперпользователь без города.
func (e *Env) Superuser(t testing.TB, username string) *members.User {
	t.Helper()
	return e.User(t, username, members.RoleCityAdmin, 0, func(u *members.User) { u.IsSuperuser = true })
}

// Credit зачисляет сумму через журнал, как это делают начисления.
func (e *Env) Credit(t testing.TB, userID, amount int64) {
	t.Helper()
	ctx := context.Background()
	err := e.Store.InTx(ctx, func(q postgres.Querier) error {
		if _, err := e.Ledger.Lock(ctx, q, userID); err != nil {
			return err
		}
		_, err := e.Ledger.Apply(ctx, q, userID, amount, &ledger.Transaction{
			ReceiverID:  &userID,
			Amount:      amount,
			Type:        ledger.TypeEarn,
			Leg:         ledger.LegCredit,
			Description: "Начальный баланс",
		})
		return err
	})
	require.NoError(t, err)
}

func (e *Env) Balance(t testing.TB, userID int64) int64 {
	t.Helper()
	b, err := e.Ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

// Reason возвращает причину из справочника по названию.
func (e *Env) Reason(t testing.TB, name string) *awards.Reason {
	t.Helper()
	reasons, err := e.Awards.ListReasons(context.Background())
	require.NoError(t, err)
	for _, r := range reasons {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("причина %q не найдена", name)
	return nil
}

// RequireReconciled проверяет, что все балансы сходятся с журналом.
func (e *Env) RequireReconciled(t testing.TB) {
	t.Helper()
	drifts, err := e.Ledger.Reconcile(context.Background())
	require.NoError(t, err)
	require.Empty(t, drifts)
}
