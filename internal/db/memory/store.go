// Package memory — хранилище в памяти процесса для демо-режима и тестов.
// Повторяет поведение PostgreSQL-репозиториев: те же ошибки на нарушение
// ограничений, та же сортировка выборок.
//
// Транзакция берёт эксклюзивную блокировку всего хранилища и делает снимок
// состояния; при ошибке снимок восстанавливается. Методы с параметром q
// рассчитаны на вызов только внутри InTx.
package memory

import (
	"context"
	"sync"
	"time"

	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/awards"
	"astrocoins.ru/ledger/internal/features/ledger"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/shop"
)

// Верхняя граница цены — как CHECK products_price_range в миграциях.
const maxPrice = 10000

type linkAttempt struct {
	telegramID int64
	success    bool
	at         time.Time
}

type state struct {
	seq map[string]int64

	users        map[int64]members.User
	cities       map[int64]members.City
	groups       map[int64]members.Group
	parents      map[int64]members.Parent
	linkCodes    map[int64]members.LinkCode
	linkAttempts []linkAttempt

	balances     map[int64]ledger.Balance
	transactions []ledger.Transaction

	reasons map[int64]awards.Reason
	awards  map[int64]awards.Award

	categories map[int64]shop.Category
	products   map[int64]shop.Product
	purchases  map[int64]shop.Purchase
}

func newState() *state {
	return &state{
		seq:        make(map[string]int64),
		users:      make(map[int64]members.User),
		cities:     make(map[int64]members.City),
		groups:     make(map[int64]members.Group),
		parents:    make(map[int64]members.Parent),
		linkCodes:  make(map[int64]members.LinkCode),
		balances:   make(map[int64]ledger.Balance),
		reasons:    make(map[int64]awards.Reason),
		awards:     make(map[int64]awards.Award),
		categories: make(map[int64]shop.Category),
		products:   make(map[int64]shop.Product),
		purchases:  make(map[int64]shop.Purchase),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *state) clone() *state {
	return &state{
		seq:          copyMap(st.seq),
		users:        copyMap(st.users),
		cities:       copyMap(st.cities),
		groups:       copyMap(st.groups),
		parents:      copyMap(st.parents),
		linkCodes:    copyMap(st.linkCodes),
		linkAttempts: append([]linkAttempt(nil), st.linkAttempts...),
		balances:     copyMap(st.balances),
		transactions: append([]ledger.Transaction(nil), st.transactions...),
		reasons:      copyMap(st.reasons),
		awards:       copyMap(st.awards),
		categories:   copyMap(st.categories),
		products:     copyMap(st.products),
		purchases:    copyMap(st.purchases),
	}
}

// next выдаёт следующий идентификатор таблицы, как BIGSERIAL.
func (st *state) next(table string) int64 {
	st.seq[table]++
	return st.seq[table]
}

// Store реализует хранилища members, ledger, awards и shop, а также InTx.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

func NewStore() *Store {
	return &Store{st: newState(), now: time.Now}
}

// SetClock подменяет источник времени для полей created_at/updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// InTx выполняет fn атомарно относительно всех остальных операций хранилища.
func (s *Store) InTx(ctx context.Context, fn func(q postgres.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.st.clone()
	if err := fn(nil); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

var (
	_ members.Store   = (*Store)(nil)
	_ ledger.Store    = (*Store)(nil)
	_ ledger.TxRunner = (*Store)(nil)
	_ awards.Store    = (*Store)(nil)
	_ shop.Store      = (*Store)(nil)
)
