// Package ledger — service.go содержит бизнес-логику баланса: чтение, блокировки,
// проводки и сверку журнала. Все изменения баланса в системе проходят через Apply.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/config"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/members"
)

// Store — хранилище балансов и журнала.
type Store interface {
	GetBalance(ctx context.Context, userID int64) (*Balance, error)
	LockBalances(ctx context.Context, q postgres.Querier, userIDs ...int64) (map[int64]int64, error)
	AddBalance(ctx context.Context, q postgres.Querier, userID, delta int64, kind TxType) (int64, error)
	InsertTransaction(ctx context.Context, q postgres.Querier, t *Transaction) error
	History(ctx context.Context, userID int64, limit int) ([]*Transaction, error)
	Drifts(ctx context.Context) ([]Drift, error)
}

// TxRunner выполняет функцию в одной транзакции хранилища.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q postgres.Querier) error) error
}

// Users — поиск получателя перевода.
type Users interface {
	GetUserByUsername(ctx context.Context, username string) (*members.User, error)
}

// Service управляет балансами AstroCoins.
type Service struct {
	store Store
	tx    TxRunner
	users Users
	cfg   *config.Config
	now   func() time.Time
}

// NewService создаёт новый сервис журнала.
func NewService(store Store, tx TxRunner, users Users, cfg *config.Config) *Service {
	return &Service{store: store, tx: tx, users: users, cfg: cfg, now: time.Now}
}

// SetClock подменяет источник времени (для тестов).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// GetBalance возвращает текущий баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	b, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return b.Balance, nil
}

// Summary возвращает баланс вместе с итогами заработанного и потраченного.
func (s *Service) Summary(ctx context.Context, userID int64) (*Balance, error) {
	return s.store.GetBalance(ctx, userID)
}

// History возвращает последние операции пользователя.
// limit <= 0 — значение LEDGER_HISTORY_LIMIT (15, как на дашборде).
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = s.cfg.LedgerHistoryLimit
	}
	return s.store.History(ctx, userID, limit)
}

// Lock блокирует балансы пользователей в порядке возрастания id.
// Единый порядок исключает взаимную блокировку встречных переводов.
// Вызывается только внутри TxRunner.InTx.
func (s *Service) Lock(ctx context.Context, q postgres.Querier, userIDs ...int64) (map[int64]int64, error) {
	ids := make([]int64, 0, len(userIDs))
	seen := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return s.store.LockBalances(ctx, q, ids...)
}

// Apply изменяет заблокированный баланс на delta и пишет запись t в журнал.
// Баланс не может стать отрицательным: такое изменение отклоняется
// с common.ErrInsufficientFunds, и вся транзакция откатывается.
func (s *Service) Apply(ctx context.Context, q postgres.Querier, userID, delta int64, t *Transaction) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	balance, err := s.store.AddBalance(ctx, q, userID, delta, t.Type)
	if err != nil {
		return 0, err
	}
	if err := s.store.InsertTransaction(ctx, q, t); err != nil {
		return 0, err
	}
	return balance, nil
}

// Commission — комиссия перевода, округление вниз в целых числах.
// Считается по частям, чтобы amount*percent не переполнял int64.
func (s *Service) Commission(amount int64) int64 {
	p := s.cfg.LedgerCommissionPercent
	return amount/100*p + amount%100*p/100
}

// Reconcile пересчитывает балансы по журналу и возвращает расхождения.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	drifts, err := s.store.Drifts(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		log.WithFields(log.Fields{
			"user_id":  d.UserID,
			"stored":   d.Stored,
			"replayed": d.Replayed,
		}).Warn("Баланс расходится с журналом операций")
	}
	return drifts, nil
}

// Insufficient — ошибка нехватки средств с точными суммами.
func Insufficient(need, have int64) error {
	return fmt.Errorf("%w! Нужно %s, на счёте %s",
		common.ErrInsufficientFunds, common.FormatCoins(need), common.FormatCoins(have))
}
