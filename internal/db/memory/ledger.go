package memory

import (
	"context"
	"fmt"
	"sort"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/ledger"
)

func (s *Store) GetBalance(ctx context.Context, userID int64) (*ledger.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.st.users[userID]; !ok {
		return nil, fmt.Errorf("%w (id=%d)", common.ErrUserNotFound, userID)
	}
	b, ok := s.st.balances[userID]
	if !ok {
		b = ledger.Balance{UserID: userID, UpdatedAt: s.now()}
	}
	return &b, nil
}

func (s *Store) LockBalances(ctx context.Context, q postgres.Querier, userIDs ...int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(userIDs))
	for _, id := range userIDs {
		if _, ok := s.st.users[id]; !ok {
			return nil, fmt.Errorf("%w (id=%d)", common.ErrUserNotFound, id)
		}
		b, ok := s.st.balances[id]
		if !ok {
			b = ledger.Balance{UserID: id, UpdatedAt: s.now()}
			s.st.balances[id] = b
		}
		out[id] = b.Balance
	}
	return out, nil
}

func (s *Store) AddBalance(ctx context.Context, q postgres.Querier, userID, delta int64, kind ledger.TxType) (int64, error) {
	b, ok := s.st.balances[userID]
	if !ok {
		return 0, fmt.Errorf("%w (id=%d)", common.ErrUserNotFound, userID)
	}
	if b.Balance+delta < 0 {
		return 0, common.ErrInsufficientFunds
	}
	switch {
	case kind == ledger.TypeEarn:
		b.TotalEarned += delta
	case delta < 0:
		b.TotalSpent -= delta
	default:
		b.TotalEarned += delta
	}
	b.Balance += delta
	b.UpdatedAt = s.now()
	s.st.balances[userID] = b
	return b.Balance, nil
}

func (s *Store) InsertTransaction(ctx context.Context, q postgres.Querier, t *ledger.Transaction) error {
	for _, id := range []*int64{t.SenderID, t.ReceiverID} {
		if id == nil {
			continue
		}
		if _, ok := s.st.users[*id]; !ok {
			return fmt.Errorf("%w (id=%d)", common.ErrUserNotFound, *id)
		}
	}
	t.ID = s.st.next("transactions")
	s.st.transactions = append(s.st.transactions, *t)
	return nil
}

func (s *Store) History(ctx context.Context, userID int64, limit int) ([]*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ledger.Transaction
	for _, t := range s.st.transactions {
		if t.Owner() == userID {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Drifts(ctx context.Context) ([]ledger.Drift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	replayed := make(map[int64]int64)
	for _, t := range s.st.transactions {
		replayed[t.Owner()] += t.Delta()
	}
	ids := make(map[int64]struct{}, len(replayed)+len(s.st.balances))
	for id := range replayed {
		ids[id] = struct{}{}
	}
	for id := range s.st.balances {
		ids[id] = struct{}{}
	}

	var out []ledger.Drift
	for id := range ids {
		stored := s.st.balances[id].Balance
		if stored != replayed[id] {
			out = append(out, ledger.Drift{UserID: id, Stored: stored, Replayed: replayed[id]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// CorruptBalance записывает баланс в обход журнала. Нужен для проверки сверки.
func (s *Store) CorruptBalance(userID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.st.balances[userID]
	b.UserID = userID
	b.Balance = balance
	s.st.balances[userID] = b
}
