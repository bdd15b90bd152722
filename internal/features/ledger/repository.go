// Package ledger — repository.go выполняет все операции с таблицами balances и transactions.
// Методы, принимающие postgres.Querier, вызываются внутри транзакции TxManager.
package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/db/postgres"
)

// Repository предоставляет методы для работы с балансами и журналом.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий журнала.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetBalance возвращает баланс пользователя.
// Если строки баланса ещё нет, но пользователь существует — баланс нулевой.
func (r *Repository) GetBalance(ctx context.Context, userID int64) (*Balance, error) {
	b := Balance{UserID: userID}
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1),
		       COALESCE(b.balance, 0), COALESCE(b.total_earned, 0), COALESCE(b.total_spent, 0),
		       COALESCE(b.updated_at, NOW())
		FROM (SELECT 1) AS one
		LEFT JOIN balances b ON b.user_id = $1
	`, userID).Scan(&exists, &b.Balance, &b.TotalEarned, &b.TotalSpent, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w (id=%d)", common.ErrUserNotFound, userID)
	}
	return &b, nil
}

// LockBalances блокирует строки балансов (SELECT ... FOR UPDATE) по одной,
// строго в переданном порядке. Строка создаётся при первом обращении.
func (r *Repository) LockBalances(ctx context.Context, q postgres.Querier, userIDs ...int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(userIDs))
	for _, id := range userIDs {
		if _, err := q.Exec(ctx, `
			INSERT INTO balances (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING
		`, id); err != nil {
			if postgres.IsForeignKeyViolation(err, "") {
				return nil, fmt.Errorf("%w (id=%d)", common.ErrUserNotFound, id)
			}
			return nil, fmt.Errorf("ошибка создания баланса: %w", err)
		}

		var balance int64
		if err := q.QueryRow(ctx,
			`SELECT balance FROM balances WHERE user_id = $1 FOR UPDATE`, id,
		).Scan(&balance); err != nil {
			return nil, fmt.Errorf("ошибка блокировки баланса: %w", err)
		}
		out[id] = balance
	}
	return out, nil
}

// AddBalance изменяет заблокированный баланс на delta и возвращает новое значение.
// Для EARN меняется total_earned (в том числе при отмене награды),
// для остальных типов списание идёт в total_spent.
func (r *Repository) AddBalance(ctx context.Context, q postgres.Querier, userID, delta int64, kind TxType) (int64, error) {
	var earned, spent int64
	switch {
	case kind == TypeEarn:
		earned = delta
	case delta < 0:
		spent = -delta
	default:
		earned = delta
	}

	var balance int64
	err := q.QueryRow(ctx, `
		UPDATE balances
		SET balance = balance + $2,
		    total_earned = total_earned + $3,
		    total_spent = total_spent + $4,
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING balance
	`, userID, delta, earned, spent).Scan(&balance)
	if err != nil {
		if postgres.IsCheckViolation(err, "balances_non_negative") {
			return 0, common.ErrInsufficientFunds
		}
		if postgres.IsNoRows(err) {
			return 0, fmt.Errorf("%w (id=%d)", common.ErrUserNotFound, userID)
		}
		return 0, fmt.Errorf("ошибка изменения баланса: %w", err)
	}
	return balance, nil
}

// InsertTransaction добавляет запись в журнал.
func (r *Repository) InsertTransaction(ctx context.Context, q postgres.Querier, t *Transaction) error {
	err := q.QueryRow(ctx, `
		INSERT INTO transactions (sender_id, receiver_id, amount, transaction_type, leg, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, t.SenderID, t.ReceiverID, t.Amount, string(t.Type), string(t.Leg), t.Description, t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("ошибка записи транзакции: %w", err)
	}
	return nil
}

// History возвращает последние записи журнала, изменившие баланс пользователя.
func (r *Repository) History(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sender_id, receiver_id, amount, transaction_type, leg, description, created_at
		FROM transactions
		WHERE (leg = 'debit' AND sender_id = $1) OR (leg = 'credit' AND receiver_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var (
			t      Transaction
			txType string
			leg    string
		)
		if err := rows.Scan(&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount, &txType, &leg, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		t.Type, t.Leg = TxType(txType), Leg(leg)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// Drifts сравнивает каждый баланс с суммой его записей в журнале.
func (r *Repository) Drifts(ctx context.Context) ([]Drift, error) {
	rows, err := r.db.Query(ctx, `
		WITH replay AS (
			SELECT receiver_id AS user_id, amount FROM transactions WHERE leg = 'credit'
			UNION ALL
			SELECT sender_id, -amount FROM transactions WHERE leg = 'debit'
		), sums AS (
			SELECT user_id, SUM(amount)::bigint AS replayed FROM replay GROUP BY user_id
		)
		SELECT COALESCE(b.user_id, s.user_id), COALESCE(b.balance, 0), COALESCE(s.replayed, 0)
		FROM balances b
		FULL OUTER JOIN sums s ON s.user_id = b.user_id
		WHERE COALESCE(b.balance, 0) <> COALESCE(s.replayed, 0)
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка сверки журнала: %w", err)
	}
	defer rows.Close()

	var out []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.UserID, &d.Stored, &d.Replayed); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
