// Package ledger — баланс AstroCoins и журнал операций.
// models.go описывает структуры для таблиц balances и transactions.
package ledger

import "time"

// TxType — тип операции в журнале.
type TxType string

const (
	TypeEarn     TxType = "EARN"
	TypeSpend    TxType = "SPEND"
	TypeTransfer TxType = "TRANSFER"
)

// Leg — сторона операции, чей баланс изменила строка журнала.
// debit: баланс отправителя уменьшен на Amount, credit: баланс получателя увеличен на Amount.
type Leg string

const (
	LegDebit  Leg = "debit"
	LegCredit Leg = "credit"
)

// Balance — баланс пользователя.
type Balance struct {
	UserID      int64
	Balance     int64
	TotalEarned int64 // Сколько всего заработано
	TotalSpent  int64 // Сколько всего потрачено
	UpdatedAt   time.Time
}

// Transaction — неизменяемая запись журнала.
type Transaction struct {
	ID          int64
	SenderID    *int64
	ReceiverID  *int64
	Amount      int64
	Type        TxType
	Leg         Leg
	Description string
	CreatedAt   time.Time
}

// Owner возвращает пользователя, чей баланс изменила запись.
func (t *Transaction) Owner() int64 {
	if t.Leg == LegDebit && t.SenderID != nil {
		return *t.SenderID
	}
	if t.ReceiverID != nil {
		return *t.ReceiverID
	}
	return 0
}

// Delta — изменение баланса владельца записи.
func (t *Transaction) Delta() int64 {
	if t.Leg == LegDebit {
		return -t.Amount
	}
	return t.Amount
}

// TransferResult — результат перевода.
type TransferResult struct {
	NewSenderBalance int64
	Commission       int64
	GrossDebit       int64
	Message          string
}

// Drift — расхождение баланса с суммой журнала.
type Drift struct {
	UserID   int64
	Stored   int64
	Replayed int64
}
