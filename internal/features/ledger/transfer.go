package ledger

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/members"
)

// Transfer переводит AstroCoins другому пользователю.
// Выполняет все необходимые проверки:
//   - сумма не меньше минимальной (20 AC) и не больше LEDGER_MAX_TRANSFER;
//   - получатель существует и это не сам отправитель;
//   - у отправителя хватает на сумму перевода плюс комиссию.
//
// Комиссия (5%, округление вниз) сжигается: её не получает никто.
// Отправителю пишется TRANSFER/debit на полную сумму, получателю — TRANSFER/credit на сумму перевода.
func (s *Service) Transfer(ctx context.Context, sender *members.User, receiverUsername string, amount int64) (*TransferResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %s (%w)", common.ErrAmountTooSmall, common.FormatCoins(s.cfg.LedgerMinTransfer), common.ErrInvalidAmount)
	}
	if amount < s.cfg.LedgerMinTransfer {
		return nil, fmt.Errorf("%w: %s", common.ErrAmountTooSmall, common.FormatCoins(s.cfg.LedgerMinTransfer))
	}
	if amount > s.cfg.LedgerMaxTransfer {
		return nil, fmt.Errorf("%w: %s", common.ErrAmountTooLarge, common.FormatCoins(s.cfg.LedgerMaxTransfer))
	}
	if err := members.RequireActive(sender); err != nil {
		return nil, err
	}

	receiver, err := s.users.GetUserByUsername(ctx, receiverUsername)
	if err != nil {
		return nil, err
	}
	if !receiver.IsActive {
		return nil, fmt.Errorf("%w (%s)", common.ErrUserNotFound, receiverUsername)
	}
	if receiver.ID == sender.ID {
		return nil, common.ErrSelfTransfer
	}

	commission := s.Commission(amount)
	gross := amount + commission
	senderID, receiverID := sender.ID, receiver.ID

	var newBalance int64
	err = s.tx.InTx(ctx, func(q postgres.Querier) error {
		balances, err := s.Lock(ctx, q, senderID, receiverID)
		if err != nil {
			return err
		}
		if balances[senderID] < gross {
			return fmt.Errorf("%w! Нужно %s (перевод %s + комиссия %s)",
				common.ErrInsufficientFunds,
				common.FormatCoins(gross), common.FormatCoins(amount), common.FormatCoins(commission))
		}

		newBalance, err = s.Apply(ctx, q, senderID, -gross, &Transaction{
			SenderID:    &senderID,
			ReceiverID:  &receiverID,
			Amount:      gross,
			Type:        TypeTransfer,
			Leg:         LegDebit,
			Description: fmt.Sprintf("Перевод к %s (%s + комиссия %s)", receiver.Username, common.FormatCoins(amount), common.FormatCoins(commission)),
		})
		if err != nil {
			return err
		}

		_, err = s.Apply(ctx, q, receiverID, amount, &Transaction{
			SenderID:    &senderID,
			ReceiverID:  &receiverID,
			Amount:      amount,
			Type:        TypeTransfer,
			Leg:         LegCredit,
			Description: "Перевод от " + sender.Username,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"from":       senderID,
		"to":         receiverID,
		"amount":     amount,
		"commission": commission,
	}).Info("Перевод выполнен")

	return &TransferResult{
		NewSenderBalance: newBalance,
		Commission:       commission,
		GrossDebit:       gross,
		Message: fmt.Sprintf("Успешно переведено %s пользователю %s! Комиссия: %s",
			common.FormatCoins(amount), receiver.Username, common.FormatCoins(commission)),
	}, nil
}
