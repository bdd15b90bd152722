package shop

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/ledger"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/region"
)

// Purchase покупает одну единицу товара.
//
// Под блокировками строки товара и баланса покупателя проверяются остаток,
// цена и баланс; затем в одной транзакции создаётся покупка, списываются
// AstroCoins, уменьшается остаток и пишется проводка SPEND.
func (s *Service) Purchase(ctx context.Context, actor *members.User, productID int64) (*PurchaseResult, error) {
	if productID <= 0 {
		return nil, common.ErrInvalidID
	}
	if !actor.CanPurchase() {
		return nil, fmt.Errorf("%w: покупки доступны только ученикам", common.ErrForbidden)
	}
	if err := members.RequireActive(actor); err != nil {
		return nil, err
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Available {
		return nil, fmt.Errorf("%w (id=%d)", common.ErrProductNotFound, productID)
	}
	scope := region.ScopeFor(actor)
	if !scope.Allows(product.CityID) {
		return nil, common.ErrProductNotInRegion
	}

	now := s.now()
	userID := actor.ID
	purchase := &Purchase{
		OrderCode: uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  1,
		CreatedAt: now,
	}

	var newBalance int64
	var newStock int
	err = s.tx.InTx(ctx, func(q postgres.Querier) error {
		locked, err := s.store.LockProduct(ctx, q, productID)
		if err != nil {
			return err
		}
		// Товар могли снять с продажи или перенести, пока мы читали его без блокировки
		if !locked.Available {
			return fmt.Errorf("%w (id=%d)", common.ErrProductNotFound, productID)
		}
		if !scope.Allows(locked.CityID) {
			return common.ErrProductNotInRegion
		}

		balances, err := s.ledger.Lock(ctx, q, userID)
		if err != nil {
			return err
		}

		if locked.Stock <= 0 {
			return fmt.Errorf("%w: %s", common.ErrOutOfStock, locked.Name)
		}
		if locked.Price <= 0 {
			return common.ErrCorruptPrice
		}
		if have := balances[userID]; have < locked.Price {
			return fmt.Errorf("%w для покупки! Не хватает %s (цена %s, на счёте %s)",
				common.ErrInsufficientFunds,
				common.FormatCoins(locked.Price-have), common.FormatCoins(locked.Price), common.FormatCoins(have))
		}

		purchase.TotalPrice = locked.Price
		if err := s.store.InsertPurchase(ctx, q, purchase); err != nil {
			return err
		}

		newBalance, err = s.ledger.Apply(ctx, q, userID, -locked.Price, &ledger.Transaction{
			SenderID:    &userID,
			ReceiverID:  &userID,
			Amount:      locked.Price,
			Type:        ledger.TypeSpend,
			Leg:         ledger.LegDebit,
			Description: "Покупка " + locked.Name,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}

		newStock, err = s.store.DecrementStock(ctx, q, productID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"purchase_id": purchase.ID,
		"order_code":  purchase.OrderCode.String(),
		"user_id":     userID,
		"product_id":  productID,
		"price":       purchase.TotalPrice,
	}).Info("Покупка выполнена")

	return &PurchaseResult{
		PurchaseID: purchase.ID,
		OrderCode:  purchase.OrderCode,
		NewBalance: newBalance,
		NewStock:   newStock,
		Message: fmt.Sprintf("Вы успешно приобрели %s! Код заказа: %s",
			product.Name, purchase.OrderCode),
	}, nil
}

// MarkDelivered отмечает заказ выданным. Доступно управляющим каталогом города товара.
func (s *Service) MarkDelivered(ctx context.Context, actor *members.User, orderCode string) (*Order, error) {
	if !s.canManage(actor) {
		return nil, common.ErrForbidden
	}
	code, err := uuid.Parse(orderCode)
	if err != nil {
		return nil, fmt.Errorf("%w: неверный код заказа", common.ErrInvalidID)
	}
	scope := region.ScopeFor(actor)
	now := s.now()

	var order *Order
	err = s.tx.InTx(ctx, func(q postgres.Querier) error {
		o, err := s.store.LockOrder(ctx, q, code)
		if err != nil {
			return err
		}
		if err := scope.Check(o.CityID); err != nil {
			return err
		}
		if o.Delivered {
			return common.ErrAlreadyDelivered
		}
		if err := s.store.SetDelivered(ctx, q, o.ID, actor.ID, now); err != nil {
			return err
		}
		o.Delivered = true
		o.DeliveredAt = &now
		o.DeliveredBy = &actor.ID
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"purchase_id": order.ID,
		"actor_id":    actor.ID,
	}).Info("Заказ выдан")
	return order, nil
}

// PendingDeliveries возвращает невыданные заказы городов участника старше minAge.
func (s *Service) PendingDeliveries(ctx context.Context, actor *members.User, minAge time.Duration) ([]*Order, error) {
	if !s.canManage(actor) {
		return nil, common.ErrForbidden
	}
	scope := region.ScopeFor(actor)
	if scope.Empty() {
		return nil, nil
	}
	return s.store.ListPending(ctx, scope, s.now().Add(-minAge))
}

// PendingByCity группирует невыданные заказы всех городов старше minAge. Для фоновых задач.
func (s *Service) PendingByCity(ctx context.Context, minAge time.Duration) (map[int64][]*Order, error) {
	orders, err := s.store.ListPending(ctx, region.All(), s.now().Add(-minAge))
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]*Order)
	for _, o := range orders {
		out[o.CityID] = append(out[o.CityID], o)
	}
	return out, nil
}

// Orders возвращает последние заказы пользователя.
func (s *Service) Orders(ctx context.Context, userID int64, limit int) ([]*Order, error) {
	if limit <= 0 {
		limit = s.cfg.LedgerHistoryLimit
	}
	return s.store.ListUserOrders(ctx, userID, limit)
}

// ShortCode — первые 8 символов кода заказа для сообщений.
func ShortCode(code uuid.UUID) string {
	return code.String()[:8]
}
