package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/region"
	"astrocoins.ru/ledger/internal/features/shop"
)

// --- Категории ---

func (s *Store) ListCategories(ctx context.Context, scope region.Scope) ([]*shop.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*shop.Category
	for _, c := range s.st.categories {
		if scope.Allows(c.CityID) {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*shop.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.st.categories[id]
	if !ok {
		return nil, fmt.Errorf("%w (id=%d)", common.ErrCategoryNotFound, id)
	}
	return &c, nil
}

func (s *Store) checkCategory(c *shop.Category) error {
	if _, ok := s.st.cities[c.CityID]; !ok {
		return common.ErrCityNotFound
	}
	for id, other := range s.st.categories {
		if id != c.ID && other.Slug == c.Slug {
			return common.ErrSlugTaken
		}
	}
	return nil
}

func (s *Store) CreateCategory(ctx context.Context, c *shop.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = 0
	if err := s.checkCategory(c); err != nil {
		return err
	}
	c.ID = s.st.next("product_categories")
	c.CreatedAt = s.now()
	s.st.categories[c.ID] = *c
	return nil
}

func (s *Store) UpdateCategory(ctx context.Context, c *shop.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.st.categories[c.ID]
	if !ok {
		return common.ErrCategoryNotFound
	}
	if err := s.checkCategory(c); err != nil {
		return err
	}
	c.CreatedAt = existing.CreatedAt
	s.st.categories[c.ID] = *c
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.categories[id]; !ok {
		return common.ErrCategoryNotFound
	}
	for _, p := range s.st.products {
		if p.CategoryID == id {
			return common.ErrCategoryNotEmpty
		}
	}
	delete(s.st.categories, id)
	return nil
}

func (s *Store) CountCategoryProducts(ctx context.Context, id int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.st.products {
		if p.CategoryID == id {
			n++
		}
	}
	return n, nil
}

func (s *Store) CategorySlugExists(ctx context.Context, slug string, exceptID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, c := range s.st.categories {
		if id != exceptID && c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

// --- Товары ---

func (s *Store) ListProducts(ctx context.Context, scope region.Scope, onlyAvailable bool) ([]*shop.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*shop.Product
	for _, p := range s.st.products {
		if !scope.Allows(p.CityID) || (onlyAvailable && !p.Available) {
			continue
		}
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Featured != b.Featured {
			return a.Featured
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*shop.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.st.products[id]
	if !ok {
		return nil, fmt.Errorf("%w (id=%d)", common.ErrProductNotFound, id)
	}
	return &p, nil
}

func (s *Store) checkProduct(p *shop.Product) error {
	if p.Price < 0 || p.Price > maxPrice {
		return common.ErrInvalidPrice
	}
	if p.Stock < 0 {
		return common.ErrInvalidStock
	}
	if _, ok := s.st.categories[p.CategoryID]; !ok {
		return common.ErrCategoryNotFound
	}
	if _, ok := s.st.cities[p.CityID]; !ok {
		return common.ErrCityNotFound
	}
	for id, other := range s.st.products {
		if id != p.ID && other.Slug == p.Slug {
			return common.ErrSlugTaken
		}
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, p *shop.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = 0
	if err := s.checkProduct(p); err != nil {
		return err
	}
	p.ID = s.st.next("products")
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	s.st.products[p.ID] = *p
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *shop.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.st.products[p.ID]
	if !ok {
		return common.ErrProductNotFound
	}
	if err := s.checkProduct(p); err != nil {
		return err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now()
	s.st.products[p.ID] = *p
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.products[id]; !ok {
		return common.ErrProductNotFound
	}
	for _, pu := range s.st.purchases {
		if pu.ProductID == id {
			return common.ErrHasLedgerHistory
		}
	}
	delete(s.st.products, id)
	return nil
}

func (s *Store) ProductSlugExists(ctx context.Context, slug string, exceptID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, p := range s.st.products {
		if id != exceptID && p.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) LockProduct(ctx context.Context, q postgres.Querier, id int64) (*shop.Product, error) {
	p, ok := s.st.products[id]
	if !ok {
		return nil, fmt.Errorf("%w (id=%d)", common.ErrProductNotFound, id)
	}
	return &p, nil
}

func (s *Store) DecrementStock(ctx context.Context, q postgres.Querier, id int64) (int, error) {
	p, ok := s.st.products[id]
	if !ok {
		return 0, common.ErrProductNotFound
	}
	if p.Stock <= 0 {
		return 0, common.ErrOutOfStock
	}
	p.Stock--
	p.UpdatedAt = s.now()
	s.st.products[id] = p
	return p.Stock, nil
}

// --- Покупки ---

func (s *Store) InsertPurchase(ctx context.Context, q postgres.Querier, p *shop.Purchase) error {
	if _, ok := s.st.users[p.UserID]; !ok {
		return common.ErrUserNotFound
	}
	if _, ok := s.st.products[p.ProductID]; !ok {
		return common.ErrProductNotFound
	}
	for _, other := range s.st.purchases {
		if other.OrderCode == p.OrderCode {
			return fmt.Errorf("код заказа %s уже существует", p.OrderCode)
		}
	}
	p.ID = s.st.next("purchases")
	s.st.purchases[p.ID] = *p
	return nil
}

func (s *Store) order(pu shop.Purchase) *shop.Order {
	pr := s.st.products[pu.ProductID]
	return &shop.Order{
		Purchase:    pu,
		ProductName: pr.Name,
		CityID:      pr.CityID,
		Username:    s.st.users[pu.UserID].Username,
	}
}

func (s *Store) LockOrder(ctx context.Context, q postgres.Querier, code uuid.UUID) (*shop.Order, error) {
	for _, pu := range s.st.purchases {
		if pu.OrderCode == code {
			return s.order(pu), nil
		}
	}
	return nil, common.ErrPurchaseNotFound
}

func (s *Store) SetDelivered(ctx context.Context, q postgres.Querier, id, by int64, at time.Time) error {
	pu, ok := s.st.purchases[id]
	if !ok {
		return common.ErrPurchaseNotFound
	}
	pu.Delivered = true
	pu.DeliveredAt = ptr(at)
	pu.DeliveredBy = ptr(by)
	s.st.purchases[id] = pu
	return nil
}

func (s *Store) ListPending(ctx context.Context, scope region.Scope, before time.Time) ([]*shop.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*shop.Order
	for _, pu := range s.st.purchases {
		if pu.Delivered || pu.CreatedAt.After(before) {
			continue
		}
		o := s.order(pu)
		if scope.Allows(o.CityID) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CityID != out[j].CityID {
			return out[i].CityID < out[j].CityID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ListUserOrders(ctx context.Context, userID int64, limit int) ([]*shop.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*shop.Order
	for _, pu := range s.st.purchases {
		if pu.UserID == userID {
			out = append(out, s.order(pu))
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
