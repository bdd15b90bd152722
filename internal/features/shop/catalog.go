package shop

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/region"
)

// ListCatalog возвращает каталог городов участника.
// Категории — по порядку и названию, товары — сначала рекомендуемые, затем новые.
// Покупатели видят только товары в продаже и только непустые категории.
func (s *Service) ListCatalog(ctx context.Context, actor *members.User) ([]*CategoryWithProducts, error) {
	scope := region.ScopeFor(actor)
	if scope.Empty() {
		return nil, nil
	}
	manage := s.canManage(actor)

	categories, err := s.store.ListCategories(ctx, scope)
	if err != nil {
		return nil, err
	}
	products, err := s.store.ListProducts(ctx, scope, !manage)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[int64][]*Product, len(categories))
	for _, p := range products {
		byCategory[p.CategoryID] = append(byCategory[p.CategoryID], p)
	}

	out := make([]*CategoryWithProducts, 0, len(categories))
	for _, c := range categories {
		items := byCategory[c.ID]
		if len(items) == 0 && !manage {
			continue
		}
		out = append(out, &CategoryWithProducts{Category: c, Products: items})
	}
	return out, nil
}

// GetProduct возвращает товар.
// Для управляющих каталогом товар другого города — ErrCrossCityAccess,
// для покупателей — ErrProductNotInRegion, снятый с продажи — ErrProductNotFound.
func (s *Service) GetProduct(ctx context.Context, actor *members.User, id int64) (*Product, error) {
	if id <= 0 {
		return nil, common.ErrInvalidID
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	scope := region.ScopeFor(actor)
	if s.canManage(actor) {
		if err := scope.Check(p.CityID); err != nil {
			return nil, err
		}
		return p, nil
	}
	if !p.Available {
		return nil, fmt.Errorf("%w (id=%d)", common.ErrProductNotFound, id)
	}
	if !scope.Allows(p.CityID) {
		return nil, common.ErrProductNotInRegion
	}
	return p, nil
}

// SaveCategory создаёт (in.ID == 0) или изменяет категорию.
// Новая категория получает город участника; чужие категории не редактируются.
func (s *Service) SaveCategory(ctx context.Context, actor *members.User, in CategoryInput) (*Category, error) {
	if !s.canManage(actor) {
		return nil, common.ErrForbidden
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, common.ErrEmptyName
	}
	scope := region.ScopeFor(actor)

	c := &Category{}
	if in.ID != 0 {
		existing, err := s.store.GetCategory(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		if err := scope.Check(existing.CityID); err != nil {
			return nil, err
		}
		c = existing
	}

	cityID, err := scope.StampCity(cityOr(in.CityID, c))
	if err != nil {
		return nil, err
	}
	if c.ID != 0 && cityID != c.CityID {
		// Товары категории должны оставаться в её городе
		n, err := s.store.CountCategoryProducts(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, fmt.Errorf("%w: нельзя перенести в другой город", common.ErrCategoryNotEmpty)
		}
	}

	slug, err := s.uniqueSlug(ctx, in.Slug, name, c.ID, s.store.CategorySlugExists)
	if err != nil {
		return nil, err
	}

	c.CityID = cityID
	c.Name = name
	c.Slug = slug
	c.Description = strings.TrimSpace(in.Description)
	c.Icon = strings.TrimSpace(in.Icon)
	c.Order = in.Order
	c.IsFeatured = in.IsFeatured

	if c.ID == 0 {
		err = s.store.CreateCategory(ctx, c)
	} else {
		err = s.store.UpdateCategory(ctx, c)
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"category_id": c.ID,
		"city_id":     c.CityID,
		"actor_id":    actor.ID,
	}).Info("Категория сохранена")
	return c, nil
}

// DeleteCategory удаляет пустую категорию.
func (s *Service) DeleteCategory(ctx context.Context, actor *members.User, id int64) error {
	if !s.canManage(actor) {
		return common.ErrForbidden
	}
	if id <= 0 {
		return common.ErrInvalidID
	}
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if err := region.ScopeFor(actor).Check(c.CityID); err != nil {
		return err
	}
	n, err := s.store.CountCategoryProducts(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w (%d %s)", common.ErrCategoryNotEmpty, n, common.PluralizePieces(int64(n)))
	}
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	log.WithFields(log.Fields{"category_id": id, "actor_id": actor.ID}).Info("Категория удалена")
	return nil
}

// SaveProduct создаёт (in.ID == 0) или изменяет товар.
// Город товара всегда совпадает с городом его категории.
func (s *Service) SaveProduct(ctx context.Context, actor *members.User, in ProductInput) (*Product, error) {
	if !s.canManage(actor) {
		return nil, common.ErrForbidden
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, common.ErrEmptyName
	}
	if in.Price < 0 || in.Price > s.cfg.ShopMaxPrice {
		return nil, fmt.Errorf("%w: допустимо от 0 до %s", common.ErrInvalidPrice, common.FormatCoins(s.cfg.ShopMaxPrice))
	}
	if in.Stock < 0 {
		return nil, common.ErrInvalidStock
	}
	if in.CategoryID <= 0 {
		return nil, common.ErrCategoryNotFound
	}
	scope := region.ScopeFor(actor)

	p := &Product{}
	if in.ID != 0 {
		existing, err := s.store.GetProduct(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		if err := scope.Check(existing.CityID); err != nil {
			return nil, err
		}
		p = existing
	}

	category, err := s.store.GetCategory(ctx, in.CategoryID)
	if err != nil {
		return nil, err
	}
	requested := in.CityID
	if requested == nil {
		requested = &category.CityID
	}
	cityID, err := scope.StampCity(requested)
	if err != nil {
		return nil, err
	}
	if category.CityID != cityID {
		return nil, fmt.Errorf("%w: категория «%s» из другого города", common.ErrCrossCityAccess, category.Name)
	}

	slug, err := s.uniqueSlug(ctx, in.Slug, name, p.ID, s.store.ProductSlugExists)
	if err != nil {
		return nil, err
	}

	p.CityID = cityID
	p.CategoryID = category.ID
	p.Name = name
	p.Slug = slug
	p.Description = strings.TrimSpace(in.Description)
	p.Price = in.Price
	p.Stock = in.Stock
	p.Available = in.Available
	p.IsDigital = in.IsDigital
	p.Featured = in.Featured

	if p.ID == 0 {
		err = s.store.CreateProduct(ctx, p)
	} else {
		err = s.store.UpdateProduct(ctx, p)
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"product_id": p.ID,
		"city_id":    p.CityID,
		"price":      p.Price,
		"stock":      p.Stock,
		"actor_id":   actor.ID,
	}).Info("Товар сохранён")
	return p, nil
}

// DeleteProduct удаляет товар. Товар с покупками удалить нельзя — его снимают с продажи.
func (s *Service) DeleteProduct(ctx context.Context, actor *members.User, id int64) error {
	if !s.canManage(actor) {
		return common.ErrForbidden
	}
	if id <= 0 {
		return common.ErrInvalidID
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := region.ScopeFor(actor).Check(p.CityID); err != nil {
		return err
	}
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	log.WithFields(log.Fields{"product_id": id, "actor_id": actor.ID}).Info("Товар удалён")
	return nil
}

// SeedCategories создаёт стандартные категории в городе, пропуская существующие по названию.
func (s *Service) SeedCategories(ctx context.Context, actor *members.User, cityID int64) (int, error) {
	existing, err := s.store.ListCategories(ctx, region.Cities(cityID))
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c.Name] = true
	}

	created := 0
	for _, in := range DefaultCategories {
		if have[in.Name] {
			continue
		}
		in.CityID = &cityID
		if _, err := s.SaveCategory(ctx, actor, in); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

type slugExistsFunc func(ctx context.Context, slug string, exceptID int64) (bool, error)

// uniqueSlug возвращает заданный slug или строит его из названия,
// добавляя -2, -3, ... при совпадении. Явно заданный занятый slug — ошибка.
func (s *Service) uniqueSlug(ctx context.Context, requested, name string, exceptID int64, exists slugExistsFunc) (string, error) {
	if requested = strings.TrimSpace(requested); requested != "" {
		slug := common.Slugify(requested)
		taken, err := exists(ctx, slug, exceptID)
		if err != nil {
			return "", err
		}
		if taken {
			return "", fmt.Errorf("%w: %s", common.ErrSlugTaken, slug)
		}
		return slug, nil
	}

	base := common.Slugify(name)
	for i := 1; i <= 100; i++ {
		slug := base
		if i > 1 {
			slug = fmt.Sprintf("%s-%d", base, i)
		}
		taken, err := exists(ctx, slug, exceptID)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
	}
	return "", fmt.Errorf("%w: %s", common.ErrSlugTaken, base)
}

func cityOr(requested *int64, existing *Category) *int64 {
	if requested != nil || existing.ID == 0 {
		return requested
	}
	return &existing.CityID
}
