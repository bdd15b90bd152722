// Package shop — repository.go работает с таблицами product_categories, products и purchases.
package shop

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/region"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// scopeArg превращает область в параметр запроса: NULL — все города.
func scopeArg(scope region.Scope) []int64 {
	if scope.All() {
		return nil
	}
	return scope.CityIDs()
}

// --- Категории ---

const selectCategory = `
	SELECT id, city_id, name, slug, description, icon, sort_order, is_featured, created_at
	FROM product_categories
`

func scanCategory(row scanner) (*Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.CityID, &c.Name, &c.Slug, &c.Description, &c.Icon, &c.Order, &c.IsFeatured, &c.CreatedAt)
	return &c, err
}

func (r *Repository) ListCategories(ctx context.Context, scope region.Scope) ([]*Category, error) {
	rows, err := r.db.Query(ctx, selectCategory+`
		WHERE ($1::bigint[] IS NULL OR city_id = ANY($1))
		ORDER BY sort_order, name
	`, scopeArg(scope))
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса категорий: %w", err)
	}
	defer rows.Close()

	var out []*Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования категории: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) GetCategory(ctx context.Context, id int64) (*Category, error) {
	c, err := scanCategory(r.db.QueryRow(ctx, selectCategory+`WHERE id = $1`, id))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("%w (id=%d)", common.ErrCategoryNotFound, id)
		}
		return nil, fmt.Errorf("ошибка чтения категории: %w", err)
	}
	return c, nil
}

func (r *Repository) CreateCategory(ctx context.Context, c *Category) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO product_categories (city_id, name, slug, description, icon, sort_order, is_featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, c.CityID, c.Name, c.Slug, c.Description, c.Icon, c.Order, c.IsFeatured).Scan(&c.ID, &c.CreatedAt)
	return categoryError(err)
}

func (r *Repository) UpdateCategory(ctx context.Context, c *Category) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE product_categories
		SET city_id = $2, name = $3, slug = $4, description = $5, icon = $6, sort_order = $7, is_featured = $8
		WHERE id = $1
	`, c.ID, c.CityID, c.Name, c.Slug, c.Description, c.Icon, c.Order, c.IsFeatured)
	if err != nil {
		return categoryError(err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrCategoryNotFound
	}
	return nil
}

func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM product_categories WHERE id = $1`, id)
	if err != nil {
		if postgres.IsForeignKeyViolation(err, "") {
			return common.ErrCategoryNotEmpty
		}
		return fmt.Errorf("ошибка удаления категории: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrCategoryNotFound
	}
	return nil
}

func (r *Repository) CountCategoryProducts(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE category_id = $1`, id).Scan(&n)
	return n, err
}

func (r *Repository) CategorySlugExists(ctx context.Context, slug string, exceptID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM product_categories WHERE slug = $1 AND id <> $2)`, slug, exceptID,
	).Scan(&exists)
	return exists, err
}

func categoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case postgres.IsUniqueViolation(err, "product_categories_slug_key"):
		return common.ErrSlugTaken
	case postgres.IsForeignKeyViolation(err, ""):
		return common.ErrCityNotFound
	}
	return fmt.Errorf("ошибка сохранения категории: %w", err)
}

// --- Товары ---

const selectProduct = `
	SELECT id, city_id, category_id, name, slug, description, price, stock,
	       available, is_digital, featured, created_at, updated_at
	FROM products
`

func scanProduct(row scanner) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CityID, &p.CategoryID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.Stock,
		&p.Available, &p.IsDigital, &p.Featured, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

// ListProducts: сначала рекомендуемые, затем новые.
func (r *Repository) ListProducts(ctx context.Context, scope region.Scope, onlyAvailable bool) ([]*Product, error) {
	rows, err := r.db.Query(ctx, selectProduct+`
		WHERE ($1::bigint[] IS NULL OR city_id = ANY($1))
		  AND (NOT $2 OR available)
		ORDER BY featured DESC, created_at DESC, id DESC
	`, scopeArg(scope), onlyAvailable)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса товаров: %w", err)
	}
	defer rows.Close()

	var out []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования товара: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, selectProduct+`WHERE id = $1`, id))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("%w (id=%d)", common.ErrProductNotFound, id)
		}
		return nil, fmt.Errorf("ошибка чтения товара: %w", err)
	}
	return p, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p *Product) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO products (city_id, category_id, name, slug, description, price, stock, available, is_digital, featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`, p.CityID, p.CategoryID, p.Name, p.Slug, p.Description, p.Price, p.Stock,
		p.Available, p.IsDigital, p.Featured,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return productError(err)
}

func (r *Repository) UpdateProduct(ctx context.Context, p *Product) error {
	err := r.db.QueryRow(ctx, `
		UPDATE products
		SET city_id = $2, category_id = $3, name = $4, slug = $5, description = $6,
		    price = $7, stock = $8, available = $9, is_digital = $10, featured = $11,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, p.ID, p.CityID, p.CategoryID, p.Name, p.Slug, p.Description, p.Price, p.Stock,
		p.Available, p.IsDigital, p.Featured,
	).Scan(&p.UpdatedAt)
	if postgres.IsNoRows(err) {
		return common.ErrProductNotFound
	}
	return productError(err)
}

func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if postgres.IsForeignKeyViolation(err, "purchases_product_id_fkey") {
			return common.ErrHasLedgerHistory
		}
		return fmt.Errorf("ошибка удаления товара: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrProductNotFound
	}
	return nil
}

func (r *Repository) ProductSlugExists(ctx context.Context, slug string, exceptID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE slug = $1 AND id <> $2)`, slug, exceptID,
	).Scan(&exists)
	return exists, err
}

func productError(err error) error {
	switch {
	case err == nil:
		return nil
	case postgres.IsUniqueViolation(err, "products_slug_key"):
		return common.ErrSlugTaken
	case postgres.IsCheckViolation(err, "products_price_range"):
		return common.ErrInvalidPrice
	case postgres.IsCheckViolation(err, "products_stock_non_negative"):
		return common.ErrInvalidStock
	case postgres.IsForeignKeyViolation(err, "products_category_id_fkey"):
		return common.ErrCategoryNotFound
	case postgres.IsForeignKeyViolation(err, ""):
		return common.ErrCityNotFound
	}
	return fmt.Errorf("ошибка сохранения товара: %w", err)
}

// LockProduct блокирует строку товара (остаток) до конца транзакции.
func (r *Repository) LockProduct(ctx context.Context, q postgres.Querier, id int64) (*Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, selectProduct+`WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("%w (id=%d)", common.ErrProductNotFound, id)
		}
		return nil, fmt.Errorf("ошибка блокировки товара: %w", err)
	}
	return p, nil
}

// DecrementStock уменьшает остаток заблокированного товара на единицу.
func (r *Repository) DecrementStock(ctx context.Context, q postgres.Querier, id int64) (int, error) {
	var stock int
	err := q.QueryRow(ctx, `
		UPDATE products SET stock = stock - 1, updated_at = NOW()
		WHERE id = $1
		RETURNING stock
	`, id).Scan(&stock)
	if err != nil {
		if postgres.IsCheckViolation(err, "products_stock_non_negative") {
			return 0, common.ErrOutOfStock
		}
		return 0, fmt.Errorf("ошибка списания остатка: %w", err)
	}
	return stock, nil
}

// --- Покупки ---

func (r *Repository) InsertPurchase(ctx context.Context, q postgres.Querier, p *Purchase) error {
	err := q.QueryRow(ctx, `
		INSERT INTO purchases (order_code, user_id, product_id, quantity, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, p.OrderCode, p.UserID, p.ProductID, p.Quantity, p.TotalPrice, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("ошибка записи покупки: %w", err)
	}
	return nil
}

const selectOrder = `
	SELECT pu.id, pu.order_code, pu.user_id, pu.product_id, pu.quantity, pu.total_price,
	       pu.delivered, pu.delivered_at, pu.delivered_by, pu.created_at,
	       pr.name, pr.city_id, u.username
	FROM purchases pu
	JOIN products pr ON pr.id = pu.product_id
	JOIN users u ON u.id = pu.user_id
`

func scanOrder(row scanner) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderCode, &o.UserID, &o.ProductID, &o.Quantity, &o.TotalPrice,
		&o.Delivered, &o.DeliveredAt, &o.DeliveredBy, &o.CreatedAt,
		&o.ProductName, &o.CityID, &o.Username)
	return &o, err
}

// LockOrder блокирует покупку по коду заказа.
func (r *Repository) LockOrder(ctx context.Context, q postgres.Querier, code uuid.UUID) (*Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, selectOrder+`WHERE pu.order_code = $1 FOR UPDATE OF pu`, code))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, common.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("ошибка блокировки заказа: %w", err)
	}
	return o, nil
}

func (r *Repository) SetDelivered(ctx context.Context, q postgres.Querier, id, by int64, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE purchases SET delivered = TRUE, delivered_at = $3, delivered_by = $2 WHERE id = $1
	`, id, by, at)
	if err != nil {
		return fmt.Errorf("ошибка отметки выдачи: %w", err)
	}
	return nil
}

// ListPending возвращает невыданные заказы, созданные до before.
func (r *Repository) ListPending(ctx context.Context, scope region.Scope, before time.Time) ([]*Order, error) {
	return r.queryOrders(ctx, selectOrder+`
		WHERE NOT pu.delivered AND pu.created_at <= $2
		  AND ($1::bigint[] IS NULL OR pr.city_id = ANY($1))
		ORDER BY pr.city_id, pu.created_at
	`, scopeArg(scope), before)
}

// ListUserOrders возвращает последние заказы пользователя.
func (r *Repository) ListUserOrders(ctx context.Context, userID int64, limit int) ([]*Order, error) {
	return r.queryOrders(ctx, selectOrder+`
		WHERE pu.user_id = $1
		ORDER BY pu.created_at DESC, pu.id DESC
		LIMIT $2
	`, userID, limit)
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса заказов: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заказа: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
