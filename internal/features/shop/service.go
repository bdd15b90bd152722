package shop

import (
	"context"
	"time"

	"github.com/google/uuid"

	"astrocoins.ru/ledger/internal/config"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/ledger"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/region"
)

// Store — хранилище каталога и покупок.
type Store interface {
	ListCategories(ctx context.Context, scope region.Scope) ([]*Category, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id int64) error
	CountCategoryProducts(ctx context.Context, id int64) (int, error)
	CategorySlugExists(ctx context.Context, slug string, exceptID int64) (bool, error)

	ListProducts(ctx context.Context, scope region.Scope, onlyAvailable bool) ([]*Product, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, id int64) error
	ProductSlugExists(ctx context.Context, slug string, exceptID int64) (bool, error)
	LockProduct(ctx context.Context, q postgres.Querier, id int64) (*Product, error)
	DecrementStock(ctx context.Context, q postgres.Querier, id int64) (int, error)

	InsertPurchase(ctx context.Context, q postgres.Querier, p *Purchase) error
	LockOrder(ctx context.Context, q postgres.Querier, code uuid.UUID) (*Order, error)
	SetDelivered(ctx context.Context, q postgres.Querier, id, by int64, at time.Time) error
	ListPending(ctx context.Context, scope region.Scope, before time.Time) ([]*Order, error)
	ListUserOrders(ctx context.Context, userID int64, limit int) ([]*Order, error)
}

// Ledger — проводки по балансу (реализуется ledger.Service).
type Ledger interface {
	Lock(ctx context.Context, q postgres.Querier, userIDs ...int64) (map[int64]int64, error)
	Apply(ctx context.Context, q postgres.Querier, userID, delta int64, t *ledger.Transaction) (int64, error)
}

// Service — каталог и покупки.
type Service struct {
	store  Store
	tx     ledger.TxRunner
	ledger Ledger
	cfg    *config.Config
	now    func() time.Time
}

func NewService(store Store, tx ledger.TxRunner, l Ledger, cfg *config.Config) *Service {
	return &Service{store: store, tx: tx, ledger: l, cfg: cfg, now: time.Now}
}

// SetClock подменяет источник времени (для тестов).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) canManage(actor *members.User) bool {
	return actor.CanManageCatalog(s.cfg.CatalogTeachersManage)
}
