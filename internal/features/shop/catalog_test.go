package shop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/region"
	"astrocoins.ru/ledger/internal/features/shop"
)

func TestSaveCategory_StampsCity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, f.city, f.category.CityID)
	assert.Equal(t, "kovriki-dlya-myshi", f.category.Slug)

	root := f.env.Superuser(t, "root")
	_, err := f.env.Shop.SaveCategory(ctx, root, shop.CategoryInput{Name: "Значки"})
	require.ErrorIs(t, err, common.ErrCityRequired)

	other := f.env.City(t, "Хабаровск")
	c, err := f.env.Shop.SaveCategory(ctx, root, shop.CategoryInput{Name: "Коврики для мыши", CityID: &other})
	require.NoError(t, err)
	assert.Equal(t, other, c.CityID)
	assert.Equal(t, "kovriki-dlya-myshi-2", c.Slug)

	_, err = f.env.Shop.SaveCategory(ctx, f.admin, shop.CategoryInput{Name: "Значки", CityID: &other})
	require.ErrorIs(t, err, common.ErrCrossCityAccess)

	_, err = f.env.Shop.SaveCategory(ctx, f.admin, shop.CategoryInput{ID: c.ID, Name: "Чужая"})
	require.ErrorIs(t, err, common.ErrCrossCityAccess)

	_, err = f.env.Shop.SaveCategory(ctx, f.admin, shop.CategoryInput{Name: "Значки", Slug: "kovriki-dlya-myshi"})
	require.ErrorIs(t, err, common.ErrSlugTaken)

	_, err = f.env.Shop.SaveCategory(ctx, f.admin, shop.CategoryInput{Name: "   "})
	require.ErrorIs(t, err, common.ErrEmptyName)
}

func TestSaveCategory_TeachersNeedFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teacher := f.env.User(t, "teacher", members.RoleTeacher, 0, func(u *members.User) { u.CityIDs = []int64{f.city} })

	_, err := f.env.Shop.SaveCategory(ctx, teacher, shop.CategoryInput{Name: "Значки"})
	require.ErrorIs(t, err, common.ErrForbidden)

	f.env.Cfg.CatalogTeachersManage = true
	c, err := f.env.Shop.SaveCategory(ctx, teacher, shop.CategoryInput{Name: "Значки"})
	require.NoError(t, err)
	assert.Equal(t, f.city, c.CityID)
}

func TestSaveCategory_MoveWithProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "Коврик", 100, 1)
	other := f.env.City(t, "Хабаровск")
	root := f.env.Superuser(t, "root")

	_, err := f.env.Shop.SaveCategory(ctx, root, shop.CategoryInput{
		ID: f.category.ID, Name: f.category.Name, CityID: &other,
	})
	require.ErrorIs(t, err, common.ErrCategoryNotEmpty)

	renamed, err := f.env.Shop.SaveCategory(ctx, root, shop.CategoryInput{
		ID: f.category.ID, Name: "Коврики", Slug: f.category.Slug,
	})
	require.NoError(t, err)
	assert.Equal(t, f.city, renamed.CityID)
	assert.Equal(t, "kovriki-dlya-myshi", renamed.Slug)
}

func TestSaveProduct_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.env.City(t, "Хабаровск")
	otherAdmin := f.env.User(t, "admin_khv", members.RoleCityAdmin, other)
	otherCategory, err := f.env.Shop.SaveCategory(ctx, otherAdmin, shop.CategoryInput{Name: "Браслеты"})
	require.NoError(t, err)
	root := f.env.Superuser(t, "root")

	tests := []struct {
		name    string
		actor   *members.User
		in      shop.ProductInput
		wantErr error
	}{
		{
			name:    "price above maximum",
			actor:   f.admin,
			in:      shop.ProductInput{CategoryID: f.category.ID, Name: "Дорогой", Price: 10001},
			wantErr: common.ErrInvalidPrice,
		},
		{
			name:    "negative price",
			actor:   f.admin,
			in:      shop.ProductInput{CategoryID: f.category.ID, Name: "Странный", Price: -1},
			wantErr: common.ErrInvalidPrice,
		},
		{
			name:    "negative stock",
			actor:   f.admin,
			in:      shop.ProductInput{CategoryID: f.category.ID, Name: "Минус", Price: 10, Stock: -1},
			wantErr: common.ErrInvalidStock,
		},
		{
			name:    "missing category",
			actor:   f.admin,
			in:      shop.ProductInput{Name: "Без категории", Price: 10},
			wantErr: common.ErrCategoryNotFound,
		},
		{
			name:    "category of another city",
			actor:   f.admin,
			in:      shop.ProductInput{CategoryID: otherCategory.ID, Name: "Браслет", Price: 10},
			wantErr: common.ErrCrossCityAccess,
		},
		{
			name:    "city differs from category city",
			actor:   root,
			in:      shop.ProductInput{CategoryID: otherCategory.ID, CityID: &f.city, Name: "Браслет", Price: 10},
			wantErr: common.ErrCrossCityAccess,
		},
		{
			name:    "student cannot manage",
			actor:   f.student,
			in:      shop.ProductInput{CategoryID: f.category.ID, Name: "Коврик", Price: 10},
			wantErr: common.ErrForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.env.Shop.SaveProduct(ctx, tt.actor, tt.in)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	p, err := f.env.Shop.SaveProduct(ctx, root, shop.ProductInput{CategoryID: otherCategory.ID, Name: "Браслет", Price: 10000})
	require.NoError(t, err)
	assert.Equal(t, other, p.CityID)
	assert.Equal(t, "braslet", p.Slug)
}

func TestSaveProduct_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Коврик", 100, 1)

	other := f.env.City(t, "Хабаровск")
	otherAdmin := f.env.User(t, "admin_khv", members.RoleCityAdmin, other)
	_, err := f.env.Shop.SaveProduct(ctx, otherAdmin, shop.ProductInput{
		ID: p.ID, CategoryID: f.category.ID, Name: "Коврик", Price: 1,
	})
	require.ErrorIs(t, err, common.ErrCrossCityAccess)

	updated, err := f.env.Shop.SaveProduct(ctx, f.admin, shop.ProductInput{
		ID: p.ID, CategoryID: f.category.ID, Name: "Коврик", Slug: p.Slug, Price: 150, Stock: 5, Available: true,
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, int64(150), updated.Price)
	assert.Equal(t, 5, updated.Stock)
	assert.Equal(t, p.Slug, updated.Slug)
}

func TestListCatalog_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	on := f.product(t, "Коврик", 100, 1)
	_, err := f.env.Shop.SaveProduct(ctx, f.admin, shop.ProductInput{CategoryID: f.category.ID, Name: "Скрытый", Price: 100})
	require.NoError(t, err)
	_, err = f.env.Shop.SaveCategory(ctx, f.admin, shop.CategoryInput{Name: "Браслеты", Order: 2})
	require.NoError(t, err)

	other := f.env.City(t, "Хабаровск")
	otherAdmin := f.env.User(t, "admin_khv", members.RoleCityAdmin, other)
	otherCategory, err := f.env.Shop.SaveCategory(ctx, otherAdmin, shop.CategoryInput{Name: "Часы"})
	require.NoError(t, err)
	_, err = f.env.Shop.SaveProduct(ctx, otherAdmin, shop.ProductInput{CategoryID: otherCategory.ID, Name: "Часы", Price: 100, Available: true})
	require.NoError(t, err)

	forStudent, err := f.env.Shop.ListCatalog(ctx, f.student)
	require.NoError(t, err)
	require.Len(t, forStudent, 1)
	assert.Equal(t, f.category.ID, forStudent[0].Category.ID)
	require.Len(t, forStudent[0].Products, 1)
	assert.Equal(t, on.ID, forStudent[0].Products[0].ID)

	forAdmin, err := f.env.Shop.ListCatalog(ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, forAdmin, 2)
	assert.Len(t, forAdmin[0].Products, 2)
	assert.Empty(t, forAdmin[1].Products)

	root := f.env.Superuser(t, "root")
	all, err := f.env.Shop.ListCatalog(ctx, root)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	nowhere := f.env.User(t, "nowhere", members.RoleStudent, 0)
	none, err := f.env.Shop.ListCatalog(ctx, nowhere)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetProduct_ForBuyer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Коврик", 100, 1)

	got, err := f.env.Shop.GetProduct(ctx, f.student, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Коврик", got.Name)

	other := f.env.City(t, "Хабаровск")
	visitor := f.env.Student(t, "visitor", other)
	_, err = f.env.Shop.GetProduct(ctx, visitor, p.ID)
	require.ErrorIs(t, err, common.ErrProductNotInRegion)

	otherAdmin := f.env.User(t, "admin_khv", members.RoleCityAdmin, other)
	_, err = f.env.Shop.GetProduct(ctx, otherAdmin, p.ID)
	require.ErrorIs(t, err, common.ErrCrossCityAccess)
}

func TestDelete_RespectsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sold := f.product(t, "Коврик", 100, 2)
	spare := f.product(t, "Запасной", 100, 2)
	f.env.Credit(t, f.student.ID, 100)
	_, err := f.env.Shop.Purchase(ctx, f.student, sold.ID)
	require.NoError(t, err)

	err = f.env.Shop.DeleteCategory(ctx, f.admin, f.category.ID)
	require.ErrorIs(t, err, common.ErrCategoryNotEmpty)
	assert.Equal(t, "Нельзя удалить категорию, в ней есть товары (2 штуки)", common.UserMessage(err))

	err = f.env.Shop.DeleteProduct(ctx, f.admin, sold.ID)
	require.ErrorIs(t, err, common.ErrHasLedgerHistory)

	require.ErrorIs(t, f.env.Shop.DeleteProduct(ctx, f.student, spare.ID), common.ErrForbidden)
	require.NoError(t, f.env.Shop.DeleteProduct(ctx, f.admin, spare.ID))

	empty, err := f.env.Shop.SaveCategory(ctx, f.admin, shop.CategoryInput{Name: "Значки"})
	require.NoError(t, err)
	require.NoError(t, f.env.Shop.DeleteCategory(ctx, f.admin, empty.ID))
	_, err = f.env.Store.GetCategory(ctx, empty.ID)
	require.ErrorIs(t, err, common.ErrCategoryNotFound)
}

func TestSeedCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.env.Shop.SeedCategories(ctx, f.admin, f.city)
	require.NoError(t, err)
	assert.Equal(t, len(shop.DefaultCategories)-1, created)

	created, err = f.env.Shop.SeedCategories(ctx, f.admin, f.city)
	require.NoError(t, err)
	assert.Zero(t, created)

	other := f.env.City(t, "Хабаровск")
	root := f.env.Superuser(t, "root")
	created, err = f.env.Shop.SeedCategories(ctx, root, other)
	require.NoError(t, err)
	assert.Equal(t, len(shop.DefaultCategories), created)

	cats, err := f.env.Store.ListCategories(ctx, region.Cities(other))
	require.NoError(t, err)
	assert.Equal(t, "kovriki-dlya-myshi-2", cats[0].Slug)
}
