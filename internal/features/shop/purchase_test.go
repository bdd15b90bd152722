package shop_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/features/ledger"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/shop"
	"astrocoins.ru/ledger/internal/testutil"
)

type fixture struct {
	env      *testutil.Env
	city     int64
	admin    *members.User
	student  *members.User
	category *shop.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := testutil.NewEnv(t)
	city := env.City(t, "Владивосток")
	admin := env.User(t, "admin_vl", members.RoleCityAdmin, city)
	student := env.Student(t, "student", city)

	category, err := env.Shop.SaveCategory(context.Background(), admin, shop.CategoryInput{Name: "Коврики для мыши"})
	require.NoError(t, err)
	return &fixture{env: env, city: city, admin: admin, student: student, category: category}
}

func (f *fixture) product(t *testing.T, name string, price int64, stock int) *shop.Product {
	t.Helper()
	p, err := f.env.Shop.SaveProduct(context.Background(), f.admin, shop.ProductInput{
		CategoryID: f.category.ID,
		Name:       name,
		Price:      price,
		Stock:      stock,
		Available:  true,
	})
	require.NoError(t, err)
	return p
}

func TestPurchase_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Коврик", 200, 2)
	f.env.Credit(t, f.student.ID, 500)

	res, err := f.env.Shop.Purchase(ctx, f.student, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), res.NewBalance)
	assert.Equal(t, 1, res.NewStock)
	assert.Equal(t, "Вы успешно приобрели Коврик! Код заказа: "+res.OrderCode.String(), res.Message)

	txs, err := f.env.Ledger.History(ctx, f.student.ID, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, ledger.TypeSpend, txs[0].Type)
	assert.Equal(t, ledger.LegDebit, txs[0].Leg)
	assert.Equal(t, int64(200), txs[0].Amount)
	assert.Equal(t, "Покупка Коврик", txs[0].Description)

	orders, err := f.env.Shop.Orders(ctx, f.student.ID, 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, res.OrderCode, orders[0].OrderCode)
	assert.Equal(t, int64(200), orders[0].TotalPrice)
	assert.False(t, orders[0].Delivered)
	f.env.RequireReconciled(t)
}

func TestPurchase_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Коврик", 200, 2)
	f.env.Credit(t, f.student.ID, 50)

	_, err := f.env.Shop.Purchase(ctx, f.student, p.ID)
	require.ErrorIs(t, err, common.ErrInsufficientFunds)
	assert.Equal(t, "Недостаточно AstroCoins для покупки! Не хватает 150 AC (цена 200 AC, на счёте 50 AC)",
		common.UserMessage(err))

	got, err := f.env.Shop.GetProduct(ctx, f.admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)
	assert.Equal(t, int64(50), f.env.Balance(t, f.student.ID))
}

func TestPurchase_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.env.Credit(t, f.student.ID, 1000)

	empty := f.product(t, "Пустой", 100, 0)
	free := f.product(t, "Бесплатный", 0, 5)
	hidden, err := f.env.Shop.SaveProduct(ctx, f.admin, shop.ProductInput{
		CategoryID: f.category.ID, Name: "Скрытый", Price: 100, Stock: 5,
	})
	require.NoError(t, err)

	other := f.env.City(t, "Хабаровск")
	otherAdmin := f.env.User(t, "admin_khv", members.RoleCityAdmin, other)
	otherCategory, err := f.env.Shop.SaveCategory(ctx, otherAdmin, shop.CategoryInput{Name: "Браслеты"})
	require.NoError(t, err)
	remote, err := f.env.Shop.SaveProduct(ctx, otherAdmin, shop.ProductInput{
		CategoryID: otherCategory.ID, Name: "Браслет", Price: 100, Stock: 5, Available: true,
	})
	require.NoError(t, err)

	teacher := f.env.User(t, "teacher", members.RoleTeacher, 0, func(u *members.User) { u.CityIDs = []int64{f.city} })
	homeless := f.env.Student(t, "homeless", 0)
	f.env.Credit(t, homeless.ID, 1000)
	stocked := f.product(t, "Кружка", 100, 5)

	tests := []struct {
		name      string
		actor     *members.User
		productID int64
		wantErr   error
	}{
		{name: "out of stock", actor: f.student, productID: empty.ID, wantErr: common.ErrOutOfStock},
		{name: "zero price", actor: f.student, productID: free.ID, wantErr: common.ErrCorruptPrice},
		{name: "not available", actor: f.student, productID: hidden.ID, wantErr: common.ErrProductNotFound},
		{name: "another city", actor: f.student, productID: remote.ID, wantErr: common.ErrProductNotInRegion},
		{name: "unknown product", actor: f.student, productID: 999, wantErr: common.ErrProductNotFound},
		{name: "invalid id", actor: f.student, productID: 0, wantErr: common.ErrInvalidID},
		{name: "teacher cannot buy", actor: teacher, productID: free.ID, wantErr: common.ErrForbidden},
		{name: "student without city", actor: homeless, productID: stocked.ID, wantErr: common.ErrProductNotInRegion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.env.Shop.Purchase(ctx, tt.actor, tt.productID)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, int64(1000), f.env.Balance(t, f.student.ID))
	assert.Equal(t, int64(1000), f.env.Balance(t, homeless.ID))
	_, err = f.env.Shop.GetProduct(ctx, homeless, stocked.ID)
	require.ErrorIs(t, err, common.ErrProductNotInRegion)

	orders, err := f.env.Shop.Orders(ctx, f.student.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPurchase_InactiveBuyer(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Коврик", 100, 1)
	blocked := f.env.User(t, "blocked", members.RoleStudent, f.city, func(u *members.User) { u.IsActive = false })

	_, err := f.env.Shop.Purchase(context.Background(), blocked, p.ID)
	require.ErrorIs(t, err, common.ErrForbidden)
}

func TestPurchase_LastItemSoldOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Последний", 300, 1)

	const buyers = 10
	students := make([]*members.User, buyers)
	for i := range students {
		students[i] = f.env.Student(t, fmt.Sprintf("buyer%d", i), f.city)
		f.env.Credit(t, students[i].ID, 1000)
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		outOfStock int
	)
	for _, s := range students {
		wg.Add(1)
		go func(buyer *members.User) {
			defer wg.Done()
			_, err := f.env.Shop.Purchase(ctx, buyer, p.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if assert.ErrorIs(t, err, common.ErrOutOfStock) {
				outOfStock++
			}
		}(s)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, buyers-1, outOfStock)

	var total int64
	for _, s := range students {
		total += f.env.Balance(t, s.ID)
	}
	assert.Equal(t, int64(buyers*1000-300), total)

	got, err := f.env.Shop.GetProduct(ctx, f.admin, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Stock)
	f.env.RequireReconciled(t)
}

func TestMarkDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Коврик", 100, 3)
	f.env.Credit(t, f.student.ID, 500)

	res, err := f.env.Shop.Purchase(ctx, f.student, p.ID)
	require.NoError(t, err)
	code := res.OrderCode.String()

	other := f.env.City(t, "Хабаровск")
	otherAdmin := f.env.User(t, "admin_khv", members.RoleCityAdmin, other)

	_, err = f.env.Shop.MarkDelivered(ctx, f.student, code)
	require.ErrorIs(t, err, common.ErrForbidden)

	_, err = f.env.Shop.MarkDelivered(ctx, otherAdmin, code)
	require.ErrorIs(t, err, common.ErrCrossCityAccess)

	_, err = f.env.Shop.MarkDelivered(ctx, f.admin, "не-код")
	require.ErrorIs(t, err, common.ErrInvalidID)

	_, err = f.env.Shop.MarkDelivered(ctx, f.admin, uuid.NewString())
	require.ErrorIs(t, err, common.ErrPurchaseNotFound)

	order, err := f.env.Shop.MarkDelivered(ctx, f.admin, code)
	require.NoError(t, err)
	assert.True(t, order.Delivered)
	require.NotNil(t, order.DeliveredBy)
	assert.Equal(t, f.admin.ID, *order.DeliveredBy)
	assert.Equal(t, "Коврик", order.ProductName)

	_, err = f.env.Shop.MarkDelivered(ctx, f.admin, code)
	require.ErrorIs(t, err, common.ErrAlreadyDelivered)
}

func TestPendingDeliveries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Коврик", 100, 3)
	f.env.Credit(t, f.student.ID, 500)

	res, err := f.env.Shop.Purchase(ctx, f.student, p.ID)
	require.NoError(t, err)

	pending, err := f.env.Shop.PendingDeliveries(ctx, f.admin, 48*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, pending)

	f.env.Clock.Advance(49 * time.Hour)
	pending, err = f.env.Shop.PendingDeliveries(ctx, f.admin, 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "student", pending[0].Username)

	byCity, err := f.env.Shop.PendingByCity(ctx, 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, byCity[f.city], 1)

	other := f.env.City(t, "Хабаровск")
	otherAdmin := f.env.User(t, "admin_khv", members.RoleCityAdmin, other)
	pending, err = f.env.Shop.PendingDeliveries(ctx, otherAdmin, 48*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.env.Shop.MarkDelivered(ctx, f.admin, res.OrderCode.String())
	require.NoError(t, err)
	byCity, err = f.env.Shop.PendingByCity(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, byCity)
}

func TestShortCode(t *testing.T) {
	code := uuid.MustParse("3f2c9a1e-7b4d-4c2a-9e8f-1a2b3c4d5e6f")
	assert.Equal(t, "3f2c9a1e", shop.ShortCode(code))
}
