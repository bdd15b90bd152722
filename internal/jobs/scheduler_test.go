package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/shop"
	"astrocoins.ru/ledger/internal/jobs"
	"astrocoins.ru/ledger/internal/testutil"
)

func TestRunDeliveryDigest(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	city := env.City(t, "Владивосток")
	adminChat := int64(5001)
	admin := env.User(t, "admin_vl", members.RoleCityAdmin, city, func(u *members.User) { u.TelegramID = &adminChat })
	env.User(t, "admin_offline", members.RoleCityAdmin, city)
	student := env.Student(t, "masha", city)

	category, err := env.Shop.SaveCategory(ctx, admin, shop.CategoryInput{Name: "Значки"})
	require.NoError(t, err)
	product, err := env.Shop.SaveProduct(ctx, admin, shop.ProductInput{
		CategoryID: category.ID, Name: "Значок", Price: 30, Stock: 5, Available: true,
	})
	require.NoError(t, err)
	env.Credit(t, student.ID, 100)
	res, err := env.Shop.Purchase(ctx, student, product.ID)
	require.NoError(t, err)

	sent := map[int64]string{}
	s := jobs.NewScheduler(env.Cfg, env.Ledger, env.Shop, env.Members, func(chatID int64, text string) {
		sent[chatID] = text
	})

	n, err := s.RunDeliveryDigest(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.Clock.Advance(env.Cfg.JobsDeliveryMinAge + time.Hour)
	n, err = s.RunDeliveryDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, sent[adminChat], "Невыданные заказы: 1")
	assert.Contains(t, sent[adminChat], "@masha  Значок")
	assert.Contains(t, sent[adminChat], res.OrderCode.String())
}

func TestRunDeliveryDigest_WithoutSender(t *testing.T) {
	env := testutil.NewEnv(t)
	s := jobs.NewScheduler(env.Cfg, env.Ledger, env.Shop, env.Members, nil)

	n, err := s.RunDeliveryDigest(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunReconcile(t *testing.T) {
	env := testutil.NewEnv(t)
	city := env.City(t, "Владивосток")
	student := env.Student(t, "masha", city)
	env.Credit(t, student.ID, 100)

	s := jobs.NewScheduler(env.Cfg, env.Ledger, env.Shop, env.Members, nil)
	n, err := s.RunReconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	env.Store.CorruptBalance(student.ID, 90)
	n, err = s.RunReconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStart_RejectsBadSpec(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Cfg.JobsReconcileSpec = "каждую ночь"
	s := jobs.NewScheduler(env.Cfg, env.Ledger, env.Shop, env.Members, nil)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOBS_RECONCILE_SPEC")
}
