package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/ledger"
	"astrocoins.ru/ledger/internal/features/members"
)

func seedUser(t *testing.T, s *Store, username string) *members.User {
	t.Helper()
	ctx := context.Background()
	city := &members.City{Name: "Город " + username}
	require.NoError(t, s.CreateCity(ctx, city))
	u := &members.User{Username: username, Role: members.RoleStudent, CityID: &city.ID, IsActive: true}
	require.NoError(t, s.CreateUser(ctx, u))
	return u
}

func TestInTx_RollbackRestoresState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := seedUser(t, s, "masha")
	errBoom := errors.New("boom")

	err := s.InTx(ctx, func(q postgres.Querier) error {
		if _, err := s.LockBalances(ctx, q, u.ID); err != nil {
			return err
		}
		if _, err := s.AddBalance(ctx, q, u.ID, 100, ledger.TypeEarn); err != nil {
			return err
		}
		if err := s.InsertTransaction(ctx, q, &ledger.Transaction{
			ReceiverID: &u.ID, Amount: 100, Type: ledger.TypeEarn, Leg: ledger.LegCredit,
		}); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	b, err := s.GetBalance(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, b.Balance)
	history, err := s.History(ctx, u.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestInTx_CommitAndCancel(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := seedUser(t, s, "masha")

	err := s.InTx(ctx, func(q postgres.Querier) error {
		if _, err := s.LockBalances(ctx, q, u.ID); err != nil {
			return err
		}
		_, err := s.AddBalance(ctx, q, u.ID, 40, ledger.TypeEarn)
		return err
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(q postgres.Querier) error {
		_, err := s.AddBalance(ctx, q, u.ID, -50, ledger.TypeSpend)
		return err
	})
	require.ErrorIs(t, err, common.ErrInsufficientFunds)

	b, err := s.GetBalance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), b.Balance)
	assert.Equal(t, int64(40), b.TotalEarned)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	called := false
	err = s.InTx(cancelled, func(q postgres.Querier) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestCreateUser_Constraints(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := seedUser(t, s, "Masha")

	dup := &members.User{Username: "masha", Role: members.RoleStudent}
	require.Error(t, s.CreateUser(ctx, dup))

	tg := int64(10)
	require.NoError(t, s.SetTelegramID(ctx, u.ID, tg))
	other := &members.User{Username: "petya", Role: members.RoleStudent, TelegramID: &tg}
	require.ErrorIs(t, s.CreateUser(ctx, other), common.ErrAlreadyLinked)

	found, err := s.GetUserByUsername(ctx, "MASHA")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	// Возвращается копия: изменения не попадают в хранилище
	found.IsActive = false
	again, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, again.IsActive)
}
