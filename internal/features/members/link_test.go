package members_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/testutil"
)

func TestLinkTelegram(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	city := env.City(t, "Владивосток")
	env.Student(t, "masha", city)

	code, expires, err := env.Members.IssueLinkCode(ctx, "@masha")
	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.Equal(t, env.Clock.Now().Add(24*time.Hour), expires)

	user, err := env.Members.LinkTelegram(ctx, "MASHA", "  "+strings.ToLower(code)+" ", 555)
	require.NoError(t, err)
	require.NotNil(t, user.TelegramID)
	assert.Equal(t, int64(555), *user.TelegramID)

	found, err := env.Members.GetUserByTelegramID(ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, "masha", found.Username)

	// Код одноразовый
	_, err = env.Members.LinkTelegram(ctx, "masha", code, 555)
	require.ErrorIs(t, err, common.ErrLinkCodeInvalid)
}

func TestLinkTelegram_Rejections(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	city := env.City(t, "Владивосток")
	env.Student(t, "masha", city)
	env.Student(t, "petya", city)

	code, _, err := env.Members.IssueLinkCode(ctx, "masha")
	require.NoError(t, err)

	_, err = env.Members.LinkTelegram(ctx, "nobody", code, 1)
	require.ErrorIs(t, err, common.ErrLinkCodeInvalid)

	_, err = env.Members.LinkTelegram(ctx, "petya", code, 2)
	require.ErrorIs(t, err, common.ErrLinkCodeInvalid)

	_, _, err = env.Members.IssueLinkCode(ctx, "nobody")
	require.ErrorIs(t, err, common.ErrUserNotFound)

	env.Clock.Advance(25 * time.Hour)
	_, err = env.Members.LinkTelegram(ctx, "masha", code, 3)
	require.ErrorIs(t, err, common.ErrLinkCodeInvalid)
}

func TestLinkTelegram_TooManyAttempts(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	city := env.City(t, "Владивосток")
	env.Student(t, "masha", city)

	code, _, err := env.Members.IssueLinkCode(ctx, "masha")
	require.NoError(t, err)

	for i := 0; i < env.Cfg.LinkMaxFailedPerHour; i++ {
		_, err := env.Members.LinkTelegram(ctx, "masha", "WRONG123", 777)
		require.ErrorIs(t, err, common.ErrLinkCodeInvalid)
	}

	_, err = env.Members.LinkTelegram(ctx, "masha", code, 777)
	require.ErrorIs(t, err, common.ErrTooManyAttempts)

	// Другой аккаунт Telegram не заблокирован
	_, err = env.Members.LinkTelegram(ctx, "masha", "WRONG123", 778)
	require.ErrorIs(t, err, common.ErrLinkCodeInvalid)

	env.Clock.Advance(time.Hour + time.Second)
	user, err := env.Members.LinkTelegram(ctx, "masha", code, 777)
	require.NoError(t, err)
	assert.Equal(t, int64(777), *user.TelegramID)
}

func TestLinkTelegram_AccountAlreadyLinked(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	city := env.City(t, "Владивосток")
	tg := int64(900)
	env.Student(t, "masha", city)
	env.Student(t, "petya", city)

	_, err := env.Members.LinkTelegram(ctx, "petya", "", tg)
	require.ErrorIs(t, err, common.ErrLinkCodeInvalid)

	first, _, err := env.Members.IssueLinkCode(ctx, "masha")
	require.NoError(t, err)
	_, err = env.Members.LinkTelegram(ctx, "masha", first, tg)
	require.NoError(t, err)

	second, _, err := env.Members.IssueLinkCode(ctx, "petya")
	require.NoError(t, err)
	_, err = env.Members.LinkTelegram(ctx, "petya", second, tg)
	require.ErrorIs(t, err, common.ErrAlreadyLinked)
}
