package common

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPluralizeDays(t *testing.T) {
	cases := map[int]string{
		1: "день", 2: "дня", 4: "дня", 5: "дней", 11: "дней", 12: "дней",
		14: "дней", 21: "день", 22: "дня", 28: "дней", 111: "дней", 365: "дней",
	}
	for n, want := range cases {
		assert.Equal(t, want, PluralizeDays(n), "n=%d", n)
	}
	assert.Equal(t, "штуки", PluralizePieces(3))
	assert.Equal(t, "штука", PluralizePieces(-1))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "150 AC", FormatCoins(150))
	assert.Equal(t, "+100 AC", FormatSignedCoins(100))
	assert.Equal(t, "-50 AC", FormatSignedCoins(-50))
	assert.Equal(t, "999", FormatNumber(999))
	assert.Equal(t, "2 350", FormatNumber(2350))
	assert.Equal(t, "1 000 005", FormatNumber(1000005))
	assert.Equal(t, "-12 000", FormatNumber(-12000))
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("VLAT", 10*60*60)
	// 20:30 UTC — уже следующий день во Владивостоке
	ts := time.Date(2024, time.September, 2, 20, 30, 0, 0, time.UTC)

	got := StartOfDay(ts, loc)
	assert.Equal(t, time.Date(2024, time.September, 3, 0, 0, 0, 0, loc), got)
	assert.Equal(t, time.Date(2024, time.September, 2, 0, 0, 0, 0, time.UTC), StartOfDay(ts, nil))
	assert.Equal(t, "03.09.2024 06:30", FormatDateTime(ts, loc))
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Коврики для мыши":         "kovriki-dlya-myshi",
		"USB-накопитель (флешка)":  "usb-nakopitel-fleshka",
		"Бутылки/стаканы для воды": "butylki-stakany-dlya-vody",
		"Crème brûlée":             "creme-brulee",
		"  Щука ёж  ":              "schuka-ezh",
		"!!!":                      "item",
		"Steam DOTA TOP":           "steam-dota-top",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "in=%q", in)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(ErrAmountTooSmall))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("%w: подробности", ErrInsufficientFunds)))
	assert.Equal(t, KindForbidden, KindOf(ErrProductNotInRegion))
	assert.Equal(t, KindNotFound, KindOf(ErrPurchaseNotFound))
	assert.Equal(t, KindInternal, KindOf(errors.New("connection refused")))
	assert.Equal(t, KindInternal, KindOf(nil))
	assert.Equal(t, "not_found", KindNotFound.String())
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "Недостаточно прав", UserMessage(ErrForbidden))
	assert.Equal(t, "Эту награду можно выдать только раз в 7 дней",
		UserMessage(fmt.Errorf("%w 7 дней", ErrCooldownActive)))
	assert.Equal(t, "Произошла ошибка, попробуйте позже", UserMessage(errors.New("pq: deadlock")))
	assert.True(t, IsUserFacing(ErrBusy))
	assert.False(t, IsUserFacing(errors.New("boom")))
}
