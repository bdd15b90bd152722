// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование сумм, работа с временем.
package common

import (
	"fmt"
	"time"
)

// CurrencyShort — сокращённое название валюты в сообщениях.
const CurrencyShort = "AC"

// SendFunc отправляет текстовое сообщение в чат (уведомления, рассылки).
type SendFunc func(chatID int64, text string)

// PluralizeDays возвращает правильную форму слова «день» для числа n.
//
// Правила:
//   - 1, 21, 31 → "день"
//   - 2-4, 22-24 → "дня"
//   - 5-20, 25-30 → "дней"
func PluralizeDays(n int) string {
	return pluralize(int64(n), "день", "дня", "дней")
}

// PluralizePieces возвращает правильную форму слова «штука».
func PluralizePieces(n int64) string {
	return pluralize(n, "штука", "штуки", "штук")
}

func pluralize(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// FormatCoins форматирует сумму в читабельную строку.
// Пример: FormatCoins(150) → "150 AC"
func FormatCoins(amount int64) string {
	return fmt.Sprintf("%d %s", amount, CurrencyShort)
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" в указанном часовом поясе.
// Используется для отображения дат транзакций.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}

// StartOfDay возвращает полночь того дня, которому принадлежит t, в часовом поясе loc.
// Используется для дневного лимита начислений.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
