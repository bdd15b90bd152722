// Package common — pluralize.go содержит форматирование знаковых сумм
// и чисел с разделителями для сообщений пользователю.
package common

import "fmt"

// FormatSignedCoins создаёт строку вида "+100 AC" или "-50 AC".
// Знак «+» или «-» добавляется автоматически.
//
// Примеры:
//
//	FormatSignedCoins(100) → "+100 AC"
//	FormatSignedCoins(-50) → "-50 AC"
func FormatSignedCoins(amount int64) string {
	if amount >= 0 {
		return fmt.Sprintf("+%d %s", amount, CurrencyShort)
	}
	return fmt.Sprintf("%d %s", amount, CurrencyShort)
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}
