package awards

// DefaultReasons — стандартный справочник причин начисления.
var DefaultReasons = []Reason{
	{Name: "Подарок на день рождения", Coins: 100, CooldownDays: 365, IsSpecial: true},
	{Name: "Стань помощником педагога на занятии", Coins: 10, CooldownDays: 7},
	{Name: "Выполняй задания учителя на уроке + соблюдай дисциплину", Coins: 10, CooldownDays: 1},
	{Name: "Дополнительный бонус от учителя", Coins: 10, CooldownDays: 14},
	{Name: "Выполняй задания дома (за весь модуль)", Coins: 30, CooldownDays: 30},
	{Name: "Участвуй в интенсиве", Coins: 100, CooldownDays: 0, IsSpecial: true},
	{Name: "Переход на следующий год обучения", Coins: 100, CooldownDays: 365, IsSpecial: true},
	{Name: "Спасибо за отзыв", Coins: 30, CooldownDays: 30},
	{Name: "Спасибо за друга", Coins: 100, CooldownDays: 0, IsSpecial: true},
	{Name: "Создание индивидуального проекта", Coins: 50, CooldownDays: 0, IsSpecial: true},
	{Name: "Подарок на Новый год", Coins: 100, CooldownDays: 365, IsSpecial: true},
	{Name: "Отсутствие пропусков (4 занятия)", Coins: 20, CooldownDays: 28},
}
