// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях сервиса.
// Эти ошибки позволяют вызывающему коду различать типы проблем
// и показывать пользователю понятные сообщения.
package common

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

// Ошибки валидации — отклоняются до взятия блокировок, без побочных эффектов.
var (
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrAmountTooSmall — сумма перевода меньше минимальной
	ErrAmountTooSmall = errors.New("минимальная сумма перевода")
	// ErrAmountTooLarge — сумма перевода больше максимальной
	ErrAmountTooLarge = errors.New("максимальная сумма перевода")
	// ErrInvalidID — идентификатор должен быть положительным числом
	ErrInvalidID = errors.New("некорректный идентификатор")
	// ErrInvalidPrice — цена вне допустимого диапазона
	ErrInvalidPrice = errors.New("некорректная цена товара")
	// ErrInvalidStock — отрицательный остаток
	ErrInvalidStock = errors.New("количество на складе не может быть отрицательным")
	// ErrEmptyName — не заполнено название
	ErrEmptyName = errors.New("название не может быть пустым")
	// ErrCityRequired — не удалось определить город для записи
	ErrCityRequired = errors.New("необходимо указать город")
	// ErrLinkCodeInvalid — неверный или просроченный код привязки
	ErrLinkCodeInvalid = errors.New("неверный или просроченный код привязки")
)

// Конфликты состояния — обнаруживаются под блокировкой, транзакция откатывается.
var (
	// ErrInsufficientFunds — недостаточно AstroCoins на счёте
	ErrInsufficientFunds = errors.New("недостаточно AstroCoins")
	// ErrOutOfStock — товар закончился
	ErrOutOfStock = errors.New("товара нет в наличии")
	// ErrCooldownActive — награду по этой причине выдавали недавно.
	// Оборачивается с периодом: "эту награду можно выдать только раз в 7 дней".
	ErrCooldownActive = errors.New("эту награду можно выдать только раз в")
	// ErrDailyLimitExceeded — исчерпан дневной лимит начислений
	ErrDailyLimitExceeded = errors.New("превышен дневной лимит начислений")
	// ErrSelfTransfer — попытка перевести AstroCoins самому себе
	ErrSelfTransfer = errors.New("нельзя переводить AstroCoins самому себе")
	// ErrCorruptPrice — у товара нулевая или отрицательная цена (битые данные)
	ErrCorruptPrice = errors.New("у товара некорректная цена, покупка невозможна")
	// ErrCategoryNotEmpty — в категории есть товары
	ErrCategoryNotEmpty = errors.New("нельзя удалить категорию, в ней есть товары")
	// ErrSlugTaken — slug уже занят
	ErrSlugTaken = errors.New("такой адрес (slug) уже занят")
	// ErrAlreadyDelivered — заказ уже выдан
	ErrAlreadyDelivered = errors.New("заказ уже выдан")
	// ErrHasLedgerHistory — у записи есть движения по счёту, удалять нельзя
	ErrHasLedgerHistory = errors.New("у записи есть история операций, удаление запрещено")
	// ErrAlreadyLinked — Telegram-аккаунт уже привязан к другому пользователю
	ErrAlreadyLinked = errors.New("этот Telegram-аккаунт уже привязан")
	// ErrTooManyAttempts — слишком много неудачных попыток
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrBusy — строка занята другой операцией, можно повторить запрос
	ErrBusy = errors.New("операция не выполнена из-за параллельного запроса, повторите попытку")
)

// Ошибки доступа — проверяются до блокировок и никогда не применяются частично.
var (
	// ErrForbidden — у роли нет права на действие
	ErrForbidden = errors.New("недостаточно прав")
	// ErrCrossCityAccess — запись принадлежит другому городу
	ErrCrossCityAccess = errors.New("нет доступа к данным другого города")
	// ErrProductNotInRegion — товар из каталога другого города
	ErrProductNotInRegion = errors.New("товар недоступен в вашем городе")
	// ErrNotYourStudent — ученик не из группы преподавателя
	ErrNotYourStudent = errors.New("вы можете управлять AstroCoins только своих учеников")
)

// Ошибки целостности — связанная запись не найдена.
var (
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrReasonNotFound — причина начисления не найдена
	ErrReasonNotFound = errors.New("причина не найдена")
	// ErrAwardNotFound — начисление не найдено
	ErrAwardNotFound = errors.New("начисление не найдено")
	// ErrProductNotFound — товар не найден или снят с продажи
	ErrProductNotFound = errors.New("товар не найден")
	// ErrCategoryNotFound — категория не найдена
	ErrCategoryNotFound = errors.New("категория не найдена")
	// ErrPurchaseNotFound — покупка не найдена
	ErrPurchaseNotFound = errors.New("заказ не найден")
	// ErrCityNotFound — город не найден
	ErrCityNotFound = errors.New("город не найден")
	// ErrGroupNotFound — группа не найдена
	ErrGroupNotFound = errors.New("группа не найдена")
)

// Kind — класс ошибки для вызывающего слоя.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindForbidden
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

var kinds = map[Kind][]error{
	KindValidation: {
		ErrInvalidAmount, ErrAmountTooSmall, ErrAmountTooLarge, ErrInvalidID, ErrInvalidPrice,
		ErrInvalidStock, ErrEmptyName, ErrCityRequired, ErrLinkCodeInvalid,
	},
	KindConflict: {
		ErrInsufficientFunds, ErrOutOfStock, ErrCooldownActive, ErrDailyLimitExceeded,
		ErrSelfTransfer, ErrCorruptPrice, ErrCategoryNotEmpty, ErrSlugTaken,
		ErrAlreadyDelivered, ErrHasLedgerHistory, ErrAlreadyLinked, ErrTooManyAttempts, ErrBusy,
	},
	KindForbidden: {
		ErrForbidden, ErrCrossCityAccess, ErrProductNotInRegion, ErrNotYourStudent,
	},
	KindNotFound: {
		ErrUserNotFound, ErrReasonNotFound, ErrAwardNotFound, ErrProductNotFound,
		ErrCategoryNotFound, ErrPurchaseNotFound, ErrCityNotFound, ErrGroupNotFound,
	},
}

// KindOf классифицирует ошибку по известным сентинелам.
// Всё, что не распознано, считается внутренней ошибкой.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for kind, list := range kinds {
		for _, target := range list {
			if errors.Is(err, target) {
				return kind
			}
		}
	}
	return KindInternal
}

// IsUserFacing сообщает, можно ли показать текст ошибки пользователю как есть.
func IsUserFacing(err error) bool {
	return err != nil && KindOf(err) != KindInternal
}

// UserMessage возвращает текст ошибки для показа пользователю с заглавной буквы.
// Внутренние ошибки заменяются общим сообщением.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if !IsUserFacing(err) {
		return "Произошла ошибка, попробуйте позже"
	}
	msg := err.Error()
	r, size := utf8.DecodeRuneInString(msg)
	return string(unicode.ToUpper(r)) + msg[size:]
}
