package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"astrocoins.ru/ledger/internal/common"
)

// MapError превращает ошибки конкуренции PostgreSQL в common.ErrBusy.
// Остальные ошибки возвращаются без изменений.
func MapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.LockNotAvailable, pgerrcode.DeadlockDetected, pgerrcode.SerializationFailure:
		return fmt.Errorf("%w (%s)", common.ErrBusy, pgErr.Code)
	}
	return err
}

// IsNoRows проверяет, что запрос не вернул строк.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation проверяет нарушение уникальности.
// Если constraint не пустой — сравнивает ещё и имя ограничения.
func IsUniqueViolation(err error, constraint string) bool {
	return hasCode(err, pgerrcode.UniqueViolation, constraint)
}

// IsForeignKeyViolation проверяет нарушение внешнего ключа.
func IsForeignKeyViolation(err error, constraint string) bool {
	return hasCode(err, pgerrcode.ForeignKeyViolation, constraint)
}

// IsCheckViolation проверяет нарушение CHECK-ограничения.
func IsCheckViolation(err error, constraint string) bool {
	return hasCode(err, pgerrcode.CheckViolation, constraint)
}

func hasCode(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
