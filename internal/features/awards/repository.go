// Package awards — repository.go работает с таблицами award_reasons и coin_awards.
package awards

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/db/postgres"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetReason(ctx context.Context, id int64) (*Reason, error) {
	var rs Reason
	err := r.db.QueryRow(ctx, `
		SELECT id, name, coins, cooldown_days, is_special FROM award_reasons WHERE id = $1
	`, id).Scan(&rs.ID, &rs.Name, &rs.Coins, &rs.CooldownDays, &rs.IsSpecial)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("%w (id=%d)", common.ErrReasonNotFound, id)
		}
		return nil, fmt.Errorf("ошибка чтения причины: %w", err)
	}
	return &rs, nil
}

// ListReasons: сначала обычные, затем особые, внутри — по названию.
func (r *Repository) ListReasons(ctx context.Context) ([]*Reason, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, coins, cooldown_days, is_special
		FROM award_reasons
		ORDER BY is_special, name
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса причин: %w", err)
	}
	defer rows.Close()

	var out []*Reason
	for rows.Next() {
		var rs Reason
		if err := rows.Scan(&rs.ID, &rs.Name, &rs.Coins, &rs.CooldownDays, &rs.IsSpecial); err != nil {
			return nil, err
		}
		out = append(out, &rs)
	}
	return out, rows.Err()
}

// UpsertReason создаёт причину или обновляет её параметры по названию.
// Возвращает true, если причина создана.
func (r *Repository) UpsertReason(ctx context.Context, rs *Reason) (bool, error) {
	var inserted bool
	err := r.db.QueryRow(ctx, `
		INSERT INTO award_reasons (name, coins, cooldown_days, is_special)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET coins = EXCLUDED.coins,
		    cooldown_days = EXCLUDED.cooldown_days,
		    is_special = EXCLUDED.is_special
		RETURNING id, (xmax = 0)
	`, rs.Name, rs.Coins, rs.CooldownDays, rs.IsSpecial).Scan(&rs.ID, &inserted)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения причины: %w", err)
	}
	return inserted, nil
}

// HasAwardSince проверяет, было ли начисление по причине не раньше since.
func (r *Repository) HasAwardSince(ctx context.Context, q postgres.Querier, studentID, reasonID int64, since time.Time) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM coin_awards
			WHERE student_id = $1 AND reason_id = $2 AND created_at >= $3
		)
	`, studentID, reasonID, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки кулдауна: %w", err)
	}
	return exists, nil
}

// CountTeacherAwardsSince — сколько раз преподаватель начислял ученику начиная с since.
func (r *Repository) CountTeacherAwardsSince(ctx context.Context, q postgres.Querier, teacherID, studentID int64, since time.Time) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM coin_awards
		WHERE teacher_id = $1 AND student_id = $2 AND created_at >= $3
	`, teacherID, studentID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка проверки дневного лимита: %w", err)
	}
	return count, nil
}

func (r *Repository) InsertAward(ctx context.Context, q postgres.Querier, a *Award) error {
	err := q.QueryRow(ctx, `
		INSERT INTO coin_awards (student_id, teacher_id, reason_id, amount, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, a.StudentID, a.TeacherID, a.ReasonID, a.Amount, a.Comment, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		if postgres.IsForeignKeyViolation(err, "coin_awards_reason_id_fkey") {
			return common.ErrReasonNotFound
		}
		if postgres.IsForeignKeyViolation(err, "") {
			return common.ErrUserNotFound
		}
		return fmt.Errorf("ошибка записи начисления: %w", err)
	}
	return nil
}

const selectAward = `
	SELECT id, student_id, teacher_id, reason_id, amount, comment, created_at
	FROM coin_awards
`

func scanAward(row interface{ Scan(...any) error }) (*Award, error) {
	var a Award
	err := row.Scan(&a.ID, &a.StudentID, &a.TeacherID, &a.ReasonID, &a.Amount, &a.Comment, &a.CreatedAt)
	return &a, err
}

func (r *Repository) GetAward(ctx context.Context, id int64) (*Award, error) {
	a, err := scanAward(r.db.QueryRow(ctx, selectAward+`WHERE id = $1`, id))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("%w (id=%d)", common.ErrAwardNotFound, id)
		}
		return nil, fmt.Errorf("ошибка чтения начисления: %w", err)
	}
	return a, nil
}

// LockAward блокирует строку начисления до конца транзакции.
func (r *Repository) LockAward(ctx context.Context, q postgres.Querier, id int64) (*Award, error) {
	a, err := scanAward(q.QueryRow(ctx, selectAward+`WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("%w (id=%d)", common.ErrAwardNotFound, id)
		}
		return nil, fmt.Errorf("ошибка блокировки начисления: %w", err)
	}
	return a, nil
}

func (r *Repository) DeleteAward(ctx context.Context, q postgres.Querier, id int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM coin_awards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления начисления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrAwardNotFound
	}
	return nil
}

// ListAwards возвращает последние начисления ученика.
func (r *Repository) ListAwards(ctx context.Context, studentID int64, limit int) ([]*Award, error) {
	rows, err := r.db.Query(ctx, selectAward+`
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса начислений: %w", err)
	}
	defer rows.Close()

	var out []*Award
	for rows.Next() {
		a, err := scanAward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
