// Package members — repository.go отвечает за таблицы users, cities, groups,
// parents и коды привязки Telegram в PostgreSQL.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package members

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/region"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const selectUser = `
	SELECT u.id, u.username, u.full_name, u.role, u.is_superuser, u.city_id,
	       u.group_id, u.parent_id, u.telegram_id, u.is_active, u.created_at,
	       ARRAY(SELECT uc.city_id FROM user_cities uc WHERE uc.user_id = u.id ORDER BY uc.city_id)
	FROM users u
`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.FullName, &role, &u.IsSuperuser, &u.CityID,
		&u.GroupID, &u.ParentID, &u.TelegramID, &u.IsActive, &u.CreatedAt,
		&u.CityIDs,
	)
	if err != nil {
		return nil, err
	}
	if u.Role, err = ParseRole(role); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) getUser(ctx context.Context, where string, arg any) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, selectUser+where, arg))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("%w (%v)", common.ErrUserNotFound, arg)
		}
		return nil, fmt.Errorf("ошибка чтения пользователя (%v): %w", arg, err)
	}
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	return r.getUser(ctx, "WHERE u.id = $1", id)
}

// GetUserByUsername ищет без учёта регистра.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return r.getUser(ctx, "WHERE LOWER(u.username) = LOWER($1)", username)
}

func (r *Repository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	return r.getUser(ctx, "WHERE u.telegram_id = $1", telegramID)
}

// CreateUser добавляет пользователя вместе с набором городов преподавателя.
func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO users (username, full_name, role, is_superuser, city_id, group_id, parent_id, telegram_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, u.Username, u.FullName, u.Role.String(), u.IsSuperuser, u.CityID,
		u.GroupID, u.ParentID, u.TelegramID, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return fmt.Errorf("пользователь %s уже существует: %w", u.Username, err)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}

	for _, cityID := range u.CityIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_cities (user_id, city_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			u.ID, cityID,
		); err != nil {
			if postgres.IsForeignKeyViolation(err, "") {
				return fmt.Errorf("%w (%d)", common.ErrCityNotFound, cityID)
			}
			return fmt.Errorf("ошибка привязки города: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// SetTelegramID привязывает Telegram-аккаунт к пользователю.
func (r *Repository) SetTelegramID(ctx context.Context, userID, telegramID int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET telegram_id = $2, updated_at = NOW() WHERE id = $1`,
		userID, telegramID,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "users_telegram_id_key") {
			return common.ErrAlreadyLinked
		}
		return fmt.Errorf("ошибка привязки Telegram: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// ListStudents возвращает активных учеников из городов области.
// groupID ограничивает выборку одной группой.
func (r *Repository) ListStudents(ctx context.Context, scope region.Scope, groupID *int64) ([]*User, error) {
	var cities []int64
	if !scope.All() {
		cities = scope.CityIDs()
	}
	return r.queryUsers(ctx, selectUser+`
		WHERE u.role = 'student' AND u.is_active
		  AND ($1::bigint[] IS NULL OR u.city_id = ANY($1))
		  AND ($2::bigint IS NULL OR u.group_id = $2)
		ORDER BY u.full_name, u.username
	`, cities, groupID)
}

// ListCityAdmins возвращает администраторов города с привязанным Telegram.
func (r *Repository) ListCityAdmins(ctx context.Context, cityID int64) ([]*User, error) {
	return r.queryUsers(ctx, selectUser+`
		WHERE u.role = 'city_admin' AND u.is_active AND u.city_id = $1
		  AND u.telegram_id IS NOT NULL
		ORDER BY u.id
	`, cityID)
}

func (r *Repository) queryUsers(ctx context.Context, query string, args ...any) ([]*User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса пользователей: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// --- Города ---

func (r *Repository) CreateCity(ctx context.Context, c *City) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO cities (name) VALUES ($1) RETURNING id, created_at`, c.Name,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания города: %w", err)
	}
	return nil
}

func (r *Repository) GetCity(ctx context.Context, id int64) (*City, error) {
	var c City
	err := r.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM cities WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, common.ErrCityNotFound
		}
		return nil, fmt.Errorf("ошибка чтения города: %w", err)
	}
	return &c, nil
}

func (r *Repository) ListCities(ctx context.Context) ([]*City, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, created_at FROM cities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса городов: %w", err)
	}
	defer rows.Close()

	var out []*City
	for rows.Next() {
		var c City
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// --- Группы и родители ---

func (r *Repository) CreateGroup(ctx context.Context, g *Group) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO groups (name, city_id, teacher_id, curator_id, school, course)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, g.Name, g.CityID, g.TeacherID, g.CuratorID, g.School, g.Course).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err, "") {
			return fmt.Errorf("%w: %v", common.ErrCityNotFound, err)
		}
		return fmt.Errorf("ошибка создания группы: %w", err)
	}
	return nil
}

func (r *Repository) GetGroup(ctx context.Context, id int64) (*Group, error) {
	var g Group
	err := r.db.QueryRow(ctx, `
		SELECT id, name, city_id, teacher_id, curator_id, school, course, created_at
		FROM groups WHERE id = $1
	`, id).Scan(&g.ID, &g.Name, &g.CityID, &g.TeacherID, &g.CuratorID, &g.School, &g.Course, &g.CreatedAt)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, common.ErrGroupNotFound
		}
		return nil, fmt.Errorf("ошибка чтения группы: %w", err)
	}
	return &g, nil
}

func (r *Repository) CreateParent(ctx context.Context, p *Parent) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO parents (full_name, phone, telegram_id) VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, p.FullName, p.Phone, p.TelegramID).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания родителя: %w", err)
	}
	return nil
}

func (r *Repository) GetParent(ctx context.Context, id int64) (*Parent, error) {
	var (
		p     Parent
		phone *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, full_name, phone, telegram_id, created_at FROM parents WHERE id = $1`, id,
	).Scan(&p.ID, &p.FullName, &phone, &p.TelegramID, &p.CreatedAt)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("%w (родитель %d)", common.ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("ошибка чтения родителя: %w", err)
	}
	if phone != nil {
		p.Phone = *phone
	}
	return &p, nil
}

// --- Коды привязки ---

// SaveLinkCode заменяет предыдущий код пользователя новым.
func (r *Repository) SaveLinkCode(ctx context.Context, c *LinkCode) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO link_codes (user_id, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at
	`, c.UserID, c.CodeHash, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения кода привязки: %w", err)
	}
	return nil
}

func (r *Repository) GetLinkCode(ctx context.Context, userID int64) (*LinkCode, error) {
	var c LinkCode
	err := r.db.QueryRow(ctx,
		`SELECT user_id, code_hash, expires_at, created_at FROM link_codes WHERE user_id = $1`, userID,
	).Scan(&c.UserID, &c.CodeHash, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, common.ErrLinkCodeInvalid
		}
		return nil, fmt.Errorf("ошибка чтения кода привязки: %w", err)
	}
	return &c, nil
}

func (r *Repository) DeleteLinkCode(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM link_codes WHERE user_id = $1`, userID)
	return err
}

// LogLinkAttempt записывает попытку привязки.
func (r *Repository) LogLinkAttempt(ctx context.Context, telegramID int64, success bool, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO link_attempts (telegram_id, success, attempt_time) VALUES ($1, $2, $3)`,
		telegramID, success, at,
	)
	return err
}

// CountFailedLinkAttempts возвращает количество неудачных попыток начиная с since.
func (r *Repository) CountFailedLinkAttempts(ctx context.Context, telegramID int64, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM link_attempts
		WHERE telegram_id = $1 AND success = FALSE AND attempt_time >= $2
	`, telegramID, since).Scan(&count)
	return count, err
}
