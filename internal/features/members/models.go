// Package members управляет пользователями школы: учениками, преподавателями,
// администраторами городов, а также городами, группами и родителями.
// models.go описывает структуры данных и права ролей.
package members

import (
	"fmt"
	"time"
)

// Role — закрытый набор ролей пользователя.
type Role int

const (
	RoleStudent Role = iota + 1
	RoleTeacher
	RoleCityAdmin
)

// String возвращает значение роли в том виде, в каком оно хранится в БД.
func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "student"
	case RoleTeacher:
		return "teacher"
	case RoleCityAdmin:
		return "city_admin"
	default:
		return "unknown"
	}
}

// Title — название роли для сообщений.
func (r Role) Title() string {
	switch r {
	case RoleStudent:
		return "Ученик"
	case RoleTeacher:
		return "Преподаватель"
	case RoleCityAdmin:
		return "Администратор города"
	default:
		return "Неизвестно"
	}
}

// ParseRole разбирает роль из БД или аргумента командной строки.
func ParseRole(s string) (Role, error) {
	switch s {
	case "student":
		return RoleStudent, nil
	case "teacher":
		return RoleTeacher, nil
	case "city_admin":
		return RoleCityAdmin, nil
	}
	return 0, fmt.Errorf("неизвестная роль %q", s)
}

// User — пользователь системы.
type User struct {
	ID          int64
	Username    string
	FullName    string
	Role        Role
	IsSuperuser bool
	CityID      *int64  // Домашний город (ученики, администраторы)
	CityIDs     []int64 // Города преподавателя
	GroupID     *int64
	ParentID    *int64
	TelegramID  *int64
	IsActive    bool
	CreatedAt   time.Time
}

// DisplayName возвращает ФИО, а если его нет — @username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return "@" + u.Username
}

// CanPurchase: покупать могут ученики и суперпользователь.
func (u *User) CanPurchase() bool {
	return u.IsSuperuser || u.Role == RoleStudent
}

// CanAward: начислять AstroCoins могут преподаватели, администраторы и суперпользователь.
func (u *User) CanAward() bool {
	return u.IsSuperuser || u.Role == RoleTeacher || u.Role == RoleCityAdmin
}

// CanManageCatalog: каталогом управляют администраторы города и суперпользователь.
// Преподаватели — только если это разрешено настройкой CATALOG_TEACHERS_MANAGE.
func (u *User) CanManageCatalog(teachersAllowed bool) bool {
	if u.IsSuperuser || u.Role == RoleCityAdmin {
		return true
	}
	return teachersAllowed && u.Role == RoleTeacher
}

// Методы ниже реализуют region.Subject.

func (u *User) Unrestricted() bool       { return u.IsSuperuser && u.CityID == nil }
func (u *User) Roams() bool              { return u.Role == RoleTeacher }
func (u *User) HomeCityID() *int64       { return u.CityID }
func (u *User) AssignedCityIDs() []int64 { return u.CityIDs }

// City — город, ключ разделения каталога и ростеров.
type City struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Group — учебная группа.
type Group struct {
	ID        int64
	Name      string
	CityID    int64
	TeacherID *int64
	CuratorID *int64
	School    string
	Course    string
	CreatedAt time.Time
}

// Leads сообщает, ведёт ли пользователь группу как преподаватель или куратор.
func (g *Group) Leads(userID int64) bool {
	return (g.TeacherID != nil && *g.TeacherID == userID) ||
		(g.CuratorID != nil && *g.CuratorID == userID)
}

// Parent — родитель ученика. Получает уведомления о наградах, если привязан Telegram.
type Parent struct {
	ID         int64
	FullName   string
	Phone      string
	TelegramID *int64
	CreatedAt  time.Time
}

// LinkCode — одноразовый код привязки Telegram-аккаунта.
// Хранится только хеш Argon2id.
type LinkCode struct {
	UserID    int64
	CodeHash  string
	ExpiresAt time.Time
	CreatedAt time.Time
}
