// Package members — service.go содержит бизнес-логику работы с пользователями:
// поиск, создание записей для админ-утилиты и ростер учеников по городам.
package members

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/config"
	"astrocoins.ru/ledger/internal/features/region"
)

// Store — хранилище пользователей. Реализуется Repository (PostgreSQL)
// и memory.Store (демо-режим и тесты).
type Store interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	SetTelegramID(ctx context.Context, userID, telegramID int64) error
	ListStudents(ctx context.Context, scope region.Scope, groupID *int64) ([]*User, error)
	ListCityAdmins(ctx context.Context, cityID int64) ([]*User, error)

	CreateCity(ctx context.Context, c *City) error
	GetCity(ctx context.Context, id int64) (*City, error)
	ListCities(ctx context.Context) ([]*City, error)
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id int64) (*Group, error)
	CreateParent(ctx context.Context, p *Parent) error
	GetParent(ctx context.Context, id int64) (*Parent, error)

	SaveLinkCode(ctx context.Context, c *LinkCode) error
	GetLinkCode(ctx context.Context, userID int64) (*LinkCode, error)
	DeleteLinkCode(ctx context.Context, userID int64) error
	LogLinkAttempt(ctx context.Context, telegramID int64, success bool, at time.Time) error
	CountFailedLinkAttempts(ctx context.Context, telegramID int64, since time.Time) (int, error)
}

// Service управляет пользователями.
type Service struct {
	store Store
	cfg   *config.Config
	now   func() time.Time
}

// NewService создаёт новый сервис пользователей.
func NewService(store Store, cfg *config.Config) *Service {
	return &Service{store: store, cfg: cfg, now: time.Now}
}

// SetClock подменяет источник времени (для тестов).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	if id <= 0 {
		return nil, common.ErrInvalidID
	}
	return s.store.GetUser(ctx, id)
}

// GetUserByUsername принимает имя как с @, так и без.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, common.ErrUserNotFound
	}
	return s.store.GetUserByUsername(ctx, username)
}

func (s *Service) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	return s.store.GetUserByTelegramID(ctx, telegramID)
}

func (s *Service) GetGroup(ctx context.Context, id int64) (*Group, error) {
	return s.store.GetGroup(ctx, id)
}

func (s *Service) GetParent(ctx context.Context, id int64) (*Parent, error) {
	return s.store.GetParent(ctx, id)
}

func (s *Service) ListCities(ctx context.Context) ([]*City, error) {
	return s.store.ListCities(ctx)
}

func (s *Service) ListCityAdmins(ctx context.Context, cityID int64) ([]*User, error) {
	return s.store.ListCityAdmins(ctx, cityID)
}

// ListStudents возвращает учеников, видимых участнику.
// Ростер смотрят только те, кто может начислять AstroCoins.
func (s *Service) ListStudents(ctx context.Context, actor *User, groupID *int64) ([]*User, error) {
	if !actor.CanAward() {
		return nil, common.ErrForbidden
	}
	scope := region.ScopeFor(actor)
	if scope.Empty() {
		return nil, nil
	}
	if groupID != nil {
		group, err := s.store.GetGroup(ctx, *groupID)
		if err != nil {
			return nil, err
		}
		if err := scope.Check(group.CityID); err != nil {
			return nil, err
		}
	}
	return s.store.ListStudents(ctx, scope, groupID)
}

// --- Создание записей (админ-утилита, сиды) ---

func (s *Service) CreateCity(ctx context.Context, name string) (*City, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.ErrEmptyName
	}
	c := &City{Name: name}
	if err := s.store.CreateCity(ctx, c); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"city_id": c.ID, "name": c.Name}).Info("Город создан")
	return c, nil
}

// CreateUser проверяет и сохраняет пользователя.
func (s *Service) CreateUser(ctx context.Context, u *User) error {
	u.Username = NormalizeUsername(u.Username)
	if u.Username == "" {
		return common.ErrEmptyName
	}
	if _, err := ParseRole(u.Role.String()); err != nil {
		return err
	}
	if u.Role != RoleTeacher {
		u.CityIDs = nil
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"user_id":  u.ID,
		"username": u.Username,
		"role":     u.Role.String(),
	}).Info("Пользователь создан")
	return nil
}

func (s *Service) CreateGroup(ctx context.Context, g *Group) error {
	if strings.TrimSpace(g.Name) == "" {
		return common.ErrEmptyName
	}
	if _, err := s.store.GetCity(ctx, g.CityID); err != nil {
		return err
	}
	return s.store.CreateGroup(ctx, g)
}

func (s *Service) CreateParent(ctx context.Context, p *Parent) error {
	if strings.TrimSpace(p.FullName) == "" {
		return common.ErrEmptyName
	}
	return s.store.CreateParent(ctx, p)
}

// NormalizeUsername убирает пробелы и ведущий @.
func NormalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

// RequireActive возвращает ошибку для отключённых пользователей.
func RequireActive(u *User) error {
	if u == nil || !u.IsActive {
		return fmt.Errorf("%w: учётная запись отключена", common.ErrForbidden)
	}
	return nil
}
