package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/region"
)

func cloneUser(u members.User) *members.User {
	u.CityIDs = append([]int64(nil), u.CityIDs...)
	return &u
}

func (s *Store) GetUser(ctx context.Context, id int64) (*members.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.st.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, fmt.Errorf("%w (%v)", common.ErrUserNotFound, id)
}

func (s *Store) findUser(match func(u members.User) bool, arg any) (*members.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.st.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, fmt.Errorf("%w (%v)", common.ErrUserNotFound, arg)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*members.User, error) {
	return s.findUser(func(u members.User) bool {
		return strings.EqualFold(u.Username, username)
	}, username)
}

func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (*members.User, error) {
	return s.findUser(func(u members.User) bool {
		return u.TelegramID != nil && *u.TelegramID == telegramID
	}, telegramID)
}

func (s *Store) CreateUser(ctx context.Context, u *members.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.st.users {
		if strings.EqualFold(other.Username, u.Username) {
			return fmt.Errorf("пользователь %s уже существует", u.Username)
		}
		if u.TelegramID != nil && other.TelegramID != nil && *other.TelegramID == *u.TelegramID {
			return common.ErrAlreadyLinked
		}
	}
	if u.CityID != nil {
		if _, ok := s.st.cities[*u.CityID]; !ok {
			return fmt.Errorf("%w (%d)", common.ErrCityNotFound, *u.CityID)
		}
	}
	for _, cityID := range u.CityIDs {
		if _, ok := s.st.cities[cityID]; !ok {
			return fmt.Errorf("%w (%d)", common.ErrCityNotFound, cityID)
		}
	}
	if u.GroupID != nil {
		if _, ok := s.st.groups[*u.GroupID]; !ok {
			return common.ErrGroupNotFound
		}
	}
	if u.ParentID != nil {
		if _, ok := s.st.parents[*u.ParentID]; !ok {
			return fmt.Errorf("%w (родитель %d)", common.ErrUserNotFound, *u.ParentID)
		}
	}

	u.ID = s.st.next("users")
	u.CreatedAt = s.now()
	stored := *cloneUser(*u)
	sort.Slice(stored.CityIDs, func(i, j int) bool { return stored.CityIDs[i] < stored.CityIDs[j] })
	s.st.users[u.ID] = stored
	return nil
}

func (s *Store) SetTelegramID(ctx context.Context, userID, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.st.users[userID]
	if !ok {
		return common.ErrUserNotFound
	}
	for id, other := range s.st.users {
		if id != userID && other.TelegramID != nil && *other.TelegramID == telegramID {
			return common.ErrAlreadyLinked
		}
	}
	u.TelegramID = ptr(telegramID)
	s.st.users[userID] = u
	return nil
}

func (s *Store) ListStudents(ctx context.Context, scope region.Scope, groupID *int64) ([]*members.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*members.User
	for _, u := range s.st.users {
		if u.Role != members.RoleStudent || !u.IsActive {
			continue
		}
		if !scope.All() && (u.CityID == nil || !scope.Allows(*u.CityID)) {
			continue
		}
		if groupID != nil && (u.GroupID == nil || *u.GroupID != *groupID) {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

func (s *Store) ListCityAdmins(ctx context.Context, cityID int64) ([]*members.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*members.User
	for _, u := range s.st.users {
		if u.Role == members.RoleCityAdmin && u.IsActive && u.TelegramID != nil &&
			u.CityID != nil && *u.CityID == cityID {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Города, группы, родители ---

func (s *Store) CreateCity(ctx context.Context, c *members.City) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.st.cities {
		if other.Name == c.Name {
			return fmt.Errorf("город %s уже существует", c.Name)
		}
	}
	c.ID = s.st.next("cities")
	c.CreatedAt = s.now()
	s.st.cities[c.ID] = *c
	return nil
}

func (s *Store) GetCity(ctx context.Context, id int64) (*members.City, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.st.cities[id]
	if !ok {
		return nil, common.ErrCityNotFound
	}
	return &c, nil
}

func (s *Store) ListCities(ctx context.Context) ([]*members.City, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*members.City, 0, len(s.st.cities))
	for _, c := range s.st.cities {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateGroup(ctx context.Context, g *members.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.cities[g.CityID]; !ok {
		return common.ErrCityNotFound
	}
	for _, id := range []*int64{g.TeacherID, g.CuratorID} {
		if id == nil {
			continue
		}
		if _, ok := s.st.users[*id]; !ok {
			return fmt.Errorf("%w (%d)", common.ErrUserNotFound, *id)
		}
	}
	g.ID = s.st.next("groups")
	g.CreatedAt = s.now()
	s.st.groups[g.ID] = *g
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (*members.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.st.groups[id]
	if !ok {
		return nil, common.ErrGroupNotFound
	}
	return &g, nil
}

func (s *Store) CreateParent(ctx context.Context, p *members.Parent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = s.st.next("parents")
	p.CreatedAt = s.now()
	s.st.parents[p.ID] = *p
	return nil
}

func (s *Store) GetParent(ctx context.Context, id int64) (*members.Parent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.st.parents[id]
	if !ok {
		return nil, fmt.Errorf("%w (родитель %d)", common.ErrUserNotFound, id)
	}
	return &p, nil
}

// --- Коды привязки ---

func (s *Store) SaveLinkCode(ctx context.Context, c *members.LinkCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.users[c.UserID]; !ok {
		return common.ErrUserNotFound
	}
	s.st.linkCodes[c.UserID] = *c
	return nil
}

func (s *Store) GetLinkCode(ctx context.Context, userID int64) (*members.LinkCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.st.linkCodes[userID]
	if !ok {
		return nil, common.ErrLinkCodeInvalid
	}
	return &c, nil
}

func (s *Store) DeleteLinkCode(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.st.linkCodes, userID)
	return nil
}

func (s *Store) LogLinkAttempt(ctx context.Context, telegramID int64, success bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.linkAttempts = append(s.st.linkAttempts, linkAttempt{telegramID: telegramID, success: success, at: at})
	return nil
}

func (s *Store) CountFailedLinkAttempts(ctx context.Context, telegramID int64, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, a := range s.st.linkAttempts {
		if a.telegramID == telegramID && !a.success && !a.at.Before(since) {
			count++
		}
	}
	return count, nil
}
