// Package region — единая политика видимости данных по городам.
// Каталог, ростер учеников и выдача наград проходят через Scope,
// вместо того чтобы каждый обработчик проверял город сам.
package region

import (
	"fmt"
	"sort"

	"astrocoins.ru/ledger/internal/common"
)

// Subject — тот, для кого строится область видимости.
type Subject interface {
	// Unrestricted — глобальный суперпользователь без привязки к городу.
	Unrestricted() bool
	// Roams — работает в нескольких городах (преподаватель).
	Roams() bool
	HomeCityID() *int64
	AssignedCityIDs() []int64
}

// Scope — множество городов, доступных участнику.
// Нулевое значение не разрешает ничего.
type Scope struct {
	all    bool
	home   *int64
	cities map[int64]struct{}
}

// ScopeFor строит область видимости:
//   - суперпользователь без города видит все города;
//   - преподаватель видит города из своего набора (и домашний, если задан);
//   - ученик и администратор города видят только свой город;
//   - без города не видно ничего.
func ScopeFor(s Subject) Scope {
	if s == nil {
		return Scope{}
	}
	if s.Unrestricted() {
		return Scope{all: true}
	}

	sc := Scope{cities: make(map[int64]struct{})}
	if home := s.HomeCityID(); home != nil {
		id := *home
		sc.home = &id
		sc.cities[id] = struct{}{}
	}
	if s.Roams() {
		for _, id := range s.AssignedCityIDs() {
			sc.cities[id] = struct{}{}
		}
	}
	return sc
}

// All — область из всех городов.
func All() Scope { return Scope{all: true} }

// Cities — область из перечисленных городов.
func Cities(ids ...int64) Scope {
	sc := Scope{cities: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		sc.cities[id] = struct{}{}
	}
	return sc
}

func (s Scope) All() bool { return s.all }

// Empty сообщает, что область не содержит ни одного города.
func (s Scope) Empty() bool { return !s.all && len(s.cities) == 0 }

func (s Scope) Allows(cityID int64) bool {
	if s.all {
		return true
	}
	_, ok := s.cities[cityID]
	return ok
}

// CityIDs возвращает отсортированный список городов. Для All() — nil.
func (s Scope) CityIDs() []int64 {
	if s.all {
		return nil
	}
	ids := make([]int64, 0, len(s.cities))
	for id := range s.cities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Check возвращает common.ErrCrossCityAccess, если город вне области.
func (s Scope) Check(cityID int64) error {
	if s.Allows(cityID) {
		return nil
	}
	return fmt.Errorf("%w (город %d)", common.ErrCrossCityAccess, cityID)
}

// StampCity выбирает город для новой записи каталога.
// Запрошенный город должен входить в область. Без запроса запись получает
// домашний город, а преподаватель с единственным городом — этот город.
// Глобальный суперпользователь обязан указать город явно.
func (s Scope) StampCity(requested *int64) (int64, error) {
	if requested != nil {
		if err := s.Check(*requested); err != nil {
			return 0, err
		}
		return *requested, nil
	}
	if s.home != nil {
		return *s.home, nil
	}
	if !s.all && len(s.cities) == 1 {
		return s.CityIDs()[0], nil
	}
	return 0, common.ErrCityRequired
}
