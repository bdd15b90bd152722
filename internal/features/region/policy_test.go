package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astrocoins.ru/ledger/internal/common"
)

type subject struct {
	unrestricted bool
	roams        bool
	home         *int64
	cities       []int64
}

func (s subject) Unrestricted() bool       { return s.unrestricted }
func (s subject) Roams() bool              { return s.roams }
func (s subject) HomeCityID() *int64       { return s.home }
func (s subject) AssignedCityIDs() []int64 { return s.cities }

func city(id int64) *int64 { return &id }

func TestScopeFor(t *testing.T) {
	tests := []struct {
		name    string
		subject Subject
		allowed []int64
		denied  []int64
		all     bool
	}{
		{name: "global superuser", subject: subject{unrestricted: true}, allowed: []int64{1, 2, 3}, all: true},
		{name: "student", subject: subject{home: city(1), cities: []int64{2}}, allowed: []int64{1}, denied: []int64{2}},
		{name: "teacher", subject: subject{roams: true, cities: []int64{2, 3}}, allowed: []int64{2, 3}, denied: []int64{1}},
		{name: "teacher with home", subject: subject{roams: true, home: city(1), cities: []int64{3}}, allowed: []int64{1, 3}, denied: []int64{2}},
		{name: "nobody", subject: subject{}, denied: []int64{1}},
		{name: "nil", subject: nil, denied: []int64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := ScopeFor(tt.subject)
			assert.Equal(t, tt.all, sc.All())
			for _, id := range tt.allowed {
				assert.True(t, sc.Allows(id), "город %d", id)
				assert.NoError(t, sc.Check(id))
			}
			for _, id := range tt.denied {
				assert.False(t, sc.Allows(id), "город %d", id)
				assert.ErrorIs(t, sc.Check(id), common.ErrCrossCityAccess)
			}
		})
	}
}

func TestScope_CityIDs(t *testing.T) {
	assert.Equal(t, []int64{1, 5, 9}, Cities(9, 1, 5).CityIDs())
	assert.Nil(t, All().CityIDs())
	assert.True(t, Scope{}.Empty())
	assert.False(t, All().Empty())
}

func TestScope_StampCity(t *testing.T) {
	t.Run("requested city inside scope", func(t *testing.T) {
		got, err := Cities(1, 2).StampCity(city(2))
		require.NoError(t, err)
		assert.Equal(t, int64(2), got)
	})
	t.Run("requested city outside scope", func(t *testing.T) {
		_, err := Cities(1).StampCity(city(2))
		require.ErrorIs(t, err, common.ErrCrossCityAccess)
	})
	t.Run("home city by default", func(t *testing.T) {
		sc := ScopeFor(subject{roams: true, home: city(4), cities: []int64{5, 6}})
		got, err := sc.StampCity(nil)
		require.NoError(t, err)
		assert.Equal(t, int64(4), got)
	})
	t.Run("single assigned city", func(t *testing.T) {
		got, err := ScopeFor(subject{roams: true, cities: []int64{7}}).StampCity(nil)
		require.NoError(t, err)
		assert.Equal(t, int64(7), got)
	})
	t.Run("several cities need explicit choice", func(t *testing.T) {
		_, err := ScopeFor(subject{roams: true, cities: []int64{7, 8}}).StampCity(nil)
		require.ErrorIs(t, err, common.ErrCityRequired)
	})
	t.Run("global superuser must choose", func(t *testing.T) {
		_, err := All().StampCity(nil)
		require.ErrorIs(t, err, common.ErrCityRequired)

		got, err := All().StampCity(city(3))
		require.NoError(t, err)
		assert.Equal(t, int64(3), got)
	})
}
