package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/awards"
)

func (s *Store) GetReason(ctx context.Context, id int64) (*awards.Reason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.st.reasons[id]
	if !ok {
		return nil, fmt.Errorf("%w (id=%d)", common.ErrReasonNotFound, id)
	}
	return &rs, nil
}

func (s *Store) ListReasons(ctx context.Context) ([]*awards.Reason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*awards.Reason, 0, len(s.st.reasons))
	for _, rs := range s.st.reasons {
		rs := rs
		out = append(out, &rs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsSpecial != out[j].IsSpecial {
			return !out[i].IsSpecial
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) UpsertReason(ctx context.Context, rs *awards.Reason) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rs.Coins <= 0 || rs.CooldownDays < 0 {
		return false, fmt.Errorf("некорректная причина %q", rs.Name)
	}
	for id, existing := range s.st.reasons {
		if existing.Name == rs.Name {
			rs.ID = id
			s.st.reasons[id] = *rs
			return false, nil
		}
	}
	rs.ID = s.st.next("award_reasons")
	s.st.reasons[rs.ID] = *rs
	return true, nil
}

func (s *Store) HasAwardSince(ctx context.Context, q postgres.Querier, studentID, reasonID int64, since time.Time) (bool, error) {
	for _, a := range s.st.awards {
		if a.StudentID == studentID && a.ReasonID == reasonID && !a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CountTeacherAwardsSince(ctx context.Context, q postgres.Querier, teacherID, studentID int64, since time.Time) (int, error) {
	count := 0
	for _, a := range s.st.awards {
		if a.TeacherID == teacherID && a.StudentID == studentID && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *Store) InsertAward(ctx context.Context, q postgres.Querier, a *awards.Award) error {
	if _, ok := s.st.reasons[a.ReasonID]; !ok {
		return common.ErrReasonNotFound
	}
	if _, ok := s.st.users[a.StudentID]; !ok {
		return common.ErrUserNotFound
	}
	if _, ok := s.st.users[a.TeacherID]; !ok {
		return common.ErrUserNotFound
	}
	a.ID = s.st.next("coin_awards")
	s.st.awards[a.ID] = *a
	return nil
}

func (s *Store) GetAward(ctx context.Context, id int64) (*awards.Award, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.st.awards[id]
	if !ok {
		return nil, fmt.Errorf("%w (id=%d)", common.ErrAwardNotFound, id)
	}
	return &a, nil
}

func (s *Store) LockAward(ctx context.Context, q postgres.Querier, id int64) (*awards.Award, error) {
	a, ok := s.st.awards[id]
	if !ok {
		return nil, fmt.Errorf("%w (id=%d)", common.ErrAwardNotFound, id)
	}
	return &a, nil
}

func (s *Store) DeleteAward(ctx context.Context, q postgres.Querier, id int64) error {
	if _, ok := s.st.awards[id]; !ok {
		return common.ErrAwardNotFound
	}
	delete(s.st.awards, id)
	return nil
}

func (s *Store) ListAwards(ctx context.Context, studentID int64, limit int) ([]*awards.Award, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*awards.Award
	for _, a := range s.st.awards {
		if a.StudentID == studentID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
