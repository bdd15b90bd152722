// Package awards — service.go: начисление и отмена начислений.
// Запись начисления и проводка в журнале всегда выполняются в одной транзакции,
// поэтому начисления без записи журнала (и наоборот) не бывает.
package awards

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/config"
	"astrocoins.ru/ledger/internal/db/postgres"
	"astrocoins.ru/ledger/internal/features/ledger"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/region"
)

// Store — хранилище причин и начислений.
type Store interface {
	GetReason(ctx context.Context, id int64) (*Reason, error)
	ListReasons(ctx context.Context) ([]*Reason, error)
	UpsertReason(ctx context.Context, rs *Reason) (bool, error)
	HasAwardSince(ctx context.Context, q postgres.Querier, studentID, reasonID int64, since time.Time) (bool, error)
	CountTeacherAwardsSince(ctx context.Context, q postgres.Querier, teacherID, studentID int64, since time.Time) (int, error)
	InsertAward(ctx context.Context, q postgres.Querier, a *Award) error
	GetAward(ctx context.Context, id int64) (*Award, error)
	LockAward(ctx context.Context, q postgres.Querier, id int64) (*Award, error)
	DeleteAward(ctx context.Context, q postgres.Querier, id int64) error
	ListAwards(ctx context.Context, studentID int64, limit int) ([]*Award, error)
}

// Ledger — проводки по балансу (реализуется ledger.Service).
type Ledger interface {
	Lock(ctx context.Context, q postgres.Querier, userIDs ...int64) (map[int64]int64, error)
	Apply(ctx context.Context, q postgres.Querier, userID, delta int64, t *ledger.Transaction) (int64, error)
}

// Members — чтение учеников, групп и родителей.
type Members interface {
	GetUser(ctx context.Context, id int64) (*members.User, error)
	GetGroup(ctx context.Context, id int64) (*members.Group, error)
	GetParent(ctx context.Context, id int64) (*members.Parent, error)
}

// Service управляет начислениями.
type Service struct {
	store   Store
	tx      ledger.TxRunner
	ledger  Ledger
	members Members
	cfg     *config.Config
	now     func() time.Time
	send    common.SendFunc
}

func NewService(store Store, tx ledger.TxRunner, l Ledger, m Members, cfg *config.Config) *Service {
	return &Service{store: store, tx: tx, ledger: l, members: m, cfg: cfg, now: time.Now}
}

// SetClock подменяет источник времени (для тестов).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetSender подключает отправку уведомлений ученику и родителю.
func (s *Service) SetSender(send common.SendFunc) { s.send = send }

func (s *Service) ListReasons(ctx context.Context) ([]*Reason, error) {
	return s.store.ListReasons(ctx)
}

// History возвращает последние начисления ученика.
func (s *Service) History(ctx context.Context, studentID int64, limit int) ([]*Award, error) {
	if limit <= 0 {
		limit = s.cfg.LedgerHistoryLimit
	}
	return s.store.ListAwards(ctx, studentID, limit)
}

// SeedDefaultReasons заполняет справочник стандартными причинами.
// Повторный запуск обновляет суммы и кулдауны, дублей не создаёт.
func (s *Service) SeedDefaultReasons(ctx context.Context) (int, error) {
	created := 0
	for _, r := range DefaultReasons {
		rs := r
		inserted, err := s.store.UpsertReason(ctx, &rs)
		if err != nil {
			return created, err
		}
		if inserted {
			created++
		}
	}
	log.WithField("created", created).Info("Справочник причин начисления обновлён")
	return created, nil
}

// Grant начисляет ученику AstroCoins по причине из справочника.
//
// Под блокировкой баланса ученика проверяются кулдаун причины и дневной лимит
// начислений от одного преподавателя, затем в одной транзакции создаются
// начисление, проводка EARN и новый баланс.
func (s *Service) Grant(ctx context.Context, actor *members.User, studentID, reasonID int64, comment string) (*GrantResult, error) {
	if studentID <= 0 || reasonID <= 0 {
		return nil, common.ErrInvalidID
	}
	if !actor.CanAward() {
		return nil, common.ErrForbidden
	}
	if err := members.RequireActive(actor); err != nil {
		return nil, err
	}

	student, err := s.members.GetUser(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.Role != members.RoleStudent || !student.IsActive {
		return nil, fmt.Errorf("%w: %s не является учеником", common.ErrUserNotFound, student.Username)
	}
	if err := s.authorize(ctx, actor, student); err != nil {
		return nil, err
	}

	reason, err := s.store.GetReason(ctx, reasonID)
	if err != nil {
		return nil, err
	}

	comment = strings.TrimSpace(comment)
	now := s.now()
	award := &Award{
		StudentID: student.ID,
		TeacherID: actor.ID,
		ReasonID:  reason.ID,
		Amount:    reason.Coins,
		Comment:   comment,
		CreatedAt: now,
	}

	var newBalance int64
	err = s.tx.InTx(ctx, func(q postgres.Querier) error {
		// Блокировка баланса сериализует параллельные начисления одному ученику
		if _, err := s.ledger.Lock(ctx, q, student.ID); err != nil {
			return err
		}

		if reason.CooldownDays > 0 {
			since := now.AddDate(0, 0, -reason.CooldownDays)
			recent, err := s.store.HasAwardSince(ctx, q, student.ID, reason.ID, since)
			if err != nil {
				return err
			}
			if recent {
				return fmt.Errorf("%w %d %s", common.ErrCooldownActive,
					reason.CooldownDays, common.PluralizeDays(reason.CooldownDays))
			}
		}

		today := common.StartOfDay(now, s.cfg.Location())
		count, err := s.store.CountTeacherAwardsSince(ctx, q, actor.ID, student.ID, today)
		if err != nil {
			return err
		}
		if count >= s.cfg.AwardDailyLimit {
			return fmt.Errorf("%w: не больше %d начислений одному ученику в день",
				common.ErrDailyLimitExceeded, s.cfg.AwardDailyLimit)
		}

		if err := s.store.InsertAward(ctx, q, award); err != nil {
			return err
		}

		teacherID, studentID := actor.ID, student.ID
		newBalance, err = s.ledger.Apply(ctx, q, student.ID, award.Amount, &ledger.Transaction{
			SenderID:    &teacherID,
			ReceiverID:  &studentID,
			Amount:      award.Amount,
			Type:        ledger.TypeEarn,
			Leg:         ledger.LegCredit,
			Description: describe(reason.Name, comment),
			CreatedAt:   now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"award_id":   award.ID,
		"teacher_id": actor.ID,
		"student_id": student.ID,
		"reason_id":  reason.ID,
		"amount":     award.Amount,
	}).Info("Начисление выполнено")

	s.notifyGranted(ctx, student, reason, award.Amount, newBalance)

	return &GrantResult{
		AwardID:    award.ID,
		NewBalance: newBalance,
		Message:    fmt.Sprintf("Начислено %s", common.FormatCoins(award.Amount)),
	}, nil
}

// Revoke отменяет начисление: удаляет его, списывает сумму с баланса ученика
// и пишет компенсирующую запись EARN с отрицательной суммой.
// Если ученик уже потратил начисленное, отмена отклоняется.
func (s *Service) Revoke(ctx context.Context, actor *members.User, awardID int64) (*RevokeResult, error) {
	if awardID <= 0 {
		return nil, common.ErrInvalidID
	}
	award, err := s.store.GetAward(ctx, awardID)
	if err != nil {
		return nil, err
	}
	if !actor.IsSuperuser && award.TeacherID != actor.ID {
		return nil, fmt.Errorf("%w: отменить начисление может только выдавший его преподаватель", common.ErrForbidden)
	}
	reason, err := s.store.GetReason(ctx, award.ReasonID)
	if err != nil {
		return nil, err
	}

	var newBalance int64
	err = s.tx.InTx(ctx, func(q postgres.Querier) error {
		locked, err := s.store.LockAward(ctx, q, awardID)
		if err != nil {
			return err
		}
		balances, err := s.ledger.Lock(ctx, q, locked.StudentID)
		if err != nil {
			return err
		}
		if have := balances[locked.StudentID]; have < locked.Amount {
			return ledger.Insufficient(locked.Amount, have)
		}

		if err := s.store.DeleteAward(ctx, q, locked.ID); err != nil {
			return err
		}

		teacherID, studentID := locked.TeacherID, locked.StudentID
		newBalance, err = s.ledger.Apply(ctx, q, studentID, -locked.Amount, &ledger.Transaction{
			SenderID:    &teacherID,
			ReceiverID:  &studentID,
			Amount:      -locked.Amount,
			Type:        ledger.TypeEarn,
			Leg:         ledger.LegCredit,
			Description: describe("Отмена: "+reason.Name, locked.Comment),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"award_id":   awardID,
		"actor_id":   actor.ID,
		"student_id": award.StudentID,
		"amount":     award.Amount,
	}).Info("Начисление отменено")

	return &RevokeResult{NewBalance: newBalance}, nil
}

// authorize: ученик должен быть в городах участника, а преподаватель
// (не суперпользователь) должен вести группу ученика, если она есть.
func (s *Service) authorize(ctx context.Context, actor, student *members.User) error {
	var group *members.Group
	if student.GroupID != nil {
		g, err := s.members.GetGroup(ctx, *student.GroupID)
		if err != nil {
			return err
		}
		group = g
	}

	scope := region.ScopeFor(actor)
	switch {
	case student.CityID != nil:
		if err := scope.Check(*student.CityID); err != nil {
			return err
		}
	case group != nil:
		if err := scope.Check(group.CityID); err != nil {
			return err
		}
	case !scope.All():
		return common.ErrCrossCityAccess
	}

	if actor.Role == members.RoleTeacher && !actor.IsSuperuser && group != nil && !group.Leads(actor.ID) {
		return common.ErrNotYourStudent
	}
	return nil
}

func (s *Service) notifyGranted(ctx context.Context, student *members.User, reason *Reason, amount, balance int64) {
	if s.send == nil {
		return
	}
	if student.TelegramID != nil {
		s.send(*student.TelegramID, fmt.Sprintf("🎉 Вам начислено %s\nПричина: %s\nБаланс: %s",
			common.FormatCoins(amount), reason.Name, common.FormatCoins(balance)))
	}
	if student.ParentID == nil {
		return
	}
	parent, err := s.members.GetParent(ctx, *student.ParentID)
	if err != nil {
		log.WithError(err).WithField("parent_id", *student.ParentID).Warn("Не удалось загрузить родителя")
		return
	}
	if parent.TelegramID != nil {
		s.send(*parent.TelegramID, fmt.Sprintf("🎉 %s получает %s: %s",
			student.DisplayName(), common.FormatCoins(amount), reason.Name))
	}
}

func describe(title, comment string) string {
	if comment == "" {
		return title
	}
	return title + "\n" + comment
}
