package awards_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/features/ledger"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/testutil"
)

const (
	lessonReason    = "Выполняй задания учителя на уроке + соблюдай дисциплину"
	intensiveReason = "Участвуй в интенсиве"
)

type school struct {
	env     *testutil.Env
	city    int64
	teacher *members.User
	student *members.User
}

func newSchool(t *testing.T) *school {
	t.Helper()
	env := testutil.NewEnv(t)
	city := env.City(t, "Владивосток")
	teacher := env.User(t, "teacher", members.RoleTeacher, 0, func(u *members.User) { u.CityIDs = []int64{city} })

	group := &members.Group{Name: "Python-1", CityID: city, TeacherID: &teacher.ID}
	require.NoError(t, env.Members.CreateGroup(context.Background(), group))

	student := env.User(t, "student", members.RoleStudent, city, func(u *members.User) { u.GroupID = &group.ID })
	return &school{env: env, city: city, teacher: teacher, student: student}
}

func TestGrant_CreditsStudent(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()
	reason := s.env.Reason(t, lessonReason)

	res, err := s.env.Awards.Grant(ctx, s.teacher, s.student.ID, reason.ID, "  молодец  ")
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.NewBalance)
	assert.Equal(t, "Начислено 10 AC", res.Message)

	txs, err := s.env.Ledger.History(ctx, s.student.ID, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.TypeEarn, txs[0].Type)
	assert.Equal(t, ledger.LegCredit, txs[0].Leg)
	assert.Equal(t, lessonReason+"\nмолодец", txs[0].Description)

	history, err := s.env.Awards.History(ctx, s.student.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "молодец", history[0].Comment)
	s.env.RequireReconciled(t)
}

func TestGrant_Cooldown(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()
	reason := s.env.Reason(t, lessonReason)

	_, err := s.env.Awards.Grant(ctx, s.teacher, s.student.ID, reason.ID, "")
	require.NoError(t, err)

	_, err = s.env.Awards.Grant(ctx, s.teacher, s.student.ID, reason.ID, "")
	require.ErrorIs(t, err, common.ErrCooldownActive)
	assert.Equal(t, "Эту награду можно выдать только раз в 1 день", common.UserMessage(err))

	s.env.Clock.Advance(24*time.Hour + time.Minute)
	_, err = s.env.Awards.Grant(ctx, s.teacher, s.student.ID, reason.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(20), s.env.Balance(t, s.student.ID))
}

func TestGrant_DailyLimitResetsAtMidnight(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()
	s.env.Cfg.AwardDailyLimit = 2
	reason := s.env.Reason(t, intensiveReason)

	for i := 0; i < 2; i++ {
		_, err := s.env.Awards.Grant(ctx, s.teacher, s.student.ID, reason.ID, "")
		require.NoError(t, err)
	}
	_, err := s.env.Awards.Grant(ctx, s.teacher, s.student.ID, reason.ID, "")
	require.ErrorIs(t, err, common.ErrDailyLimitExceeded)

	// 10:00 + 14ч = 00:00 следующего дня
	s.env.Clock.Advance(14 * time.Hour)
	_, err = s.env.Awards.Grant(ctx, s.teacher, s.student.ID, reason.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(300), s.env.Balance(t, s.student.ID))
}

func TestGrant_Authorization(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()
	reason := s.env.Reason(t, intensiveReason)
	other := s.env.City(t, "Хабаровск")

	stranger := s.env.User(t, "stranger", members.RoleTeacher, 0, func(u *members.User) { u.CityIDs = []int64{s.city} })
	remote := s.env.User(t, "remote", members.RoleTeacher, 0, func(u *members.User) { u.CityIDs = []int64{other} })
	remoteAdmin := s.env.User(t, "remote_admin", members.RoleCityAdmin, other)
	localAdmin := s.env.User(t, "local_admin", members.RoleCityAdmin, s.city)
	root := s.env.Superuser(t, "root")
	peer := s.env.Student(t, "peer", s.city)

	tests := []struct {
		name    string
		actor   *members.User
		wantErr error
	}{
		{name: "student cannot award", actor: peer, wantErr: common.ErrForbidden},
		{name: "teacher of another group", actor: stranger, wantErr: common.ErrNotYourStudent},
		{name: "teacher from another city", actor: remote, wantErr: common.ErrCrossCityAccess},
		{name: "admin of another city", actor: remoteAdmin, wantErr: common.ErrCrossCityAccess},
		{name: "admin of student city", actor: localAdmin},
		{name: "global superuser", actor: root},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.env.Awards.Grant(ctx, tt.actor, s.student.ID, reason.ID, "")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGrant_UnknownReasonAndStudent(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()
	reason := s.env.Reason(t, lessonReason)

	_, err := s.env.Awards.Grant(ctx, s.teacher, s.student.ID, 999, "")
	require.ErrorIs(t, err, common.ErrReasonNotFound)

	_, err = s.env.Awards.Grant(ctx, s.teacher, 999, reason.ID, "")
	require.ErrorIs(t, err, common.ErrUserNotFound)

	_, err = s.env.Awards.Grant(ctx, s.teacher, s.teacher.ID, reason.ID, "")
	require.ErrorIs(t, err, common.ErrUserNotFound)

	_, err = s.env.Awards.Grant(ctx, s.teacher, 0, reason.ID, "")
	require.ErrorIs(t, err, common.ErrInvalidID)
}

func TestRevoke_ReversesAward(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()
	reason := s.env.Reason(t, lessonReason)

	granted, err := s.env.Awards.Grant(ctx, s.teacher, s.student.ID, reason.ID, "за урок")
	require.NoError(t, err)

	res, err := s.env.Awards.Revoke(ctx, s.teacher, granted.AwardID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.NewBalance)

	txs, err := s.env.Ledger.History(ctx, s.student.ID, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, ledger.TypeEarn, txs[0].Type)
	assert.Equal(t, int64(-10), txs[0].Amount)
	assert.True(t, strings.HasPrefix(txs[0].Description, "Отмена: "+lessonReason))

	_, err = s.env.Awards.Revoke(ctx, s.teacher, granted.AwardID)
	require.ErrorIs(t, err, common.ErrAwardNotFound)

	// Отменённое начисление не держит кулдаун
	_, err = s.env.Awards.Grant(ctx, s.teacher, s.student.ID, reason.ID, "")
	require.NoError(t, err)
	s.env.RequireReconciled(t)
}

func TestRevoke_RejectedWhenCoinsSpent(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()
	reason := s.env.Reason(t, intensiveReason)
	s.env.Student(t, "friend", s.city)

	granted, err := s.env.Awards.Grant(ctx, s.teacher, s.student.ID, reason.ID, "")
	require.NoError(t, err)
	_, err = s.env.Ledger.Transfer(ctx, s.student, "friend", 20)
	require.NoError(t, err)

	_, err = s.env.Awards.Revoke(ctx, s.teacher, granted.AwardID)
	require.ErrorIs(t, err, common.ErrInsufficientFunds)
	assert.Equal(t, int64(79), s.env.Balance(t, s.student.ID))

	award, err := s.env.Store.GetAward(ctx, granted.AwardID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), award.Amount)
	s.env.RequireReconciled(t)
}

func TestRevoke_OnlyIssuerOrSuperuser(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()
	reason := s.env.Reason(t, intensiveReason)
	other := s.env.User(t, "other", members.RoleTeacher, 0, func(u *members.User) { u.CityIDs = []int64{s.city} })
	root := s.env.Superuser(t, "root")

	granted, err := s.env.Awards.Grant(ctx, s.teacher, s.student.ID, reason.ID, "")
	require.NoError(t, err)

	_, err = s.env.Awards.Revoke(ctx, other, granted.AwardID)
	require.ErrorIs(t, err, common.ErrForbidden)

	_, err = s.env.Awards.Revoke(ctx, root, granted.AwardID)
	require.NoError(t, err)
}

func TestGrant_NotifiesStudentAndParent(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()
	reason := s.env.Reason(t, lessonReason)

	parentChat, studentChat := int64(7001), int64(7002)
	parent := &members.Parent{FullName: "Мама", TelegramID: &parentChat}
	require.NoError(t, s.env.Members.CreateParent(ctx, parent))
	kid := s.env.User(t, "kid", members.RoleStudent, s.city, func(u *members.User) {
		u.ParentID = &parent.ID
		u.TelegramID = &studentChat
	})

	sent := map[int64]string{}
	s.env.Awards.SetSender(func(chatID int64, text string) { sent[chatID] = text })

	root := s.env.Superuser(t, "root")
	_, err := s.env.Awards.Grant(ctx, root, kid.ID, reason.ID, "")
	require.NoError(t, err)

	require.Len(t, sent, 2)
	assert.Contains(t, sent[studentChat], "Вам начислено 10 AC")
	assert.Contains(t, sent[parentChat], "получает 10 AC")
}

func TestSeedDefaultReasons_Idempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	created, err := env.Awards.SeedDefaultReasons(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)

	reasons, err := env.Awards.ListReasons(ctx)
	require.NoError(t, err)
	require.Len(t, reasons, 12)
	assert.False(t, reasons[0].IsSpecial)
	assert.True(t, reasons[len(reasons)-1].IsSpecial)
}
