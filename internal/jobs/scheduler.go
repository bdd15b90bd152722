// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ночная сверка балансов с журналом
// и утренняя сводка невыданных заказов для администраторов городов.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/config"
	"astrocoins.ru/ledger/internal/features/ledger"
	"astrocoins.ru/ledger/internal/features/members"
	"astrocoins.ru/ledger/internal/features/shop"
)

type Reconciler interface {
	Reconcile(ctx context.Context) ([]ledger.Drift, error)
}

type Deliveries interface {
	PendingByCity(ctx context.Context, minAge time.Duration) (map[int64][]*shop.Order, error)
}

type Admins interface {
	ListCityAdmins(ctx context.Context, cityID int64) ([]*members.User, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron       *cron.Cron
	cfg        *config.Config
	reconciler Reconciler
	deliveries Deliveries
	admins     Admins
	sendFunc   common.SendFunc
}

// NewScheduler создаёт планировщик в часовом поясе APP_TIMEZONE.
// sendFunc может быть nil — тогда сводки заказов не рассылаются.
func NewScheduler(cfg *config.Config, reconciler Reconciler, deliveries Deliveries, admins Admins, sendFunc common.SendFunc) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(cfg.Location())),
		cfg:        cfg,
		reconciler: reconciler,
		deliveries: deliveries,
		admins:     admins,
		sendFunc:   sendFunc,
	}
}

// Start регистрирует задачи и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.JobsReconcileSpec, func() {
		log.Info("[CRON] Сверка балансов с журналом")
		if _, err := s.RunReconcile(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка сверки")
		}
	}); err != nil {
		return fmt.Errorf("JOBS_RECONCILE_SPEC: %w", err)
	}

	if _, err := s.cron.AddFunc(s.cfg.JobsDeliverySpec, func() {
		log.Debug("[CRON] Сводка невыданных заказов")
		if _, err := s.RunDeliveryDigest(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка сводки заказов")
		}
	}); err != nil {
		return fmt.Errorf("JOBS_DELIVERY_SPEC: %w", err)
	}

	s.cron.Start()
	log.WithField("timezone", s.cfg.AppTimezone).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// RunReconcile возвращает количество расхождений.
func (s *Scheduler) RunReconcile(ctx context.Context) (int, error) {
	drifts, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		return 0, err
	}
	if len(drifts) == 0 {
		log.Info("[CRON] Балансы сходятся с журналом")
	}
	return len(drifts), nil
}

// RunDeliveryDigest рассылает администраторам каждого города список
// заказов, ждущих выдачи дольше JOBS_DELIVERY_MIN_AGE.
// Возвращает количество отправленных сообщений.
func (s *Scheduler) RunDeliveryDigest(ctx context.Context) (int, error) {
	if s.sendFunc == nil {
		return 0, nil
	}

	byCity, err := s.deliveries.PendingByCity(ctx, s.cfg.JobsDeliveryMinAge)
	if err != nil {
		return 0, err
	}

	sent := 0
	loc := s.cfg.Location()
	for cityID, orders := range byCity {
		admins, err := s.admins.ListCityAdmins(ctx, cityID)
		if err != nil {
			log.WithError(err).WithField("city_id", cityID).Warn("[CRON] Не удалось получить администраторов города")
			continue
		}
		if len(admins) == 0 {
			log.WithFields(log.Fields{
				"city_id": cityID,
				"pending": len(orders),
			}).Warn("[CRON] Некому отправить сводку заказов")
			continue
		}

		text := shop.FormatDigest(orders, loc)
		for _, admin := range admins {
			if admin.TelegramID == nil {
				continue
			}
			s.sendFunc(*admin.TelegramID, text)
			sent++
		}
	}
	return sent, nil
}
