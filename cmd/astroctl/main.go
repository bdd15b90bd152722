// Package main — astroctl, административная утилита AstroCoins.
//
//	astroctl migrate
//	astroctl city -name Владивосток
//	astroctl user -username ivanov -name "Иван Иванов" -role student -city 1
//	astroctl seed -city 1
//	astroctl link-code -username ivanov
//	astroctl reconcile
//
// Конфигурация читается из тех же переменных окружения (и .env), что и у сервиса.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	log "github.com/sirupsen/logrus"

	"astrocoins.ru/ledger/internal/app"
	"astrocoins.ru/ledger/internal/common"
	"astrocoins.ru/ledger/internal/config"
	"astrocoins.ru/ledger/internal/features/members"
)

const usage = `Использование: astroctl <команда> [флаги]

Команды:
  migrate                  применить миграции
  city -name N             создать город
  user -username U ...     создать пользователя
  seed -city ID            заполнить причины начисления и категории города
  link-code -username U    выдать код привязки Telegram
  reconcile                сверить балансы с журналом операций`

// system — учётная запись для административных команд.
var system = &members.User{Username: "astroctl", IsSuperuser: true, IsActive: true}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	ctx := context.Background()
	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "Ошибка:", common.UserMessage(err))
		log.WithError(err).Debug("astroctl failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)

	switch cmd {
	case "migrate":
		if cfg.StoreDriver != config.StorePostgres {
			return fmt.Errorf("миграции нужны только для STORE_DRIVER=postgres")
		}
		a, err := app.NewCore(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Println("Миграции применены")
		return nil

	case "city":
		name := fs.String("name", "", "название города")
		fs.Parse(args)
		a, err := app.NewCore(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		c, err := a.Members.CreateCity(ctx, *name)
		if err != nil {
			return err
		}
		fmt.Printf("Город #%d %s создан\n", c.ID, c.Name)
		return nil

	case "user":
		username := fs.String("username", "", "логин")
		fullName := fs.String("name", "", "ФИО")
		role := fs.String("role", "student", "роль: student, teacher, city_admin")
		city := fs.Int64("city", 0, "домашний город")
		cities := fs.String("cities", "", "города преподавателя через запятую")
		group := fs.Int64("group", 0, "группа ученика")
		superuser := fs.Bool("superuser", false, "суперпользователь")
		fs.Parse(args)

		r, err := members.ParseRole(*role)
		if err != nil {
			return err
		}
		u := &members.User{
			Username:    *username,
			FullName:    *fullName,
			Role:        r,
			IsSuperuser: *superuser,
			CityID:      optionalID(*city),
			GroupID:     optionalID(*group),
			IsActive:    true,
		}
		if u.CityIDs, err = parseIDs(*cities); err != nil {
			return err
		}

		a, err := app.NewCore(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Members.CreateUser(ctx, u); err != nil {
			return err
		}
		fmt.Printf("Пользователь #%d @%s (%s) создан\n", u.ID, u.Username, u.Role.Title())
		return nil

	case "seed":
		city := fs.Int64("city", 0, "город для стандартных категорий (0 — только причины)")
		fs.Parse(args)
		a, err := app.NewCore(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		reasons, err := a.Awards.SeedDefaultReasons(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Причин начисления добавлено: %d\n", reasons)
		if *city > 0 {
			n, err := a.Shop.SeedCategories(ctx, system, *city)
			if err != nil {
				return err
			}
			fmt.Printf("Категорий добавлено: %d\n", n)
		}
		return nil

	case "link-code":
		username := fs.String("username", "", "логин пользователя")
		fs.Parse(args)
		a, err := app.NewCore(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		code, expires, err := a.Members.IssueLinkCode(ctx, *username)
		if err != nil {
			return err
		}
		fmt.Printf("Код привязки: %s\nДействует до: %s\nВ боте: /link %s %s\n",
			code, common.FormatDateTime(expires, cfg.Location()), members.NormalizeUsername(*username), code)
		return nil

	case "reconcile":
		a, err := app.NewCore(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		drifts, err := a.Ledger.Reconcile(ctx)
		if err != nil {
			return err
		}
		for _, d := range drifts {
			fmt.Printf("user #%d: баланс %d, по журналу %d\n", d.UserID, d.Stored, d.Replayed)
		}
		if len(drifts) > 0 {
			return fmt.Errorf("расхождений: %d", len(drifts))
		}
		fmt.Println("Балансы сходятся с журналом")
		return nil
	}

	fmt.Fprintln(os.Stderr, usage)
	return fmt.Errorf("неизвестная команда %q", cmd)
}

func optionalID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func parseIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("некорректный ID города %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
