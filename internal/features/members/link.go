// Package members — link.go привязывает Telegram-аккаунт к пользователю
// по одноразовому коду. Код выдаёт администратор (astroctl link-code),
// ученик отправляет его боту командой /link.
package members

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"astrocoins.ru/ledger/internal/common"
)

// Алфавит без похожих символов (0/O, 1/I/L).
const linkCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const linkCodeLength = 8

// Параметры Argon2id для кодов привязки.
const (
	argonMemory      uint32 = 19456
	argonIterations  uint32 = 2
	argonParallelism uint8  = 1
	argonKeyLength   uint32 = 32
	argonSaltLength         = 16
)

// IssueLinkCode создаёт новый код привязки для пользователя.
// Предыдущий код перестаёт действовать. Сам код возвращается один раз,
// в БД хранится только его хеш.
func (s *Service) IssueLinkCode(ctx context.Context, username string) (string, time.Time, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return "", time.Time{}, err
	}

	code, err := generateLinkCode()
	if err != nil {
		return "", time.Time{}, err
	}
	hash, err := hashArgon2id(code)
	if err != nil {
		return "", time.Time{}, err
	}

	now := s.now()
	lc := &LinkCode{
		UserID:    user.ID,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.cfg.LinkCodeTTL),
		CreatedAt: now,
	}
	if err := s.store.SaveLinkCode(ctx, lc); err != nil {
		return "", time.Time{}, err
	}

	log.WithFields(log.Fields{
		"user_id":    user.ID,
		"expires_at": lc.ExpiresAt,
	}).Info("Выдан код привязки Telegram")
	return code, lc.ExpiresAt, nil
}

// LinkTelegram проверяет код и привязывает telegramID к пользователю.
// Не больше LINK_MAX_FAILED_PER_HOUR неудачных попыток в час с одного аккаунта.
func (s *Service) LinkTelegram(ctx context.Context, username, code string, telegramID int64) (*User, error) {
	now := s.now()

	failed, err := s.store.CountFailedLinkAttempts(ctx, telegramID, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки попыток: %w", err)
	}
	if failed >= s.cfg.LinkMaxFailedPerHour {
		return nil, common.ErrTooManyAttempts
	}

	user, err := s.checkLinkCode(ctx, username, code, now)
	if err != nil {
		if errors.Is(err, common.ErrLinkCodeInvalid) {
			if logErr := s.store.LogLinkAttempt(ctx, telegramID, false, now); logErr != nil {
				log.WithError(logErr).Warn("Не удалось записать попытку привязки")
			}
		}
		return nil, err
	}

	if err := s.store.SetTelegramID(ctx, user.ID, telegramID); err != nil {
		return nil, err
	}
	if err := s.store.DeleteLinkCode(ctx, user.ID); err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("Не удалось удалить код привязки")
	}
	if err := s.store.LogLinkAttempt(ctx, telegramID, true, now); err != nil {
		log.WithError(err).Warn("Не удалось записать попытку привязки")
	}

	user.TelegramID = &telegramID
	log.WithFields(log.Fields{
		"user_id":     user.ID,
		"telegram_id": telegramID,
	}).Info("Telegram-аккаунт привязан")
	return user, nil
}

// checkLinkCode не различает «нет пользователя» и «неверный код»,
// чтобы через бота нельзя было перебирать логины.
func (s *Service) checkLinkCode(ctx context.Context, username, code string, now time.Time) (*User, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, common.ErrLinkCodeInvalid
		}
		return nil, err
	}
	lc, err := s.store.GetLinkCode(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if now.After(lc.ExpiresAt) {
		return nil, common.ErrLinkCodeInvalid
	}
	if !verifyArgon2id(strings.ToUpper(strings.TrimSpace(code)), lc.CodeHash) {
		return nil, common.ErrLinkCodeInvalid
	}
	return user, nil
}

func generateLinkCode() (string, error) {
	b := make([]byte, linkCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ошибка генерации кода: %w", err)
	}
	for i := range b {
		b[i] = linkCodeAlphabet[int(b[i])%len(linkCodeAlphabet)]
	}
	return string(b), nil
}

// hashArgon2id возвращает хеш в формате $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>.
func hashArgon2id(secret string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	hash := argon2.IDKey([]byte(secret), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifyArgon2id проверяет секрет по хешу Argon2id.
func verifyArgon2id(secret, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var (
		memory      uint32
		iterations  uint32
		parallelism uint8
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(expected)))
	// Сравниваем в постоянном времени
	return subtle.ConstantTimeCompare(computed, expected) == 1
}
