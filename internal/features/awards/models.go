// Package awards — начисление AstroCoins преподавателями по причинам
// из справочника и отмена начислений.
package awards

import "time"

// Reason — причина начисления из справочника.
type Reason struct {
	ID           int64
	Name         string
	Coins        int64
	CooldownDays int // 0 — без ограничения
	IsSpecial    bool
}

// Award — начисление ученику.
type Award struct {
	ID        int64
	StudentID int64
	TeacherID int64
	ReasonID  int64
	Amount    int64
	Comment   string
	CreatedAt time.Time
}

// GrantResult — результат начисления.
type GrantResult struct {
	AwardID    int64
	NewBalance int64
	Message    string
}

// RevokeResult — результат отмены начисления.
type RevokeResult struct {
	NewBalance int64
}
