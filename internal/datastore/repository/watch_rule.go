package repository

import (
	"context"
	"time"

	"github.com/facilityops/watchpost/internal/datastore/entities"
)

// WatchRuleRepository persists watch rules and their alert history.
type WatchRuleRepository interface {
	// Rules
	CreateRule(ctx context.Context, rule *entities.WatchRule) error
	GetRule(ctx context.Context, id uint) (*entities.WatchRule, error)
	ListRules(ctx context.Context, filter WatchRuleFilter) ([]entities.WatchRule, error)

	// Transitions. Each only applies to rules that are still active.
	EndRule(ctx context.Context, id uint, endedBy string, at time.Time) error
	MarkExpired(ctx context.Context, ids []uint) (int64, error)
	RecordDetection(ctx context.Context, alert *entities.WatchAlert) error

	// History
	ListHistory(ctx context.Context, filter WatchAlertFilter) ([]entities.WatchAlert, int64, error)
	DeleteHistory(ctx context.Context) (int64, error)
	DeleteHistoryBefore(ctx context.Context, before time.Time) (int64, error)
}

// WatchRuleFilter controls rule listing queries. Zero values match everything.
type WatchRuleFilter struct {
	TargetType entities.TargetType
	TargetID   string
	Status     entities.RuleStatus
}

// WatchAlertFilter controls history listing queries.
type WatchAlertFilter struct {
	RuleID uint
	Limit  int
	Offset int
}
