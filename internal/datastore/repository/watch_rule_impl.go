package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facilityops/watchpost/internal/datastore/entities"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// watchRuleRepository implements WatchRuleRepository.
type watchRuleRepository struct {
	db *gorm.DB
}

// NewWatchRuleRepository creates a new WatchRuleRepository.
func NewWatchRuleRepository(db *gorm.DB) WatchRuleRepository {
	return &watchRuleRepository{db: db}
}

func (r *watchRuleRepository) filtered(ctx context.Context, filter WatchRuleFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&entities.WatchRule{})
	if filter.TargetType != "" {
		query = query.Where("target_type = ?", filter.TargetType)
	}
	if filter.TargetID != "" {
		query = query.Where("target_id = ?", filter.TargetID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return query
}

// CreateRule inserts rule and assigns its ID.
func (r *watchRuleRepository) CreateRule(ctx context.Context, rule *entities.WatchRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create watch rule: %w", err)
	}
	return nil
}

// GetRule returns a single rule. Returns ErrWatchRuleNotFound if it does not exist.
func (r *watchRuleRepository) GetRule(ctx context.Context, id uint) (*entities.WatchRule, error) {
	var rule entities.WatchRule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWatchRuleNotFound
		}
		return nil, fmt.Errorf("failed to get watch rule %d: %w", id, err)
	}
	return &rule, nil
}

// ListRules returns matching rules in creation order.
func (r *watchRuleRepository) ListRules(ctx context.Context, filter WatchRuleFilter) ([]entities.WatchRule, error) {
	var rules []entities.WatchRule
	if err := r.filtered(ctx, filter).Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list watch rules: %w", err)
	}
	return rules, nil
}

// EndRule moves an active rule to ended.
func (r *watchRuleRepository) EndRule(ctx context.Context, id uint, endedBy string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&entities.WatchRule{}).
		Where("id = ? AND status = ?", id, entities.StatusActive).
		Updates(map[string]any{
			"status":   entities.StatusEnded,
			"ended_at": at,
			"ended_by": endedBy,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to end watch rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return r.inactiveOrMissing(ctx, r.db, id)
	}
	return nil
}

// MarkExpired moves the given active rules to expired and reports how many changed.
func (r *watchRuleRepository) MarkExpired(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&entities.WatchRule{}).
		Where("id IN ? AND status = ?", ids, entities.StatusActive).
		Update("status", entities.StatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire watch rules: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RecordDetection bumps the rule counters and stores the history row in one
// transaction. The counter update only applies while the rule is active.
func (r *watchRuleRepository) RecordDetection(ctx context.Context, alert *entities.WatchAlert) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entities.WatchRule{}).
			Where("id = ? AND status = ?", alert.RuleID, entities.StatusActive).
			Updates(map[string]any{
				"alert_count":         gorm.Expr("alert_count + ?", 1),
				"last_alert_at":       alert.DetectedAt,
				"last_known_location": alert.Location,
				"last_seen_at":        alert.DetectedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update watch rule %d: %w", alert.RuleID, result.Error)
		}
		if result.RowsAffected == 0 {
			return r.inactiveOrMissing(ctx, tx, alert.RuleID)
		}
		if err := tx.Omit(clause.Associations).Create(alert).Error; err != nil {
			return fmt.Errorf("failed to save watch alert: %w", err)
		}
		return nil
	})
}

// inactiveOrMissing explains why a conditional update touched no rows.
func (r *watchRuleRepository) inactiveOrMissing(ctx context.Context, db *gorm.DB, id uint) error {
	var count int64
	if err := db.WithContext(ctx).Model(&entities.WatchRule{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up watch rule %d: %w", id, err)
	}
	if count == 0 {
		return ErrWatchRuleNotFound
	}
	return ErrWatchRuleNotActive
}

// ListHistory returns alert history, newest first, with the total count.
func (r *watchRuleRepository) ListHistory(ctx context.Context, filter WatchAlertFilter) ([]entities.WatchAlert, int64, error) {
	var items []entities.WatchAlert
	var total int64

	countQuery := r.db.WithContext(ctx).Model(&entities.WatchAlert{})
	if filter.RuleID > 0 {
		countQuery = countQuery.Where("rule_id = ?", filter.RuleID)
	}
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count watch alerts: %w", err)
	}

	query := r.db.WithContext(ctx).Preload("Rule").Order("detected_at DESC").Order("id DESC")
	if filter.RuleID > 0 {
		query = query.Where("rule_id = ?", filter.RuleID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list watch alerts: %w", err)
	}
	return items, total, nil
}

// DeleteHistory deletes all alert history entries.
func (r *watchRuleRepository) DeleteHistory(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&entities.WatchAlert{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete watch alerts: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteHistoryBefore deletes alert history detected before the given time.
func (r *watchRuleRepository) DeleteHistoryBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("detected_at < ?", before).Delete(&entities.WatchAlert{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete watch alerts before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}
