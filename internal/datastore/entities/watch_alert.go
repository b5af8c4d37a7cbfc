package entities

import "time"

// WatchAlert records one detection correlated to a watch rule.
type WatchAlert struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	RuleID     uint       `gorm:"not null;index:idx_watch_alerts_rule_detected,priority:1" json:"rule_id"`
	TargetType TargetType `gorm:"size:20;not null" json:"target_type"`
	TargetID   string     `gorm:"size:100;default:''" json:"target_id,omitempty"`
	Location   string     `gorm:"size:255;not null" json:"location"`
	Source     string     `gorm:"size:50;default:''" json:"source,omitempty"`
	DetectedAt time.Time  `gorm:"not null;index:idx_watch_alerts_rule_detected,priority:2" json:"detected_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	Rule       WatchRule  `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"rule,omitzero"`
}

// TableName returns the table name for GORM.
func (WatchAlert) TableName() string {
	return "watch_alerts"
}
