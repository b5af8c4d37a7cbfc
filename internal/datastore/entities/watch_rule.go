package entities

import "time"

// TargetType identifies what kind of subject a watch directive follows.
type TargetType string

const (
	TargetPerson  TargetType = "person"
	TargetVehicle TargetType = "vehicle"
)

// TargetTypes lists every target type in display order.
var TargetTypes = []TargetType{TargetPerson, TargetVehicle}

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	switch t {
	case TargetPerson, TargetVehicle:
		return true
	default:
		return false
	}
}

// Label returns the operator-facing name.
func (t TargetType) Label() string {
	switch t {
	case TargetPerson:
		return "人员"
	case TargetVehicle:
		return "车辆"
	default:
		return string(t)
	}
}

// RuleStatus is the lifecycle state of a watch directive.
type RuleStatus string

const (
	StatusActive  RuleStatus = "active"
	StatusEnded   RuleStatus = "ended"
	StatusExpired RuleStatus = "expired"
)

// RuleStatuses lists every status in display order.
var RuleStatuses = []RuleStatus{StatusActive, StatusEnded, StatusExpired}

// Valid reports whether s is a known status.
func (s RuleStatus) Valid() bool {
	switch s {
	case StatusActive, StatusEnded, StatusExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves s.
func (s RuleStatus) Terminal() bool {
	switch s {
	case StatusEnded, StatusExpired:
		return true
	default:
		return false
	}
}

// Label returns the operator-facing name.
func (s RuleStatus) Label() string {
	switch s {
	case StatusActive:
		return "布控中"
	case StatusEnded:
		return "已结束"
	case StatusExpired:
		return "已过期"
	default:
		return string(s)
	}
}

// WatchRule is a watch directive (布控) on a single person or vehicle.
// The target name and info are a snapshot taken from the catalog when the
// rule is created; later catalog edits do not flow back into the rule.
type WatchRule struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	TargetType        TargetType `gorm:"size:20;not null;index" json:"target_type"`
	TargetID          string     `gorm:"size:100;not null;index" json:"target_id"`
	TargetName        string     `gorm:"size:255;default:''" json:"target_name"`
	TargetInfo        string     `gorm:"size:1000;default:''" json:"target_info"`
	RuleText          string     `gorm:"size:2000;default:''" json:"rule_text"`
	Reason            string     `gorm:"size:500;default:''" json:"reason"`
	WindowStart       time.Time  `gorm:"not null" json:"window_start"`
	WindowEnd         time.Time  `gorm:"not null;index" json:"window_end"`
	Status            RuleStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedBy         string     `gorm:"size:100;default:''" json:"created_by"`
	AlertCount        uint64     `gorm:"not null;default:0" json:"alert_count"`
	LastAlertAt       *time.Time `json:"last_alert_at,omitempty"`
	LastKnownLocation string     `gorm:"size:255;default:''" json:"last_known_location,omitempty"`
	LastSeenAt        *time.Time `json:"last_seen_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	EndedBy           string     `gorm:"size:100;default:''" json:"ended_by,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (WatchRule) TableName() string {
	return "watch_rules"
}

// InWindow reports whether at falls inside the half-open window [start, end).
func (r *WatchRule) InWindow(at time.Time) bool {
	return !at.Before(r.WindowStart) && at.Before(r.WindowEnd)
}
