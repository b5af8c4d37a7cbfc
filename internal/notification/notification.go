// Package notification delivers operator alerts: it keeps a short history
// for the dashboard, streams new entries to subscribers and forwards them to
// external providers.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Severity ranks how urgently an operator should react.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}

// Label returns the operator-facing name.
func (s Severity) Label() string {
	switch s {
	case SeverityInfo:
		return "提示"
	case SeverityWarning:
		return "警告"
	case SeverityCritical:
		return "严重"
	default:
		return string(s)
	}
}

// Notification is a single operator-facing alert.
type Notification struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Icon      string    `json:"icon,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RuleID    uint      `json:"rule_id,omitempty"`
}

// NewNotification creates a notification stamped with a fresh ID and the
// current time.
func NewNotification(severity Severity, title, body string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Severity:  severity,
		Title:     title,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
}

// Sink accepts notifications from the correlation engine.
type Sink interface {
	Deliver(ctx context.Context, n *Notification) error
}

// Provider forwards notifications to an external channel.
type Provider interface {
	Name() string
	Enabled() bool
	ValidateConfig() error
	Send(ctx context.Context, n *Notification) error
}
