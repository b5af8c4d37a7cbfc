// Package alerting correlates detection events with active watch rules and
// raises operator notifications for every match.
package alerting

import (
	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/datastore/entities"
)

// MatchMode decides which active rules a detection applies to.
type MatchMode string

const (
	// MatchByType applies a detection to every active rule of the same
	// target type, regardless of identity.
	MatchByType MatchMode = conf.MatchModeType
	// MatchByIdentity also requires the detection's target ID to equal the
	// rule's target ID.
	MatchByIdentity MatchMode = conf.MatchModeIdentity
)

// Valid reports whether m is a known mode.
func (m MatchMode) Valid() bool {
	switch m {
	case MatchByType, MatchByIdentity:
		return true
	default:
		return false
	}
}

// Label returns the operator-facing name.
func (m MatchMode) Label() string {
	switch m {
	case MatchByType:
		return "按类型关联"
	case MatchByIdentity:
		return "按身份关联"
	default:
		return string(m)
	}
}

// Notification icons per target type.
const (
	IconPerson  = "user"
	IconVehicle = "car"
	IconUnknown = "alert"
)

// iconFor returns the dashboard icon for a target type.
func iconFor(t entities.TargetType) string {
	switch t {
	case entities.TargetPerson:
		return IconPerson
	case entities.TargetVehicle:
		return IconVehicle
	default:
		return IconUnknown
	}
}

// Template placeholders accepted in alerting.title_template and
// alerting.body_template.
const (
	PlaceholderTargetType  = "{{target_type}}"
	PlaceholderTargetID    = "{{target_id}}"
	PlaceholderTargetName  = "{{target_name}}"
	PlaceholderTargetInfo  = "{{target_info}}"
	PlaceholderLocation    = "{{location}}"
	PlaceholderTime        = "{{time}}"
	PlaceholderRuleText    = "{{rule_text}}"
	PlaceholderReason      = "{{reason}}"
	PlaceholderAlertCount  = "{{alert_count}}"
	PlaceholderEventSource = "{{source}}"
)
