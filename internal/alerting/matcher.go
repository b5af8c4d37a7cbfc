package alerting

import (
	"strings"

	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/simulator"
)

// Matches reports whether event applies to rule under mode. Only the
// target is compared; rule status and window are enforced by the store.
func Matches(mode MatchMode, rule *entities.WatchRule, event *simulator.DetectionEvent) bool {
	if rule.TargetType != event.TargetType {
		return false
	}
	switch mode {
	case MatchByType:
		return true
	case MatchByIdentity:
		return event.TargetID != "" && strings.EqualFold(strings.TrimSpace(event.TargetID), rule.TargetID)
	default:
		return false
	}
}
