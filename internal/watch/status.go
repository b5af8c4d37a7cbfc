package watch

import (
	"time"

	"github.com/facilityops/watchpost/internal/datastore/entities"
)

// EffectiveStatus derives the status a rule has at now. An active rule whose
// window has closed (now >= end) is expired; ended and expired rules never
// change. A status outside the known set is returned as is so callers can
// reject it with RuleStatus.Valid.
func EffectiveStatus(rule *entities.WatchRule, now time.Time) entities.RuleStatus {
	if rule.Status == entities.StatusActive && !now.Before(rule.WindowEnd) {
		return entities.StatusExpired
	}
	return rule.Status
}
