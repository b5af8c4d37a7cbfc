package entities

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWatchRuleJSONKeys verifies WatchRule serializes with the snake_case keys
// the dashboard binds to.
func TestWatchRuleJSONKeys(t *testing.T) {
	t.Parallel()

	seen := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	rule := WatchRule{
		ID:                3,
		TargetType:        TargetPerson,
		TargetID:          "E1001",
		TargetName:        "张伟",
		RuleText:          "禁止进入危化品仓库",
		Reason:            "安全违规",
		WindowStart:       seen.Add(-time.Hour),
		WindowEnd:         seen.Add(time.Hour),
		Status:            StatusActive,
		AlertCount:        2,
		LastAlertAt:       &seen,
		LastKnownLocation: "配电房",
		LastSeenAt:        &seen,
	}

	data, err := json.Marshal(rule)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))

	for _, key := range []string{
		"id", "target_type", "target_id", "target_name", "target_info", "rule_text",
		"reason", "window_start", "window_end", "status", "created_by", "alert_count",
		"last_alert_at", "last_known_location", "last_seen_at", "created_at", "updated_at",
	} {
		assert.Contains(t, m, key, "JSON should contain snake_case key %q", key)
	}
	assert.Equal(t, "person", m["target_type"])
	assert.Equal(t, "active", m["status"])
	assert.NotContains(t, m, "ended_at", "unset EndedAt should be omitted")
}

// TestWatchAlertJSONOmitsEmptyRule verifies the preloaded rule is only
// serialized when populated.
func TestWatchAlertJSONOmitsEmptyRule(t *testing.T) {
	t.Parallel()

	alert := WatchAlert{ID: 1, RuleID: 3, TargetType: TargetVehicle, Location: "停车场东区"}
	data, err := json.Marshal(alert)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.NotContains(t, m, "rule")

	alert.Rule = WatchRule{ID: 3, TargetID: "沪A12345"}
	data, err = json.Marshal(alert)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &m))
	ruleData, ok := m["rule"].(map[string]any)
	require.True(t, ok, "rule should be a nested object when populated")
	assert.Equal(t, "沪A12345", ruleData["target_id"])
}

func TestEnums(t *testing.T) {
	t.Parallel()

	assert.True(t, TargetPerson.Valid())
	assert.True(t, TargetVehicle.Valid())
	assert.False(t, TargetType("drone").Valid())
	assert.Equal(t, "人员", TargetPerson.Label())
	assert.Equal(t, "车辆", TargetVehicle.Label())

	assert.False(t, StatusActive.Terminal())
	assert.True(t, StatusEnded.Terminal())
	assert.True(t, StatusExpired.Terminal())
	assert.False(t, RuleStatus("paused").Valid())
	assert.Equal(t, "已过期", StatusExpired.Label())
}

func TestWatchRuleInWindowIsHalfOpen(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rule := WatchRule{WindowStart: start, WindowEnd: start.Add(time.Hour)}

	assert.True(t, rule.InWindow(start))
	assert.True(t, rule.InWindow(start.Add(59*time.Minute)))
	assert.False(t, rule.InWindow(start.Add(time.Hour)))
	assert.False(t, rule.InWindow(start.Add(-time.Second)))
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	p := Person{EmployeeID: "E1", Name: "李娜", Department: "运维部", Position: "值班工程师"}
	assert.Equal(t, "运维部 · 值班工程师", p.Describe())

	v := Vehicle{PlateNumber: "沪A1", VehicleType: "货车", Owner: " "}
	assert.Equal(t, "货车", v.Describe())
}
