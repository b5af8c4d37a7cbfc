package alerting

import "github.com/facilityops/watchpost/internal/conf"

// Default notification templates, used when none are configured.
const (
	DefaultTitleTemplate = "布控告警: " + PlaceholderTargetType + " " + PlaceholderTargetName
	DefaultBodyTemplate  = PlaceholderTargetName + " (" + PlaceholderTargetID + ") 于 " + PlaceholderTime +
		" 出现在 " + PlaceholderLocation + ", 布控规则: " + PlaceholderRuleText + ", 累计告警 " + PlaceholderAlertCount + " 次"
)

// DefaultReasons are the watch reasons offered by the dashboard.
func DefaultReasons() []string {
	return []string{
		"安全违规",
		"未授权进入",
		"黑名单人员",
		"异常行为",
		"访客超时",
		"车辆违停",
		"其他",
	}
}

// DefaultLocations are the monitored locations offered by the dashboard.
func DefaultLocations() []string {
	return append([]string(nil), conf.DefaultLocations...)
}
