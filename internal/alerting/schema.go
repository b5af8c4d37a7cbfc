package alerting

import (
	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/notification"
)

// Schema describes the enumerations the dashboard needs to build watch
// forms and render rule lists.
type Schema struct {
	TargetTypes []OptionSchema `json:"targetTypes"`
	Statuses    []OptionSchema `json:"statuses"`
	Severities  []OptionSchema `json:"severities"`
	MatchModes  []OptionSchema `json:"matchModes"`
	MatchMode   string         `json:"matchMode"`
	Reasons     []string       `json:"reasons"`
	Locations   []string       `json:"locations"`
	// Placeholders lists the variables accepted by notification templates.
	Placeholders []string `json:"placeholders"`
}

// OptionSchema is a value with its operator-facing label.
type OptionSchema struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`
}

// GetSchema returns the schema for the given match mode and locations. A
// nil locations slice uses DefaultLocations.
func GetSchema(mode MatchMode, locations []string) Schema {
	if locations == nil {
		locations = DefaultLocations()
	}

	targetTypes := make([]OptionSchema, 0, len(entities.TargetTypes))
	for _, t := range entities.TargetTypes {
		targetTypes = append(targetTypes, OptionSchema{Name: string(t), Label: t.Label(), Icon: iconFor(t)})
	}
	statuses := make([]OptionSchema, 0, len(entities.RuleStatuses))
	for _, s := range entities.RuleStatuses {
		statuses = append(statuses, OptionSchema{Name: string(s), Label: s.Label()})
	}
	severities := make([]OptionSchema, 0, 3)
	for _, s := range []notification.Severity{notification.SeverityInfo, notification.SeverityWarning, notification.SeverityCritical} {
		severities = append(severities, OptionSchema{Name: string(s), Label: s.Label()})
	}

	return Schema{
		TargetTypes: targetTypes,
		Statuses:    statuses,
		Severities:  severities,
		MatchModes: []OptionSchema{
			{Name: string(MatchByType), Label: MatchByType.Label()},
			{Name: string(MatchByIdentity), Label: MatchByIdentity.Label()},
		},
		MatchMode: string(mode),
		Reasons:   DefaultReasons(),
		Locations: locations,
		Placeholders: []string{
			PlaceholderTargetType, PlaceholderTargetID, PlaceholderTargetName,
			PlaceholderTargetInfo, PlaceholderLocation, PlaceholderTime,
			PlaceholderRuleText, PlaceholderReason, PlaceholderAlertCount,
			PlaceholderEventSource,
		},
	}
}
