package alerting

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSchema(t *testing.T) {
	s := GetSchema(MatchByIdentity, nil)

	require.Len(t, s.TargetTypes, 2)
	assert.Equal(t, OptionSchema{Name: "person", Label: "人员", Icon: IconPerson}, s.TargetTypes[0])
	assert.Equal(t, OptionSchema{Name: "vehicle", Label: "车辆", Icon: IconVehicle}, s.TargetTypes[1])

	names := make([]string, 0, len(s.Statuses))
	for _, st := range s.Statuses {
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{"active", "ended", "expired"}, names)

	assert.Len(t, s.Severities, 3)
	assert.Len(t, s.MatchModes, 2)
	assert.Equal(t, "identity", s.MatchMode)
	assert.Equal(t, DefaultReasons(), s.Reasons)
	assert.Equal(t, DefaultLocations(), s.Locations)
	assert.Contains(t, s.Placeholders, PlaceholderAlertCount)
}

func TestGetSchema_CustomLocations(t *testing.T) {
	s := GetSchema(MatchByType, []string{"北门"})
	assert.Equal(t, []string{"北门"}, s.Locations)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"targetTypes"`)
	assert.Contains(t, string(data), `"matchMode":"type"`)
}

func TestDefaultLocationsIsACopy(t *testing.T) {
	locs := DefaultLocations()
	locs[0] = "changed"
	assert.NotEqual(t, "changed", DefaultLocations()[0])
}
