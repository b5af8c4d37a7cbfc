package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, s.Database.Driver)
	assert.True(t, s.Simulator.Enabled)
	assert.Equal(t, 10*time.Second, s.Simulator.Interval.Std())
	assert.InDelta(t, 0.3, s.Simulator.Probability, 1e-9)
	assert.Equal(t, DefaultLocations, s.Simulator.Locations)
	assert.Equal(t, MatchModeType, s.Correlation.MatchMode)
	assert.Equal(t, EncodingUTF8BOM, s.Export.Encoding)
	assert.Equal(t, 5*time.Minute, s.Catalog.CacheTTL.Std())
	assert.Equal(t, 30, s.Alerting.HistoryRetentionDays)
	assert.Equal(t, 5, s.Alerting.EscalationThreshold)
	assert.Equal(t, 10*time.Minute, s.Alerting.EscalationWindow.Std())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchpost.yaml")
	content := `
simulator:
  interval: 2s
  probability: 0.5
  locations: ["北门", "南门"]
correlation:
  match_mode: identity
export:
  timezone: Asia/Shanghai
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("WATCHPOST_LOG_LEVEL", "debug")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, s.Simulator.Interval.Std())
	assert.InDelta(t, 0.5, s.Simulator.Probability, 1e-9)
	assert.Equal(t, []string{"北门", "南门"}, s.Simulator.Locations)
	assert.Equal(t, MatchModeIdentity, s.Correlation.MatchMode)
	assert.Equal(t, "debug", s.Log.Level)

	loc, err := s.ExportLocation()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", loc.String())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:    "unknown driver",
			mutate:  func(s *Settings) { s.Database.Driver = "oracle" },
			wantErr: "database.driver",
		},
		{
			name:    "mysql without dsn",
			mutate:  func(s *Settings) { s.Database.Driver = DriverMySQL },
			wantErr: "database.dsn",
		},
		{
			name:    "probability out of range",
			mutate:  func(s *Settings) { s.Simulator.Probability = 1.5 },
			wantErr: "simulator.probability",
		},
		{
			name:    "zero interval",
			mutate:  func(s *Settings) { s.Simulator.Interval = 0 },
			wantErr: "simulator.interval",
		},
		{
			name:    "bad match mode",
			mutate:  func(s *Settings) { s.Correlation.MatchMode = "fuzzy" },
			wantErr: "correlation.match_mode",
		},
		{
			name:    "mqtt without broker",
			mutate:  func(s *Settings) { s.Feed.MQTT.Enabled = true },
			wantErr: "feed.mqtt.broker",
		},
		{
			name:    "unknown timezone",
			mutate:  func(s *Settings) { s.Export.Timezone = "Mars/Olympus" },
			wantErr: "export.timezone",
		},
		{
			name:    "zero remote timeout",
			mutate:  func(s *Settings) { s.Export.Remote.Timeout = 0 },
			wantErr: "export.remote.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_DisabledSimulatorSkipsChecks(t *testing.T) {
	s := Default()
	s.Simulator.Enabled = false
	s.Simulator.Interval = 0
	assert.NoError(t, s.Validate())
}
