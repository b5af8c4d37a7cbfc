package conf

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes as "10s" rather than
// raw nanoseconds, so simulator intervals and cache TTLs stay readable in
// YAML and in the schema endpoint.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "10s" or a bare number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := durationFrom(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts a scalar "10s" or a bare number of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar duration value, got %v", node.Kind)
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	parsed, err := durationFrom(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// durationFrom converts the loosely typed values produced by JSON, YAML and
// viper into a Duration. Bare numbers are seconds: operators write
// "interval: 10" far more often than they mean ten nanoseconds.
func durationFrom(v any) (Duration, error) {
	switch value := v.(type) {
	case nil:
		return 0, nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", value, err)
		}
		return Duration(parsed), nil
	case int:
		return Duration(time.Duration(value) * time.Second), nil
	case int64:
		return Duration(time.Duration(value) * time.Second), nil
	case float64:
		return Duration(time.Duration(value * float64(time.Second))), nil
	case time.Duration:
		return Duration(value), nil
	default:
		return 0, fmt.Errorf("invalid duration value: %v (type %T)", v, v)
	}
}

var durationType = reflect.TypeFor[Duration]()

// DurationDecodeHook lets viper decode strings and numbers into Duration
// fields while keeping its stock hooks for time.Duration and slices.
func DurationDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(func(_, to reflect.Type, data any) (any, error) {
			if to != durationType {
				return data, nil
			}
			return durationFrom(data)
		}),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
