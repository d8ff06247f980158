package output

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/marketlens/marketlens/internal/core"
)

// JSONFormatter renders status as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatBuckets renders bucket status as JSON.
func (f *JSONFormatter) FormatBuckets(statuses []core.BucketStatus) (string, error) {
	return f.marshal(statuses)
}

// FormatBreakers renders circuit breaker status as JSON.
func (f *JSONFormatter) FormatBreakers(statuses []core.BreakerStatus) (string, error) {
	return f.marshal(statuses)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// YAMLFormatter renders status as YAML.
type YAMLFormatter struct{}

// FormatBuckets renders bucket status as YAML.
func (f *YAMLFormatter) FormatBuckets(statuses []core.BucketStatus) (string, error) {
	return marshalYAML(statuses)
}

// FormatBreakers renders circuit breaker status as YAML.
func (f *YAMLFormatter) FormatBreakers(statuses []core.BreakerStatus) (string, error) {
	return marshalYAML(statuses)
}

func marshalYAML(value any) (string, error) {
	data, err := yaml.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
