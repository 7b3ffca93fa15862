// Package jsonx makes LLM-produced JSON usable even when it isn't quite
// valid JSON. It backs the orchestrator's classify stage, which parses a
// structured classification out of a model response that sometimes wraps
// it in prose or drops a field entirely.
package jsonx

import (
	"encoding/json"
	"fmt"
	"reflect"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// Validate decodes jsonData into schema and rejects any zero-valued field,
// so a caller can tell a model produced a structurally valid but
// semantically incomplete response.
func Validate(jsonData string, schema interface{}) error {
	if err := json.Unmarshal([]byte(jsonData), schema); err != nil {
		return fmt.Errorf("jsonx: structural error: %w", err)
	}

	v := reflect.ValueOf(schema)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanInterface() {
			continue
		}
		if field.IsZero() {
			return fmt.Errorf("jsonx: schema violation: required field %q is missing or zero", v.Type().Field(i).Name)
		}
	}
	return nil
}

// Repair attempts to fix common LLM JSON mistakes: missing key quotes,
// single quotes, trailing commas, unclosed brackets, markdown code fences.
func Repair(malformed string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformed)
	if err != nil {
		return "", fmt.Errorf("jsonx: repair failed: %w", err)
	}
	return repaired, nil
}

// ParseHJSON parses lenient Hjson (comments, unquoted keys, optional
// commas) and returns the equivalent standard JSON string.
func ParseHJSON(input string) (string, error) {
	var result interface{}
	if err := hjson.Unmarshal([]byte(input), &result); err != nil {
		return "", fmt.Errorf("jsonx: hjson parse error: %w", err)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("jsonx: re-marshal error: %w", err)
	}
	return string(out), nil
}

// SmartParse tries, in order: plain JSON, repaired JSON, then Hjson. It
// returns the first representation that successfully unmarshals into
// schema.
func SmartParse(input string, schema interface{}) (string, error) {
	if err := json.Unmarshal([]byte(input), schema); err == nil {
		return input, nil
	}

	if repaired, err := Repair(input); err == nil {
		if json.Unmarshal([]byte(repaired), schema) == nil {
			return repaired, nil
		}
	}

	if asJSON, err := ParseHJSON(input); err == nil {
		if json.Unmarshal([]byte(asJSON), schema) == nil {
			return asJSON, nil
		}
	}

	return "", fmt.Errorf("jsonx: all parsing strategies failed for input of length %d", len(input))
}
