package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Fixed enumerations a Selection expands to when set to ALL.
var (
	DefaultTerms    = []int{24, 36, 48, 60}
	DefaultMileages = []int{5000, 8000, 10000, 12000, 15000, 20000, 25000, 30000}
)

// Selection is either the full fixed set ("ALL") or one explicit member.
// JSON accepts the string "ALL" (any case) or a bare number.
type Selection struct {
	All   bool
	Value int
}

// SelectAll returns the ALL selection.
func SelectAll() Selection {
	return Selection{All: true}
}

// SelectValue returns a single-value selection.
func SelectValue(v int) Selection {
	return Selection{Value: v}
}

func (s Selection) MarshalJSON() ([]byte, error) {
	if s.All {
		return json.Marshal("ALL")
	}
	return json.Marshal(s.Value)
}

func (s *Selection) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		if strings.EqualFold(strings.TrimSpace(v), "ALL") {
			*s = Selection{All: true}
			return nil
		}
		return fmt.Errorf("invalid selection %q: expected \"ALL\" or a number", v)
	case float64:
		if v != float64(int(v)) {
			return fmt.Errorf("invalid selection %v: expected a whole number", v)
		}
		*s = Selection{Value: int(v)}
		return nil
	default:
		return fmt.Errorf("invalid selection of type %T", raw)
	}
}

// Configuration carries the term/mileage/maintenance/deposit parameters
// applied to every vehicle in a job. Immutable for the life of the job.
type Configuration struct {
	Term        Selection `json:"term"`
	Mileage     Selection `json:"mileage"`
	Maintenance bool      `json:"maintenance"`
	Deposit     float64   `json:"deposit"`
}

// Terms expands the term selection: the fixed enumeration for ALL, one
// element otherwise. The returned slice is always a fresh copy.
func (c Configuration) Terms() []int {
	if c.Term.All {
		out := make([]int, len(DefaultTerms))
		copy(out, DefaultTerms)
		return out
	}
	return []int{c.Term.Value}
}

// Mileages expands the mileage selection, same rules as Terms.
func (c Configuration) Mileages() []int {
	if c.Mileage.All {
		out := make([]int, len(DefaultMileages))
		copy(out, DefaultMileages)
		return out
	}
	return []int{c.Mileage.Value}
}

// RequestsPerVehicle is the matrix size contributed by each vehicle.
func (c Configuration) RequestsPerVehicle() int {
	return len(c.Terms()) * len(c.Mileages())
}

// Validate rejects single values outside the fixed enumerations and negative
// deposits. ALL selections are always valid.
func (c Configuration) Validate() error {
	if !c.Term.All && !containsInt(DefaultTerms, c.Term.Value) {
		return fmt.Errorf("term %d is not one of %v", c.Term.Value, DefaultTerms)
	}
	if !c.Mileage.All && !containsInt(DefaultMileages, c.Mileage.Value) {
		return fmt.Errorf("mileage %d is not one of %v", c.Mileage.Value, DefaultMileages)
	}
	if c.Deposit < 0 {
		return fmt.Errorf("deposit must not be negative, got %v", c.Deposit)
	}
	return nil
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
