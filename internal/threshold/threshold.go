// Package threshold implements the numerical hysteresis rules applied to
// SQL source rows: Normal thresholds alert on rising values and clear on
// falling ones; Inverted thresholds (clear_at > alert_at) do the opposite.
package threshold

import "fmt"

// Threshold is one numerical-hysteresis rule bound to a row field.
type Threshold struct {
	Field   string
	AlertAt float64
	ClearAt *float64 // nil means symmetric to AlertAt
}

// Inverted reports whether the rule alerts on low values and clears on
// high ones (clear_at > alert_at).
func (t Threshold) Inverted() bool {
	return t.ClearAt != nil && *t.ClearAt > t.AlertAt
}

func (t Threshold) clearBound() float64 {
	if t.ClearAt != nil {
		return *t.ClearAt
	}
	return t.AlertAt
}

// Row is one result row as a field→scalar mapping; non-numeric or missing
// fields are errors when a threshold references them.
type Row map[string]interface{}

// Evaluate scans rows in order against every threshold and returns the new
// triggered state. Results OR across thresholds: any one threshold latching
// keeps the overall alert triggered. wasTriggered carries the prior tick's
// hysteresis latch.
func Evaluate(rows []Row, thresholds []Threshold, wasTriggered bool) (bool, error) {
	for _, th := range thresholds {
		latched, err := evaluateOne(rows, th, wasTriggered)
		if err != nil {
			return false, err
		}
		if latched {
			return true, nil
		}
	}
	return false, nil
}

func evaluateOne(rows []Row, th Threshold, wasTriggered bool) (bool, error) {
	inverted := th.Inverted()
	clearBound := th.clearBound()

	for _, row := range rows {
		value, err := numericField(row, th.Field)
		if err != nil {
			return false, err
		}

		if wasTriggered {
			cleared := value <= clearBound
			if inverted {
				cleared = value >= clearBound
			}
			if cleared {
				continue // this row has cleared for this threshold; keep scanning
			}
			return true, nil
		}

		triggers := value >= th.AlertAt
		if inverted {
			triggers = value <= th.AlertAt
		}
		if triggers {
			return true, nil
		}
	}
	return false, nil
}

func numericField(row Row, field string) (float64, error) {
	v, ok := row[field]
	if !ok {
		return 0, fmt.Errorf("field %q not found in query results", field)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("field %q exists but is not a number", field)
	}
}
