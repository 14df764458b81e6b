// Package domain contains core business types and interfaces.
//
// This file defines the access record, the persisted object that identifies
// an API caller and holds its plan limits and usage counters.
package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// AccessRecordStatus is the lifecycle state of an access key.
type AccessRecordStatus string

const (
	AccessRecordStatusActive   AccessRecordStatus = "active"
	AccessRecordStatusDisabled AccessRecordStatus = "disabled"
)

// AccessRecord is an API caller together with its limit and counter variables.
type AccessRecord struct {
	ID           int64
	PublicID     uuid.UUID
	Status       AccessRecordStatus
	Variables    Variables
	CreatedAt    time.Time
	LastActivity time.Time
}

// IsActive reports whether the key may be used.
func (r *AccessRecord) IsActive() bool {
	return r.Status == AccessRecordStatusActive
}

// Variables maps limit and counter names to their values. Values decoded from
// JSON arrive as float64 or json.Number, so all reads go through the typed
// accessors below.
type Variables map[string]any

// Has reports whether the variable is set.
func (v Variables) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// Int returns the variable as an integer. ok is false if the variable is
// absent or not numeric.
func (v Variables) Int(key string) (int64, bool) {
	raw, exists := v[key]
	if !exists {
		return 0, false
	}
	return toInt(raw)
}

// Bool returns the variable as a bool. ok is false if the variable is absent
// or not a boolean.
func (v Variables) Bool(key string) (bool, bool) {
	raw, exists := v[key]
	if !exists {
		return false, false
	}
	return toBool(raw)
}

// SetInt stores an integer variable.
func (v Variables) SetInt(key string, value int64) {
	v[key] = value
}

// SetBool stores a boolean variable.
func (v Variables) SetBool(key string, value bool) {
	v[key] = value
}

// Clone returns a shallow copy of the variables.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func toInt(raw any) (int64, bool) {
	switch n := raw.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case float32:
		return toInt(float64(n))
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func toBool(raw any) (bool, bool) {
	switch b := raw.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, false
		}
		return parsed, true
	case float64:
		return b != 0, b == 0 || b == 1
	case int64:
		return b != 0, b == 0 || b == 1
	case int:
		return b != 0, b == 0 || b == 1
	default:
		return false, false
	}
}
