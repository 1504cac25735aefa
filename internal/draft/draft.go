// Package draft persists per-step form state inside an application scope.
//
// Each blob is stored as a versioned envelope. Plain form objects written
// before envelopes existed are read as version 0 and migrated forward.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrCorruptDraft marks a blob that could not be decoded, migrated or
	// validated. Callers fall back to step defaults.
	ErrCorruptDraft = errors.New("DRAFT_CORRUPT")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("DRAFT_STORE_FAILED")
)

// Store is the draft persistence port.
type Store interface {
	Load(ctx context.Context, scope, key string) (Draft, bool, error)
	Save(ctx context.Context, scope, key string, d Draft) error
	Delete(ctx context.Context, scope, key string) error
	Clear(ctx context.Context, scope string, keys ...string) error
}

// Draft maps field names to JSON-serializable values.
type Draft map[string]interface{}

// Clone returns a shallow copy.
func (d Draft) Clone() Draft {
	out := make(Draft, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Overlay returns a copy of d with fields written over it.
func (d Draft) Overlay(fields map[string]interface{}) Draft {
	out := d.Clone()
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// String returns the field as a string. Numbers are formatted without
// exponent so numeric inputs typed as numbers still validate.
func (d Draft) String(key string) string {
	switch v := d[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Float returns the field as a float64, parsing numeric strings.
func (d Draft) Float(key string) (float64, bool) {
	switch v := d[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// Int returns the field as an int when it holds a whole number.
func (d Draft) Int(key string) (int, bool) {
	f, ok := d.Float(key)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// HasAny reports whether any of fields holds a non-empty value.
func (d Draft) HasAny(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(d.String(f)) != "" {
			return true
		}
	}
	return false
}

// Bind decodes d into a typed form.
func (d Draft) Bind(out interface{}) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// FromStruct converts a typed form into a Draft.
func FromStruct(v interface{}) (Draft, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}
