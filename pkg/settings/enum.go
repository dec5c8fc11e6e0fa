// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// EnumSetting is a StringSetting that restricts the values to be one of the
// `enumValues`.
type EnumSetting struct {
	common
	defaultValue int64
	enumValues   map[int64]string
}

var _ internalSetting = &EnumSetting{}

// Typ returns the short (1 char) string denoting the type of setting.
func (e *EnumSetting) Typ() string {
	return "e"
}

// Get retrieves the int value in the setting.
func (e *EnumSetting) Get(sv *Values) int64 {
	return sv.getInt64(e.slot)
}

// String returns the enum's string value.
func (e *EnumSetting) String(sv *Values) string {
	enumID := e.Get(sv)
	if str, ok := e.enumValues[enumID]; ok {
		return str
	}
	return fmt.Sprintf("unknown(%d)", enumID)
}

// Encoded returns the encoded value of the current value of the setting.
func (e *EnumSetting) Encoded(sv *Values) string {
	return e.String(sv)
}

// EncodedDefault returns the encoded value of the default value of the setting.
func (e *EnumSetting) EncodedDefault() string {
	return e.enumValues[e.defaultValue]
}

// ParseEnum returns the enum value, and a boolean that indicates if it was
// parseable. Both names (case-insensitive) and numeric values are accepted.
func (e *EnumSetting) ParseEnum(raw string) (int64, bool) {
	rawLower := strings.ToLower(raw)
	for k, v := range e.enumValues {
		if v == rawLower {
			return k, true
		}
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	_, ok := e.enumValues[v]
	return v, ok
}

// Override changes the setting without validation.
func (e *EnumSetting) Override(ctx context.Context, sv *Values, v int64) {
	sv.setInt64(e.slot, v)
}

func (e *EnumSetting) setToDefault(sv *Values) {
	sv.setInt64(e.slot, e.defaultValue)
}

func (e *EnumSetting) decodeAndSet(sv *Values, encoded string) error {
	v, ok := e.ParseEnum(encoded)
	if !ok {
		return errors.Errorf("invalid string value '%s' for enum setting %s; %s",
			encoded, e.key, e.GetAvailableValuesAsHint())
	}
	sv.setInt64(e.slot, v)
	return nil
}

// GetAvailableValuesAsHint returns the possible enum settings as a string that
// can be provided as an error hint to a user.
func (e *EnumSetting) GetAvailableValuesAsHint() string {
	var buf bytes.Buffer
	buf.WriteString("available values: ")
	for i, v := range e.sortedValues() {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s", v)
	}
	return buf.String()
}

func (e *EnumSetting) sortedValues() []string {
	keys := make([]int64, 0, len(e.enumValues))
	for k := range e.enumValues {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = e.enumValues[k]
	}
	return vals
}

// RegisterEnumSetting defines a new setting with type int. Enum names are
// matched case-insensitively, so they are stored lower-cased.
func RegisterEnumSetting(
	key, desc string, defaultValue string, enumValues map[int64]string,
) *EnumSetting {
	enumValuesLower := make(map[int64]string, len(enumValues))
	var i int64
	var found bool
	for k, v := range enumValues {
		enumValuesLower[k] = strings.ToLower(v)
		if strings.EqualFold(v, defaultValue) {
			i = k
			found = true
		}
	}
	if !found {
		panic(fmt.Sprintf("enum registered with default value %s not in map %v", defaultValue, enumValues))
	}
	setting := &EnumSetting{
		defaultValue: i,
		enumValues:   enumValuesLower,
	}
	register(key, desc, setting)
	return setting
}
