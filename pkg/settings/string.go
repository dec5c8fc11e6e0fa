// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import "context"

// StringSetting is the interface of a setting variable that will be
// updated automatically when the corresponding cluster-wide setting
// of type "string" is updated.
type StringSetting struct {
	common
	defaultValue string
}

var _ internalSetting = &StringSetting{}

func (s *StringSetting) String(sv *Values) string {
	return s.Get(sv)
}

// Encoded returns the encoded value of the current value of the setting.
func (s *StringSetting) Encoded(sv *Values) string {
	return s.String(sv)
}

// EncodedDefault returns the encoded value of the default value of the setting.
func (s *StringSetting) EncodedDefault() string {
	return s.defaultValue
}

// Typ returns the short (1 char) string denoting the type of setting.
func (*StringSetting) Typ() string {
	return "s"
}

// Get retrieves the string value in the setting.
func (s *StringSetting) Get(sv *Values) string {
	loaded := sv.getGeneric(s.slot)
	if loaded == nil {
		return ""
	}
	return loaded.(string)
}

// Override sets the setting to the given value.
func (s *StringSetting) Override(ctx context.Context, sv *Values, v string) {
	sv.setGeneric(s.slot, v)
}

func (s *StringSetting) setToDefault(sv *Values) {
	sv.setGeneric(s.slot, s.defaultValue)
}

func (s *StringSetting) decodeAndSet(sv *Values, encoded string) error {
	sv.setGeneric(s.slot, encoded)
	return nil
}

// RegisterStringSetting defines a new setting with type string.
func RegisterStringSetting(key, desc string, defaultValue string) *StringSetting {
	setting := &StringSetting{defaultValue: defaultValue}
	register(key, desc, setting)
	return setting
}
