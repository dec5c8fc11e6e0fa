// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import (
	"context"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v2"
)

// Updater is a helper for updating the in-memory settings.
//
// Set is handed the serialized representations of individual settings, e.g.
// the entries read from a settings file. Settings not mentioned in a batch
// revert to their defaults when ResetRemaining is called.
type Updater struct {
	sv *Values
	m  map[string]struct{}
}

// NewUpdater makes an Updater.
func NewUpdater(sv *Values) *Updater {
	return &Updater{
		sv: sv,
		m:  make(map[string]struct{}, len(registry)),
	}
}

// Set attempts to parse and update a setting. typ may be empty, in which
// case the type is not checked.
func (u *Updater) Set(ctx context.Context, key, encoded, typ string) error {
	d, ok := registry[key]
	if !ok {
		return errors.Errorf("unknown setting '%s'", key)
	}
	u.m[key] = struct{}{}
	if typ != "" && typ != d.Typ() {
		return errors.Errorf("setting '%s' defined as type %s, not %s", key, d.Typ(), typ)
	}
	return d.decodeAndSet(u.sv, encoded)
}

// ResetRemaining sets all settings not updated by the updater to their
// default values.
func (u *Updater) ResetRemaining(ctx context.Context) {
	for k, v := range registry {
		if _, ok := u.m[k]; !ok {
			v.setToDefault(u.sv)
		}
	}
}

// ApplyYAML decodes a YAML mapping of setting keys to values and applies it
// to sv. Settings not named in the document keep their current values.
// Unknown keys and values that fail to parse are reported together; valid
// entries are still applied.
//
// Example:
//
//	sql.stmt_cache.capacity: 500
//	sql.auth.default_connection_mode: readOnlyAccess
func ApplyYAML(ctx context.Context, sv *Values, data []byte) error {
	var raw map[string]interface{}
	if err := yaml.UnmarshalStrict(data, &raw); err != nil {
		return errors.Wrap(err, "parsing settings")
	}
	u := NewUpdater(sv)
	var retErr error
	for _, key := range sortedKeys(raw) {
		encoded, err := encodeYAMLValue(raw[key])
		if err == nil {
			err = u.Set(ctx, key, encoded, "")
		}
		if err != nil {
			retErr = errors.CombineErrors(retErr, errors.Wrapf(err, "setting %s", key))
		}
	}
	return retErr
}

func encodeYAMLValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return EncodeBool(t), nil
	case int:
		return EncodeInt(int64(t)), nil
	case int64:
		return EncodeInt(t), nil
	case []interface{}:
		var s string
		for i, e := range t {
			es, err := encodeYAMLValue(e)
			if err != nil {
				return "", err
			}
			if i > 0 {
				s += ","
			}
			s += es
		}
		return s, nil
	default:
		return "", errors.Errorf("unsupported value %v of type %T", v, v)
	}
}
