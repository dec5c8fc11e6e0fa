// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
)

// IntSetting is the interface of a setting variable that will be
// updated automatically when the corresponding cluster-wide setting
// of type "int" is updated.
type IntSetting struct {
	common
	defaultValue int64
	validateFn   func(int64) error
}

var _ internalSetting = &IntSetting{}

// Get retrieves the int value in the setting.
func (i *IntSetting) Get(sv *Values) int64 {
	return sv.getInt64(i.slot)
}

func (i *IntSetting) String(sv *Values) string {
	return EncodeInt(i.Get(sv))
}

// Encoded returns the encoded value of the current value of the setting.
func (i *IntSetting) Encoded(sv *Values) string {
	return i.String(sv)
}

// EncodedDefault returns the encoded value of the default value of the setting.
func (i *IntSetting) EncodedDefault() string {
	return EncodeInt(i.defaultValue)
}

// Typ returns the short (1 char) string denoting the type of setting.
func (*IntSetting) Typ() string {
	return "i"
}

// Validate that a value conforms with the validation function.
func (i *IntSetting) Validate(v int64) error {
	if i.validateFn != nil {
		if err := i.validateFn(v); err != nil {
			return err
		}
	}
	return nil
}

// Override changes the setting without validation and also overrides the
// default value.
func (i *IntSetting) Override(ctx context.Context, sv *Values, v int64) {
	sv.setInt64(i.slot, v)
}

func (i *IntSetting) set(sv *Values, v int64) error {
	if err := i.Validate(v); err != nil {
		return err
	}
	sv.setInt64(i.slot, v)
	return nil
}

func (i *IntSetting) setToDefault(sv *Values) {
	if err := i.set(sv, i.defaultValue); err != nil {
		panic(err)
	}
}

func (i *IntSetting) decodeAndSet(sv *Values, encoded string) error {
	v, err := strconv.ParseInt(encoded, 10, 64)
	if err != nil {
		return err
	}
	return i.set(sv, v)
}

// RegisterIntSetting defines a new setting with type int with a
// validation function.
func RegisterIntSetting(
	key, desc string, defaultValue int64, validateFns ...func(int64) error,
) *IntSetting {
	var validateFn func(int64) error
	if len(validateFns) > 0 {
		validateFn = func(v int64) error {
			for _, fn := range validateFns {
				if err := fn(v); err != nil {
					return errors.Wrapf(err, "invalid value for %s", key)
				}
			}
			return nil
		}
	}
	if validateFn != nil {
		if err := validateFn(defaultValue); err != nil {
			panic(errors.Wrap(err, "invalid default value"))
		}
	}
	setting := &IntSetting{
		defaultValue: defaultValue,
		validateFn:   validateFn,
	}
	register(key, desc, setting)
	return setting
}

// PositiveInt can be passed to RegisterIntSetting.
func PositiveInt(v int64) error {
	if v < 1 {
		return errors.Errorf("cannot be set to a non-positive value: %d", v)
	}
	return nil
}

// NonNegativeInt can be passed to RegisterIntSetting.
func NonNegativeInt(v int64) error {
	if v < 0 {
		return errors.Errorf("cannot be set to a negative value: %d", v)
	}
	return nil
}

// EncodeInt encodes an int in the format parseRaw expects.
func EncodeInt(i int64) string {
	return strconv.FormatInt(i, 10)
}
