// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

// Setting is the interface exposing the metadata for a setting.
type Setting interface {
	// Key returns the name of the specific setting.
	Key() string
	// Typ returns the short (1 char) string denoting the type of setting.
	Typ() string
	// String returns the string representation of the setting's current
	// value.
	String(sv *Values) string
	// Encoded returns the encoded representation of the current value.
	Encoded(sv *Values) string
	// EncodedDefault returns the encoded representation of the default.
	EncodedDefault() string
	// Description contains a helpful text explaining what the specific
	// setting is for.
	Description() string
}

type internalSetting interface {
	Setting
	init(key, desc string, slot slotIdx)
	slotIdx() slotIdx
	setToDefault(sv *Values)
	// decodeAndSet parses the encoded value and writes it to sv.
	decodeAndSet(sv *Values, encoded string) error
}

// common implements basic functionality used by all setting types.
type common struct {
	key         string
	description string
	slot        slotIdx
}

func (c *common) init(key, desc string, slot slotIdx) {
	c.key = key
	c.description = desc
	c.slot = slot
}

func (c *common) slotIdx() slotIdx { return c.slot }

// Key returns the name of the setting.
func (c *common) Key() string { return c.key }

// Description returns the setting's description.
func (c *common) Description() string { return c.description }
