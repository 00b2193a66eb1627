// Package types contains shared domain types used across grepbag packages.
package types

import (
	"fmt"

	"github.com/c360/grepbag/errors"
)

// ComponentType represents the category of a component.
type ComponentType string

// Component type constants
const (
	ComponentTypeSource ComponentType = "source"
	ComponentTypeSink   ComponentType = "sink"
)

// String implements fmt.Stringer for ComponentType
func (ct ComponentType) String() string {
	return string(ct)
}

// SourceConfig selects and configures one input component. The Kind names a
// registered factory (e.g. "bagfile", "nats", "rosbridge"); Options carry the
// kind-specific settings validated against the factory's options schema.
type SourceConfig struct {
	Kind    string         `json:"kind" yaml:"kind"`
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// InstanceName returns the configured name, falling back to the kind.
func (c SourceConfig) InstanceName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Kind
}

// Validate ensures the source configuration is usable.
func (c SourceConfig) Validate() error {
	if c.Kind == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SourceConfig", "Validate",
			"source kind cannot be empty")
	}
	return nil
}

// SinkConfig selects and configures one output component. Several sinks may
// be active in one run, each independently configured.
type SinkConfig struct {
	Kind    string         `json:"kind" yaml:"kind"`
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// InstanceName returns the configured name, falling back to the kind.
func (c SinkConfig) InstanceName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Kind
}

// Validate ensures the sink configuration is usable.
func (c SinkConfig) Validate() error {
	if c.Kind == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SinkConfig", "Validate",
			"sink kind cannot be empty")
	}
	return nil
}

// Option keys every sink recognizes. Kind-specific options live alongside
// these in the same map.
const (
	// OptionCommitInterval is the number of buffered writes a sink
	// accumulates before performing a durable commit. Zero or absent means
	// the sink's own default.
	OptionCommitInterval = "commitInterval"

	// OptionSubtypeMode controls how nested repeated substructures are
	// materialized: "array" keeps them inline, "all" expands them into
	// dedicated sub-records or tables.
	OptionSubtypeMode = "subtypeMode"

	// OptionInlineRender renders nested values as embedded formatted text
	// instead of structured sub-records.
	OptionInlineRender = "inlineRender"

	// OptionTemplateRef points a rendering sink at an external template
	// file overriding its built-in one.
	OptionTemplateRef = "templateRef"
)

// SubtypeMode values for OptionSubtypeMode.
const (
	SubtypeModeArray = "array"
	SubtypeModeAll   = "all"
)

// ValidSubtypeMode reports whether s is a recognized subtype mode.
func ValidSubtypeMode(s string) bool {
	return s == SubtypeModeArray || s == SubtypeModeAll
}

// ParseSubtypeMode validates and returns the mode, defaulting empty input
// to "array".
func ParseSubtypeMode(s string) (string, error) {
	if s == "" {
		return SubtypeModeArray, nil
	}
	if !ValidSubtypeMode(s) {
		return "", errors.WrapInvalid(
			fmt.Errorf("invalid subtype mode %q, want %q or %q", s, SubtypeModeArray, SubtypeModeAll),
			"SinkConfig", "ParseSubtypeMode", "subtype mode validation")
	}
	return s, nil
}
