package component

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/types"
)

// SourceFactory creates a source instance from a validated options map.
// Factories parse their own options and must not perform I/O; connections
// and file handles are opened lazily on the first Next call.
type SourceFactory func(opts map[string]any, deps Dependencies) (Source, error)

// SinkFactory creates a sink instance from a validated options map.
// Factories must not perform I/O; files and connections are opened on the
// first Write.
type SinkFactory func(opts map[string]any, deps Dependencies) (Sink, error)

// Registration holds the factory and metadata for one component kind.
// Exactly one of NewSource/NewSink is set, matching Type.
type Registration struct {
	Kind        string              `json:"kind"`
	Type        types.ComponentType `json:"type"`
	Description string              `json:"description"`
	Version     string              `json:"version"`

	// OptionsSchema is a JSON Schema document the registry validates
	// option maps against before the factory runs. Empty skips schema
	// validation for this kind.
	OptionsSchema json.RawMessage `json:"optionsSchema,omitempty"`

	NewSource SourceFactory `json:"-"`
	NewSink   SinkFactory   `json:"-"`
}

// Info holds discoverable metadata about a registered kind.
type Info struct {
	Kind        string              `json:"kind"`
	Type        types.ComponentType `json:"type"`
	Description string              `json:"description"`
	Version     string              `json:"version"`
}

// Registry maps kind names to component factories. A kind name is unique per
// component type, so a source and a sink may share a name ("bagfile" reads
// bags and "bagfile" writes them). Registration happens at startup; lookups
// validate options against the kind's schema before the factory runs, so a
// misconfigured component fails before any record is pulled.
type Registry struct {
	kinds map[registryKey]*Registration
	mu    sync.RWMutex
}

type registryKey struct {
	kind string
	typ  types.ComponentType
}

// NewRegistry creates an empty component registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[registryKey]*Registration),
	}
}

// Register adds a component kind. It returns an error for an empty or
// malformed kind name, a duplicate registration, a missing factory, or a
// factory that does not match the declared type.
func (r *Registry) Register(reg Registration) error {
	if err := ValidateKindName(reg.Kind); err != nil {
		return errors.Wrap(err, "Registry", "Register", "kind name validation")
	}

	switch reg.Type {
	case types.ComponentTypeSource:
		if reg.NewSource == nil || reg.NewSink != nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register",
				fmt.Sprintf("kind %q: source registration requires exactly NewSource", reg.Kind))
		}
	case types.ComponentTypeSink:
		if reg.NewSink == nil || reg.NewSource != nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register",
				fmt.Sprintf("kind %q: sink registration requires exactly NewSink", reg.Kind))
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register",
			fmt.Sprintf("kind %q: invalid component type %q", reg.Kind, reg.Type))
	}

	if len(reg.OptionsSchema) > 0 {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(reg.OptionsSchema)); err != nil {
			return errors.WrapInvalid(err, "Registry", "Register",
				fmt.Sprintf("kind %q: options schema validation", reg.Kind))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{kind: reg.Kind, typ: reg.Type}
	if _, exists := r.kinds[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%s kind %q is already registered", reg.Type, reg.Kind),
			"Registry", "Register", "duplicate kind check")
	}

	r.kinds[key] = &reg
	return nil
}

// NewSource validates cfg against the kind's options schema and invokes the
// source factory.
func (r *Registry) NewSource(cfg types.SourceConfig, deps Dependencies) (Source, error) {
	reg, err := r.lookup(cfg.Kind, types.ComponentTypeSource)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "NewSource", "kind lookup")
	}
	if err := r.validateOptions(reg, cfg.Options); err != nil {
		return nil, errors.Wrap(err, "Registry", "NewSource", "options validation")
	}

	src, err := reg.NewSource(cfg.Options, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "NewSource", "factory execution")
	}
	return src, nil
}

// NewSink validates cfg against the kind's options schema and invokes the
// sink factory.
func (r *Registry) NewSink(cfg types.SinkConfig, deps Dependencies) (Sink, error) {
	reg, err := r.lookup(cfg.Kind, types.ComponentTypeSink)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "NewSink", "kind lookup")
	}
	if err := r.validateOptions(reg, cfg.Options); err != nil {
		return nil, errors.Wrap(err, "Registry", "NewSink", "options validation")
	}

	sink, err := reg.NewSink(cfg.Options, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "NewSink", "factory execution")
	}
	return sink, nil
}

func (r *Registry) lookup(kind string, typ types.ComponentType) (*Registration, error) {
	if kind == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Registry", "lookup",
			fmt.Sprintf("%s kind cannot be empty", typ))
	}

	r.mu.RLock()
	reg, exists := r.kinds[registryKey{kind: kind, typ: typ}]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: no %s registered as %q", errors.ErrUnknownKind, typ, kind),
			"Registry", "lookup", "kind lookup")
	}
	return reg, nil
}

// validateOptions checks an options map against the kind's JSON Schema.
func (r *Registry) validateOptions(reg *Registration, opts map[string]any) error {
	if len(reg.OptionsSchema) == 0 {
		return nil
	}
	if opts == nil {
		opts = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(reg.OptionsSchema),
		gojsonschema.NewGoLoader(opts),
	)
	if err != nil {
		return errors.WrapInvalid(err, "Registry", "validateOptions",
			fmt.Sprintf("schema evaluation for kind %q", reg.Kind))
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return errors.WrapInvalid(
			fmt.Errorf("%w for kind %q: %s", errors.ErrInvalidOptions, reg.Kind, strings.Join(details, "; ")),
			"Registry", "validateOptions", "options schema check")
	}
	return nil
}

// Describe returns the metadata for one registered kind.
func (r *Registry) Describe(kind string, typ types.ComponentType) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.kinds[registryKey{kind: kind, typ: typ}]
	if !exists {
		return Info{}, false
	}
	return Info{
		Kind:        reg.Kind,
		Type:        reg.Type,
		Description: reg.Description,
		Version:     reg.Version,
	}, true
}

// OptionsSchema returns the JSON Schema for a registered kind, or false if
// the kind is unknown or carries no schema.
func (r *Registry) OptionsSchema(kind string, typ types.ComponentType) (json.RawMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.kinds[registryKey{kind: kind, typ: typ}]
	if !exists || len(reg.OptionsSchema) == 0 {
		return nil, false
	}
	return reg.OptionsSchema, true
}

// Kinds returns the registered kind names for one component type, sorted.
func (r *Registry) Kinds(typ types.ComponentType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.kinds))
	for key := range r.kinds {
		if key.typ == typ {
			names = append(names, key.kind)
		}
	}
	sort.Strings(names)
	return names
}

// List returns metadata for every registered kind, sources first, each group
// sorted by kind name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.kinds))
	for _, reg := range r.kinds {
		infos = append(infos, Info{
			Kind:        reg.Kind,
			Type:        reg.Type,
			Description: reg.Description,
			Version:     reg.Version,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Type != infos[j].Type {
			return infos[i].Type == types.ComponentTypeSource
		}
		return infos[i].Kind < infos[j].Kind
	})
	return infos
}

// MaxKindNameLength bounds registered kind names.
const MaxKindNameLength = 64

// ValidateKindName validates component kind names. Names are lowercase
// alphanumeric with interior dashes, the same alphabet config files and CLI
// flags use to reference them.
func ValidateKindName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "ValidateKindName", "empty kind name")
	}
	if len(name) > MaxKindNameLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "ValidateKindName", "kind name too long")
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' && i > 0 && i < len(name)-1:
		default:
			return errors.WrapInvalid(
				fmt.Errorf("invalid character %q in kind name %q", c, name),
				"Registry", "ValidateKindName", "kind name characters")
		}
	}
	return nil
}
