package message

// TypeID is the registry-assigned identifier for one type variant. IDs are
// positive, assigned in first-seen order, and stable for the duration of a
// run. Zero means unresolved.
type TypeID int

// ConflictNotice records a type name observed with a second schema hash.
// Conflicts are informational: both variants stay registered under their own
// IDs, the run never aborts over one.
type ConflictNotice struct {
	// Name is the conflicted type name.
	Name string
	// PriorHash is the hash first registered for the name.
	PriorHash string
	// NewHash is the later, differing hash.
	NewHash string
	// Topic is where the new variant was first seen.
	Topic string
}

// Registry assigns stable identifiers to type variants as a scan discovers
// them. Identity is (name, schema hash): a repeat registration returns the
// existing ID, a known name with a new hash gets a fresh ID plus a conflict
// notice. The registry only grows during a run.
//
// Registry is not safe for concurrent use; the scan loop is its only writer.
type Registry struct {
	byKey     map[TypeKey]TypeID
	byName    map[string][]TypeID
	descs     []TypeDescriptor
	conflicts []ConflictNotice
}

// NewRegistry creates an empty type registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:  make(map[TypeKey]TypeID),
		byName: make(map[string][]TypeID),
	}
}

// Register resolves a descriptor to its TypeID, assigning a new one on first
// sight. The topic indicates where the descriptor was observed and is carried
// into conflict notices. Never fails: a second hash under a known name is a
// conflict notice, not an error.
func (r *Registry) Register(desc TypeDescriptor, topic string) TypeID {
	key := desc.Key()
	if id, ok := r.byKey[key]; ok {
		return id
	}

	if prior := r.byName[desc.Name]; len(prior) > 0 {
		r.conflicts = append(r.conflicts, ConflictNotice{
			Name:      desc.Name,
			PriorHash: r.descs[prior[0]-1].SchemaHash,
			NewHash:   desc.SchemaHash,
			Topic:     topic,
		})
	}

	r.descs = append(r.descs, desc)
	id := TypeID(len(r.descs))
	r.byKey[key] = id
	r.byName[desc.Name] = append(r.byName[desc.Name], id)
	return id
}

// Resolve returns all registered variants of a type name in first-seen order,
// nil when the name is unknown. Sinks that materialize per-variant output
// (one table per variant) iterate this.
func (r *Registry) Resolve(name string) []TypeID {
	ids := r.byName[name]
	if len(ids) == 0 {
		return nil
	}
	out := make([]TypeID, len(ids))
	copy(out, ids)
	return out
}

// Lookup returns the descriptor for an ID and whether the ID is known.
func (r *Registry) Lookup(id TypeID) (TypeDescriptor, bool) {
	if id < 1 || int(id) > len(r.descs) {
		return TypeDescriptor{}, false
	}
	return r.descs[id-1], true
}

// DescriptorFor resolves the descriptor to use for a record: the registered
// one when the record carries a resolved TypeID, otherwise the shape
// inferred from its data, keeping the record's declared hash. Safe to call
// on a nil registry; sinks used standalone fall back to inference.
func (r *Registry) DescriptorFor(rec Record) TypeDescriptor {
	if r != nil && rec.TypeID != 0 {
		if desc, ok := r.Lookup(rec.TypeID); ok {
			return desc
		}
	}
	desc := InferDescriptor(rec.Type, rec.Data)
	if rec.SchemaHash != "" {
		desc.SchemaHash = rec.SchemaHash
	}
	return desc
}

// Conflicts returns the conflict notices recorded so far, in observation
// order.
func (r *Registry) Conflicts() []ConflictNotice {
	if len(r.conflicts) == 0 {
		return nil
	}
	out := make([]ConflictNotice, len(r.conflicts))
	copy(out, r.conflicts)
	return out
}

// Len returns the number of registered type variants.
func (r *Registry) Len() int {
	return len(r.descs)
}
