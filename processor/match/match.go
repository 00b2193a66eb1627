// Package match compiles field path patterns and evaluates record bodies
// against them, producing the matched leaf paths that presentation sinks
// highlight.
package match

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
)

// Spec is one uncompiled match pattern: which topics it applies to, which
// field subtree it selects, and what the leaf values must look like.
type Spec struct {
	// Topic restricts the spec to matching topic names, with "*" wildcards.
	// Empty applies to every topic.
	Topic string

	// Path is a dot-separated field path. Segments are literal field names,
	// "*" for any field, or "[*]" / "[N]" for sequence elements; "ranges[*]"
	// is shorthand for "ranges" followed by "[*]". Sequences between named
	// segments are descended implicitly. Empty selects any field.
	Path string

	// Value is the leaf pattern, a regular expression matched anywhere in the
	// rendered scalar. Empty matches any present value, including empty
	// sequences.
	Value string
}

// Options adjust how every spec of a matcher compiles.
type Options struct {
	// Invert emits records that do NOT satisfy the specs.
	Invert bool

	// CaseSensitive disables the default case-insensitive value matching.
	CaseSensitive bool

	// Raw treats Value as literal text instead of a regular expression.
	Raw bool
}

// Result is the outcome of matching one record.
type Result struct {
	// Matched reports whether the record satisfied the matcher.
	Matched bool

	// Paths lists the leaf paths whose values satisfied the patterns, in
	// traversal order without duplicates. May be empty with Matched true:
	// inverted matches carry no paths, and an empty sequence satisfying an
	// any-value pattern has no leaves to name.
	Paths []string
}

// Matcher evaluates records against a compiled set of specs. A record matches
// when at least one spec applies to its topic and every applicable spec is
// satisfied; with no specs configured every record matches. Compile once,
// reuse across the whole run.
type Matcher struct {
	specs  []compiledSpec
	invert bool
}

type compiledSpec struct {
	topic    *regexp.Regexp // nil: applies to all topics
	anyField bool
	path     []pathSegment
	leaf     *regexp.Regexp // nil: any present value
}

type pathSegment struct {
	literal   string
	wild      bool // "*"
	index     bool // "[N]" or "[*]"
	indexWild bool
	idx       int
}

// Compile builds a Matcher from specs. Pattern errors are invalid-classified
// and abort before any record is pulled.
func Compile(specs []Spec, opts Options) (*Matcher, error) {
	m := &Matcher{invert: opts.Invert}
	for i, spec := range specs {
		cs, err := compileSpec(spec, opts)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Matcher", "Compile",
				fmt.Sprintf("pattern %d", i+1))
		}
		m.specs = append(m.specs, cs)
	}
	return m, nil
}

func compileSpec(spec Spec, opts Options) (compiledSpec, error) {
	cs := compiledSpec{}

	if spec.Topic != "" {
		re, err := CompileWildcard(spec.Topic)
		if err != nil {
			return cs, fmt.Errorf("topic %q: %w", spec.Topic, err)
		}
		cs.topic = re
	}

	if spec.Path == "" {
		cs.anyField = true
	} else {
		segs, err := parsePath(spec.Path)
		if err != nil {
			return cs, fmt.Errorf("path %q: %w", spec.Path, err)
		}
		cs.path = segs
	}

	if spec.Value != "" {
		text := spec.Value
		if opts.Raw {
			text = regexp.QuoteMeta(text)
		}
		// A quoted empty string also matches fields that render empty.
		if spec.Value == "''" || spec.Value == `""` {
			text = "(?:" + text + "|^$)"
		}
		if !opts.CaseSensitive {
			text = "(?i)" + text
		}
		re, err := regexp.Compile(text)
		if err != nil {
			return cs, fmt.Errorf("%w: value %q: %v", errors.ErrInvalidPattern, spec.Value, err)
		}
		cs.leaf = re
	}

	return cs, nil
}

// CompileWildcard turns a "*"-wildcard pattern into a fully anchored regexp.
// Topic and type filters across the engine share this convention.
func CompileWildcard(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for _, part := range strings.Split(pattern, "*") {
		if b.Len() > 1 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPattern, err)
	}
	return re, nil
}

func parsePath(path string) ([]pathSegment, error) {
	var segs []pathSegment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("%w: empty path segment", errors.ErrInvalidPattern)
		}
		base := part
		var brackets string
		if i := strings.IndexByte(part, '['); i >= 0 {
			base, brackets = part[:i], part[i:]
		}
		switch base {
		case "":
			// Bare "[...]" segment.
		case "*":
			segs = append(segs, pathSegment{wild: true})
		default:
			segs = append(segs, pathSegment{literal: base})
		}
		for brackets != "" {
			end := strings.IndexByte(brackets, ']')
			if !strings.HasPrefix(brackets, "[") || end < 0 {
				return nil, fmt.Errorf("%w: malformed index in %q", errors.ErrInvalidPattern, part)
			}
			inner := brackets[1:end]
			if inner == "*" {
				segs = append(segs, pathSegment{index: true, indexWild: true})
			} else {
				n, err := strconv.Atoi(inner)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("%w: index %q in %q", errors.ErrInvalidPattern, inner, part)
				}
				segs = append(segs, pathSegment{index: true, idx: n})
			}
			brackets = brackets[end+1:]
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: empty path", errors.ErrInvalidPattern)
	}
	return segs, nil
}

// Match evaluates one record body. Pure: no state survives the call.
func (m *Matcher) Match(topic string, data message.Value) Result {
	if len(m.specs) == 0 {
		return Result{Matched: !m.invert}
	}

	applicable := 0
	satisfied := 0
	var paths []string
	seen := map[string]bool{}

	for _, spec := range m.specs {
		if spec.topic != nil && !spec.topic.MatchString(topic) {
			continue
		}
		applicable++
		ok, specPaths := spec.match(data)
		if !ok {
			continue
		}
		satisfied++
		for _, p := range specPaths {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}

	matched := applicable > 0 && satisfied == applicable
	if m.invert {
		return Result{Matched: !matched}
	}
	if !matched {
		return Result{Matched: false}
	}
	return Result{Matched: true, Paths: paths}
}

type selectedNode struct {
	path  string
	value message.Value
}

func (cs compiledSpec) match(data message.Value) (bool, []string) {
	if cs.anyField {
		if cs.leaf == nil {
			// Any field, any value: the record itself suffices.
			return true, nil
		}
		var paths []string
		data.WalkLeaves(func(path string, leaf message.Value) bool {
			if cs.leaf.MatchString(leaf.LeafString()) {
				paths = append(paths, path)
			}
			return true
		})
		return len(paths) > 0, paths
	}

	var nodes []selectedNode
	selectNodes(data, cs.path, "", &nodes)
	if len(nodes) == 0 {
		return false, nil
	}

	if cs.leaf == nil {
		// Any value: every selected node is present, record its scalar leaves.
		// Empty containers contribute presence without paths.
		var paths []string
		for _, n := range nodes {
			collectLeafPaths(n, &paths)
		}
		return true, paths
	}

	var paths []string
	for _, n := range nodes {
		matchLeaves(n, cs.leaf, &paths)
	}
	return len(paths) > 0, paths
}

// selectNodes resolves a path pattern against a value tree, descending
// implicitly into sequences between named segments.
func selectNodes(v message.Value, segs []pathSegment, prefix string, out *[]selectedNode) {
	if len(segs) == 0 {
		*out = append(*out, selectedNode{path: prefix, value: v})
		return
	}
	seg := segs[0]

	if seg.index {
		if v.Kind() != message.KindList {
			return
		}
		if seg.indexWild {
			for i := 0; i < v.Len(); i++ {
				selectNodes(v.Index(i), segs[1:], fmt.Sprintf("%s[%d]", prefix, i), out)
			}
		} else if seg.idx < v.Len() {
			selectNodes(v.Index(seg.idx), segs[1:], fmt.Sprintf("%s[%d]", prefix, seg.idx), out)
		}
		return
	}

	switch v.Kind() {
	case message.KindMap:
		for _, f := range v.Fields() {
			if seg.wild || f.Name == seg.literal {
				selectNodes(f.Value, segs[1:], joinPath(prefix, f.Name), out)
			}
		}
	case message.KindList:
		for i := 0; i < v.Len(); i++ {
			selectNodes(v.Index(i), segs, fmt.Sprintf("%s[%d]", prefix, i), out)
		}
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func collectLeafPaths(n selectedNode, out *[]string) {
	if n.value.IsScalar() {
		*out = append(*out, n.path)
		return
	}
	n.value.WalkLeaves(func(path string, leaf message.Value) bool {
		*out = append(*out, joinNested(n.path, path))
		return true
	})
}

func matchLeaves(n selectedNode, re *regexp.Regexp, out *[]string) {
	if n.value.IsScalar() {
		if re.MatchString(n.value.LeafString()) {
			*out = append(*out, n.path)
		}
		return
	}
	n.value.WalkLeaves(func(path string, leaf message.Value) bool {
		if re.MatchString(leaf.LeafString()) {
			*out = append(*out, joinNested(n.path, path))
		}
		return true
	})
}

// joinNested appends a relative leaf path to a node path; index-only relative
// paths ("[3]") attach without a dot.
func joinNested(nodePath, rel string) string {
	if nodePath == "" {
		return rel
	}
	if rel == "" {
		return nodePath
	}
	if strings.HasPrefix(rel, "[") {
		return nodePath + rel
	}
	return nodePath + "." + rel
}
