package match

import "strings"

// ParsePatterns converts raw pattern strings from config or the command line
// into Specs. A pattern is either VALUE or PATH=VALUE, split at the first
// interior "=" so that a leading or trailing "=" stays part of the value.
// The path side uses the Spec.Path syntax; the value side is a regular
// expression unless the matcher compiles with Raw.
//
// Validity is checked at Compile, not here.
func ParsePatterns(raw []string) []Spec {
	specs := make([]Spec, 0, len(raw))
	for _, p := range raw {
		specs = append(specs, parsePattern(p))
	}
	return specs
}

func parsePattern(p string) Spec {
	if len(p) >= 3 {
		if i := strings.Index(p[1:len(p)-1], "="); i >= 0 {
			return Spec{Path: p[:i+1], Value: p[i+2:]}
		}
	}
	return Spec{Value: p}
}
