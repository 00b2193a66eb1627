// Package componentregistry wires every built-in source and sink kind into
// a component registry. Callers that only need a subset register the
// individual packages instead.
package componentregistry

import (
	"errors"

	"github.com/c360/grepbag/component"
	pkgerrors "github.com/c360/grepbag/errors"
	inbagfile "github.com/c360/grepbag/input/bagfile"
	innats "github.com/c360/grepbag/input/nats"
	"github.com/c360/grepbag/input/rosbridge"
	outbagfile "github.com/c360/grepbag/output/bagfile"
	"github.com/c360/grepbag/output/console"
	"github.com/c360/grepbag/output/csv"
	"github.com/c360/grepbag/output/db"
	"github.com/c360/grepbag/output/htmlreport"
	outnats "github.com/c360/grepbag/output/nats"
	"github.com/c360/grepbag/output/sqlschema"
)

// Register adds all built-in kinds to the registry.
//
// Sources:
//   - bagfile (recorded .jsonl bags, directory scan, watch mode)
//   - nats (live envelope subscription)
//   - rosbridge (live websocket subscription)
//
// Sinks:
//   - console (indented text with match highlighting)
//   - bagfile (re-recorded bags)
//   - csv (one file per topic variant)
//   - db (PostgreSQL tables and views)
//   - htmlreport (standalone HTML report)
//   - sqlschema (SQL schema text)
//   - nats (envelope republishing)
func Register(registry *component.Registry) error {
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	registrations := []struct {
		name     string
		register func(*component.Registry) error
	}{
		// Sources
		{"bagfile source", inbagfile.Register},
		{"nats source", innats.Register},
		{"rosbridge source", rosbridge.Register},

		// Sinks
		{"console sink", console.Register},
		{"bagfile sink", outbagfile.Register},
		{"csv sink", csv.Register},
		{"db sink", db.Register},
		{"htmlreport sink", htmlreport.Register},
		{"sqlschema sink", sqlschema.Register},
		{"nats sink", outnats.Register},
	}

	for _, c := range registrations {
		if err := c.register(registry); err != nil {
			return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register",
				c.name+" registration")
		}
	}
	return nil
}
