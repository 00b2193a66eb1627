// Command schema-exporter writes the options schema of every registered
// source and sink kind to versioned JSON files, plus an index listing.
// The output documents what a scan configuration may put in each
// component's options block.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/componentregistry"
)

func main() {
	outDir := flag.String("out", "./docs/components", "Output directory for schema files")
	flag.Parse()

	if err := run(*outDir); err != nil {
		log.Fatalf("schema export failed: %v", err)
	}
}

// kindSchema is the exported document for one registered kind.
type kindSchema struct {
	Kind          string          `json:"kind"`
	ComponentType string          `json:"componentType"`
	Description   string          `json:"description"`
	Version       string          `json:"version"`
	OptionsSchema json.RawMessage `json:"optionsSchema,omitempty"`
}

func run(outDir string) error {
	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return fmt.Errorf("register components: %w", err)
	}

	infos := registry.List()
	log.Printf("exporting %d component kinds to %s", len(infos), outDir)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	var indexed []kindSchema
	for _, info := range infos {
		doc := kindSchema{
			Kind:          info.Kind,
			ComponentType: string(info.Type),
			Description:   info.Description,
			Version:       info.Version,
		}
		if schema, ok := registry.OptionsSchema(info.Kind, info.Type); ok {
			compact, err := compactJSON(schema)
			if err != nil {
				return fmt.Errorf("options schema for %s %s: %w", info.Type, info.Kind, err)
			}
			doc.OptionsSchema = compact
		}
		indexed = append(indexed, doc)

		outFile := filepath.Join(outDir, fmt.Sprintf("%s_%s.v1.json", info.Type, info.Kind))
		if err := writeJSON(outFile, doc); err != nil {
			return fmt.Errorf("write %s: %w", outFile, err)
		}
		log.Printf("  ✓ %s", outFile)
	}

	indexFile := filepath.Join(outDir, "index.md")
	if err := os.WriteFile(indexFile, []byte(renderIndex(indexed)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", indexFile, err)
	}
	log.Printf("  ✓ %s", indexFile)

	log.Printf("schema export complete")
	return nil
}

// compactJSON normalizes embedded schema literals, which are indented for
// readability in source.
func compactJSON(raw json.RawMessage) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func writeJSON(path string, doc kindSchema) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// renderIndex builds a markdown table of every kind in registry order,
// sources first.
func renderIndex(docs []kindSchema) string {
	var b strings.Builder
	b.WriteString("# Component kinds\n\n")
	b.WriteString("| Kind | Type | Version | Description |\n")
	b.WriteString("|------|------|---------|-------------|\n")
	for _, doc := range docs {
		fmt.Fprintf(&b, "| [%s](%s_%s.v1.json) | %s | %s | %s |\n",
			doc.Kind, doc.ComponentType, doc.Kind, doc.ComponentType, doc.Version, doc.Description)
	}
	return b.String()
}
