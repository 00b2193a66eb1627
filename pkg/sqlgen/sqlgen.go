package sqlgen

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/types"
)

// Dialect selects the SQL flavor generated statements target.
type Dialect string

// Supported dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect validates a dialect name, defaulting empty input to postgres.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "", string(DialectPostgres):
		return DialectPostgres, nil
	case string(DialectSQLite):
		return DialectSQLite, nil
	}
	return "", errors.WrapInvalid(
		fmt.Errorf("unknown SQL dialect %q, want %q or %q", s, DialectPostgres, DialectSQLite),
		"Dialect", "ParseDialect", "dialect validation")
}

// Metadata column names. Every table carries topic and stamp; nested
// sub-tables add the element index.
const (
	MetaTopic = "_topic"
	MetaStamp = "_stamp"
	MetaIndex = "_index"
)

// Column describes one table column and how its value derives from a record.
type Column struct {
	// Name is the SQL column name, dotted for flattened nested fields.
	Name string

	// Type is the column's SQL type in the plan's dialect.
	Type string

	// Path traverses the value tree to the column's field. Empty for meta
	// columns and the whole-body column of an empty descriptor.
	Path []string

	// JSON marks columns whose values travel as serialized JSON text.
	JSON bool

	// Meta names the metadata a column carries, MetaTopic, MetaStamp or
	// MetaIndex. Empty for field columns.
	Meta string
}

// Table is the plan for one message type table.
type Table struct {
	// Name is the SQL table name.
	Name string

	// TypeName and SchemaHash identify the variant the table stores.
	TypeName   string
	SchemaHash string

	// Definition is the variant's schema text, when known.
	Definition string

	// Columns in declaration order, meta columns last.
	Columns []Column

	// Nested marks sub-tables expanded from repeated substructures.
	Nested bool

	// Parent is the root table's name, set on nested tables.
	Parent string

	// FieldPath is the dotted path of the repeated field, set on nested
	// tables.
	FieldPath string

	fieldSegs []string
}

// View is the plan for one topic view.
type View struct {
	// Name is the SQL view name.
	Name string

	// Topic is the topic the view filters on.
	Topic string

	// Table is the variant table the view selects from.
	Table string

	// TypeName and SchemaHash identify the variant behind the view.
	TypeName   string
	SchemaHash string
}

// TablePlan builds the table set for one type variant: the root table named
// tableName first, then one sub-table per repeated substructure when mode is
// "all". Sub-tables are named tableName + "." + field path.
func TablePlan(tableName string, desc message.TypeDescriptor, d Dialect, mode string) []Table {
	root := Table{
		Name:       tableName,
		TypeName:   desc.Name,
		SchemaHash: desc.SchemaHash,
		Definition: desc.Definition,
	}
	cols, nested := flattenFields(desc.Fields, nil, d, mode)
	if len(cols) == 0 && len(nested) == 0 {
		cols = []Column{{Name: "data", Type: jsonType(d), JSON: true}}
	}
	root.Columns = append(cols, metaColumns(d)...)

	tables := []Table{root}
	for _, nf := range nested {
		fieldPath := strings.Join(nf.path, ".")
		subCols, _ := flattenFields(nf.fields, nil, d, types.SubtypeModeArray)
		sub := Table{
			Name:       tableName + "." + fieldPath,
			TypeName:   desc.Name,
			SchemaHash: desc.SchemaHash,
			Nested:     true,
			Parent:     tableName,
			FieldPath:  fieldPath,
			fieldSegs:  nf.path,
			Columns:    append(subCols, nestedMetaColumns(d)...),
		}
		tables = append(tables, sub)
	}
	return tables
}

// TopicView builds the plan for a view named viewName selecting topic's rows
// from the variant's table.
func TopicView(viewName, topic, table string, desc message.TypeDescriptor) View {
	return View{
		Name:       viewName,
		Topic:      topic,
		Table:      table,
		TypeName:   desc.Name,
		SchemaHash: desc.SchemaHash,
	}
}

// nestedField is a repeated substructure lifted out of the column flattening
// for sub-table expansion.
type nestedField struct {
	path   []string
	fields []message.FieldDef
}

// flattenFields walks field definitions into columns. Singular mappings
// flatten into dotted names, sequences become JSON columns, and repeated
// substructures lift into nested specs under mode "all". Repeated
// substructures inside sub-table elements always stay JSON.
func flattenFields(fields []message.FieldDef, prefix []string, d Dialect, mode string) ([]Column, []nestedField) {
	var cols []Column
	var nested []nestedField
	for _, f := range fields {
		path := append(append([]string{}, prefix...), f.Name)
		name := strings.Join(path, ".")
		switch {
		case f.Array && len(f.Fields) > 0 && mode == types.SubtypeModeAll:
			nested = append(nested, nestedField{path: path, fields: f.Fields})
		case f.Array:
			cols = append(cols, Column{Name: name, Type: jsonType(d), Path: path, JSON: true})
		case len(f.Fields) > 0:
			sub, subNested := flattenFields(f.Fields, path, d, mode)
			cols = append(cols, sub...)
			nested = append(nested, subNested...)
		case f.Type == "object":
			cols = append(cols, Column{Name: name, Type: jsonType(d), Path: path, JSON: true})
		default:
			cols = append(cols, Column{Name: name, Type: scalarType(f.Type, d), Path: path})
		}
	}
	return cols, nested
}

func scalarType(fieldType string, d Dialect) string {
	if d == DialectSQLite {
		switch fieldType {
		case "bool", "int", "uint":
			return "INTEGER"
		case "float":
			return "REAL"
		default:
			return "TEXT"
		}
	}
	switch fieldType {
	case "bool":
		return "BOOLEAN"
	case "int", "uint":
		return "BIGINT"
	case "float":
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

func jsonType(d Dialect) string {
	if d == DialectSQLite {
		return "JSON"
	}
	return "JSONB"
}

func stampType(d Dialect) string {
	if d == DialectSQLite {
		return "TIMESTAMP"
	}
	return "TIMESTAMPTZ"
}

func metaColumns(d Dialect) []Column {
	return []Column{
		{Name: MetaTopic, Type: "TEXT", Meta: MetaTopic},
		{Name: MetaStamp, Type: stampType(d), Meta: MetaStamp},
	}
}

func nestedMetaColumns(d Dialect) []Column {
	idx := "BIGINT"
	if d == DialectSQLite {
		idx = "INTEGER"
	}
	return append(metaColumns(d), Column{Name: MetaIndex, Type: idx, Meta: MetaIndex})
}

// CreateTable renders the CREATE TABLE statement for a table plan.
func CreateTable(t Table, d Dialect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", Quote(t.Name))
	for i, col := range t.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "  %s %s", Quote(col.Name), col.Type)
	}
	b.WriteString("\n);")
	return b.String()
}

// CreateView renders the CREATE VIEW statement for a topic view. Postgres
// replaces an existing view, sqlite skips it.
func CreateView(v View, d Dialect) string {
	create := "CREATE OR REPLACE VIEW"
	if d == DialectSQLite {
		create = "CREATE VIEW IF NOT EXISTS"
	}
	return fmt.Sprintf("%s %s AS\nSELECT * FROM %s\nWHERE %s = %s;",
		create, Quote(v.Name), Quote(v.Table), Quote(MetaTopic), QuoteString(v.Topic))
}

// Insert renders the parameterized INSERT statement for a table plan, with
// $1..$n placeholders for postgres and ? for sqlite.
func Insert(t Table, d Dialect) string {
	names := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = Quote(col.Name)
		if d == DialectSQLite {
			marks[i] = "?"
		} else {
			marks[i] = "$" + strconv.Itoa(i+1)
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		Quote(t.Name), strings.Join(names, ", "), strings.Join(marks, ", "))
}

// RowValues extracts the driver arguments for one record's row in the root
// table, in column order. Fields absent from the record yield nil.
func RowValues(t Table, rec message.Record) []any {
	row := make([]any, len(t.Columns))
	for i, col := range t.Columns {
		switch col.Meta {
		case MetaTopic:
			row[i] = rec.Topic
		case MetaStamp:
			row[i] = rec.Stamp
		default:
			row[i] = fieldValue(col, rec.Data)
		}
	}
	return row
}

// NestedRows extracts the rows one record contributes to a nested sub-table,
// one per element of the repeated field. A record without the field, or with
// a non-sequence there, contributes none.
func NestedRows(t Table, rec message.Record) [][]any {
	v := rec.Data
	for _, seg := range t.fieldSegs {
		f, ok := v.FieldByName(seg)
		if !ok {
			return nil
		}
		v = f
	}
	if v.Kind() != message.KindList {
		return nil
	}

	rows := make([][]any, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		elem := v.Index(i)
		row := make([]any, len(t.Columns))
		for j, col := range t.Columns {
			switch col.Meta {
			case MetaTopic:
				row[j] = rec.Topic
			case MetaStamp:
				row[j] = rec.Stamp
			case MetaIndex:
				row[j] = int64(i)
			default:
				row[j] = fieldValue(col, elem)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// fieldValue resolves a column's value under base. The whole-body column of
// an empty descriptor has no path and serializes base itself.
func fieldValue(col Column, base message.Value) any {
	v := base
	for _, seg := range col.Path {
		f, ok := v.FieldByName(seg)
		if !ok {
			return nil
		}
		v = f
	}
	if col.JSON {
		return jsonArg(v)
	}
	return scalarArg(v)
}

func jsonArg(v message.Value) any {
	if !v.IsValid() {
		return nil
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return nil
	}
	return string(b)
}

// scalarArg converts a leaf into a driver argument. Unsigned values beyond
// the signed range travel as decimal strings, structured values as JSON text.
func scalarArg(v message.Value) any {
	switch v.Kind() {
	case message.KindBool:
		return v.BoolValue()
	case message.KindInt:
		return v.IntValue()
	case message.KindUint:
		u := v.UintValue()
		if u > math.MaxInt64 {
			return strconv.FormatUint(u, 10)
		}
		return int64(u)
	case message.KindFloat:
		return v.FloatValue()
	case message.KindString:
		return v.StringValue()
	case message.KindInvalid:
		return nil
	default:
		return jsonArg(v)
	}
}

// ClaimName hands out SQL entity names: the first claimant of a base name
// gets it plain, later claimants suffix the first 8 characters of their
// schema hash. The caller owns the taken set.
func ClaimName(taken map[string]bool, base, hash string) string {
	name := base
	if taken[name] {
		short := hash
		if len(short) > 8 {
			short = short[:8]
		}
		name = base + "." + short
	}
	taken[name] = true
	return name
}

// Quote returns ident as a double-quoted SQL identifier.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// QuoteString returns s as a single-quoted SQL string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
