package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schemas.yaml
var schemasYAML []byte

// TableSchema is the expected shape of one family's dump table.
type TableSchema struct {
	Table   string            `yaml:"table"`
	Columns map[string]string `yaml:"columns"`
}

// ParsedColumn is one column extracted from a dump table definition.
type ParsedColumn struct {
	Name string
	Type string
}

var schemas map[Family]TableSchema

func init() {
	var raw map[string]TableSchema
	if err := yaml.Unmarshal(schemasYAML, &raw); err != nil {
		panic(fmt.Sprintf("catalog: invalid embedded schemas.yaml: %v", err))
	}
	schemas = make(map[Family]TableSchema, len(raw))
	for name, schema := range raw {
		family, err := ParseFamily(name)
		if err != nil {
			panic(fmt.Sprintf("catalog: schemas.yaml: %v", err))
		}
		schemas[family] = schema
	}
}

// Schema returns the expected dump table schema for a family.
func Schema(family Family) (TableSchema, bool) {
	s, ok := schemas[family]
	return s, ok
}

// Match resolves a parsed dump table definition against the known schemas.
// The table name must match a family's table, every parsed column must exist
// in the expected schema under a case-insensitive name comparison with a
// matching base type, and no expected column may be missing. Any deviation
// yields FamilyUnknown: skipping an unrecognized segment is always safer
// than importing it into the wrong family.
func Match(table string, columns []ParsedColumn) Family {
	for family, schema := range schemas {
		if !strings.EqualFold(schema.Table, table) {
			continue
		}
		if matchColumns(schema.Columns, columns) {
			return family
		}
		return FamilyUnknown
	}
	return FamilyUnknown
}

func matchColumns(expected map[string]string, parsed []ParsedColumn) bool {
	if len(parsed) != len(expected) {
		return false
	}
	lower := make(map[string]string, len(expected))
	for name, typ := range expected {
		lower[strings.ToLower(name)] = typ
	}
	for _, col := range parsed {
		name := strings.ToLower(col.Name)
		want, ok := lower[name]
		if !ok {
			return false
		}
		if NormalizeType(col.Type) != strings.ToLower(want) {
			return false
		}
		delete(lower, name)
	}
	return len(lower) == 0
}

// NormalizeType reduces a declared SQL column type to its base type:
// "VARCHAR(500)" becomes "varchar", "int(10) unsigned" becomes "int".
func NormalizeType(declared string) string {
	t := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexAny(t, "( "); i >= 0 {
		t = t[:i]
	}
	return t
}
