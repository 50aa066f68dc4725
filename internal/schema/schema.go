// Package schema holds the declarative shape of the loaded database:
// columns, tables, and the top-level Database they belong to. It mirrors
// database/schema.rs from the original yamlbase implementation, adapted
// to an ordered Go map substitute (parallel slice + name index) since Go
// has no IndexMap.
package schema

import (
	"strings"

	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

// Column describes one declared column of a Table.
type Column struct {
	Name       string
	Type       value.SqlType
	PrimaryKey bool
	Nullable   bool
	Unique     bool
	Default    string
	HasDefault bool
	References *ForeignKey
}

// ForeignKey is informational only; spec.md explicitly does not enforce
// referential integrity at query time.
type ForeignKey struct {
	Table  string
	Column string
}

// Table is an ordered set of columns plus its row storage. Column lookup
// is exact-match first, then case-insensitive, matching spec.md §3.
type Table struct {
	Name            string
	Columns         []Column
	columnIndex     map[string]int // exact name -> index
	Rows            [][]value.Value
	PrimaryKeyIndex int // -1 if none
}

func NewTable(name string, columns []Column) *Table {
	t := &Table{
		Name:            name,
		Columns:         columns,
		columnIndex:     make(map[string]int, len(columns)),
		PrimaryKeyIndex: -1,
	}
	for i, c := range columns {
		t.columnIndex[c.Name] = i
		if c.PrimaryKey && t.PrimaryKeyIndex == -1 {
			t.PrimaryKeyIndex = i
		}
	}
	return t
}

// ColumnIndex resolves a column name to its position, exact match first
// then case-insensitive fallback. Returns -1 if not found.
func (t *Table) ColumnIndex(name string) int {
	if idx, ok := t.columnIndex[name]; ok {
		return idx
	}
	lower := strings.ToLower(name)
	for n, idx := range t.columnIndex {
		if strings.ToLower(n) == lower {
			return idx
		}
	}
	return -1
}

// InsertRow validates arity, type compatibility, and NOT NULL before
// appending. Only the YAML loader calls this; the query engine never
// mutates row storage.
func (t *Table) InsertRow(row []value.Value) error {
	if len(row) != len(t.Columns) {
		return yamlerr.New(yamlerr.KindType, "row has %d values but table %q has %d columns", len(row), t.Name, len(t.Columns))
	}
	for i, v := range row {
		col := t.Columns[i]
		if !v.IsCompatible(col.Type) {
			return yamlerr.New(yamlerr.KindType, "value %v is not compatible with column %q of type %s", v, col.Name, col.Type)
		}
		if !col.Nullable && v.IsNull() {
			return yamlerr.New(yamlerr.KindType, "column %q cannot be NULL", col.Name)
		}
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Auth holds the optional credentials declared in the YAML file's
// database.auth block, which override CLI-supplied credentials when
// present (spec.md §6).
type Auth struct {
	Username string
	Password string
}

// Database is an ordered, named collection of tables.
type Database struct {
	Name   string
	Auth   *Auth // nil if not declared in the YAML file
	order  []string
	tables map[string]*Table
}

func NewDatabase(name string) *Database {
	return &Database{Name: name, tables: make(map[string]*Table)}
}

// AddTable fails if a table with the same name already exists.
func (d *Database) AddTable(t *Table) error {
	if _, ok := d.tables[t.Name]; ok {
		return yamlerr.New(yamlerr.KindType, "table %q already exists", t.Name)
	}
	d.tables[t.Name] = t
	d.order = append(d.order, t.Name)
	return nil
}

// GetTable resolves exact-then-case-insensitive, matching spec.md §3.
func (d *Database) GetTable(name string) (*Table, bool) {
	if t, ok := d.tables[name]; ok {
		return t, true
	}
	lower := strings.ToLower(name)
	for n, t := range d.tables {
		if strings.ToLower(n) == lower {
			return t, true
		}
	}
	return nil, false
}

// TableNames returns table names in declaration order.
func (d *Database) TableNames() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}
