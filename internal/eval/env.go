// Package eval implements the scalar expression evaluator (spec.md §4.4):
// it walks an ast.Expr against a current row, a join environment, and a
// bindings map for CTE/subquery results, calling back into internal/exec
// for subquery execution.
package eval

import (
	"strings"
	"time"

	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
)

// Row is one materialized row: an ordered list of (qualifier, column,
// value) triples built by the join/FROM stage. Qualifier is the table
// alias or name; it may be "" for projected/derived columns (CTE output,
// subquery columns) that have no table qualifier.
type Row struct {
	Cols []ColumnRef
	Vals []value.Value
}

type ColumnRef struct {
	Qualifier string
	Name      string
}

// Lookup resolves a column reference against the row, exact name match
// first then case-insensitive, honoring an optional qualifier. Returns
// ok=false if nothing matches.
func (r *Row) Lookup(qualifier, name string) (value.Value, bool) {
	// First pass: exact name, respecting qualifier if given.
	for i, c := range r.Cols {
		if qualifier != "" && !strings.EqualFold(c.Qualifier, qualifier) {
			continue
		}
		if c.Name == name {
			return r.Vals[i], true
		}
	}
	// Second pass: case-insensitive name.
	lower := strings.ToLower(name)
	for i, c := range r.Cols {
		if qualifier != "" && !strings.EqualFold(c.Qualifier, qualifier) {
			continue
		}
		if strings.ToLower(c.Name) == lower {
			return r.Vals[i], true
		}
	}
	return value.Value{}, false
}

// SubqueryRunner is implemented by internal/exec.Executor and lets the
// evaluator run scalar/EXISTS/IN subqueries without an import cycle
// between eval and exec.
type SubqueryRunner interface {
	RunSubquery(q *ast.Query, env *Env) (*QueryResult, error)
}

// QueryResult is the minimal shape eval needs from a subquery's result;
// internal/exec.Result satisfies this via an adapter so eval never
// depends on exec's concrete types.
type QueryResult struct {
	Columns []string
	Rows    [][]value.Value
}

// Env carries everything Eval needs beyond the expression tree itself:
// the current row (nil outside of a row context, e.g. CURRENT_DATE-only
// expressions), named CTE/derived-table bindings, bound $N parameters,
// and a handle back into the executor for subqueries.
type Env struct {
	Row      *Row
	Bindings map[string]*QueryResult
	Params   []value.Value
	Runner   SubqueryRunner
	Now      func() time.Time // CURRENT_TIMESTAMP/CURRENT_DATE source, overridable for tests

	// AggValues and WindowValues hold exec's precomputed per-row results
	// for aggregate/window FuncCall nodes, keyed by AST node identity
	// (the same *ast.FuncCall recurs across every row of one query plan).
	AggValues    map[*ast.FuncCall]value.Value
	WindowValues map[*ast.FuncCall]value.Value

	// Parent is the enclosing query's Env, consulted by column lookup
	// when a correlated subquery references an outer-query column that
	// isn't present in the subquery's own join environment.
	Parent *Env
}

func NewEnv(row *Row, runner SubqueryRunner) *Env {
	return &Env{
		Row:          row,
		Runner:       runner,
		Bindings:     map[string]*QueryResult{},
		Now:          time.Now,
		AggValues:    map[*ast.FuncCall]value.Value{},
		WindowValues: map[*ast.FuncCall]value.Value{},
	}
}

// WithRow returns a shallow copy of e bound to a different row, sharing
// Bindings/Params/Runner/AggValues/WindowValues — used to evaluate the
// same projection expression across every row of a result set.
func (e *Env) WithRow(row *Row) *Env {
	cp := *e
	cp.Row = row
	return &cp
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
