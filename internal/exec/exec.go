// Package exec implements the SELECT query planner/executor (spec.md
// §4.5): CTE materialization, FROM/JOIN environment construction,
// filtering, grouping/aggregation, ORDER BY/LIMIT, window functions, and
// UNION — the tree-walking core that drives internal/eval over rows
// read from internal/schema.
package exec

import (
	"fmt"

	"github.com/yamldb/yamldb/internal/eval"
	"github.com/yamldb/yamldb/internal/schema"
	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

// Result is the tabular output of one executed statement.
type Result struct {
	Columns []string
	Rows    [][]value.Value
	// Tag is the protocol-facing command tag, e.g. "SELECT 3".
	Tag string
}

// Executor runs parsed statements against a single Database snapshot.
// One Executor is constructed per query so that every nested CTE/
// subquery sees the exact same snapshot (spec.md §4.2's "nested reads
// within one query must be consistent").
type Executor struct {
	db           *schema.Database
	storage      *schema.Storage // optional; enables the PK index fast path
	maxRecursion int
	params       []value.Value
}

const defaultMaxRecursion = 1000

// New constructs an Executor against a fixed database snapshot. Callers
// obtain db via Storage.Snapshot() once per incoming query so that the
// whole statement (including nested CTEs/subqueries) observes one
// consistent version, per spec.md §4.2/§5. storage, when non-nil, lets
// a bare `WHERE pk = <literal>` probe Storage's PK index (spec.md §3)
// instead of scanning every row; pass nil to always fall back to a full
// scan (e.g. when db didn't come from a live Storage).
func New(db *schema.Database, storage *schema.Storage) *Executor {
	return &Executor{db: db, storage: storage, maxRecursion: defaultMaxRecursion}
}

// Execute runs a top-level statement. Only ast.QueryStatement (a SELECT-
// shaped statement) is supported; anything else is NotImplemented.
func (x *Executor) Execute(stmt ast.Statement) (*Result, error) {
	qs, ok := stmt.(*ast.QueryStatement)
	if !ok {
		return nil, yamlerr.NotImplemented("only SELECT statements are supported")
	}
	res, err := x.runQuery(qs.Query, nil, nil)
	if err != nil {
		return nil, err
	}
	res.Tag = fmt.Sprintf("SELECT %d", len(res.Rows))
	return res, nil
}

// RunSubquery implements eval.SubqueryRunner for scalar/IN/EXISTS
// subqueries, threading the calling Env through as Parent so correlated
// references to the outer row resolve (spec.md §4.4).
func (x *Executor) RunSubquery(q *ast.Query, callerEnv *eval.Env) (*eval.QueryResult, error) {
	res, err := x.runQuery(q, bindingsOf(callerEnv), callerEnv)
	if err != nil {
		return nil, err
	}
	return &eval.QueryResult{Columns: res.Columns, Rows: res.Rows}, nil
}

func bindingsOf(env *eval.Env) map[string]*eval.QueryResult {
	if env == nil {
		return nil
	}
	return env.Bindings
}
