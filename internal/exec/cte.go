package exec

import (
	"strings"

	"github.com/yamldb/yamldb/internal/eval"
	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

// runRecursiveCTE implements spec.md §4.5's RECURSIVE CTE evaluation: the
// body must be `<base> UNION [ALL] <recursive-member>` (a SetOpExpr). The
// base is evaluated once; the recursive member is then re-evaluated each
// round with the CTE name bound to only the previous round's new rows,
// accumulating (and, for plain UNION, deduplicating against everything
// seen so far) until a round adds nothing new or the iteration cap hits.
func (x *Executor) runRecursiveCTE(cte *ast.CTE, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) (*Result, error) {
	setOp, ok := cte.Query.Body.(*ast.SetOpExpr)
	if !ok {
		// A RECURSIVE CTE with no self-reference is just a plain CTE.
		return x.runQuery(cte.Query, bindings, parentEnv)
	}

	name := strings.ToLower(cte.Name)
	innerBindings := make(map[string]*eval.QueryResult, len(bindings)+1)
	for k, v := range bindings {
		innerBindings[k] = v
	}

	base, _, err := x.runSetExprWithEnvs(setOp.Left, innerBindings, parentEnv)
	if err != nil {
		return nil, err
	}

	accumulated := append([][]value.Value{}, base.Rows...)
	seen := map[string]bool{}
	if !setOp.All {
		for _, row := range base.Rows {
			seen[rowKey(row)] = true
		}
	}

	limit := x.maxRecursion
	if limit <= 0 {
		limit = defaultMaxRecursion
	}

	working := base.Rows
	for round := 1; len(working) > 0; round++ {
		if round > limit {
			return nil, yamlerr.New(yamlerr.KindResource, "Database: recursion limit exceeded")
		}
		innerBindings[name] = &eval.QueryResult{Columns: base.Columns, Rows: working}
		next, _, err := x.runSetExprWithEnvs(setOp.Right, innerBindings, parentEnv)
		if err != nil {
			return nil, err
		}

		var newRows [][]value.Value
		if setOp.All {
			newRows = next.Rows
		} else {
			for _, row := range next.Rows {
				k := rowKey(row)
				if seen[k] {
					continue
				}
				seen[k] = true
				newRows = append(newRows, row)
			}
		}

		accumulated = append(accumulated, newRows...)
		working = newRows
	}

	return &Result{Columns: base.Columns, Rows: accumulated}, nil
}
