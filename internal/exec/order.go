package exec

import (
	"sort"
	"strings"

	"github.com/yamldb/yamldb/internal/eval"
	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

// maxLimit mirrors spec.md §4.5's "LIMIT must be a non-negative integer
// literal less than 10^9" edge case.
const maxLimit = 1_000_000_000

// compareForSort is value.Value.Compare as a free function so sort
// comparators read left-to-right; Null sorts lowest per spec.md §3, which
// Compare already implements.
func compareForSort(a, b value.Value) (value.Ordering, bool) {
	return a.Compare(b)
}

func upperName(s string) string { return strings.ToUpper(s) }

// applyOrderBy sorts result.Rows (and the parallel rowEnvs, so later
// LIMIT/OFFSET stay aligned) by the ORDER BY list, evaluated against each
// row's own Env so it can reference either a projected alias or an
// underlying join column per spec.md §4.5 step 8.
func (x *Executor) applyOrderBy(result *Result, rowEnvs []*eval.Env, orderBy []ast.OrderByExpr, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) error {
	if len(orderBy) == 0 {
		return nil
	}
	if len(rowEnvs) != len(result.Rows) {
		// Set-operation results (UNION) carry no per-row Env; order by
		// output column name/position only.
		return sortByColumns(result, orderBy)
	}

	idx := make([]int, len(result.Rows))
	for i := range idx {
		idx[i] = i
	}
	var sortErr error
	sort.SliceStable(idx, func(i, j int) bool {
		ei, ej := rowEnvs[idx[i]], rowEnvs[idx[j]]
		for _, ob := range orderBy {
			vi, err := eval.Eval(ob.Expr, ei)
			if err != nil {
				sortErr = err
				return false
			}
			vj, err := eval.Eval(ob.Expr, ej)
			if err != nil {
				sortErr = err
				return false
			}
			ord, ok := compareForSort(vi, vj)
			if !ok || ord == value.Equal {
				continue
			}
			if ob.Asc {
				return ord == value.Less
			}
			return ord == value.Greater
		}
		return false
	})
	if sortErr != nil {
		return sortErr
	}

	newRows := make([][]value.Value, len(result.Rows))
	newEnvs := make([]*eval.Env, len(rowEnvs))
	for i, j := range idx {
		newRows[i] = result.Rows[j]
		newEnvs[i] = rowEnvs[j]
	}
	result.Rows = newRows
	copy(rowEnvs, newEnvs)
	return nil
}

// sortByColumns orders a UNION's rows using only the projected output
// columns, since set-operation results don't carry per-row Envs into
// underlying join columns.
func sortByColumns(result *Result, orderBy []ast.OrderByExpr) error {
	positions := make([]int, len(orderBy))
	ascs := make([]bool, len(orderBy))
	for i, ob := range orderBy {
		ident, ok := ob.Expr.(*ast.Ident)
		if !ok {
			return yamlerr.New(yamlerr.KindNotImplemented, "ORDER BY after UNION only supports output column names")
		}
		pos := -1
		for c, name := range result.Columns {
			if strings.EqualFold(name, ident.Name) {
				pos = c
				break
			}
		}
		if pos < 0 {
			return yamlerr.New(yamlerr.KindNotFound, "column %q does not exist in result set", ident.Name)
		}
		positions[i] = pos
		ascs[i] = ob.Asc
	}
	sort.SliceStable(result.Rows, func(i, j int) bool {
		ri, rj := result.Rows[i], result.Rows[j]
		for k, pos := range positions {
			ord, ok := compareForSort(ri[pos], rj[pos])
			if !ok || ord == value.Equal {
				continue
			}
			if ascs[k] {
				return ord == value.Less
			}
			return ord == value.Greater
		}
		return false
	})
	return nil
}

// applyLimitOffset evaluates and validates the LIMIT/OFFSET expressions
// (constant, per spec.md §4.3 grammar) and slices result.Rows.
func (x *Executor) applyLimitOffset(result *Result, limitExpr, offsetExpr ast.Expr, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) (*Result, error) {
	env := x.newEnv(&eval.Row{}, bindings, parentEnv)

	offset := 0
	if offsetExpr != nil {
		n, err := evalNonNegativeInt(offsetExpr, env, "OFFSET")
		if err != nil {
			return nil, err
		}
		offset = n
	}

	limit := -1
	if limitExpr != nil {
		n, err := evalNonNegativeInt(limitExpr, env, "LIMIT")
		if err != nil {
			return nil, err
		}
		if n >= maxLimit {
			return nil, yamlerr.New(yamlerr.KindType, "Database: LIMIT too large")
		}
		limit = n
	}

	rows := result.Rows
	if offset >= len(rows) {
		rows = nil
	} else {
		rows = rows[offset:]
	}
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	result.Rows = rows
	return result, nil
}

func evalNonNegativeInt(e ast.Expr, env *eval.Env, clause string) (int, error) {
	v, err := eval.Eval(e, env)
	if err != nil {
		return 0, err
	}
	if v.Kind != value.Integer {
		return 0, yamlerr.New(yamlerr.KindType, "%s must be an integer", clause)
	}
	if v.I64 < 0 {
		if clause == "LIMIT" {
			return 0, yamlerr.New(yamlerr.KindType, "Database: LIMIT must be non-negative")
		}
		return 0, yamlerr.New(yamlerr.KindType, "Database: OFFSET must be non-negative")
	}
	return int(v.I64), nil
}

// reprojectAfterWindows re-evaluates the projection list once window
// function results have been stashed in each row's Env.WindowValues, so
// ROW_NUMBER()/LAG()/etc. appear in the final output.
func reprojectAfterWindows(items []ast.SelectItem, envs []*eval.Env) ([]string, [][]value.Value, error) {
	var colNames []string
	var outRows [][]value.Value
	for _, env := range envs {
		names, vals, err := evalProjection(items, env.Row, env)
		if err != nil {
			return nil, nil, err
		}
		if colNames == nil {
			colNames = names
		}
		outRows = append(outRows, vals)
	}
	if colNames == nil {
		colNames, _, _ = projectionNamesOnly(items, &eval.Row{})
	}
	return colNames, outRows, nil
}
