package exec

import (
	"strings"

	"github.com/yamldb/yamldb/internal/eval"
	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
)

// runSelect implements spec.md §4.5 steps 2-4, 7: FROM/JOIN, WHERE,
// GROUP BY/HAVING/projection, and the window-function pass. It returns
// one Env per output row (the environment the projection was evaluated
// against) so the caller's ORDER BY can reference arbitrary underlying
// expressions, not just the projected output columns.
func (x *Executor) runSelect(sel *ast.Select, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) (*Result, []*eval.Env, error) {
	joinRows, err := x.fastPathOrBuildFrom(sel, bindings, parentEnv)
	if err != nil {
		return nil, nil, err
	}

	var filteredRows []*eval.Row
	for _, row := range joinRows {
		if sel.Where == nil {
			filteredRows = append(filteredRows, row)
			continue
		}
		env := x.newEnv(row, bindings, parentEnv)
		v, err := eval.Eval(sel.Where, env)
		if err != nil {
			return nil, nil, err
		}
		if eval.IsFilterTrue(v) {
			filteredRows = append(filteredRows, row)
		}
	}

	projExprs := make([]ast.Expr, 0, len(sel.Projection))
	for _, item := range sel.Projection {
		if !item.Wildcard {
			projExprs = append(projExprs, item.Expr)
		}
	}
	needsGrouping := len(sel.GroupBy) > 0 || anyContainsAggregate(projExprs) || containsAggregate(sel.Having)

	var outRows [][]value.Value
	var outEnvs []*eval.Env
	var colNames []string

	if !needsGrouping {
		colNames, outRows, outEnvs, err = x.projectRows(sel.Projection, filteredRows, bindings, parentEnv)
		if err != nil {
			return nil, nil, err
		}
	} else {
		colNames, outRows, outEnvs, err = x.projectGrouped(sel, filteredRows, bindings, parentEnv)
		if err != nil {
			return nil, nil, err
		}
	}

	windowCalls := collectWindowCalls(projExprs...)
	if len(windowCalls) > 0 {
		if err := x.applyWindows(windowCalls, outEnvs); err != nil {
			return nil, nil, err
		}
		// Re-project so window-function results flow into the output.
		colNames, outRows, err = reprojectAfterWindows(sel.Projection, outEnvs)
		if err != nil {
			return nil, nil, err
		}
	}

	if sel.Distinct {
		outRows = dedupeRows(outRows)
	}

	return &Result{Columns: colNames, Rows: outRows}, outEnvs, nil
}

func anyContainsAggregate(exprs []ast.Expr) bool {
	for _, e := range exprs {
		if containsAggregate(e) {
			return true
		}
	}
	return false
}

// projectRows evaluates the projection list row-by-row with no
// aggregation, expanding `*`/`alias.*` wildcards against the join row.
func (x *Executor) projectRows(items []ast.SelectItem, rows []*eval.Row, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) ([]string, [][]value.Value, []*eval.Env, error) {
	var colNames []string
	var outRows [][]value.Value
	var outEnvs []*eval.Env

	for _, row := range rows {
		env := x.newEnv(row, bindings, parentEnv)
		names, vals, err := evalProjection(items, row, env)
		if err != nil {
			return nil, nil, nil, err
		}
		if colNames == nil {
			colNames = names
		}
		outRows = append(outRows, vals)
		outEnvs = append(outEnvs, envWithAliases(env, names, vals))
	}
	if colNames == nil {
		// No rows matched; still need the column list for RowDescription.
		colNames, _, _ = projectionNamesOnly(items, &eval.Row{})
	}
	return colNames, outRows, outEnvs, nil
}

func evalProjection(items []ast.SelectItem, row *eval.Row, env *eval.Env) ([]string, []value.Value, error) {
	var names []string
	var vals []value.Value
	for _, item := range items {
		if item.Wildcard {
			n, v := expandWildcard(item.WildcardQual, row)
			names = append(names, n...)
			vals = append(vals, v...)
			continue
		}
		v, err := eval.Eval(item.Expr, env)
		if err != nil {
			return nil, nil, err
		}
		names = append(names, projectionName(item))
		vals = append(vals, v)
	}
	return names, vals, nil
}

func projectionNamesOnly(items []ast.SelectItem, row *eval.Row) ([]string, []value.Value, error) {
	var names []string
	for _, item := range items {
		if item.Wildcard {
			n, _ := expandWildcard(item.WildcardQual, row)
			names = append(names, n...)
			continue
		}
		names = append(names, projectionName(item))
	}
	return names, nil, nil
}

func expandWildcard(qual string, row *eval.Row) ([]string, []value.Value) {
	var names []string
	var vals []value.Value
	for i, c := range row.Cols {
		if qual != "" && !strings.EqualFold(c.Qualifier, qual) {
			continue
		}
		names = append(names, c.Name)
		vals = append(vals, row.Vals[i])
	}
	return names, vals
}

func projectionName(item ast.SelectItem) string {
	if item.Alias != "" {
		return item.Alias
	}
	return deriveColumnName(item.Expr)
}

func deriveColumnName(e ast.Expr) string {
	switch n := e.(type) {
	case *ast.Ident:
		return n.Name
	case *ast.FuncCall:
		return strings.ToLower(n.Name)
	case *ast.Cast:
		return "?column?"
	default:
		return "?column?"
	}
}

// envWithAliases layers the projection's output columns (unqualified, by
// alias/derived name) on top of the source row so ORDER BY can reference
// either the underlying join columns or a SELECT alias.
func envWithAliases(src *eval.Env, names []string, vals []value.Value) *eval.Env {
	aliasCols := make([]eval.ColumnRef, len(names))
	for i, n := range names {
		aliasCols[i] = eval.ColumnRef{Qualifier: "", Name: n}
	}
	var base eval.Row
	if src.Row != nil {
		base = *src.Row
	}
	merged := &eval.Row{
		Cols: append(append([]eval.ColumnRef{}, aliasCols...), base.Cols...),
		Vals: append(append([]value.Value{}, vals...), base.Vals...),
	}
	return src.WithRow(merged)
}
