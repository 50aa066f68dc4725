package exec

import (
	"strings"

	"github.com/yamldb/yamldb/internal/eval"
	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

// SetParams binds $1.. parameter values for the extended-protocol Execute
// path (spec.md §4.6); the simple-query path never calls this.
func (x *Executor) SetParams(params []value.Value) { x.params = params }

func (x *Executor) newEnv(row *eval.Row, bindings map[string]*eval.QueryResult, parent *eval.Env) *eval.Env {
	env := eval.NewEnv(row, x)
	env.Bindings = bindings
	env.Params = x.params
	env.Parent = parent
	return env
}

// runQuery materializes CTEs (including RECURSIVE), evaluates the query
// body, then applies the outer ORDER BY/LIMIT/OFFSET.
func (x *Executor) runQuery(q *ast.Query, outerBindings map[string]*eval.QueryResult, parentEnv *eval.Env) (*Result, error) {
	bindings := make(map[string]*eval.QueryResult, len(outerBindings))
	for k, v := range outerBindings {
		bindings[k] = v
	}

	if q.With != nil {
		for _, cte := range q.With.CTEs {
			var res *Result
			var err error
			if q.With.Recursive {
				res, err = x.runRecursiveCTE(&cte, bindings, parentEnv)
			} else {
				res, err = x.runQuery(cte.Query, bindings, parentEnv)
			}
			if err != nil {
				return nil, err
			}
			bindings[strings.ToLower(cte.Name)] = &eval.QueryResult{Columns: res.Columns, Rows: res.Rows}
		}
	}

	result, rowEnvs, err := x.runSetExprWithEnvs(q.Body, bindings, parentEnv)
	if err != nil {
		return nil, err
	}

	if len(q.OrderBy) > 0 {
		if err := x.applyOrderBy(result, rowEnvs, q.OrderBy, bindings, parentEnv); err != nil {
			return nil, err
		}
	}

	result, err = x.applyLimitOffset(result, q.Limit, q.Offset, bindings, parentEnv)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// runSetExprWithEnvs evaluates a SetExpr and, for the plain-Select case
// only, also returns one eval.Env per output row so ORDER BY can
// reference arbitrary underlying expressions, not just output columns
// (spec.md §4.5 step 5). A UNION's rows get nil envs since standard SQL
// only allows ordering a set operation's result by its output columns.
func (x *Executor) runSetExprWithEnvs(se ast.SetExpr, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) (*Result, []*eval.Env, error) {
	switch e := se.(type) {
	case *ast.SelectExpr:
		return x.runSelect(e.Select, bindings, parentEnv)
	case *ast.SetOpExpr:
		res, err := x.runSetOp(e, bindings, parentEnv)
		return res, nil, err
	default:
		return nil, nil, yamlerr.NotImplemented("set expression %T", se)
	}
}

func (x *Executor) runSetOp(e *ast.SetOpExpr, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) (*Result, error) {
	left, _, err := x.runSetExprWithEnvs(e.Left, bindings, parentEnv)
	if err != nil {
		return nil, err
	}
	right, _, err := x.runSetExprWithEnvs(e.Right, bindings, parentEnv)
	if err != nil {
		return nil, err
	}
	if len(left.Columns) != len(right.Columns) {
		return nil, yamlerr.New(yamlerr.KindType, "UNION operands must have the same number of columns")
	}
	rows := append(append([][]value.Value{}, left.Rows...), right.Rows...)
	if !e.All {
		rows = dedupeRows(rows)
	}
	return &Result{Columns: left.Columns, Rows: rows}, nil
}

func dedupeRows(rows [][]value.Value) [][]value.Value {
	seen := map[string]bool{}
	var out [][]value.Value
	for _, row := range rows {
		key := rowKey(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}

func rowKey(row []value.Value) string {
	var b strings.Builder
	for _, v := range row {
		b.WriteString(v.Key())
		b.WriteByte(0)
	}
	return b.String()
}
