package exec

import (
	"strings"

	"github.com/yamldb/yamldb/internal/eval"
	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

// groupState accumulates one GROUP BY bucket: the first row's env (used
// to resolve group-by columns and any deterministic expression over
// them in the projection) and one aggregator per distinct aggregate
// call site appearing in the projection/HAVING.
type groupState struct {
	repRow *eval.Row
	aggs   map[*ast.FuncCall]aggregator
}

// projectGrouped implements spec.md §4.5 step 4: bucket filtered rows by
// the GROUP BY key (or a single implicit group when there's no GROUP BY
// but the projection/HAVING has aggregates), fold aggregate state across
// each bucket's rows in order, then evaluate HAVING and the projection
// once per group.
func (x *Executor) projectGrouped(sel *ast.Select, rows []*eval.Row, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) ([]string, [][]value.Value, []*eval.Env, error) {
	projExprs := make([]ast.Expr, 0, len(sel.Projection))
	for _, item := range sel.Projection {
		if !item.Wildcard {
			projExprs = append(projExprs, item.Expr)
		}
	}
	aggCalls := collectAggregateCalls(append(append([]ast.Expr{}, projExprs...), sel.Having)...)

	var order []string
	groups := map[string]*groupState{}

	for _, row := range rows {
		rowEnv := x.newEnv(row, bindings, parentEnv)
		key, err := groupKey(sel.GroupBy, rowEnv)
		if err != nil {
			return nil, nil, nil, err
		}
		gs, ok := groups[key]
		if !ok {
			gs = &groupState{repRow: row, aggs: map[*ast.FuncCall]aggregator{}}
			for _, call := range aggCalls {
				gs.aggs[call] = newAggregator(call)
			}
			groups[key] = gs
			order = append(order, key)
		}
		for _, call := range aggCalls {
			if err := gs.aggs[call].Add(call, rowEnv); err != nil {
				return nil, nil, nil, err
			}
		}
	}

	// A bare aggregate with no GROUP BY and no input rows still produces
	// one group (e.g. SELECT COUNT(*) FROM empty_table => 0), per
	// spec.md §8 "SUM over an empty set is NULL".
	if len(order) == 0 && len(sel.GroupBy) == 0 {
		gs := &groupState{repRow: &eval.Row{}, aggs: map[*ast.FuncCall]aggregator{}}
		for _, call := range aggCalls {
			gs.aggs[call] = newAggregator(call)
		}
		groups[""] = gs
		order = append(order, "")
	}

	var colNames []string
	var outRows [][]value.Value
	var outEnvs []*eval.Env

	for _, key := range order {
		gs := groups[key]
		groupEnv := x.newEnv(gs.repRow, bindings, parentEnv)
		for call, agg := range gs.aggs {
			groupEnv.AggValues[call] = agg.Result()
		}

		if sel.Having != nil {
			hv, err := eval.Eval(sel.Having, groupEnv)
			if err != nil {
				return nil, nil, nil, err
			}
			if !eval.IsFilterTrue(hv) {
				continue
			}
		}

		names, vals, err := evalProjection(sel.Projection, gs.repRow, groupEnv)
		if err != nil {
			return nil, nil, nil, err
		}
		if colNames == nil {
			colNames = names
		}
		outRows = append(outRows, vals)
		outEnvs = append(outEnvs, envWithAliases(groupEnv, names, vals))
	}

	if colNames == nil {
		colNames, _, _ = projectionNamesOnly(sel.Projection, &eval.Row{})
	}
	return colNames, outRows, outEnvs, nil
}

func groupKey(exprs []ast.Expr, env *eval.Env) (string, error) {
	if len(exprs) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, e := range exprs {
		v, err := eval.Eval(e, env)
		if err != nil {
			return "", err
		}
		b.WriteString(v.Key())
		b.WriteByte(0)
	}
	return b.String(), nil
}

// aggregator accumulates one aggregate call's state across a group's
// rows, evaluating its argument expression per row before folding (so
// SUM(price*qty) computes the product per row, then sums), per spec.md
// §4.5 step 4.
type aggregator interface {
	Add(call *ast.FuncCall, rowEnv *eval.Env) error
	Result() value.Value
}

func newAggregator(call *ast.FuncCall) aggregator {
	switch strings.ToUpper(call.Name) {
	case "COUNT":
		return &countAgg{distinct: call.Distinct, seen: map[string]bool{}}
	case "SUM":
		return &sumAgg{}
	case "AVG":
		return &avgAgg{}
	case "MIN":
		return &minMaxAgg{wantMax: false}
	case "MAX":
		return &minMaxAgg{wantMax: true}
	default:
		return &noopAgg{}
	}
}

type noopAgg struct{}

func (*noopAgg) Add(*ast.FuncCall, *eval.Env) error { return nil }
func (*noopAgg) Result() value.Value                { return value.NewNull() }

type countAgg struct {
	distinct bool
	seen     map[string]bool
	n        int64
}

func (a *countAgg) Add(call *ast.FuncCall, rowEnv *eval.Env) error {
	if call.Star {
		a.n++
		return nil
	}
	v, err := eval.Eval(call.Args[0], rowEnv)
	if err != nil {
		return err
	}
	if v.IsNull() {
		return nil
	}
	if a.distinct {
		key := v.Key()
		if a.seen[key] {
			return nil
		}
		a.seen[key] = true
	}
	a.n++
	return nil
}

func (a *countAgg) Result() value.Value { return value.NewInteger(a.n) }

type sumAgg struct {
	has bool
	sum value.Value
}

func (a *sumAgg) Add(call *ast.FuncCall, rowEnv *eval.Env) error {
	v, err := eval.Eval(call.Args[0], rowEnv)
	if err != nil {
		return err
	}
	if v.IsNull() {
		return nil
	}
	if !a.has {
		a.has = true
		a.sum = v
		return nil
	}
	sum, err := addNumeric(a.sum, v)
	if err != nil {
		return err
	}
	a.sum = sum
	return nil
}

func (a *sumAgg) Result() value.Value {
	if !a.has {
		return value.NewNull()
	}
	return a.sum
}

type avgAgg struct {
	has bool
	sum value.Value
	n   int64
}

func (a *avgAgg) Add(call *ast.FuncCall, rowEnv *eval.Env) error {
	v, err := eval.Eval(call.Args[0], rowEnv)
	if err != nil {
		return err
	}
	if v.IsNull() {
		return nil
	}
	if !a.has {
		a.has = true
		a.sum = v
	} else {
		sum, err := addNumeric(a.sum, v)
		if err != nil {
			return err
		}
		a.sum = sum
	}
	a.n++
	return nil
}

// Result implements spec.md §4.4's "AVG on integers returns Double";
// AVG on a Decimal input stays Decimal, rounded to 10 decimal places.
func (a *avgAgg) Result() value.Value {
	if !a.has || a.n == 0 {
		return value.NewNull()
	}
	if a.sum.Kind == value.Decimal {
		return value.NewDecimal(a.sum.Dec.DivRound(decimalFromInt(a.n), 10))
	}
	f := toFloatForAvg(a.sum)
	return value.NewDouble(f / float64(a.n))
}

type minMaxAgg struct {
	wantMax bool
	has     bool
	best    value.Value
}

func (a *minMaxAgg) Add(call *ast.FuncCall, rowEnv *eval.Env) error {
	v, err := eval.Eval(call.Args[0], rowEnv)
	if err != nil {
		return err
	}
	if v.IsNull() {
		return nil
	}
	if !a.has {
		a.has = true
		a.best = v
		return nil
	}
	ord, ok := v.Compare(a.best)
	if !ok {
		return yamlerr.New(yamlerr.KindType, "MIN/MAX over incomparable values")
	}
	if (a.wantMax && ord == value.Greater) || (!a.wantMax && ord == value.Less) {
		a.best = v
	}
	return nil
}

func (a *minMaxAgg) Result() value.Value {
	if !a.has {
		return value.NewNull()
	}
	return a.best
}
