package exec

import (
	"strings"

	"github.com/yamldb/yamldb/internal/eval"
	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

// joinEnv is a materialized row environment with its column shape
// tracked alongside the rows, so the shape survives even when Rows is
// empty (needed to synthesize an all-NULL row for an outer join against
// an empty table).
type joinEnv struct {
	Cols []eval.ColumnRef
	Rows []*eval.Row
}

func (j joinEnv) nullRow() *eval.Row {
	vals := make([]value.Value, len(j.Cols))
	for i := range vals {
		vals[i] = value.NewNull()
	}
	return &eval.Row{Cols: j.Cols, Vals: vals}
}

// fastPathOrBuildFrom tries the PK index probe first and falls back to the
// ordinary FROM/JOIN resolution whenever the fast path doesn't apply.
func (x *Executor) fastPathOrBuildFrom(sel *ast.Select, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) ([]*eval.Row, error) {
	if env, ok := x.tryPKFastPath(sel, bindings); ok {
		return env.Rows, nil
	}
	return x.buildFrom(sel.From, bindings, parentEnv)
}

// buildFrom resolves the comma-separated FROM list (each item already a
// fully-joined chain per its own Joins) and Cartesian-products the
// top-level items together, per spec.md §4.5 step 2.
func (x *Executor) buildFrom(from []ast.TableExpr, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) ([]*eval.Row, error) {
	if len(from) == 0 {
		// `SELECT <expr>` with no FROM: a single row with no columns.
		return []*eval.Row{{}}, nil
	}

	env, err := x.resolveTableChain(from[0], bindings, parentEnv)
	if err != nil {
		return nil, err
	}
	for _, te := range from[1:] {
		next, err := x.resolveTableChain(te, bindings, parentEnv)
		if err != nil {
			return nil, err
		}
		env = crossProduct(env, next)
	}
	return env.Rows, nil
}

// resolveTableChain resolves one top-level FROM item and left-folds its
// (possibly empty) chain of JOINs onto it.
func (x *Executor) resolveTableChain(te ast.TableExpr, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) (joinEnv, error) {
	env, err := x.resolveBase(te, bindings, parentEnv)
	if err != nil {
		return joinEnv{}, err
	}
	for _, j := range te.Joins {
		right, err := x.resolveBase(j.Table, bindings, parentEnv)
		if err != nil {
			return joinEnv{}, err
		}
		env, err = x.applyJoin(env, right, j, bindings, parentEnv)
		if err != nil {
			return joinEnv{}, err
		}
	}
	return env, nil
}

// resolveBase resolves one table factor: a CTE name, a base table, or a
// derived table (parenthesized subquery), to a fully materialized list
// of rows qualified by its alias.
func (x *Executor) resolveBase(te ast.TableExpr, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) (joinEnv, error) {
	var colNames []string
	var rows [][]value.Value

	switch {
	case te.Subquery != nil:
		res, err := x.runQuery(te.Subquery, bindings, parentEnv)
		if err != nil {
			return joinEnv{}, err
		}
		colNames, rows = res.Columns, res.Rows
	case te.Name != "":
		if cte, ok := bindings[strings.ToLower(te.Name)]; ok {
			colNames, rows = cte.Columns, cte.Rows
		} else {
			t, ok := x.db.GetTable(te.Name)
			if !ok {
				return joinEnv{}, yamlerr.New(yamlerr.KindNotFound, "table %q not found", te.Name)
			}
			colNames = make([]string, len(t.Columns))
			for i, c := range t.Columns {
				colNames[i] = c.Name
			}
			rows = t.Rows
		}
	default:
		return joinEnv{}, yamlerr.NotImplemented("empty table reference")
	}

	alias := te.Alias
	if alias == "" {
		alias = te.Name
	}
	cols := make([]eval.ColumnRef, len(colNames))
	for i, n := range colNames {
		cols[i] = eval.ColumnRef{Qualifier: alias, Name: n}
	}

	out := make([]*eval.Row, len(rows))
	for i, r := range rows {
		vals := make([]value.Value, len(r))
		copy(vals, r)
		out[i] = &eval.Row{Cols: cols, Vals: vals}
	}
	return joinEnv{Cols: cols, Rows: out}, nil
}

// tryPKFastPath recognizes `SELECT ... FROM t [AS alias] WHERE pk = <literal>`
// (a single base table, no joins, no CTE/subquery, the bare equality as the
// entire WHERE clause) and probes storage.FindByPK for the one matching row
// instead of scanning the whole table (spec.md §3's PK index). ok is false
// for any other shape, whenever FindByPK reports no row (including when
// x.db is no longer the live snapshot), or when no Storage was wired to
// this Executor; the caller must fall back to buildFrom in that case.
func (x *Executor) tryPKFastPath(sel *ast.Select, bindings map[string]*eval.QueryResult) (joinEnv, bool) {
	if x.storage == nil || sel.Where == nil || len(sel.From) != 1 {
		return joinEnv{}, false
	}
	te := sel.From[0]
	if te.Subquery != nil || len(te.Joins) > 0 || te.Name == "" {
		return joinEnv{}, false
	}
	if _, isCTE := bindings[strings.ToLower(te.Name)]; isCTE {
		return joinEnv{}, false
	}
	t, ok := x.db.GetTable(te.Name)
	if !ok || t.PrimaryKeyIndex < 0 {
		return joinEnv{}, false
	}
	lit, ok := identLiteralPair(sel.Where, te.Alias, te.Name, t.Columns[t.PrimaryKeyIndex].Name)
	if !ok {
		return joinEnv{}, false
	}
	key, err := eval.Eval(lit, nil)
	if err != nil {
		return joinEnv{}, false
	}

	alias := te.Alias
	if alias == "" {
		alias = te.Name
	}
	cols := make([]eval.ColumnRef, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = eval.ColumnRef{Qualifier: alias, Name: c.Name}
	}

	row, found := x.storage.FindByPK(x.db, t.Name, key)
	if !found {
		return joinEnv{}, false
	}
	return joinEnv{Cols: cols, Rows: []*eval.Row{{Cols: cols, Vals: row}}}, true
}

// identLiteralPair reports whether expr is exactly `ident = literal` or
// `literal = ident`, where ident names pkCol and, if qualified, qualifies
// to alias or tableName. It returns the literal operand.
func identLiteralPair(expr ast.Expr, alias, tableName, pkCol string) (*ast.Literal, bool) {
	bin, ok := expr.(*ast.BinaryOp)
	if !ok || bin.Op != ast.OpEq {
		return nil, false
	}
	if lit, ok := matchIdentSide(bin.Left, bin.Right, alias, tableName, pkCol); ok {
		return lit, true
	}
	return matchIdentSide(bin.Right, bin.Left, alias, tableName, pkCol)
}

func matchIdentSide(identSide, litSide ast.Expr, alias, tableName, pkCol string) (*ast.Literal, bool) {
	id, ok := identSide.(*ast.Ident)
	if !ok || !strings.EqualFold(id.Name, pkCol) {
		return nil, false
	}
	if id.Qualifier != "" && !strings.EqualFold(id.Qualifier, alias) && !strings.EqualFold(id.Qualifier, tableName) {
		return nil, false
	}
	lit, ok := litSide.(*ast.Literal)
	if !ok {
		return nil, false
	}
	return lit, true
}

// crossProduct computes the Cartesian product of two row environments,
// used both for comma-separated FROM items and CROSS JOIN.
func crossProduct(left, right joinEnv) joinEnv {
	cols := append(append([]eval.ColumnRef{}, left.Cols...), right.Cols...)
	out := make([]*eval.Row, 0, len(left.Rows)*len(right.Rows))
	for _, l := range left.Rows {
		for _, r := range right.Rows {
			out = append(out, mergeRows(l, r))
		}
	}
	return joinEnv{Cols: cols, Rows: out}
}

func mergeRows(l, r *eval.Row) *eval.Row {
	cols := make([]eval.ColumnRef, 0, len(l.Cols)+len(r.Cols))
	vals := make([]value.Value, 0, len(l.Vals)+len(r.Vals))
	cols = append(cols, l.Cols...)
	cols = append(cols, r.Cols...)
	vals = append(vals, l.Vals...)
	vals = append(vals, r.Vals...)
	return &eval.Row{Cols: cols, Vals: vals}
}

// applyJoin implements INNER/LEFT/RIGHT/FULL/CROSS per spec.md §4.5 step
// 2. The ON predicate, when present, is evaluated against the full
// combined row (arbitrary AND-chains of equality/IN/NOT IN/comparisons),
// never reduced to an equi-join.
func (x *Executor) applyJoin(left, right joinEnv, j ast.Join, bindings map[string]*eval.QueryResult, parentEnv *eval.Env) (joinEnv, error) {
	cols := append(append([]eval.ColumnRef{}, left.Cols...), right.Cols...)

	if j.Kind == ast.CrossJoin {
		return crossProduct(left, right), nil
	}

	matchedRight := make([]bool, len(right.Rows))
	var out []*eval.Row

	test := func(l, r *eval.Row) (bool, error) {
		combined := mergeRows(l, r)
		env := x.newEnv(combined, bindings, parentEnv)
		v, err := eval.Eval(j.On, env)
		if err != nil {
			return false, err
		}
		return eval.IsFilterTrue(v), nil
	}

	for _, l := range left.Rows {
		matchedLeft := false
		for ri, r := range right.Rows {
			ok, err := test(l, r)
			if err != nil {
				return joinEnv{}, err
			}
			if !ok {
				continue
			}
			matchedLeft = true
			matchedRight[ri] = true
			out = append(out, mergeRows(l, r))
		}
		if !matchedLeft && (j.Kind == ast.LeftJoin || j.Kind == ast.FullJoin) {
			out = append(out, mergeRows(l, right.nullRow()))
		}
	}

	if j.Kind == ast.RightJoin || j.Kind == ast.FullJoin {
		for ri, r := range right.Rows {
			if matchedRight[ri] {
				continue
			}
			out = append(out, mergeRows(left.nullRow(), r))
		}
	}

	return joinEnv{Cols: cols, Rows: out}, nil
}
