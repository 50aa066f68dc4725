package exec

import (
	"strings"

	"github.com/yamldb/yamldb/internal/eval"
	"github.com/yamldb/yamldb/internal/sqlparse/ast"
)

// walkExpr visits e and every child expression reachable without
// crossing into a nested subquery's own scope (subqueries are a separate
// evaluation unit; their internal aggregate/window calls belong to their
// own SELECT, not the enclosing one).
func walkExpr(e ast.Expr, visit func(ast.Expr)) {
	if e == nil {
		return
	}
	visit(e)
	switch n := e.(type) {
	case *ast.BinaryOp:
		walkExpr(n.Left, visit)
		walkExpr(n.Right, visit)
	case *ast.UnaryOp:
		walkExpr(n.Operand, visit)
	case *ast.IsNull:
		walkExpr(n.Operand, visit)
	case *ast.Between:
		walkExpr(n.Operand, visit)
		walkExpr(n.Low, visit)
		walkExpr(n.High, visit)
	case *ast.Like:
		walkExpr(n.Operand, visit)
		walkExpr(n.Pattern, visit)
	case *ast.InList:
		walkExpr(n.Operand, visit)
		for _, item := range n.List {
			walkExpr(item, visit)
		}
	case *ast.InSubquery:
		walkExpr(n.Operand, visit)
	case *ast.CaseExpr:
		walkExpr(n.Operand, visit)
		for _, w := range n.Whens {
			walkExpr(w.Cond, visit)
			walkExpr(w.Res, visit)
		}
		walkExpr(n.Else, visit)
	case *ast.Cast:
		walkExpr(n.Operand, visit)
	case *ast.FuncCall:
		for _, a := range n.Args {
			walkExpr(a, visit)
		}
		if n.Over != nil {
			for _, p := range n.Over.PartitionBy {
				walkExpr(p, visit)
			}
			for _, o := range n.Over.OrderBy {
				walkExpr(o.Expr, visit)
			}
		}
	}
}

// isAggregateCall reports whether e is a call to one of the §4.4
// aggregate functions (not a window call over one of them).
func isAggregateCall(e ast.Expr) (*ast.FuncCall, bool) {
	fc, ok := e.(*ast.FuncCall)
	if !ok || fc.Over != nil {
		return nil, false
	}
	return fc, eval.AggregateFuncs[strings.ToUpper(fc.Name)]
}

func isWindowCall(e ast.Expr) (*ast.FuncCall, bool) {
	fc, ok := e.(*ast.FuncCall)
	if !ok || fc.Over == nil {
		return nil, false
	}
	return fc, true
}

// containsAggregate reports whether expr contains a (non-window)
// aggregate call anywhere in its tree.
func containsAggregate(expr ast.Expr) bool {
	found := false
	walkExpr(expr, func(e ast.Expr) {
		if _, ok := isAggregateCall(e); ok {
			found = true
		}
	})
	return found
}

// collectAggregateCalls gathers every distinct aggregate FuncCall node
// reachable from exprs, in first-seen order.
func collectAggregateCalls(exprs ...ast.Expr) []*ast.FuncCall {
	var out []*ast.FuncCall
	seen := map[*ast.FuncCall]bool{}
	for _, expr := range exprs {
		walkExpr(expr, func(e ast.Expr) {
			if fc, ok := isAggregateCall(e); ok && !seen[fc] {
				seen[fc] = true
				out = append(out, fc)
			}
		})
	}
	return out
}

// collectWindowCalls gathers every distinct window FuncCall node.
func collectWindowCalls(exprs ...ast.Expr) []*ast.FuncCall {
	var out []*ast.FuncCall
	seen := map[*ast.FuncCall]bool{}
	for _, expr := range exprs {
		walkExpr(expr, func(e ast.Expr) {
			if fc, ok := isWindowCall(e); ok && !seen[fc] {
				seen[fc] = true
				out = append(out, fc)
			}
		})
	}
	return out
}
