package exec

import (
	"sort"

	"github.com/yamldb/yamldb/internal/eval"
	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

// applyWindows implements spec.md §4.5 step 7: for each window call,
// partition rows' envs by PARTITION BY, sort each partition by ORDER BY,
// compute the function across the partition, and attach the result to
// every row's Env.WindowValues without reordering envs (the caller's
// ORDER BY, if any, is applied afterward on top of this order).
func (x *Executor) applyWindows(calls []*ast.FuncCall, envs []*eval.Env) error {
	for _, call := range calls {
		if call.Over == nil {
			return yamlerr.New(yamlerr.KindType, "%s requires an OVER clause", call.Name)
		}
		partitions := partitionEnvs(envs, call.Over.PartitionBy)
		for _, part := range partitions {
			sortPartition(part, call.Over.OrderBy)
			values, err := computeWindow(call, part)
			if err != nil {
				return err
			}
			for i, env := range part {
				env.WindowValues[call] = values[i]
			}
		}
	}
	return nil
}

// partitionEnvs groups envs by their PARTITION BY key, preserving each
// partition's original relative order.
func partitionEnvs(envs []*eval.Env, partitionBy []ast.Expr) [][]*eval.Env {
	if len(partitionBy) == 0 {
		return [][]*eval.Env{append([]*eval.Env(nil), envs...)}
	}
	order := []string{}
	groups := map[string][]*eval.Env{}
	for _, env := range envs {
		key, _ := groupKey(partitionBy, env)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], env)
	}
	out := make([][]*eval.Env, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}

func sortPartition(part []*eval.Env, orderBy []ast.OrderByExpr) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(part, func(i, j int) bool {
		for _, ob := range orderBy {
			vi, _ := eval.Eval(ob.Expr, part[i])
			vj, _ := eval.Eval(ob.Expr, part[j])
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
}

func computeWindow(call *ast.FuncCall, part []*eval.Env) ([]value.Value, error) {
	out := make([]value.Value, len(part))
	switch upperName(call.Name) {
	case "ROW_NUMBER":
		for i := range part {
			out[i] = value.NewInteger(int64(i + 1))
		}
	case "RANK":
		rank := 1
		for i := range part {
			if i > 0 && !sameOrderKey(call.Over.OrderBy, part[i-1], part[i]) {
				rank = i + 1
			}
			out[i] = value.NewInteger(int64(rank))
		}
	case "DENSE_RANK":
		rank := 0
		for i := range part {
			if i == 0 || !sameOrderKey(call.Over.OrderBy, part[i-1], part[i]) {
				rank++
			}
			out[i] = value.NewInteger(int64(rank))
		}
	case "LAG":
		offset := windowOffset(call, part, 1)
		for i := range part {
			src := i - offset
			out[i] = windowArgAt(call, part, src)
		}
	case "LEAD":
		offset := windowOffset(call, part, 1)
		for i := range part {
			src := i + offset
			out[i] = windowArgAt(call, part, src)
		}
	default:
		return nil, yamlerr.NotImplemented("window function %s", call.Name)
	}
	return out, nil
}

func windowOffset(call *ast.FuncCall, part []*eval.Env, def int) int {
	if len(call.Args) < 2 || len(part) == 0 {
		return def
	}
	v, err := eval.Eval(call.Args[1], part[0])
	if err != nil {
		return def
	}
	if v.Kind == value.Integer {
		return int(v.I64)
	}
	return def
}

func windowArgAt(call *ast.FuncCall, part []*eval.Env, idx int) value.Value {
	if idx < 0 || idx >= len(part) {
		return value.NewNull()
	}
	v, err := eval.Eval(call.Args[0], part[idx])
	if err != nil {
		return value.NewNull()
	}
	return v
}

func sameOrderKey(orderBy []ast.OrderByExpr, a, b *eval.Env) bool {
	for _, ob := range orderBy {
		va, _ := eval.Eval(ob.Expr, a)
		vb, _ := eval.Eval(ob.Expr, b)
		ord, ok := compareForSort(va, vb)
		if !ok || ord != value.Equal {
			return false
		}
	}
	return true
}
