package eval

import (
	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

func evalExists(e *ast.Exists, env *Env) (value.Value, error) {
	res, err := env.Runner.RunSubquery(e.Query, env)
	if err != nil {
		return value.Value{}, err
	}
	exists := len(res.Rows) > 0
	if e.Not {
		exists = !exists
	}
	return value.NewBoolean(exists), nil
}

func evalInSubquery(e *ast.InSubquery, env *Env) (value.Value, error) {
	v, err := Eval(e.Operand, env)
	if err != nil {
		return value.Value{}, err
	}
	if v.IsNull() {
		return value.NewNull(), nil
	}
	res, err := env.Runner.RunSubquery(e.Query, env)
	if err != nil {
		return value.Value{}, err
	}
	if len(res.Columns) != 1 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "subquery used with IN must return exactly one column")
	}
	sawNull := false
	for _, row := range res.Rows {
		rv := row[0]
		if rv.IsNull() {
			sawNull = true
			continue
		}
		ord, ok := v.Compare(rv)
		if ok && ord == value.Equal {
			return value.NewBoolean(!e.Not), nil
		}
	}
	if sawNull {
		return value.NewNull(), nil
	}
	return value.NewBoolean(e.Not), nil
}

func evalScalarSubquery(e *ast.ScalarSubquery, env *Env) (value.Value, error) {
	res, err := env.Runner.RunSubquery(e.Query, env)
	if err != nil {
		return value.Value{}, err
	}
	if len(res.Columns) != 1 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "scalar subquery must return exactly one column")
	}
	if len(res.Rows) == 0 {
		return value.NewNull(), nil
	}
	if len(res.Rows) > 1 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "scalar subquery returned more than one row")
	}
	return res.Rows[0][0], nil
}
