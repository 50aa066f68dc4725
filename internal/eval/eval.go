package eval

import (
	"regexp"
	"strings"
	"time"

	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

// Eval walks expr against env, returning NULL-propagating scalar results
// per spec.md §4.4. Three-valued logic: comparisons that involve a NULL
// operand yield value.NewNull(); AND/OR yield NULL unless the other
// operand decides the result (FALSE AND NULL is FALSE, TRUE OR NULL is
// TRUE). WHERE/ON/HAVING
// callers must treat "not exactly TRUE" as exclusion (see IsFilterTrue).
func Eval(expr ast.Expr, env *Env) (value.Value, error) {
	switch e := expr.(type) {
	case *ast.Literal:
		return evalLiteral(e)
	case *ast.Ident:
		return evalIdent(e, env)
	case *ast.Param:
		if e.Index < 1 || e.Index > len(env.Params) {
			return value.Value{}, yamlerr.New(yamlerr.KindProtocol, "parameter $%d not bound", e.Index)
		}
		return env.Params[e.Index-1], nil
	case *ast.UnaryOp:
		return evalUnary(e, env)
	case *ast.BinaryOp:
		return evalBinary(e, env)
	case *ast.IsNull:
		return evalIsNull(e, env)
	case *ast.Between:
		return evalBetween(e, env)
	case *ast.Like:
		return evalLike(e, env)
	case *ast.InList:
		return evalInList(e, env)
	case *ast.InSubquery:
		return evalInSubquery(e, env)
	case *ast.Exists:
		return evalExists(e, env)
	case *ast.ScalarSubquery:
		return evalScalarSubquery(e, env)
	case *ast.CaseExpr:
		return evalCase(e, env)
	case *ast.Cast:
		return evalCast(e, env)
	case *ast.FuncCall:
		return evalFuncCall(e, env)
	default:
		return value.Value{}, yamlerr.NotImplemented("unsupported expression %T", expr)
	}
}

// IsFilterTrue collapses a WHERE/ON/HAVING result to the boolean it takes
// to keep a row: NULL and FALSE are both exclusions (three-valued logic,
// spec.md §8 "WHERE keeps only TRUE rows").
func IsFilterTrue(v value.Value) bool {
	return v.Kind == value.Boolean && v.Bool
}

func evalLiteral(l *ast.Literal) (value.Value, error) {
	switch l.Kind {
	case ast.LitNull:
		return value.NewNull(), nil
	case ast.LitBool:
		return value.NewBoolean(l.Bool), nil
	case ast.LitNumber:
		return parseNumberLiteral(l.Text)
	case ast.LitString:
		return value.NewText(l.Text), nil
	case ast.LitDate:
		t, err := time.Parse("2006-01-02", strings.TrimSpace(l.Text))
		if err != nil {
			return value.Value{}, yamlerr.New(yamlerr.KindType, "invalid DATE literal %q", l.Text)
		}
		return value.NewDate(t), nil
	case ast.LitTimestamp:
		s := strings.TrimSpace(l.Text)
		for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return value.NewTimestamp(t), nil
			}
		}
		return value.Value{}, yamlerr.New(yamlerr.KindType, "invalid TIMESTAMP literal %q", l.Text)
	case ast.LitTime:
		t, err := time.Parse("15:04:05", strings.TrimSpace(l.Text))
		if err != nil {
			return value.Value{}, yamlerr.New(yamlerr.KindType, "invalid TIME literal %q", l.Text)
		}
		return value.NewTime(t), nil
	default:
		return value.Value{}, yamlerr.NotImplemented("literal kind %d", l.Kind)
	}
}

func parseNumberLiteral(text string) (value.Value, error) {
	if strings.ContainsAny(text, ".eE") {
		f, err := value.Cast(value.NewText(text), value.Double())
		if err != nil {
			return value.Value{}, yamlerr.Wrap(yamlerr.KindType, err, "invalid numeric literal %q", text)
		}
		return f, nil
	}
	i, err := value.Cast(value.NewText(text), value.Integer())
	if err != nil {
		return value.Value{}, yamlerr.Wrap(yamlerr.KindType, err, "invalid numeric literal %q", text)
	}
	return i, nil
}

func evalIdent(id *ast.Ident, env *Env) (value.Value, error) {
	for e := env; e != nil; e = e.Parent {
		if e.Row == nil {
			continue
		}
		if v, ok := e.Row.Lookup(id.Qualifier, id.Name); ok {
			return v, nil
		}
	}
	if id.Qualifier != "" {
		return value.Value{}, yamlerr.New(yamlerr.KindNotFound, "column %q not found in %q", id.Name, id.Qualifier)
	}
	return value.Value{}, yamlerr.New(yamlerr.KindNotFound, "column %q not found", id.Name)
}

func evalUnary(e *ast.UnaryOp, env *Env) (value.Value, error) {
	v, err := Eval(e.Operand, env)
	if err != nil {
		return value.Value{}, err
	}
	switch e.Op {
	case ast.OpNot:
		if v.IsNull() {
			return value.NewNull(), nil
		}
		if v.Kind != value.Boolean {
			return value.Value{}, yamlerr.New(yamlerr.KindType, "NOT requires a boolean operand")
		}
		return value.NewBoolean(!v.Bool), nil
	case ast.OpNeg:
		if v.IsNull() {
			return value.NewNull(), nil
		}
		return negate(v)
	default:
		return value.Value{}, yamlerr.NotImplemented("unary operator %d", e.Op)
	}
}

func negate(v value.Value) (value.Value, error) {
	switch v.Kind {
	case value.Integer:
		return value.NewInteger(-v.I64), nil
	case value.Float:
		return value.NewFloat(-v.F32), nil
	case value.Double:
		return value.NewDouble(-v.F64), nil
	case value.Decimal:
		return value.NewDecimal(v.Dec.Neg()), nil
	default:
		return value.Value{}, yamlerr.New(yamlerr.KindType, "cannot negate %s", v.Kind)
	}
}

func evalIsNull(e *ast.IsNull, env *Env) (value.Value, error) {
	v, err := Eval(e.Operand, env)
	if err != nil {
		return value.Value{}, err
	}
	isNull := v.IsNull()
	if e.Not {
		return value.NewBoolean(!isNull), nil
	}
	return value.NewBoolean(isNull), nil
}

func evalBetween(e *ast.Between, env *Env) (value.Value, error) {
	v, err := Eval(e.Operand, env)
	if err != nil {
		return value.Value{}, err
	}
	lo, err := Eval(e.Low, env)
	if err != nil {
		return value.Value{}, err
	}
	hi, err := Eval(e.High, env)
	if err != nil {
		return value.Value{}, err
	}
	if v.IsNull() || lo.IsNull() || hi.IsNull() {
		return value.NewNull(), nil
	}
	loOrd, ok1 := v.Compare(lo)
	hiOrd, ok2 := v.Compare(hi)
	if !ok1 || !ok2 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "BETWEEN operands are not comparable")
	}
	result := loOrd != value.Less && hiOrd != value.Greater
	if e.Not {
		result = !result
	}
	return value.NewBoolean(result), nil
}

var regexMetachars = regexp.MustCompile(`[.\[\](){}+*?^$|\\]`)

func likeToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			s := string(r)
			if regexMetachars.MatchString(s) {
				b.WriteString(regexp.QuoteMeta(s))
			} else {
				b.WriteString(s)
			}
		}
	}
	b.WriteString("$")
	return b.String()
}

func evalLike(e *ast.Like, env *Env) (value.Value, error) {
	v, err := Eval(e.Operand, env)
	if err != nil {
		return value.Value{}, err
	}
	p, err := Eval(e.Pattern, env)
	if err != nil {
		return value.Value{}, err
	}
	if v.IsNull() || p.IsNull() {
		return value.NewNull(), nil
	}
	if v.Kind != value.Text || p.Kind != value.Text {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "LIKE requires text operands")
	}
	re, err := regexp.Compile(likeToRegex(p.Str))
	if err != nil {
		return value.Value{}, yamlerr.Wrap(yamlerr.KindType, err, "invalid LIKE pattern %q", p.Str)
	}
	matched := re.MatchString(v.Str)
	if e.Not {
		matched = !matched
	}
	return value.NewBoolean(matched), nil
}

func evalInList(e *ast.InList, env *Env) (value.Value, error) {
	v, err := Eval(e.Operand, env)
	if err != nil {
		return value.Value{}, err
	}
	if v.IsNull() {
		return value.NewNull(), nil
	}
	sawNull := false
	matched := false
	for _, item := range e.List {
		iv, err := Eval(item, env)
		if err != nil {
			return value.Value{}, err
		}
		if iv.IsNull() {
			sawNull = true
			continue
		}
		ord, ok := v.Compare(iv)
		if ok && ord == value.Equal {
			matched = true
			break
		}
	}
	if matched {
		return value.NewBoolean(!e.Not), nil
	}
	if sawNull {
		// NULL in the list and no match: UNKNOWN, never TRUE, regardless
		// of NOT IN vs IN (spec.md §4.4).
		return value.NewNull(), nil
	}
	return value.NewBoolean(e.Not), nil
}

func evalCase(e *ast.CaseExpr, env *Env) (value.Value, error) {
	var operand value.Value
	var hasOperand bool
	if e.Operand != nil {
		v, err := Eval(e.Operand, env)
		if err != nil {
			return value.Value{}, err
		}
		operand = v
		hasOperand = true
	}
	for _, w := range e.Whens {
		if hasOperand {
			cv, err := Eval(w.Cond, env)
			if err != nil {
				return value.Value{}, err
			}
			if cv.IsNull() || operand.IsNull() {
				continue
			}
			ord, ok := operand.Compare(cv)
			if !ok || ord != value.Equal {
				continue
			}
		} else {
			cv, err := Eval(w.Cond, env)
			if err != nil {
				return value.Value{}, err
			}
			if !IsFilterTrue(cv) {
				continue
			}
		}
		return Eval(w.Res, env)
	}
	if e.Else != nil {
		return Eval(e.Else, env)
	}
	return value.NewNull(), nil
}

func evalCast(e *ast.Cast, env *Env) (value.Value, error) {
	v, err := Eval(e.Operand, env)
	if err != nil {
		return value.Value{}, err
	}
	t, err := ResolveTypeName(e.Type)
	if err != nil {
		return value.Value{}, err
	}
	out, err := value.Cast(v, t)
	if err != nil {
		return value.Value{}, yamlerr.Wrap(yamlerr.KindType, err, "CAST failed")
	}
	return out, nil
}

// ResolveTypeName converts the parser's ast.TypeName into a value.SqlType.
func ResolveTypeName(t ast.TypeName) (value.SqlType, error) {
	switch strings.ToUpper(t.Name) {
	case "INT", "INTEGER", "SMALLINT":
		return value.Integer(), nil
	case "BIGINT":
		return value.BigInt(), nil
	case "FLOAT", "REAL":
		return value.Float(), nil
	case "DOUBLE":
		return value.Double(), nil
	case "DECIMAL", "NUMERIC":
		return value.Decimal(t.Precision, t.Scale), nil
	case "CHAR":
		return value.Char(t.Length), nil
	case "VARCHAR":
		return value.Varchar(t.Length), nil
	case "TEXT", "CLOB":
		return value.Text(), nil
	case "BOOLEAN", "BOOL":
		return value.Boolean(), nil
	case "TIMESTAMP", "DATETIME":
		return value.Timestamp(), nil
	case "DATE":
		return value.Date(), nil
	case "TIME":
		return value.Time(), nil
	case "UUID":
		return value.Uuid(), nil
	case "JSON", "JSONB":
		return value.Json(), nil
	default:
		return value.SqlType{}, yamlerr.NotImplemented("unknown type %q", t.Name)
	}
}
