// Package parser implements a hand-rolled recursive-descent parser over
// the PostgreSQL-flavored SELECT grammar named in spec.md §4.3. spec.md
// explicitly permits embedding a third-party parser or hand-rolling one;
// this repo hand-rolls one in the style of freeeve-machparse's
// token/lexer/ast/parser split, since no single pack dependency covers
// CTEs + window functions + recursive CTEs + the scalar function surface
// this engine needs without pulling in an entire unrelated query planner.
package parser

import (
	"fmt"
	"strings"

	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/sqlparse/lexer"
	"github.com/yamldb/yamldb/internal/sqlparse/token"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

// Parse tokenizes and parses sql, which may contain several
// semicolon-separated statements, returning one ast.Statement per
// SELECT-shaped statement. Anything parser can't express returns a
// yamlerr.KindParse error.
func Parse(sql string) (stmts []ast.Statement, err error) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(parseError); ok {
				err = yamlerr.New(yamlerr.KindParse, "%s", pe.msg)
				return
			}
			panic(r)
		}
	}()

	p := &parser{lex: lexer.New(sql)}
	p.advance()

	for p.cur.Kind != token.EOF {
		for p.cur.Kind == token.Semicolon {
			p.advance()
		}
		if p.cur.Kind == token.EOF {
			break
		}
		q := p.parseQuery()
		stmts = append(stmts, &ast.QueryStatement{Query: q})
		for p.cur.Kind == token.Semicolon {
			p.advance()
		}
	}
	return stmts, nil
}

type parseError struct{ msg string }

type parser struct {
	lex     *lexer.Lexer
	cur     token.Token
	nextTok *token.Token

	lastExists ast.Expr
}

func (p *parser) advance() {
	if p.nextTok != nil {
		p.cur = *p.nextTok
		p.nextTok = nil
		return
	}
	p.cur = p.lex.Next()
}

func (p *parser) peek() token.Token {
	if p.nextTok == nil {
		t := p.lex.Next()
		p.nextTok = &t
	}
	return *p.nextTok
}

func (p *parser) fail(format string, args ...any) {
	panic(parseError{msg: fmt.Sprintf(format, args...)})
}

func (p *parser) expectKeyword(kw string) {
	if !p.cur.Is(kw) {
		p.fail("expected %s, got %q", kw, p.cur.Text)
	}
	p.advance()
}

func (p *parser) isKeyword(kw string) bool { return p.cur.Is(kw) }

func (p *parser) eatKeyword(kw string) bool {
	if p.cur.Is(kw) {
		p.advance()
		return true
	}
	return false
}

// parseQuery parses one WITH? SELECT-or-UNION ORDER-BY? LIMIT? OFFSET?
// unit, stopping before a trailing semicolon.
func (p *parser) parseQuery() *ast.Query {
	q := &ast.Query{}
	if p.isKeyword("WITH") {
		q.With = p.parseWith()
	}

	q.Body = p.parseSetExpr()

	if p.eatKeyword("ORDER") {
		p.expectKeyword("BY")
		q.OrderBy = p.parseOrderByList()
	}
	if p.eatKeyword("LIMIT") {
		q.Limit = p.parseExpr()
	}
	if p.eatKeyword("OFFSET") {
		q.Offset = p.parseExpr()
	}
	return q
}

func (p *parser) parseWith() *ast.With {
	p.expectKeyword("WITH")
	w := &ast.With{}
	if p.eatKeyword("RECURSIVE") {
		w.Recursive = true
	}
	for {
		name := p.expectIdent()
		p.expectLParen()
		p.expectKeyword("AS")
		// some dialects allow AS (query); accept plain AS then (
		if p.cur.Kind != token.LParen {
			p.fail("expected ( after AS in WITH binding")
		}
		p.advance()
		sub := p.parseQuery()
		p.expectRParen()
		w.CTEs = append(w.CTEs, ast.CTE{Name: name, Query: sub})
		if p.cur.Kind == token.Comma {
			p.advance()
			continue
		}
		break
	}
	return w
}

// expectLParen is a no-op hook kept for symmetry with expectRParen; WITH
// bindings don't actually require a leading paren before AS.
func (p *parser) expectLParen() {}

func (p *parser) parseSetExpr() ast.SetExpr {
	left := p.parseSimpleSelectOrParen()
	for p.isKeyword("UNION") {
		p.advance()
		all := p.eatKeyword("ALL")
		right := p.parseSimpleSelectOrParen()
		left = &ast.SetOpExpr{Op: ast.UnionOp, All: all, Left: left, Right: right}
	}
	return left
}

func (p *parser) parseSimpleSelectOrParen() ast.SetExpr {
	if p.cur.Kind == token.LParen {
		p.advance()
		q := p.parseQuery()
		p.expectRParen()
		return &ast.SelectExpr{Select: &ast.Select{
			Projection: []ast.SelectItem{{Wildcard: true}},
			From:       []ast.TableExpr{{Subquery: q, Alias: "__paren"}},
		}}
	}
	return &ast.SelectExpr{Select: p.parseSelect()}
}

func (p *parser) parseSelect() *ast.Select {
	p.expectKeyword("SELECT")
	s := &ast.Select{}
	if p.eatKeyword("DISTINCT") {
		s.Distinct = true
	} else {
		p.eatKeyword("ALL")
	}

	s.Projection = p.parseSelectItems()

	if p.eatKeyword("FROM") {
		s.From = p.parseFromList()
	}
	if p.eatKeyword("WHERE") {
		s.Where = p.parseExpr()
	}
	if p.eatKeyword("GROUP") {
		p.expectKeyword("BY")
		s.GroupBy = p.parseExprList()
	}
	if p.eatKeyword("HAVING") {
		s.Having = p.parseExpr()
	}
	return s
}

func (p *parser) parseSelectItems() []ast.SelectItem {
	var items []ast.SelectItem
	for {
		items = append(items, p.parseSelectItem())
		if p.cur.Kind == token.Comma {
			p.advance()
			continue
		}
		break
	}
	return items
}

func (p *parser) parseSelectItem() ast.SelectItem {
	if p.cur.Kind == token.Star {
		p.advance()
		return ast.SelectItem{Wildcard: true}
	}
	// alias.* lookahead: Ident DOT Star
	if p.cur.Kind == token.Ident && p.peek().Kind == token.Dot {
		save := *p.lex
		saveCur, saveNext := p.cur, p.nextTok
		qual := p.cur.Text
		p.advance() // ident
		p.advance() // dot
		if p.cur.Kind == token.Star {
			p.advance()
			return ast.SelectItem{Wildcard: true, WildcardQual: qual}
		}
		// not actually alias.*, restore and fall through to expr parse
		*p.lex = save
		p.cur, p.nextTok = saveCur, saveNext
	}

	e := p.parseExpr()
	item := ast.SelectItem{Expr: e}
	if p.eatKeyword("AS") {
		item.Alias = p.expectIdentOrKeyword()
	} else if p.cur.Kind == token.Ident {
		item.Alias = p.cur.Text
		p.advance()
	}
	return item
}

func (p *parser) parseFromList() []ast.TableExpr {
	var list []ast.TableExpr
	for {
		list = append(list, p.parseTableExpr())
		if p.cur.Kind == token.Comma {
			p.advance()
			continue
		}
		break
	}
	return list
}

func (p *parser) parseTableExpr() ast.TableExpr {
	te := p.parseTableFactor()
	for {
		kind, ok := p.tryParseJoinKind()
		if !ok {
			break
		}
		right := p.parseTableFactor()
		var on ast.Expr
		if kind != ast.CrossJoin {
			p.expectKeyword("ON")
			on = p.parseExpr()
		}
		te.Joins = append(te.Joins, ast.Join{Kind: kind, Table: right, On: on})
	}
	return te
}

func (p *parser) tryParseJoinKind() (ast.JoinKind, bool) {
	switch {
	case p.isKeyword("JOIN"):
		p.advance()
		return ast.InnerJoin, true
	case p.isKeyword("INNER"):
		p.advance()
		p.expectKeyword("JOIN")
		return ast.InnerJoin, true
	case p.isKeyword("LEFT"):
		p.advance()
		p.eatKeyword("OUTER")
		p.expectKeyword("JOIN")
		return ast.LeftJoin, true
	case p.isKeyword("RIGHT"):
		p.advance()
		p.eatKeyword("OUTER")
		p.expectKeyword("JOIN")
		return ast.RightJoin, true
	case p.isKeyword("FULL"):
		p.advance()
		p.eatKeyword("OUTER")
		p.expectKeyword("JOIN")
		return ast.FullJoin, true
	case p.isKeyword("CROSS"):
		p.advance()
		p.expectKeyword("JOIN")
		return ast.CrossJoin, true
	}
	return 0, false
}

func (p *parser) parseTableFactor() ast.TableExpr {
	var te ast.TableExpr
	if p.cur.Kind == token.LParen {
		p.advance()
		te.Subquery = p.parseQuery()
		p.expectRParen()
	} else {
		te.Name = p.expectIdentOrKeyword()
	}
	if p.eatKeyword("AS") {
		te.Alias = p.expectIdentOrKeyword()
	} else if p.cur.Kind == token.Ident {
		te.Alias = p.cur.Text
		p.advance()
	}
	return te
}

func (p *parser) parseOrderByList() []ast.OrderByExpr {
	var list []ast.OrderByExpr
	for {
		e := p.parseExpr()
		asc := true
		if p.eatKeyword("DESC") {
			asc = false
		} else {
			p.eatKeyword("ASC")
		}
		list = append(list, ast.OrderByExpr{Expr: e, Asc: asc})
		if p.cur.Kind == token.Comma {
			p.advance()
			continue
		}
		break
	}
	return list
}

func (p *parser) parseExprList() []ast.Expr {
	var list []ast.Expr
	for {
		list = append(list, p.parseExpr())
		if p.cur.Kind == token.Comma {
			p.advance()
			continue
		}
		break
	}
	return list
}

// ---- expression parsing: precedence climbing ----
// OR < AND < NOT < comparison/IS/IN/LIKE/BETWEEN < concat < + - < * / % < unary < primary

func (p *parser) parseExpr() ast.Expr {
	return p.parseOr()
}

func (p *parser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.isKeyword("OR") {
		p.advance()
		right := p.parseAnd()
		left = &ast.BinaryOp{Op: ast.OpOr, Left: left, Right: right}
	}
	return left
}

func (p *parser) parseAnd() ast.Expr {
	left := p.parseNot()
	for p.isKeyword("AND") {
		p.advance()
		right := p.parseNot()
		left = &ast.BinaryOp{Op: ast.OpAnd, Left: left, Right: right}
	}
	return left
}

func (p *parser) parseNot() ast.Expr {
	if p.isKeyword("NOT") {
		p.advance()
		operand := p.parseNot()
		return &ast.UnaryOp{Op: ast.OpNot, Operand: operand}
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() ast.Expr {
	left := p.parseConcat()

	for {
		if p.isKeyword("IS") {
			p.advance()
			not := p.eatKeyword("NOT")
			p.expectKeyword("NULL")
			left = &ast.IsNull{Operand: left, Not: not}
			continue
		}
		if p.isKeyword("NOT") {
			// NOT IN / NOT LIKE / NOT BETWEEN
			if p.peek().Is("IN") || p.peek().Is("LIKE") || p.peek().Is("BETWEEN") {
				p.advance()
				left = p.parsePostfixPredicate(left, true)
				continue
			}
			break
		}
		if p.isKeyword("IN") || p.isKeyword("LIKE") || p.isKeyword("BETWEEN") {
			left = p.parsePostfixPredicate(left, false)
			continue
		}

		op, ok := comparisonOpFor(p.cur)
		if !ok {
			break
		}
		p.advance()
		right := p.parseConcat()
		left = &ast.BinaryOp{Op: op, Left: left, Right: right}
	}
	return left
}

func comparisonOpFor(t token.Token) (ast.BinOp, bool) {
	switch t.Kind {
	case token.Eq:
		return ast.OpEq, true
	case token.NotEq:
		return ast.OpNotEq, true
	case token.Lt:
		return ast.OpLt, true
	case token.LtEq:
		return ast.OpLtEq, true
	case token.Gt:
		return ast.OpGt, true
	case token.GtEq:
		return ast.OpGtEq, true
	}
	return 0, false
}

func (p *parser) parsePostfixPredicate(left ast.Expr, not bool) ast.Expr {
	switch {
	case p.isKeyword("IN"):
		p.advance()
		p.expectLParenTok()
		if p.isKeyword("SELECT") {
			q := p.parseQuery()
			p.expectRParen()
			return &ast.InSubquery{Operand: left, Query: q, Not: not}
		}
		list := p.parseExprList()
		p.expectRParen()
		return &ast.InList{Operand: left, List: list, Not: not}
	case p.isKeyword("LIKE"):
		p.advance()
		pattern := p.parseConcat()
		return &ast.Like{Operand: left, Pattern: pattern, Not: not}
	case p.isKeyword("BETWEEN"):
		p.advance()
		low := p.parseConcat()
		p.expectKeyword("AND")
		high := p.parseConcat()
		return &ast.Between{Operand: left, Low: low, High: high, Not: not}
	}
	p.fail("unreachable predicate")
	return nil
}

func (p *parser) parseConcat() ast.Expr {
	left := p.parseAddSub()
	for p.cur.Kind == token.Concat {
		p.advance()
		right := p.parseAddSub()
		left = &ast.BinaryOp{Op: ast.OpConcat, Left: left, Right: right}
	}
	return left
}

func (p *parser) parseAddSub() ast.Expr {
	left := p.parseMulDiv()
	for p.cur.Kind == token.Plus || p.cur.Kind == token.Minus {
		op := ast.OpAdd
		if p.cur.Kind == token.Minus {
			op = ast.OpSub
		}
		p.advance()
		right := p.parseMulDiv()
		left = &ast.BinaryOp{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) parseMulDiv() ast.Expr {
	left := p.parseUnary()
	for p.cur.Kind == token.Star || p.cur.Kind == token.Slash || p.cur.Kind == token.Percent {
		var op ast.BinOp
		switch p.cur.Kind {
		case token.Star:
			op = ast.OpMul
		case token.Slash:
			op = ast.OpDiv
		default:
			op = ast.OpMod
		}
		p.advance()
		right := p.parseUnary()
		left = &ast.BinaryOp{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) parseUnary() ast.Expr {
	if p.cur.Kind == token.Minus {
		p.advance()
		return &ast.UnaryOp{Op: ast.OpNeg, Operand: p.parseUnary()}
	}
	if p.cur.Kind == token.Plus {
		p.advance()
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() ast.Expr {
	switch {
	case p.cur.Kind == token.Number:
		text := p.cur.Text
		p.advance()
		return &ast.Literal{Kind: ast.LitNumber, Text: text}
	case p.cur.Kind == token.String:
		text := p.cur.Text
		p.advance()
		return &ast.Literal{Kind: ast.LitString, Text: text}
	case p.cur.Kind == token.Param:
		n := 0
		fmt.Sscanf(p.cur.Text, "%d", &n)
		p.advance()
		return &ast.Param{Index: n}
	case p.isKeyword("NULL"):
		p.advance()
		return &ast.Literal{Kind: ast.LitNull}
	case p.isKeyword("TRUE"):
		p.advance()
		return &ast.Literal{Kind: ast.LitBool, Bool: true}
	case p.isKeyword("FALSE"):
		p.advance()
		return &ast.Literal{Kind: ast.LitBool, Bool: false}
	case p.isKeyword("DATE"):
		p.advance()
		if p.cur.Kind == token.String {
			text := p.cur.Text
			p.advance()
			return &ast.Literal{Kind: ast.LitDate, Text: text}
		}
		// DATE(expr) function call form
		return p.parseFuncCallRest("DATE")
	case p.isKeyword("TIMESTAMP"):
		p.advance()
		text := p.expectString()
		return &ast.Literal{Kind: ast.LitTimestamp, Text: text}
	case p.isKeyword("TIME"):
		p.advance()
		if p.cur.Kind == token.String {
			text := p.cur.Text
			p.advance()
			return &ast.Literal{Kind: ast.LitTime, Text: text}
		}
		return p.parseFuncCallRest("TIME")
	case p.isKeyword("CASE"):
		return p.parseCase()
	case p.isKeyword("CAST"):
		return p.parseCast()
	case p.isKeyword("EXISTS"):
		p.advance()
		p.expectRParenAfterLParen(func() ast.Expr {
			q := p.parseQuery()
			return &ast.Exists{Query: q}
		})
		return p.lastExists
	case p.cur.Kind == token.LParen:
		p.advance()
		if p.isKeyword("SELECT") {
			q := p.parseQuery()
			p.expectRParen()
			return &ast.ScalarSubquery{Query: q}
		}
		e := p.parseExpr()
		p.expectRParen()
		return e
	case p.cur.Kind == token.Ident || p.cur.Kind == token.Keyword:
		return p.parseIdentOrFuncCall()
	}
	p.fail("unexpected token %q", p.cur.Text)
	return nil
}

// lastExists is a small hack to thread the Exists value out of the
// expectRParenAfterLParen helper below without widening its signature.
var _ = 0

func (p *parser) parseIdentOrFuncCall() ast.Expr {
	name := p.expectIdentOrKeyword()
	if p.cur.Kind == token.Dot {
		p.advance()
		if p.cur.Kind == token.Star {
			p.fail("alias.* only valid in projection list")
		}
		col := p.expectIdentOrKeyword()
		return &ast.Ident{Qualifier: name, Name: col}
	}
	if p.cur.Kind == token.LParen {
		return p.parseFuncCallRest(name)
	}
	return &ast.Ident{Name: name}
}

func (p *parser) parseFuncCallRest(name string) ast.Expr {
	p.expectRParenAfterLParenRaw()
	fc := &ast.FuncCall{Name: strings.ToUpper(name)}
	if p.cur.Kind == token.RParen {
		p.advance()
	} else {
		if p.eatKeyword("DISTINCT") {
			fc.Distinct = true
		}
		if p.cur.Kind == token.Star {
			fc.Star = true
			p.advance()
		} else {
			fc.Args = p.parseExprList()
		}
		p.expectRParen()
	}
	if p.eatKeyword("OVER") {
		fc.Over = p.parseWindowSpec()
	}
	return fc
}

func (p *parser) expectRParenAfterLParenRaw() {
	if p.cur.Kind != token.LParen {
		p.fail("expected ( after function name")
	}
	p.advance()
}

func (p *parser) parseWindowSpec() *ast.WindowSpec {
	p.expectRParenAfterLParenRaw()
	ws := &ast.WindowSpec{}
	if p.eatKeyword("PARTITION") {
		p.expectKeyword("BY")
		ws.PartitionBy = p.parseExprList()
	}
	if p.eatKeyword("ORDER") {
		p.expectKeyword("BY")
		ws.OrderBy = p.parseOrderByList()
	}
	p.expectRParen()
	return ws
}

func (p *parser) parseCase() ast.Expr {
	p.expectKeyword("CASE")
	ce := &ast.CaseExpr{}
	if !p.isKeyword("WHEN") {
		ce.Operand = p.parseExpr()
	}
	for p.eatKeyword("WHEN") {
		cond := p.parseExpr()
		p.expectKeyword("THEN")
		res := p.parseExpr()
		ce.Whens = append(ce.Whens, ast.WhenClause{Cond: cond, Res: res})
	}
	if p.eatKeyword("ELSE") {
		ce.Else = p.parseExpr()
	}
	p.expectKeyword("END")
	return ce
}

func (p *parser) parseCast() ast.Expr {
	p.expectKeyword("CAST")
	p.expectRParenAfterLParenRaw()
	operand := p.parseExpr()
	p.expectKeyword("AS")
	tn := p.parseTypeName()
	p.expectRParen()
	return &ast.Cast{Operand: operand, Type: tn}
}

func (p *parser) parseTypeName() ast.TypeName {
	name := strings.ToUpper(p.expectIdentOrKeyword())
	tn := ast.TypeName{Name: name}
	if p.cur.Kind == token.LParen {
		p.advance()
		n1 := p.expectNumber()
		if p.cur.Kind == token.Comma {
			p.advance()
			n2 := p.expectNumber()
			tn.Precision, tn.Scale = n1, n2
		} else {
			tn.Length = n1
		}
		p.expectRParen()
	}
	return tn
}

// ---- token helpers ----

func (p *parser) expectIdent() string {
	if p.cur.Kind != token.Ident {
		p.fail("expected identifier, got %q", p.cur.Text)
	}
	s := p.cur.Text
	p.advance()
	return s
}

// expectIdentOrKeyword accepts any identifier or keyword as a bare name,
// since many keywords (e.g. function names, type names) double as
// identifiers in practice (spec.md's parser is not expected to reserve
// every keyword from use as a column/table/alias name).
func (p *parser) expectIdentOrKeyword() string {
	if p.cur.Kind != token.Ident && p.cur.Kind != token.Keyword {
		p.fail("expected name, got %q", p.cur.Text)
	}
	s := p.cur.Text
	p.advance()
	return s
}

func (p *parser) expectString() string {
	if p.cur.Kind != token.String {
		p.fail("expected string literal, got %q", p.cur.Text)
	}
	s := p.cur.Text
	p.advance()
	return s
}

func (p *parser) expectNumber() int {
	if p.cur.Kind != token.Number {
		p.fail("expected number, got %q", p.cur.Text)
	}
	n := 0
	fmt.Sscanf(p.cur.Text, "%d", &n)
	p.advance()
	return n
}

func (p *parser) expectRParen() {
	if p.cur.Kind != token.RParen {
		p.fail("expected ), got %q", p.cur.Text)
	}
	p.advance()
}

func (p *parser) expectLParenTok() {
	if p.cur.Kind != token.LParen {
		p.fail("expected (, got %q", p.cur.Text)
	}
	p.advance()
}

// lastExists and expectRParenAfterLParen implement EXISTS (subquery)
// without complicating parsePrimary's switch with an inline closure
// return-value plumbing problem (Go switch cases can't early-return a
// differently-shaped value cleanly here).
func (p *parser) expectRParenAfterLParen(fn func() ast.Expr) {
	p.expectLParenTok()
	e := fn()
	p.expectRParen()
	p.lastExists = e
}
