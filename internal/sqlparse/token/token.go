// Package token defines the lexical tokens produced by the lexer and
// consumed by the parser, following the token/lexer/parser/ast package
// split used by freeeve-machparse's SQL parser.
package token

type Kind int

const (
	EOF Kind = iota
	Error

	Ident
	Number
	String
	Param // $1, $2, ...

	// Punctuation
	Comma
	LParen
	RParen
	Semicolon
	Dot
	Star

	// Operators
	Plus
	Minus
	Slash
	Percent
	Eq
	NotEq
	Lt
	LtEq
	Gt
	GtEq
	Concat // ||

	Keyword
)

type Token struct {
	Kind    Kind
	Text    string // original text
	Upper   string // uppercased text, for keyword comparison
	Pos     int
}

func (t Token) Is(kw string) bool {
	return t.Kind == Keyword && t.Upper == kw
}

var Keywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true,
	"NOT": true, "AS": true, "ON": true, "JOIN": true, "INNER": true,
	"LEFT": true, "RIGHT": true, "FULL": true, "OUTER": true, "CROSS": true,
	"GROUP": true, "BY": true, "HAVING": true, "ORDER": true, "ASC": true,
	"DESC": true, "LIMIT": true, "OFFSET": true, "NULL": true, "TRUE": true,
	"FALSE": true, "IS": true, "IN": true, "BETWEEN": true, "LIKE": true,
	"CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true,
	"CAST": true, "DISTINCT": true, "ALL": true, "EXISTS": true,
	"WITH": true, "RECURSIVE": true, "UNION": true, "OVER": true,
	"PARTITION": true, "DATE": true, "TIMESTAMP": true, "TIME": true,
	"INTERVAL": true,
}
