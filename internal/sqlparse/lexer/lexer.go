// Package lexer tokenizes SQL text for internal/sqlparse/parser.
package lexer

import (
	"strings"
	"unicode"

	"github.com/yamldb/yamldb/internal/sqlparse/token"
)

type Lexer struct {
	src []rune
	pos int
}

func New(src string) *Lexer {
	return &Lexer{src: []rune(src)}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() rune {
	r := l.peek()
	l.pos++
	return r
}

func (l *Lexer) skipSpaceAndComments() {
	for {
		for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
			l.pos++
		}
		if l.peek() == '-' && l.peekAt(1) == '-' {
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.pos++
			}
			continue
		}
		if l.peek() == '/' && l.peekAt(1) == '*' {
			l.pos += 2
			for l.pos < len(l.src) && !(l.peek() == '*' && l.peekAt(1) == '/') {
				l.pos++
			}
			l.pos += 2
			continue
		}
		break
	}
}

// Next returns the next token in the stream, EOF-terminated.
func (l *Lexer) Next() token.Token {
	l.skipSpaceAndComments()
	start := l.pos
	if l.pos >= len(l.src) {
		return token.Token{Kind: token.EOF, Pos: start}
	}

	c := l.peek()

	switch {
	case c == '\'':
		return l.lexString(start)
	case c == '"':
		return l.lexQuotedIdent(start)
	case unicode.IsDigit(c) || (c == '.' && unicode.IsDigit(l.peekAt(1))):
		return l.lexNumber(start)
	case unicode.IsLetter(c) || c == '_':
		return l.lexIdentOrKeyword(start)
	case c == '$':
		return l.lexParam(start)
	}

	l.advance()
	switch c {
	case ',':
		return token.Token{Kind: token.Comma, Text: ",", Pos: start}
	case '(':
		return token.Token{Kind: token.LParen, Text: "(", Pos: start}
	case ')':
		return token.Token{Kind: token.RParen, Text: ")", Pos: start}
	case ';':
		return token.Token{Kind: token.Semicolon, Text: ";", Pos: start}
	case '.':
		return token.Token{Kind: token.Dot, Text: ".", Pos: start}
	case '*':
		return token.Token{Kind: token.Star, Text: "*", Pos: start}
	case '+':
		return token.Token{Kind: token.Plus, Text: "+", Pos: start}
	case '-':
		return token.Token{Kind: token.Minus, Text: "-", Pos: start}
	case '/':
		return token.Token{Kind: token.Slash, Text: "/", Pos: start}
	case '%':
		return token.Token{Kind: token.Percent, Text: "%", Pos: start}
	case '=':
		return token.Token{Kind: token.Eq, Text: "=", Pos: start}
	case '!':
		if l.peek() == '=' {
			l.advance()
			return token.Token{Kind: token.NotEq, Text: "!=", Pos: start}
		}
		return token.Token{Kind: token.Error, Text: "!", Pos: start}
	case '<':
		if l.peek() == '=' {
			l.advance()
			return token.Token{Kind: token.LtEq, Text: "<=", Pos: start}
		}
		if l.peek() == '>' {
			l.advance()
			return token.Token{Kind: token.NotEq, Text: "<>", Pos: start}
		}
		return token.Token{Kind: token.Lt, Text: "<", Pos: start}
	case '>':
		if l.peek() == '=' {
			l.advance()
			return token.Token{Kind: token.GtEq, Text: ">=", Pos: start}
		}
		return token.Token{Kind: token.Gt, Text: ">", Pos: start}
	case '|':
		if l.peek() == '|' {
			l.advance()
			return token.Token{Kind: token.Concat, Text: "||", Pos: start}
		}
		return token.Token{Kind: token.Error, Text: "|", Pos: start}
	default:
		return token.Token{Kind: token.Error, Text: string(c), Pos: start}
	}
}

func (l *Lexer) lexString(start int) token.Token {
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			break
		}
		c := l.advance()
		if c == '\'' {
			if l.peek() == '\'' { // escaped quote
				b.WriteRune('\'')
				l.advance()
				continue
			}
			break
		}
		b.WriteRune(c)
	}
	return token.Token{Kind: token.String, Text: b.String(), Pos: start}
}

func (l *Lexer) lexQuotedIdent(start int) token.Token {
	l.advance() // opening quote
	var b strings.Builder
	for l.pos < len(l.src) && l.peek() != '"' {
		b.WriteRune(l.advance())
	}
	if l.peek() == '"' {
		l.advance()
	}
	s := b.String()
	return token.Token{Kind: token.Ident, Text: s, Upper: strings.ToUpper(s), Pos: start}
}

func (l *Lexer) lexNumber(start int) token.Token {
	var b strings.Builder
	for unicode.IsDigit(l.peek()) {
		b.WriteRune(l.advance())
	}
	if l.peek() == '.' && unicode.IsDigit(l.peekAt(1)) {
		b.WriteRune(l.advance())
		for unicode.IsDigit(l.peek()) {
			b.WriteRune(l.advance())
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		b.WriteRune(l.advance())
		if l.peek() == '+' || l.peek() == '-' {
			b.WriteRune(l.advance())
		}
		for unicode.IsDigit(l.peek()) {
			b.WriteRune(l.advance())
		}
	}
	return token.Token{Kind: token.Number, Text: b.String(), Pos: start}
}

func (l *Lexer) lexIdentOrKeyword(start int) token.Token {
	var b strings.Builder
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		b.WriteRune(l.advance())
	}
	s := b.String()
	upper := strings.ToUpper(s)
	if token.Keywords[upper] {
		return token.Token{Kind: token.Keyword, Text: s, Upper: upper, Pos: start}
	}
	return token.Token{Kind: token.Ident, Text: s, Upper: upper, Pos: start}
}

func (l *Lexer) lexParam(start int) token.Token {
	l.advance() // '$'
	var b strings.Builder
	for unicode.IsDigit(l.peek()) {
		b.WriteRune(l.advance())
	}
	return token.Token{Kind: token.Param, Text: b.String(), Pos: start}
}
