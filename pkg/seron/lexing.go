package seron

import (
	"fmt"
	"strconv"
)

// ----------------------------------------------------------------------------
// Seron Lexer

// Converts the source text into a lazy stream of tokens.
//
// The Lexer holds a cursor into the source string and hands out one token per
// Next() call; once the input is exhausted every further call keeps returning
// the same EOF token. Lexical failures (an unknown start-of-token character,
// an unterminated string or block comment) are unrecoverable: past the point
// of failure the token stream is undefined, so the error is returned to the
// caller which must stop the compilation.
type Lexer struct {
	src          string
	cursor       int
	line, column int
}

var keywords = map[string]TokenKind{
	"proc":   TokenKwProc,
	"let":    TokenKwLet,
	"if":     TokenKwIf,
	"else":   TokenKwElse,
	"elsif":  TokenKwElsif,
	"while":  TokenKwWhile,
	"for":    TokenKwFor,
	"return": TokenKwReturn,
	"table":  TokenKwTable,
	"int":    TokenTypeInt,
	"long":   TokenTypeLong,
	"char":   TokenTypeChar,
	"void":   TokenTypeVoid,
}

// Initializes and returns to the caller a brand new 'Lexer' struct over the
// given source text.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, column: 1}
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }
func isAlpha(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// Returns the byte at the cursor, or 0 at end of input.
func (l *Lexer) peek() byte {
	if l.cursor >= len(l.src) {
		return 0
	}
	return l.src[l.cursor]
}

// Returns the byte one past the cursor, or 0 at end of input.
func (l *Lexer) peekNext() byte {
	if l.cursor+1 >= len(l.src) {
		return 0
	}
	return l.src[l.cursor+1]
}

// Moves the cursor one byte forward, keeping the line/column counters in sync.
func (l *Lexer) bump() {
	if l.peek() == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.cursor++
}

// Consumes whitespace and comments. A '#' opens a line comment through the
// next newline; a '##' pair opens a block comment terminated by the next '##'.
func (l *Lexer) skip() error {
	for {
		switch ch := l.peek(); {

		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			l.bump()

		case ch == '#' && l.peekNext() == '#':
			open := l.mark()
			l.bump()
			l.bump()
			for !(l.peek() == '#' && l.peekNext() == '#') {
				if l.cursor >= len(l.src) {
					return fmt.Errorf("%d:%d: unterminated block comment", open.Line, open.Column)
				}
				l.bump()
			}
			l.bump()
			l.bump()

		case ch == '#':
			for l.peek() != '\n' && l.cursor < len(l.src) {
				l.bump()
			}

		default:
			return nil
		}
	}
}

// Snapshots the position of the token about to be produced.
func (l *Lexer) mark() Token {
	return Token{Offset: l.cursor, Line: l.line, Column: l.column}
}

// Returns the next token of the stream. End of input yields an idempotent EOF
// token; lexical failures return a non-nil error and the stream must not be
// consumed any further.
func (l *Lexer) Next() (Token, error) {
	if err := l.skip(); err != nil {
		return Token{Kind: TokenInvalid}, err
	}

	tok := l.mark()

	if l.cursor >= len(l.src) {
		tok.Kind = TokenEof
		return tok, nil
	}

	// one() finalizes a single-character token, two() the two-character
	// variants produced by one byte of lookahead
	one := func(kind TokenKind) (Token, error) {
		l.bump()
		tok.Kind, tok.Length = kind, 1
		return tok, nil
	}
	two := func(kind TokenKind) (Token, error) {
		l.bump()
		l.bump()
		tok.Kind, tok.Length = kind, 2
		return tok, nil
	}

	switch ch := l.peek(); {

	case ch == '+':
		return one(TokenPlus)
	case ch == '-':
		return one(TokenMinus)
	case ch == '*':
		return one(TokenAsterisk)
	case ch == '/':
		return one(TokenSlash)
	case ch == ';':
		return one(TokenSemicolon)
	case ch == ',':
		return one(TokenComma)
	case ch == ':':
		return one(TokenColon)
	case ch == '\'':
		return one(TokenTick)
	case ch == '(':
		return one(TokenLParen)
	case ch == ')':
		return one(TokenRParen)
	case ch == '{':
		return one(TokenLBrace)
	case ch == '}':
		return one(TokenRBrace)
	case ch == '[':
		return one(TokenLBracket)
	case ch == ']':
		return one(TokenRBracket)

	case ch == '=' && l.peekNext() == '=':
		return two(TokenEq)
	case ch == '=':
		return one(TokenAssign)
	case ch == '!' && l.peekNext() == '=':
		return two(TokenNeq)
	case ch == '!':
		return one(TokenBang)
	case ch == '<' && l.peekNext() == '=':
		return two(TokenLtEq)
	case ch == '<':
		return one(TokenLt)
	case ch == '>' && l.peekNext() == '=':
		return two(TokenGtEq)
	case ch == '>':
		return one(TokenGt)
	case ch == '&' && l.peekNext() == '&':
		return two(TokenLogAnd)
	case ch == '&':
		return one(TokenAmpersand)
	case ch == '|' && l.peekNext() == '|':
		return two(TokenLogOr)
	case ch == '|':
		return one(TokenPipe)

	case ch == '"':
		return l.lexString(tok)
	case isDigit(ch):
		return l.lexNumber(tok)
	case isAlpha(ch):
		return l.lexWord(tok)
	}

	return Token{Kind: TokenInvalid},
		fmt.Errorf("%d:%d: unknown token `%c`", tok.Line, tok.Column, l.peek())
}

// Lexes a double-quoted string literal. There are no escape sequences, the
// contents run verbatim until the closing quote; hitting end of input first
// is a fatal lexer error.
func (l *Lexer) lexString(tok Token) (Token, error) {
	l.bump() // opening quote
	start := l.cursor

	for l.peek() != '"' {
		if l.cursor >= len(l.src) {
			return Token{Kind: TokenInvalid},
				fmt.Errorf("%d:%d: unterminated string literal", tok.Line, tok.Column)
		}
		l.bump()
	}

	tok.Kind = TokenString
	tok.Value = l.src[start:l.cursor]
	l.bump() // closing quote
	tok.Length = l.cursor - tok.Offset
	return tok, nil
}

// Lexes a decimal number literal with an optional width suffix: 'c' tags the
// literal char, 'i' int and 'l' long; without a suffix the width stays "any".
func (l *Lexer) lexNumber(tok Token) (Token, error) {
	start := l.cursor
	for isDigit(l.peek()) {
		l.bump()
	}

	digits := l.src[start:l.cursor]
	number, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Token{Kind: TokenInvalid},
			fmt.Errorf("%d:%d: number literal `%s` out of range", tok.Line, tok.Column, digits)
	}

	tok.Kind = TokenNumber
	tok.Number = number
	tok.Width = WidthAny

	switch l.peek() {
	case 'c':
		tok.Width = WidthChar
		l.bump()
	case 'i':
		tok.Width = WidthInt
		l.bump()
	case 'l':
		tok.Width = WidthLong
		l.bump()
	}

	tok.Length = l.cursor - tok.Offset
	return tok, nil
}

// Lexes an identifier or keyword: a leading letter or underscore followed by
// letters, underscores and digits. The word is checked against the keyword
// set before being emitted as an identifier.
func (l *Lexer) lexWord(tok Token) (Token, error) {
	start := l.cursor
	for isAlpha(l.peek()) || isDigit(l.peek()) {
		l.bump()
	}

	word := l.src[start:l.cursor]
	tok.Length = l.cursor - tok.Offset

	if kind, found := keywords[word]; found {
		tok.Kind = kind
		return tok, nil
	}

	tok.Kind = TokenIdent
	tok.Value = word
	return tok, nil
}

// Runs the whole source through a fresh Lexer and collects every token up to
// and including the EOF sentinel. Used by the token dump and by tests.
func Tokenize(src string) ([]Token, error) {
	lexer := NewLexer(src)
	tokens := []Token{}

	for {
		tok, err := lexer.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokenEof {
			return tokens, nil
		}
	}
}
