package seron_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"its-hmny.dev/seronc/pkg/seron"
)

// Collects the token kinds of the stream, dropping the trailing EOF.
func kinds(t *testing.T, src string) []seron.TokenKind {
	t.Helper()

	tokens, err := seron.Tokenize(src)
	require.NoError(t, err)

	collected := []seron.TokenKind{}
	for _, tok := range tokens[:len(tokens)-1] {
		collected = append(collected, tok.Kind)
	}
	return collected
}

func TestLexerTokens(t *testing.T) {
	t.Run("Punctuators and operators", func(t *testing.T) {
		require.Equal(t,
			[]seron.TokenKind{
				seron.TokenPlus, seron.TokenMinus, seron.TokenAsterisk, seron.TokenSlash,
				seron.TokenBang, seron.TokenSemicolon, seron.TokenComma, seron.TokenColon,
				seron.TokenLParen, seron.TokenRParen, seron.TokenLBrace, seron.TokenRBrace,
				seron.TokenLBracket, seron.TokenRBracket, seron.TokenTick,
			},
			kinds(t, "+ - * / ! ; , : ( ) { } [ ] '"))
	})

	t.Run("Two-character lookahead", func(t *testing.T) {
		require.Equal(t,
			[]seron.TokenKind{
				seron.TokenEq, seron.TokenNeq, seron.TokenLtEq, seron.TokenGtEq,
				seron.TokenLogAnd, seron.TokenLogOr,
			},
			kinds(t, "== != <= >= && ||"))

		// the isolated one-character counterparts
		require.Equal(t,
			[]seron.TokenKind{
				seron.TokenAssign, seron.TokenLt, seron.TokenGt,
				seron.TokenAmpersand, seron.TokenPipe,
			},
			kinds(t, "= < > & |"))
	})

	t.Run("Keywords versus identifiers", func(t *testing.T) {
		require.Equal(t,
			[]seron.TokenKind{
				seron.TokenKwProc, seron.TokenKwLet, seron.TokenKwIf, seron.TokenKwElse,
				seron.TokenKwElsif, seron.TokenKwWhile, seron.TokenKwFor, seron.TokenKwReturn,
				seron.TokenKwTable, seron.TokenTypeInt, seron.TokenTypeLong,
				seron.TokenTypeChar, seron.TokenTypeVoid, seron.TokenIdent,
			},
			kinds(t, "proc let if else elsif while for return table int long char void procedure"))

		tokens, err := seron.Tokenize("_leading letter2 snake_case")
		require.NoError(t, err)
		require.Equal(t, "_leading", tokens[0].Value)
		require.Equal(t, "letter2", tokens[1].Value)
		require.Equal(t, "snake_case", tokens[2].Value)
	})

	t.Run("Number literals and width suffixes", func(t *testing.T) {
		tokens, err := seron.Tokenize("42 7c 7i 7l")
		require.NoError(t, err)

		require.Equal(t, int64(42), tokens[0].Number)
		require.Equal(t, seron.WidthAny, tokens[0].Width)
		require.Equal(t, seron.WidthChar, tokens[1].Width)
		require.Equal(t, seron.WidthInt, tokens[2].Width)
		require.Equal(t, seron.WidthLong, tokens[3].Width)
	})

	t.Run("String literals", func(t *testing.T) {
		tokens, err := seron.Tokenize(`"hello world"`)
		require.NoError(t, err)
		require.Equal(t, seron.TokenString, tokens[0].Kind)
		require.Equal(t, "hello world", tokens[0].Value)
		require.Equal(t, 13, tokens[0].Length) // quotes included in the span
	})

	t.Run("Comments are consumed silently", func(t *testing.T) {
		require.Equal(t,
			[]seron.TokenKind{seron.TokenKwLet, seron.TokenIdent},
			kinds(t, "let # a line comment\nx"))

		require.Equal(t,
			[]seron.TokenKind{seron.TokenKwLet, seron.TokenIdent},
			kinds(t, "let ## a block\ncomment ## x"))
	})
}

func TestLexerPositions(t *testing.T) {
	src := "let x: int = 5;\nx = x + 1;\n"
	tokens, err := seron.Tokenize(src)
	require.NoError(t, err)

	// universal invariants: every token lies inside the source and no
	// invalid token ever escapes the lexer
	for _, tok := range tokens {
		require.LessOrEqual(t, tok.Offset+tok.Length, len(src))
		require.NotEqual(t, seron.TokenInvalid, tok.Kind)
	}

	require.Equal(t, 1, tokens[0].Line)
	require.Equal(t, 1, tokens[0].Column)
	require.Equal(t, "x", tokens[1].Value)
	require.Equal(t, 5, tokens[1].Column)

	// first token of the second line
	require.Equal(t, 2, tokens[7].Line)
	require.Equal(t, 1, tokens[7].Column)
}

func TestLexerEofIsIdempotent(t *testing.T) {
	lexer := seron.NewLexer("x")

	tok, err := lexer.Next()
	require.NoError(t, err)
	require.Equal(t, seron.TokenIdent, tok.Kind)

	for range 3 {
		tok, err = lexer.Next()
		require.NoError(t, err)
		require.Equal(t, seron.TokenEof, tok.Kind)
	}
}

func TestLexerErrors(t *testing.T) {
	test := func(src string) {
		_, err := seron.Tokenize(src)
		require.Error(t, err)
	}

	test("let $ = 5;")      // unknown start-of-token character
	test(`"unterminated`)   // unterminated string literal
	test("## never closed") // unterminated block comment
}
