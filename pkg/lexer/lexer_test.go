package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextTokenPunctuationAndOperators(t *testing.T) {
	input := `(){}[]` + `,.;:?` + ` - -= + += / /= * *= ** % %= ! != = == < <= > >= ...`

	expected := []TokenType{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenLeftBracket, TokenRightBracket,
		TokenComma, TokenDot, TokenSemicolon, TokenColon, TokenQuestion,
		TokenMinus, TokenMinusEqual, TokenPlus, TokenPlusEqual,
		TokenSlash, TokenSlashEqual, TokenStar, TokenStarEqual, TokenCaret,
		TokenPercent, TokenPercentEqual,
		TokenBang, TokenBangEqual, TokenEqual, TokenEqualEqual,
		TokenLess, TokenLessEqual, TokenGreater, TokenGreaterEqual,
		TokenDotDotDot,
		TokenEOF,
	}

	l := New(input)
	for i, want := range expected {
		tok := l.Next()
		require.Equalf(t, want, tok.Type, "token %d (lexeme %q)", i, tok.Lexeme)
	}
}

func TestNextTokenKeywordsAndIdentifiers(t *testing.T) {
	input := "and break class const continue else export false for fun if import nil or " +
		"print return super switch case default this true var while try catch static as notAKeyword"

	expected := []TokenType{
		TokenAnd, TokenBreak, TokenClass, TokenConst, TokenContinue, TokenElse,
		TokenExport, TokenFalse, TokenFor, TokenFun, TokenIf, TokenImport,
		TokenNil, TokenOr, TokenPrint, TokenReturn, TokenSuper, TokenSwitch,
		TokenCase, TokenDefault, TokenThis, TokenTrue, TokenVar, TokenWhile,
		TokenTry, TokenCatch, TokenStatic, TokenAs,
		TokenIdentifier,
	}

	l := New(input)
	for i, want := range expected {
		tok := l.Next()
		require.Equalf(t, want, tok.Type, "token %d (lexeme %q)", i, tok.Lexeme)
	}
	require.Equal(t, TokenEOF, l.Next().Type)
}

func TestNextTokenNumbers(t *testing.T) {
	l := New("123 3.14 0")
	tok := l.Next()
	require.Equal(t, TokenNumber, tok.Type)
	require.Equal(t, "123", tok.Lexeme)

	tok = l.Next()
	require.Equal(t, TokenNumber, tok.Type)
	require.Equal(t, "3.14", tok.Lexeme)

	tok = l.Next()
	require.Equal(t, TokenNumber, tok.Type)
	require.Equal(t, "0", tok.Lexeme)
}

func TestNextTokenNumberDotNotFollowedByDigitStaysSeparate(t *testing.T) {
	// "1." is not a valid float literal (no trailing digit), so the dot
	// is its own token, matching scanNumber's lookahead in
	// original_source/scanner.c.
	l := New("1.method()")
	tok := l.Next()
	require.Equal(t, TokenNumber, tok.Type)
	require.Equal(t, "1", tok.Lexeme)

	tok = l.Next()
	require.Equal(t, TokenDot, tok.Type)
}

func TestNextTokenStrings(t *testing.T) {
	l := New(`"hello" "line1\nline2" "unterminated`)

	tok := l.Next()
	require.Equal(t, TokenString, tok.Type)
	require.Equal(t, `"hello"`, tok.Lexeme)
	require.Equal(t, "hello", Unescape(tok.Lexeme))

	tok = l.Next()
	require.Equal(t, TokenString, tok.Type)
	require.Equal(t, "line1\nline2", Unescape(tok.Lexeme))

	tok = l.Next()
	require.Equal(t, TokenError, tok.Type)
}

func TestNextTokenSkipsLineAndBlockComments(t *testing.T) {
	l := New("// a comment\nvar /* inline\nblock */ x")

	tok := l.Next()
	require.Equal(t, TokenVar, tok.Type)

	tok = l.Next()
	require.Equal(t, TokenIdentifier, tok.Type)
	require.Equal(t, "x", tok.Lexeme)
}

func TestNextTokenTracksLineNumbers(t *testing.T) {
	l := New("var a\n= 1\n;")

	require.Equal(t, 1, l.Next().Line) // var
	require.Equal(t, 1, l.Next().Line) // a
	require.Equal(t, 2, l.Next().Line) // =
	require.Equal(t, 2, l.Next().Line) // 1
	require.Equal(t, 3, l.Next().Line) // ;
}

func TestNextTokenUnexpectedCharacterProducesErrorToken(t *testing.T) {
	l := New("@")
	tok := l.Next()
	require.Equal(t, TokenError, tok.Type)
}

func TestUnescapeHandlesAllEscapeSequences(t *testing.T) {
	require.Equal(t, "a\tb\nc\rd\\e\"f", Unescape(`"a\tb\nc\rd\\e\"f"`))
}
