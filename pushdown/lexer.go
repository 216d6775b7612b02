package pushdown

import (
	"fmt"
	"slices"
	"unicode"

	"github.com/pkg/errors"
)

type TokenKind int

const (
	TokenKindUnknown TokenKind = iota

	TokenKindKeyword
	TokenKindNumber
	TokenKindString

	TokenKindFieldSeparator

	TokenKindOpeningParenthesis
	TokenKindClosingParenthesis

	TokenKindOperator
)

func (k TokenKind) String() string {
	switch k {
	case TokenKindUnknown:
		return "TokenKindUnknown"
	case TokenKindKeyword:
		return "TokenKindKeyword"
	case TokenKindNumber:
		return "TokenKindNumber"
	case TokenKindString:
		return "TokenKindString"
	case TokenKindFieldSeparator:
		return "TokenKindFieldSeparator"
	case TokenKindOpeningParenthesis:
		return "TokenKindOpeningParenthesis"
	case TokenKindClosingParenthesis:
		return "TokenKindClosingParenthesis"
	case TokenKindOperator:
		return "TokenKindOperator"
	}
	return fmt.Sprintf("!! INVALID TOKEN KIND %d !!", int(k))
}

type Token struct {
	kind          TokenKind
	lexeme        string
	startPosition int
}

type Lexer struct {
	input []rune
	index int // Position in input.
}

var (
	keywordChars = []rune{
		'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o', 'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z',
		'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z',
		'_', ':', '@'}
	numberChars = []rune{'1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '.'}
)

// char returns the rune at the current location or the rune '-1' if there is no next char.
func (l *Lexer) char() rune {
	if l.index >= len(l.input) {
		return -1
	}
	return l.input[l.index]
}

// nextChar returns the rune after the one char() returns, or the rune '-1' if there is no next char.
func (l *Lexer) nextChar() rune {
	if l.index+1 >= len(l.input) {
		return -1
	}
	return l.input[l.index+1]
}

func (l *Lexer) read() ([]*Token, error) {
	var tokens []*Token
	for l.index < len(l.input) {
		token, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		if token != nil {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (l *Lexer) nextToken() (*Token, error) {
	for ; l.index < len(l.input); l.index++ {
		char := l.char()

		// Commas only separate list items and arguments, positions carry all
		// the meaning, so they are skipped like whitespace.
		if unicode.IsSpace(char) || char == ',' {
			continue
		}

		switch char {
		case '(':
			return l.currentSingleCharToken(TokenKindOpeningParenthesis), nil
		case ')':
			return l.currentSingleCharToken(TokenKindClosingParenthesis), nil
		case '.':
			return l.currentSingleCharToken(TokenKindFieldSeparator), nil
		case '\'':
			return l.currentStringLiteral()
		}

		if slices.Contains(keywordChars, char) {
			return l.currentKeyword(), nil
		}

		if slices.Contains(numberChars, char) {
			return l.currentNumber(), nil
		}
		if char == '-' && slices.Contains(numberChars, l.nextChar()) {
			return l.currentNumber(), nil
		}

		switch char {
		case '!', '<', '>':
			if l.nextChar() == '=' {
				return l.currentMultiCharToken(TokenKindOperator, 2), nil
			}
			return l.currentSingleCharToken(TokenKindOperator), nil
		case '=':
			return l.currentSingleCharToken(TokenKindOperator), nil
		}

		return nil, errors.Errorf("Unexpected character '%c' at index %d", char, l.index)
	}

	return nil, errors.New("No token found")
}

func (l *Lexer) currentSingleCharToken(tokenKind TokenKind) *Token {
	token := &Token{
		kind:          tokenKind,
		lexeme:        string(l.char()),
		startPosition: l.index,
	}
	l.index++
	return token
}

func (l *Lexer) currentMultiCharToken(tokenKind TokenKind, chars int) *Token {
	token := &Token{
		kind:          tokenKind,
		lexeme:        string(l.input[l.index : l.index+chars]),
		startPosition: l.index,
	}
	l.index += chars
	return token
}

// currentStringLiteral reads a single-quoted literal. The quotes do not
// become part of the lexeme.
func (l *Lexer) currentStringLiteral() (*Token, error) {
	startIndex := l.index
	l.index++

	lexeme := ""
	for ; l.index < len(l.input); l.index++ {
		if l.char() == '\'' {
			l.index++
			return &Token{
				kind:          TokenKindString,
				lexeme:        lexeme,
				startPosition: startIndex,
			}, nil
		}
		lexeme += string(l.char())
	}

	return nil, errors.Errorf("Unterminated string literal starting at index %d", startIndex)
}

// currentKeyword returns the keyword starting at the current index. Digits
// are allowed inside a keyword but not at its start.
func (l *Lexer) currentKeyword() *Token {
	lexeme := ""
	startIndex := l.index

	for ; l.index < len(l.input); l.index++ {
		char := l.char()
		if !slices.Contains(keywordChars, char) && !unicode.IsDigit(char) {
			break
		}
		lexeme += string(char)
	}

	return &Token{
		kind:          TokenKindKeyword,
		lexeme:        lexeme,
		startPosition: startIndex,
	}
}

func (l *Lexer) currentNumber() *Token {
	lexeme := ""
	startIndex := l.index

	if l.char() == '-' {
		lexeme = "-"
		l.index++
	}
	for ; l.index < len(l.input) && slices.Contains(numberChars, l.char()); l.index++ {
		lexeme += string(l.char())
	}

	return &Token{
		kind:          TokenKindNumber,
		lexeme:        lexeme,
		startPosition: startIndex,
	}
}
