package pushdown

import (
	"strconv"
	"strings"

	"github.com/hauke96/sigolo/v2"
	"github.com/hjanetzek/geodesk-fdw/gol"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

/*
Filter language, a small SQL-like condition syntax:

	kind = way and tags.building = 'yes'
	tags.amenity in ('cafe', 'bar') and intersects(1385000, 6125000, 1390000, 6130000)
	id > 1000 or not (tags.highway exists)

Columns are id, kind and tags.<key>. Kind literals are node, way and
relation, or their numeric values 0, 1 and 2. The intersects arguments are
a Web Mercator bounding box (minX, minY, maxX, maxY in meters). Keywords
are case insensitive, tag keys and values are not.
*/

type Parser struct {
	token []*Token
	index int
}

// ParseFilter parses a filter string into an expression tree. An empty
// string parses to a nil expression, meaning no restriction.
func ParseFilter(filterString string) (Expression, error) {
	trimmed := strings.Trim(filterString, "\n\r\t ")
	if trimmed == "" {
		return nil, nil
	}

	lexer := Lexer{input: []rune(trimmed)}
	token, err := lexer.read()
	if err != nil {
		return nil, err
	}

	sigolo.Tracef("Found %d token", len(token))
	for _, t := range token {
		sigolo.Tracef("  kind=%s, pos=%d : %s", t.kind.String(), t.startPosition, t.lexeme)
	}

	parser := Parser{token: token}
	expression, err := parser.parseOrExpression()
	if err != nil {
		return nil, err
	}

	if trailing := parser.currentToken(); trailing != nil {
		return nil, errors.Errorf("Unexpected '%s' at position %d after end of filter", trailing.lexeme, trailing.startPosition)
	}

	return expression, nil
}

func (p *Parser) currentToken() *Token {
	if p.index >= len(p.token) {
		return nil
	}
	return p.token[p.index]
}

func (p *Parser) moveToNextToken() *Token {
	token := p.currentToken()
	p.index++
	return token
}

// currentKeywordIs checks whether the current token is the given keyword,
// ignoring case.
func (p *Parser) currentKeywordIs(keyword string) bool {
	token := p.currentToken()
	return token != nil && token.kind == TokenKindKeyword && strings.EqualFold(token.lexeme, keyword)
}

func (p *Parser) expect(kind TokenKind, description string) (*Token, error) {
	token := p.currentToken()
	if token == nil {
		return nil, errors.Errorf("Filter ended but expected %s", description)
	}
	if token.kind != kind {
		return nil, errors.Errorf("Expected %s at position %d but found '%s'", description, token.startPosition, token.lexeme)
	}
	p.index++
	return token, nil
}

func (p *Parser) parseOrExpression() (Expression, error) {
	expression, err := p.parseAndExpression()
	if err != nil {
		return nil, err
	}

	for p.currentKeywordIs("or") {
		p.moveToNextToken()
		next, err := p.parseAndExpression()
		if err != nil {
			return nil, err
		}

		if or, ok := expression.(*OrExpression); ok {
			or.Children = append(or.Children, next)
		} else {
			expression = NewOrExpression(expression, next)
		}
	}

	return expression, nil
}

func (p *Parser) parseAndExpression() (Expression, error) {
	expression, err := p.parseUnaryExpression()
	if err != nil {
		return nil, err
	}

	for p.currentKeywordIs("and") {
		p.moveToNextToken()
		next, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}

		if and, ok := expression.(*AndExpression); ok {
			and.Children = append(and.Children, next)
		} else {
			expression = NewAndExpression(expression, next)
		}
	}

	return expression, nil
}

func (p *Parser) parseUnaryExpression() (Expression, error) {
	if p.currentKeywordIs("not") {
		p.moveToNextToken()
		child, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		return NewNotExpression(child), nil
	}

	token := p.currentToken()
	if token != nil && token.kind == TokenKindOpeningParenthesis {
		p.moveToNextToken()
		expression, err := p.parseOrExpression()
		if err != nil {
			return nil, err
		}
		_, err = p.expect(TokenKindClosingParenthesis, "')'")
		if err != nil {
			return nil, err
		}
		return expression, nil
	}

	return p.parsePredicate()
}

func (p *Parser) parsePredicate() (Expression, error) {
	token, err := p.expect(TokenKindKeyword, "column name")
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(token.lexeme) {
	case "id":
		return p.parseNumericComparison(ColumnID)
	case "kind":
		return p.parseKindPredicate()
	case "tags":
		return p.parseTagPredicate()
	case "intersects":
		return p.parseIntersects()
	}

	return nil, errors.Errorf("Unknown column '%s' at position %d, expected id, kind, tags.<key> or intersects", token.lexeme, token.startPosition)
}

func (p *Parser) parseNumericComparison(column Column) (Expression, error) {
	operator, err := p.parseBinaryOperator()
	if err != nil {
		return nil, err
	}

	token, err := p.expect(TokenKindNumber, "number")
	if err != nil {
		return nil, err
	}
	value, err := parseNumberLiteral(token)
	if err != nil {
		return nil, err
	}

	return NewComparisonExpression(column, "", operator, value), nil
}

func (p *Parser) parseKindPredicate() (Expression, error) {
	if p.currentKeywordIs("in") {
		p.moveToNextToken()
		values, err := p.parseLiteralList(p.parseKindLiteral)
		if err != nil {
			return nil, err
		}
		return NewInExpression(ColumnKind, "", values), nil
	}

	operator, err := p.parseBinaryOperator()
	if err != nil {
		return nil, err
	}
	value, err := p.parseKindLiteral()
	if err != nil {
		return nil, err
	}

	return NewComparisonExpression(ColumnKind, "", operator, value), nil
}

func (p *Parser) parseTagPredicate() (Expression, error) {
	_, err := p.expect(TokenKindFieldSeparator, "'.' after tags")
	if err != nil {
		return nil, err
	}
	keyToken, err := p.expect(TokenKindKeyword, "tag key")
	if err != nil {
		return nil, err
	}
	key := keyToken.lexeme

	if p.currentKeywordIs("in") {
		p.moveToNextToken()
		values, err := p.parseLiteralList(p.parseValueLiteral)
		if err != nil {
			return nil, err
		}
		return NewInExpression(ColumnTag, key, values), nil
	}

	if p.currentKeywordIs("exists") {
		p.moveToNextToken()
		return NewKeyExistsExpression(key), nil
	}

	// "is not null" is the relational spelling of an existence check.
	if p.currentKeywordIs("is") {
		p.moveToNextToken()
		for _, keyword := range []string{"not", "null"} {
			if !p.currentKeywordIs(keyword) {
				return nil, errors.Errorf("Expected 'is not null' after tags.%s", key)
			}
			p.moveToNextToken()
		}
		return NewKeyExistsExpression(key), nil
	}

	operator, err := p.parseBinaryOperator()
	if err != nil {
		return nil, err
	}
	value, err := p.parseValueLiteral()
	if err != nil {
		return nil, err
	}

	return NewComparisonExpression(ColumnTag, key, operator, value), nil
}

func (p *Parser) parseIntersects() (Expression, error) {
	_, err := p.expect(TokenKindOpeningParenthesis, "'(' after intersects")
	if err != nil {
		return nil, err
	}

	var coordinates [4]float64
	for i := 0; i < 4; i++ {
		token, err := p.expect(TokenKindNumber, "number as intersects argument")
		if err != nil {
			return nil, err
		}
		coordinates[i], err = strconv.ParseFloat(token.lexeme, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid number '%s' at position %d", token.lexeme, token.startPosition)
		}
	}

	_, err = p.expect(TokenKindClosingParenthesis, "')'")
	if err != nil {
		return nil, err
	}

	if coordinates[0] > coordinates[2] || coordinates[1] > coordinates[3] {
		return nil, errors.Errorf("Invalid intersects box, min corner (%f, %f) must not exceed max corner (%f, %f)",
			coordinates[0], coordinates[1], coordinates[2], coordinates[3])
	}

	return NewIntersectsExpression(orb.Bound{
		Min: orb.Point{coordinates[0], coordinates[1]},
		Max: orb.Point{coordinates[2], coordinates[3]},
	}), nil
}

func (p *Parser) parseBinaryOperator() (BinaryOperator, error) {
	token, err := p.expect(TokenKindOperator, "binary operator")
	if err != nil {
		return BinOpInvalid, err
	}

	switch token.lexeme {
	case "=":
		return BinOpEqual, nil
	case "!=":
		return BinOpNotEqual, nil
	case ">":
		return BinOpGreater, nil
	case ">=":
		return BinOpGreaterEqual, nil
	case "<":
		return BinOpLower, nil
	case "<=":
		return BinOpLowerEqual, nil
	}
	return BinOpInvalid, errors.Errorf("Unknown binary operator '%s' at position %d", token.lexeme, token.startPosition)
}

// parseLiteralList parses a parenthesized list. Commas between the items are
// optional, the lexer treats them as whitespace.
func (p *Parser) parseLiteralList(parseItem func() (any, error)) ([]any, error) {
	_, err := p.expect(TokenKindOpeningParenthesis, "'(' to start value list")
	if err != nil {
		return nil, err
	}

	var values []any
	for {
		token := p.currentToken()
		if token == nil {
			return nil, errors.New("Filter ended inside value list, expected ')'")
		}
		if token.kind == TokenKindClosingParenthesis {
			p.moveToNextToken()
			break
		}

		value, err := parseItem()
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}

	if len(values) == 0 {
		return nil, errors.New("Empty value list")
	}
	return values, nil
}

// parseKindLiteral accepts the kind names and their numeric values.
func (p *Parser) parseKindLiteral() (any, error) {
	token := p.currentToken()
	if token == nil {
		return nil, errors.New("Filter ended but expected kind literal")
	}

	if token.kind == TokenKindKeyword {
		p.index++
		switch strings.ToLower(token.lexeme) {
		case "node":
			return int64(gol.KindNode), nil
		case "way":
			return int64(gol.KindWay), nil
		case "relation":
			return int64(gol.KindRelation), nil
		}
		return nil, errors.Errorf("Unknown kind literal '%s' at position %d, expected node, way or relation", token.lexeme, token.startPosition)
	}

	if token.kind == TokenKindNumber {
		p.index++
		return parseNumberLiteral(token)
	}

	return nil, errors.Errorf("Expected kind literal at position %d but found '%s'", token.startPosition, token.lexeme)
}

// parseValueLiteral accepts quoted strings, numbers and bare keywords as tag
// values.
func (p *Parser) parseValueLiteral() (any, error) {
	token := p.currentToken()
	if token == nil {
		return nil, errors.New("Filter ended but expected value")
	}

	switch token.kind {
	case TokenKindString, TokenKindKeyword:
		p.index++
		return token.lexeme, nil
	case TokenKindNumber:
		p.index++
		return parseNumberLiteral(token)
	}

	return nil, errors.Errorf("Expected value at position %d but found '%s'", token.startPosition, token.lexeme)
}

func parseNumberLiteral(token *Token) (any, error) {
	intValue, err := strconv.ParseInt(token.lexeme, 10, 64)
	if err == nil {
		return intValue, nil
	}

	floatValue, err := strconv.ParseFloat(token.lexeme, 64)
	if err != nil {
		return nil, errors.Errorf("Invalid number '%s' at position %d", token.lexeme, token.startPosition)
	}
	return floatValue, nil
}
