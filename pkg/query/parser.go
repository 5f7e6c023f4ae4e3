package query

import (
	"fmt"
	"regexp"
	"strings"
)

// Parser parses the pipe-based log query language using recursive descent.
//
// Grammar:
//
//	query    := filters [ '|' pipeline ]
//	filters  := { clause }
//	clause   := field '=' '"' literal '"'    exact structured match
//	          | field '=' '/' pattern '/'    regex match
//	          | word                         free-text term
//	          | '*'                          match all
//	pipeline := 'stats' 'count' 'by' field
//
// Clauses combine with implicit AND only. Parsers are cheap throwaway
// values; Parse is the stateless entry point and is safe for concurrent
// use.
type Parser struct {
	lexer   *Lexer
	current Token
	peek    Token
	raw     string
}

// Parse compiles query text into a Query. Parsing is total and
// deterministic: valid input always produces the same AST, invalid input
// fails with a positioned *ParseError.
func Parse(input string) (*Query, error) {
	p := newParser(input)
	return p.parse()
}

func newParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input), raw: input}
	// Read two tokens to initialize current and peek
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token
func (p *Parser) nextToken() {
	p.current = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) parse() (*Query, error) {
	q := &Query{raw: p.raw}

	// Filter section: everything before the pipe
	for p.current.Type != TokenPipe && p.current.Type != TokenEOF {
		f, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		if f != nil {
			q.Filters = append(q.Filters, f)
		}
	}

	// Optional pipeline section
	if p.current.Type == TokenPipe {
		p.nextToken() // consume '|'
		agg, err := p.parseAggregation()
		if err != nil {
			return nil, err
		}
		q.Pipeline = agg
	}

	if p.current.Type != TokenEOF {
		return nil, p.errorf("unexpected token %q after pipeline", p.current.Literal)
	}
	return q, nil
}

// parseClause parses one filter clause. `*` contributes no filter.
func (p *Parser) parseClause() (Filter, error) {
	switch p.current.Type {
	case TokenStar:
		p.nextToken()
		return nil, nil

	case TokenWord:
		word := p.current.Literal
		if p.peek.Type == TokenEqual {
			return p.parseFieldMatch(word)
		}
		p.nextToken()
		return &FreeText{Term: word}, nil

	case TokenIllegal:
		return nil, p.errorf("unterminated literal")

	default:
		return nil, p.errorf("unexpected token %q", p.current.Literal)
	}
}

// parseFieldMatch parses field="literal" or field=/regex/
func (p *Parser) parseFieldMatch(field string) (Filter, error) {
	p.nextToken() // field
	p.nextToken() // consume '='

	switch p.current.Type {
	case TokenString:
		f := &FieldMatch{Field: field, Value: p.current.Literal}
		p.nextToken()
		return f, nil

	case TokenRegex:
		re, err := regexp.Compile(p.current.Literal)
		if err != nil {
			return nil, p.errorf("invalid regex: %v", err)
		}
		f := &FieldMatch{Field: field, Value: p.current.Literal, Regex: true, re: re}
		p.nextToken()
		return f, nil

	case TokenIllegal:
		return nil, p.errorf("unterminated literal")

	default:
		return nil, p.errorf("expected quoted literal or /regex/ after %s=", field)
	}
}

// parseAggregation parses the only pipeline form: stats count by <field>.
// The `by` clause is mandatory; a group-by field must follow it.
func (p *Parser) parseAggregation() (*Aggregation, error) {
	if p.current.Type != TokenWord || !strings.EqualFold(p.current.Literal, "stats") {
		return nil, p.errorf("expected 'stats' after '|', got %q", p.current.Literal)
	}
	p.nextToken()

	if p.current.Type != TokenWord || !strings.EqualFold(p.current.Literal, "count") {
		return nil, p.errorf("expected 'count' after 'stats', got %q", p.current.Literal)
	}
	p.nextToken()

	if p.current.Type != TokenWord || !strings.EqualFold(p.current.Literal, "by") {
		return nil, p.errorf("stats requires a 'by' clause")
	}
	p.nextToken()

	if p.current.Type != TokenWord {
		return nil, p.errorf("expected field name after 'by'")
	}
	agg := &Aggregation{Op: "count", GroupBy: p.current.Literal}
	p.nextToken()
	return agg, nil
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Pos: p.current.Pos, Msg: fmt.Sprintf(format, args...)}
}
