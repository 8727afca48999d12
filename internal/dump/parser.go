// Package dump implements a streaming parser for SQL bulk export files.
// It classifies lines as table-definition or data-insertion statements and
// materializes column definitions and value tuples on demand, tolerating
// the usual dump dialect noise (comments, escaping, multi-row inserts).
package dump

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/lepinkainen/alexandria/internal/errors"
)

// Kind classifies one line of a dump stream.
type Kind int

const (
	KindOther Kind = iota
	KindTableDef
	KindInsert
)

// Line is one classified dump line.
type Line struct {
	Kind  Kind
	Table string // for KindTableDef and KindInsert
	Text  string
}

// Column is one column of a parsed table definition.
type Column struct {
	Name string
	Type string
}

// TableDef is a table definition extracted from one dump segment.
type TableDef struct {
	Name    string
	Columns []Column
}

// Value is one raw column value from a data tuple. Raw holds the unescaped
// literal; Null marks SQL NULL.
type Value struct {
	Raw  string
	Null bool
}

// Parser streams a dump file line by line. Offset and Size expose the
// progress ratio for large files.
type Parser struct {
	r      *bufio.Reader
	offset int64
	size   int64
}

// NewParser wraps a dump byte stream. Size may be zero when the total
// length is unknown (e.g. reading through a decompressor).
func NewParser(r io.Reader, size int64) *Parser {
	return &Parser{
		r:    bufio.NewReaderSize(r, 1<<20),
		size: size,
	}
}

// Offset returns the number of bytes consumed so far.
func (p *Parser) Offset() int64 { return p.offset }

// Size returns the total stream size, or zero when unknown.
func (p *Parser) Size() int64 { return p.size }

// Next reads and classifies the next line. It returns io.EOF at the end of
// the stream.
func (p *Parser) Next() (Line, error) {
	text, err := p.readLine()
	if err != nil {
		return Line{}, err
	}
	return classify(text), nil
}

func (p *Parser) readLine() (string, error) {
	text, err := p.r.ReadString('\n')
	p.offset += int64(len(text))
	if err != nil {
		if err == io.EOF && text != "" {
			return strings.TrimRight(text, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(text, "\r\n"), nil
}

func classify(text string) Line {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)
	switch {
	case strings.HasPrefix(upper, "CREATE TABLE"):
		return Line{Kind: KindTableDef, Table: tableName(trimmed, "CREATE TABLE"), Text: text}
	case strings.HasPrefix(upper, "INSERT INTO"):
		return Line{Kind: KindInsert, Table: tableName(trimmed, "INSERT INTO"), Text: text}
	default:
		return Line{Kind: KindOther, Text: text}
	}
}

// tableName extracts the identifier following a statement prefix, stripping
// backticks and any trailing tokens ("IF NOT EXISTS", "(", "VALUES").
func tableName(stmt, prefix string) string {
	rest := strings.TrimSpace(stmt[len(prefix):])
	if ifNotExists := "IF NOT EXISTS"; len(rest) >= len(ifNotExists) &&
		strings.EqualFold(rest[:len(ifNotExists)], ifNotExists) {
		rest = strings.TrimSpace(rest[len(ifNotExists):])
	}
	end := len(rest)
	for i, r := range rest {
		if r == ' ' || r == '(' || r == ';' {
			end = i
			break
		}
	}
	return strings.Trim(rest[:end], "`\"")
}

// TableDefinition consumes the body of the table definition that starts at
// the given line, collecting column declarations until the closing
// parenthesis. An unterminated definition at end of stream is a corruption
// signal, not a skippable fault.
func (p *Parser) TableDefinition(start Line) (*TableDef, error) {
	if start.Kind != KindTableDef {
		return nil, fmt.Errorf("line is not a table definition: %q", start.Text)
	}
	def := &TableDef{Name: start.Table}
	for {
		text, err := p.readLine()
		if err == io.EOF {
			return nil, apperrors.NewCorruptedError(fmt.Sprintf("unterminated definition of table %s", def.Name))
		}
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, ")") {
			return def, nil
		}
		col, ok := parseColumn(trimmed)
		if ok {
			def.Columns = append(def.Columns, col)
		}
	}
}

// constraint keywords that open non-column lines inside a definition body
var constraintPrefixes = []string{
	"PRIMARY KEY", "UNIQUE KEY", "UNIQUE", "KEY", "INDEX", "FULLTEXT",
	"CONSTRAINT", "FOREIGN KEY", "CHECK",
}

func parseColumn(line string) (Column, bool) {
	if line == "" || strings.HasPrefix(line, "--") || strings.HasPrefix(line, "/*") {
		return Column{}, false
	}
	upper := strings.ToUpper(line)
	for _, kw := range constraintPrefixes {
		if strings.HasPrefix(upper, kw) {
			return Column{}, false
		}
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Column{}, false
	}
	name := strings.Trim(fields[0], "`\"")
	typ := strings.TrimSuffix(fields[1], ",")
	if name == "" || typ == "" {
		return Column{}, false
	}
	return Column{Name: name, Type: typ}, true
}

// ParseInsertTuples materializes the value tuples of one data-insertion
// line. A single statement may batch many tuples; each tuple becomes one
// logical record. Malformed structure is reported as an error scoped to
// this line and does not poison the stream.
func ParseInsertTuples(text string) ([][]Value, error) {
	i := strings.Index(strings.ToUpper(text), "VALUES")
	if i < 0 {
		return nil, fmt.Errorf("insert statement has no VALUES clause")
	}
	rest := text[i+len("VALUES"):]
	var tuples [][]Value
	pos := 0
	for {
		pos = skipSpaces(rest, pos)
		if pos >= len(rest) || rest[pos] == ';' {
			break
		}
		if rest[pos] == ',' {
			pos++
			continue
		}
		if rest[pos] != '(' {
			return nil, fmt.Errorf("unexpected character %q at tuple boundary", rest[pos])
		}
		tuple, next, err := parseTuple(rest, pos)
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, tuple)
		pos = next
	}
	if len(tuples) == 0 {
		return nil, fmt.Errorf("insert statement has no value tuples")
	}
	return tuples, nil
}

// parseTuple parses one parenthesized value list starting at rest[pos] == '('.
func parseTuple(rest string, pos int) ([]Value, int, error) {
	pos++ // consume '('
	var tuple []Value
	for {
		pos = skipSpaces(rest, pos)
		if pos >= len(rest) {
			return nil, 0, fmt.Errorf("unterminated value tuple")
		}
		val, next, err := parseValue(rest, pos)
		if err != nil {
			return nil, 0, err
		}
		tuple = append(tuple, val)
		pos = skipSpaces(rest, next)
		if pos >= len(rest) {
			return nil, 0, fmt.Errorf("unterminated value tuple")
		}
		switch rest[pos] {
		case ',':
			pos++
		case ')':
			return tuple, pos + 1, nil
		default:
			return nil, 0, fmt.Errorf("unexpected character %q in value tuple", rest[pos])
		}
	}
}

func parseValue(rest string, pos int) (Value, int, error) {
	if rest[pos] == '\'' {
		return parseQuoted(rest, pos)
	}
	// bare literal: number, NULL, or other keyword
	end := pos
	for end < len(rest) && rest[end] != ',' && rest[end] != ')' {
		end++
	}
	raw := strings.TrimSpace(rest[pos:end])
	if strings.EqualFold(raw, "NULL") {
		return Value{Null: true}, end, nil
	}
	return Value{Raw: raw}, end, nil
}

// parseQuoted unescapes a single-quoted SQL string literal. Both backslash
// escapes and doubled quotes are produced by upstream exports.
func parseQuoted(rest string, pos int) (Value, int, error) {
	var b strings.Builder
	i := pos + 1
	for i < len(rest) {
		c := rest[i]
		switch c {
		case '\\':
			if i+1 >= len(rest) {
				return Value{}, 0, fmt.Errorf("dangling escape in string literal")
			}
			b.WriteByte(unescape(rest[i+1]))
			i += 2
		case '\'':
			if i+1 < len(rest) && rest[i+1] == '\'' {
				b.WriteByte('\'')
				i += 2
				continue
			}
			return Value{Raw: b.String()}, i + 1, nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return Value{}, 0, fmt.Errorf("unterminated string literal")
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	default:
		return c
	}
}

func skipSpaces(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t') {
		pos++
	}
	return pos
}
