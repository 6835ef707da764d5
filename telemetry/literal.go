// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// maxLiteralDepth bounds nesting so a pathological payload cannot
// exhaust the stack.
const maxLiteralDepth = 32

// ParseLiteral parses an extras payload using a closed grammar:
// numbers, single- or double-quoted strings, booleans, lists, and
// string-keyed dicts. It is a recursive-descent parser over exactly
// that grammar, never a general expression evaluator, so log content
// cannot smuggle anything executable into the environment.
//
// Numbers decode as float64, lists as []any, dicts as map[string]any.
func ParseLiteral(text string) (any, error) {
	p := &literalParser{input: text}
	p.skipSpace()
	value, err := p.value(0)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("trailing content at offset %d", p.pos)
	}
	return value, nil
}

type literalParser struct {
	input string
	pos   int
}

func (p *literalParser) value(depth int) (any, error) {
	if depth > maxLiteralDepth {
		return nil, fmt.Errorf("nesting deeper than %d", maxLiteralDepth)
	}
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of payload")
	}

	switch c := p.input[p.pos]; {
	case c == '[':
		return p.list(depth)
	case c == '{':
		return p.dict(depth)
	case c == '\'' || c == '"':
		return p.quotedString()
	case c == '-' || c == '+' || unicode.IsDigit(rune(c)):
		return p.number()
	default:
		return p.keyword()
	}
}

func (p *literalParser) list(depth int) (any, error) {
	p.pos++ // consume '['
	values := []any{}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return nil, fmt.Errorf("unterminated list")
		}
		if p.input[p.pos] == ']' {
			p.pos++
			return values, nil
		}
		element, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		values = append(values, element)

		p.skipSpace()
		if p.pos < len(p.input) && p.input[p.pos] == ',' {
			p.pos++
			continue
		}
		if p.pos < len(p.input) && p.input[p.pos] == ']' {
			p.pos++
			return values, nil
		}
		return nil, fmt.Errorf("expected ',' or ']' at offset %d", p.pos)
	}
}

func (p *literalParser) dict(depth int) (any, error) {
	p.pos++ // consume '{'
	values := map[string]any{}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return nil, fmt.Errorf("unterminated dict")
		}
		if p.input[p.pos] == '}' {
			p.pos++
			return values, nil
		}
		if p.input[p.pos] != '\'' && p.input[p.pos] != '"' {
			return nil, fmt.Errorf("dict key must be a string at offset %d", p.pos)
		}
		key, err := p.quotedString()
		if err != nil {
			return nil, err
		}

		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ':' {
			return nil, fmt.Errorf("expected ':' at offset %d", p.pos)
		}
		p.pos++

		p.skipSpace()
		element, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		values[key.(string)] = element

		p.skipSpace()
		if p.pos < len(p.input) && p.input[p.pos] == ',' {
			p.pos++
			continue
		}
		if p.pos < len(p.input) && p.input[p.pos] == '}' {
			p.pos++
			return values, nil
		}
		return nil, fmt.Errorf("expected ',' or '}' at offset %d", p.pos)
	}
}

func (p *literalParser) quotedString() (any, error) {
	quote := p.input[p.pos]
	p.pos++
	var builder strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case quote:
			p.pos++
			return builder.String(), nil
		case '\\':
			if p.pos+1 >= len(p.input) {
				return nil, fmt.Errorf("dangling escape at offset %d", p.pos)
			}
			p.pos++
			escaped := p.input[p.pos]
			switch escaped {
			case 'n':
				builder.WriteByte('\n')
			case 't':
				builder.WriteByte('\t')
			case '\\', '\'', '"':
				builder.WriteByte(escaped)
			default:
				return nil, fmt.Errorf("unsupported escape %q at offset %d", escaped, p.pos)
			}
			p.pos++
		default:
			builder.WriteByte(c)
			p.pos++
		}
	}
	return nil, fmt.Errorf("unterminated string")
}

func (p *literalParser) number() (any, error) {
	start := p.pos
	if c := p.input[p.pos]; c == '-' || c == '+' {
		p.pos++
	}
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if unicode.IsDigit(rune(c)) || c == '.' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		if (c == '-' || c == '+') && p.pos > start &&
			(p.input[p.pos-1] == 'e' || p.input[p.pos-1] == 'E') {
			p.pos++
			continue
		}
		break
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed number %q", p.input[start:p.pos])
	}
	return value, nil
}

// keyword accepts the boolean spellings that show up in practice: the
// original tasks log Python-style True/False, JSON-flavored apps log
// true/false.
func (p *literalParser) keyword() (any, error) {
	start := p.pos
	for p.pos < len(p.input) && unicode.IsLetter(rune(p.input[p.pos])) {
		p.pos++
	}
	switch p.input[start:p.pos] {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	default:
		return nil, fmt.Errorf("unsupported literal %q at offset %d", p.input[start:p.pos], start)
	}
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}
