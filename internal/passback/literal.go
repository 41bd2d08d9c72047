package passback

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxDepth bounds container nesting.
const maxDepth = 64

var ErrNotMapping = errors.New("literal is not a mapping")

// Dict is a parsed mapping literal. Keys keep their source order; a repeated
// key shadows the earlier one, as in the source serialization.
type Dict struct {
	Keys   []any
	Values []any
}

// Lookup returns the value stored under a string key.
func (d *Dict) Lookup(key string) (any, bool) {
	for i := len(d.Keys) - 1; i >= 0; i-- {
		if k, ok := d.Keys[i].(string); ok && k == key {
			return d.Values[i], true
		}
	}
	return nil, false
}

func (d *Dict) Len() int { return len(d.Keys) }

type (
	Tuple []any
	Set   []any
	Bytes []byte
)

// Number keeps the literal text of a numeric value; nothing is computed
// beyond normalizing integer bases.
type Number struct {
	Text  string
	Float bool
}

func (n Number) String() string { return n.Text }

// SyntaxError reports where the literal stopped making sense.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid literal at offset %d: %s", e.Offset, e.Msg)
}

// ParseLiteral parses a single literal expression: mappings, lists, tuples,
// sets, strings, bytes, numbers, True, False and None. Names, calls,
// operators and anything else that would need evaluation are rejected.
func ParseLiteral(src string) (any, error) {
	p := &literalParser{src: strings.TrimLeft(src, " \t")}
	p.skipBlankLines()
	if p.eof() {
		return nil, p.errorf("empty input")
	}
	v, err := p.value(0)
	if err != nil {
		return nil, err
	}
	p.skipBlankLines()
	if !p.eof() {
		return nil, p.errorf("unexpected %q after literal", p.peek())
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
	// nesting counts the open brackets; line breaks are only whitespace
	// inside them.
	nesting int
}

func (p *literalParser) eof() bool { return p.pos >= len(p.src) }

func (p *literalParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *literalParser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\f':
			p.pos++
		case '\n', '\r':
			if p.nesting == 0 {
				return
			}
			p.pos++
		case '\\':
			// explicit line continuation
			if strings.HasPrefix(p.src[p.pos:], "\\\n") {
				p.pos += 2
				continue
			}
			if strings.HasPrefix(p.src[p.pos:], "\\\r\n") {
				p.pos += 3
				continue
			}
			return
		default:
			return
		}
	}
}

// skipBlankLines skips whitespace and line breaks around the top-level literal.
func (p *literalParser) skipBlankLines() {
	p.nesting++
	p.skipSpace()
	p.nesting--
}

func (p *literalParser) value(depth int) (any, error) {
	if depth > maxDepth {
		return nil, p.errorf("nesting deeper than %d", maxDepth)
	}
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("unexpected end of input")
	}

	c := p.peek()
	if c == '{' || c == '[' || c == '(' {
		p.nesting++
		defer func() { p.nesting-- }()
	}
	switch {
	case c == '{':
		return p.braces(depth)
	case c == '[':
		p.pos++
		items, _, err := p.sequence(']', depth)
		if err != nil {
			return nil, err
		}
		return items, nil
	case c == '(':
		return p.parens(depth)
	case c == '\'' || c == '"':
		return p.concatStrings()
	case c == '-' || c == '+':
		return p.signedNumber()
	case c == '.' || isDigit(c):
		return p.number("")
	case isNameStart(c):
		if p.atStringPrefix() {
			return p.concatStrings()
		}
		return p.name()
	default:
		return nil, p.errorf("unexpected %q", c)
	}
}

func (p *literalParser) braces(depth int) (any, error) {
	start := p.pos
	p.pos++
	p.skipSpace()
	if p.peek() == '}' {
		p.pos++
		return &Dict{}, nil
	}

	first, err := p.value(depth + 1)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() != ':' {
		// set literal
		p.pos = start + 1
		items, _, err := p.sequence('}', depth)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if !hashable(it) {
				return nil, p.errorf("unhashable set element %T", it)
			}
		}
		return Set(items), nil
	}

	d := &Dict{}
	key := first
	for {
		if !hashable(key) {
			return nil, p.errorf("unhashable mapping key %T", key)
		}
		p.pos++ // ':'
		val, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		d.Keys = append(d.Keys, key)
		d.Values = append(d.Values, val)

		p.skipSpace()
		switch p.peek() {
		case '}':
			p.pos++
			return d, nil
		case ',':
			p.pos++
		default:
			if p.eof() {
				return nil, p.errorf("unterminated mapping")
			}
			return nil, p.errorf("expected ',' or '}' in mapping, got %q", p.peek())
		}

		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return d, nil
		}
		key, err = p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':' after mapping key")
		}
	}
}

func (p *literalParser) parens(depth int) (any, error) {
	p.pos++
	items, trailingComma, err := p.sequence(')', depth)
	if err != nil {
		return nil, err
	}
	if len(items) == 1 && !trailingComma {
		// plain grouping, not a tuple
		return items[0], nil
	}
	return Tuple(items), nil
}

// sequence parses comma separated values up to the closing byte, which is
// consumed. The opening byte must already be consumed.
func (p *literalParser) sequence(closing byte, depth int) ([]any, bool, error) {
	items := []any{}
	trailingComma := false
	for {
		p.skipSpace()
		if p.eof() {
			return nil, false, p.errorf("missing %q", closing)
		}
		if p.peek() == closing {
			p.pos++
			return items, trailingComma, nil
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, false, err
		}
		items = append(items, v)
		trailingComma = false

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
			trailingComma = true
		case closing:
		default:
			if p.eof() {
				return nil, false, p.errorf("missing %q", closing)
			}
			return nil, false, p.errorf("expected ',' or %q, got %q", closing, p.peek())
		}
	}
}

func (p *literalParser) name() (any, error) {
	start := p.pos
	for !p.eof() && isNamePart(p.peek()) {
		p.pos++
	}
	switch word := p.src[start:p.pos]; word {
	case "True":
		return true, nil
	case "False":
		return false, nil
	case "None":
		return nil, nil
	default:
		p.pos = start
		return nil, p.errorf("name %q is not a literal", word)
	}
}

// signedNumber accepts a single unary sign directly in front of a number.
func (p *literalParser) signedNumber() (any, error) {
	sign := ""
	if p.peek() == '-' {
		sign = "-"
	}
	p.pos++
	p.skipSpace()
	if p.eof() || !(isDigit(p.peek()) || p.peek() == '.') {
		return nil, p.errorf("sign must be followed by a number")
	}
	return p.number(sign)
}

func (p *literalParser) number(sign string) (any, error) {
	start := p.pos
	if strings.HasPrefix(p.src[p.pos:], "0x") || strings.HasPrefix(p.src[p.pos:], "0X") ||
		strings.HasPrefix(p.src[p.pos:], "0o") || strings.HasPrefix(p.src[p.pos:], "0O") ||
		strings.HasPrefix(p.src[p.pos:], "0b") || strings.HasPrefix(p.src[p.pos:], "0B") {
		p.pos += 2
		if err := p.digits(isHexDigit, true); err != nil {
			return nil, err
		}
		return p.integer(sign, p.src[start:p.pos])
	}

	isFloat := false
	if err := p.digits(isDigit, false); err != nil {
		return nil, err
	}
	if p.peek() == '.' {
		isFloat = true
		p.pos++
		if err := p.digits(isDigit, false); err != nil {
			return nil, err
		}
	}
	if c := p.peek(); c == 'e' || c == 'E' {
		isFloat = true
		p.pos++
		if c := p.peek(); c == '+' || c == '-' {
			p.pos++
		}
		if !isDigit(p.peek()) {
			return nil, p.errorf("malformed exponent")
		}
		if err := p.digits(isDigit, false); err != nil {
			return nil, err
		}
	}
	if c := p.peek(); c == 'j' || c == 'J' {
		return nil, p.errorf("complex numbers are not supported")
	}
	if !p.eof() && isNamePart(p.peek()) {
		return nil, p.errorf("malformed number")
	}

	text := p.src[start:p.pos]
	if !isFloat {
		return p.integer(sign, text)
	}
	clean := strings.ReplaceAll(text, "_", "")
	if _, err := strconv.ParseFloat(clean, 64); err != nil {
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) || numErr.Err != strconv.ErrRange {
			return nil, p.errorf("malformed float %q", text)
		}
	}
	return Number{Text: sign + clean, Float: true}, nil
}

func (p *literalParser) integer(sign, text string) (any, error) {
	clean := strings.ReplaceAll(text, "_", "")
	if len(clean) > 1 && clean[0] == '0' && isDigit(clean[1]) && strings.Trim(clean, "0") != "" {
		return nil, p.errorf("leading zeros in decimal integer %q", text)
	}
	n, ok := new(big.Int).SetString(clean, 0)
	if !ok {
		return nil, p.errorf("malformed integer %q", text)
	}
	if sign == "-" {
		n.Neg(n)
	}
	return Number{Text: n.String()}, nil
}

// digits consumes a run of digits. An underscore must sit between two digits,
// or right after a base prefix when afterPrefix is set.
func (p *literalParser) digits(ok func(byte) bool, afterPrefix bool) error {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == '_' {
			prev := (p.pos > start && ok(p.src[p.pos-1])) || (p.pos == start && afterPrefix)
			if !prev || p.pos+1 >= len(p.src) || !ok(p.src[p.pos+1]) {
				return p.errorf("misplaced '_' in number")
			}
		} else if !ok(c) {
			return nil
		}
		p.pos++
	}
	return nil
}

func (p *literalParser) atStringPrefix() bool {
	i := p.pos
	for i < len(p.src) && i-p.pos < 2 && strings.IndexByte("rRuUbB", p.src[i]) >= 0 {
		i++
	}
	return i > p.pos && i < len(p.src) && (p.src[i] == '\'' || p.src[i] == '"')
}

// concatStrings parses one or more adjacent string literals and concatenates them.
func (p *literalParser) concatStrings() (any, error) {
	var sb strings.Builder
	isBytes := false
	n := 0
	for {
		p.skipSpace()
		if p.eof() || !(p.peek() == '\'' || p.peek() == '"' || p.atStringPrefix()) {
			break
		}
		s, b, err := p.stringLiteral()
		if err != nil {
			return nil, err
		}
		if n > 0 && b != isBytes {
			return nil, p.errorf("cannot mix bytes and nonbytes literals")
		}
		isBytes = b
		sb.WriteString(s)
		n++
	}
	if isBytes {
		return Bytes(sb.String()), nil
	}
	return sb.String(), nil
}

func (p *literalParser) stringLiteral() (string, bool, error) {
	raw, isBytes, unicode := false, false, false
	for !p.eof() && p.peek() != '\'' && p.peek() != '"' {
		switch p.peek() {
		case 'r', 'R':
			if raw || unicode {
				return "", false, p.errorf("invalid string prefix")
			}
			raw = true
		case 'b', 'B':
			if isBytes || unicode {
				return "", false, p.errorf("invalid string prefix")
			}
			isBytes = true
		case 'u', 'U':
			if raw || isBytes || unicode {
				return "", false, p.errorf("invalid string prefix")
			}
			unicode = true
		}
		p.pos++
	}

	quote := p.peek()
	triple := strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(quote), 3))
	if triple {
		p.pos += 3
	} else {
		p.pos++
	}

	var sb strings.Builder
	for {
		if p.eof() {
			return "", false, p.errorf("unterminated string")
		}
		c := p.peek()
		switch {
		case triple && strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(quote), 3)):
			p.pos += 3
			return sb.String(), isBytes, nil
		case !triple && c == quote:
			p.pos++
			return sb.String(), isBytes, nil
		case !triple && c == '\n':
			return "", false, p.errorf("newline in single-quoted string")
		case c == '\\':
			if err := p.escape(&sb, raw, isBytes); err != nil {
				return "", false, err
			}
		default:
			if isBytes && c >= utf8.RuneSelf {
				return "", false, p.errorf("bytes can only contain ASCII characters")
			}
			sb.WriteByte(c)
			p.pos++
		}
	}
}

func (p *literalParser) escape(sb *strings.Builder, raw, isBytes bool) error {
	p.pos++ // backslash
	if p.eof() {
		return p.errorf("unterminated string")
	}
	c := p.peek()
	if raw {
		// raw strings keep the backslash, it only protects the quote
		sb.WriteByte('\\')
		sb.WriteByte(c)
		p.pos++
		return nil
	}

	p.pos++
	switch c {
	case '\n':
	case '\\', '\'', '"':
		sb.WriteByte(c)
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'v':
		sb.WriteByte('\v')
	case '0', '1', '2', '3', '4', '5', '6', '7':
		start := p.pos - 1
		for p.pos-start < 3 && !p.eof() && p.peek() >= '0' && p.peek() <= '7' {
			p.pos++
		}
		v, _ := strconv.ParseUint(p.src[start:p.pos], 8, 32)
		return p.writeCode(sb, rune(v), isBytes)
	case 'x':
		return p.hexEscape(sb, 2, isBytes)
	case 'u', 'U':
		if isBytes {
			sb.WriteByte('\\')
			sb.WriteByte(c)
			return nil
		}
		width := 4
		if c == 'U' {
			width = 8
		}
		return p.hexEscape(sb, width, false)
	case 'N':
		return p.errorf("named unicode escapes are not supported")
	default:
		sb.WriteByte('\\')
		sb.WriteByte(c)
	}
	return nil
}

func (p *literalParser) hexEscape(sb *strings.Builder, width int, isBytes bool) error {
	if p.pos+width > len(p.src) {
		return p.errorf("truncated escape")
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+width], 16, 32)
	if err != nil {
		return p.errorf("malformed escape %q", p.src[p.pos:p.pos+width])
	}
	p.pos += width
	return p.writeCode(sb, rune(v), isBytes)
}

// writeCode appends an escaped code point. Bytes take values up to 0xff and
// strings take any valid rune; surrogates have no UTF-8 form.
func (p *literalParser) writeCode(sb *strings.Builder, r rune, isBytes bool) error {
	if isBytes {
		if r > 0xff {
			return p.errorf("escape %#o out of range for bytes", r)
		}
		sb.WriteByte(byte(r))
		return nil
	}
	if !utf8.ValidRune(r) {
		return p.errorf("escape %U is not a valid character", r)
	}
	sb.WriteRune(r)
	return nil
}

func hashable(v any) bool {
	switch t := v.(type) {
	case []any, *Dict, Set:
		return false
	case Tuple:
		for _, it := range t {
			if !hashable(it) {
				return false
			}
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

func isNamePart(c byte) bool { return isNameStart(c) || isDigit(c) }
