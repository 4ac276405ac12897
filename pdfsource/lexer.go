package pdfsource

import (
	"bytes"
	"strconv"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokName
	tokString
	tokArrayStart
	tokArrayEnd
	tokDictStart
	tokDictEnd
	tokKeyword
)

type token struct {
	kind tokenKind
	num  float64
	str  []byte // name, string bytes or keyword
}

// lexer tokenizes a decoded content stream held in memory.
type lexer struct {
	data []byte
	pos  int
}

func newLexer(data []byte) *lexer { return &lexer{data: data} }

func (l *lexer) next() token {
	l.skipWSAndComments()
	if l.pos >= len(l.data) {
		return token{kind: tokEOF}
	}
	c := l.data[l.pos]
	switch c {
	case '<':
		if l.peek(1) == '<' {
			l.pos += 2
			return token{kind: tokDictStart}
		}
		return l.scanHexString()
	case '>':
		l.pos++
		if l.peek(0) == '>' {
			l.pos++
		}
		return token{kind: tokDictEnd}
	case '[':
		l.pos++
		return token{kind: tokArrayStart}
	case ']':
		l.pos++
		return token{kind: tokArrayEnd}
	case '(':
		return l.scanLiteralString()
	case '/':
		return l.scanName()
	}
	if isDigitStart(c) {
		start := l.pos
		l.pos++
		for l.pos < len(l.data) && !isDelimiter(l.data[l.pos]) {
			l.pos++
		}
		if f, err := strconv.ParseFloat(string(l.data[start:l.pos]), 64); err == nil {
			return token{kind: tokNumber, num: f}
		}
		return token{kind: tokKeyword, str: l.data[start:l.pos]}
	}
	start := l.pos
	l.pos++
	for l.pos < len(l.data) && !isDelimiter(l.data[l.pos]) {
		l.pos++
	}
	kw := l.data[start:l.pos]
	if string(kw) == "BI" {
		l.skipInlineImage()
	}
	return token{kind: tokKeyword, str: kw}
}

func (l *lexer) peek(n int) byte {
	if l.pos+n >= len(l.data) {
		return 0
	}
	return l.data[l.pos+n]
}

func (l *lexer) skipWSAndComments() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case isWhitespace(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
		default:
			return
		}
	}
}

// skipInlineImage jumps past the binary data of a BI ... ID ... EI block.
func (l *lexer) skipInlineImage() {
	id := bytes.Index(l.data[l.pos:], []byte("ID"))
	if id < 0 {
		l.pos = len(l.data)
		return
	}
	l.pos += id + 2
	for l.pos < len(l.data) {
		ei := bytes.Index(l.data[l.pos:], []byte("EI"))
		if ei < 0 {
			l.pos = len(l.data)
			return
		}
		l.pos += ei
		if isWhitespace(l.data[l.pos-1]) && (l.pos+2 >= len(l.data) || isDelimiter(l.data[l.pos+2])) {
			l.pos += 2
			return
		}
		l.pos += 2
	}
}

func (l *lexer) scanName() token {
	l.pos++
	var out bytes.Buffer
	for l.pos < len(l.data) && !isDelimiter(l.data[l.pos]) {
		c := l.data[l.pos]
		if c == '#' && l.pos+2 < len(l.data) {
			out.WriteByte(fromHex(l.data[l.pos+1])<<4 | fromHex(l.data[l.pos+2]))
			l.pos += 3
			continue
		}
		out.WriteByte(c)
		l.pos++
	}
	return token{kind: tokName, str: out.Bytes()}
}

func (l *lexer) scanLiteralString() token {
	l.pos++
	var buf bytes.Buffer
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch c {
		case '\\':
			l.pos++
			if l.pos >= len(l.data) {
				break
			}
			esc := l.data[l.pos]
			switch {
			case esc == '\r':
				l.pos++
				if l.peek(0) == '\n' {
					l.pos++
				}
			case esc == '\n':
				l.pos++
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				l.pos++
				for k := 0; k < 2 && l.pos < len(l.data); k++ {
					d := l.data[l.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					l.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
				l.pos++
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				l.pos++
				return token{kind: tokString, str: buf.Bytes()}
			}
		}
		buf.WriteByte(c)
		l.pos++
	}
	return token{kind: tokString, str: buf.Bytes()}
}

func (l *lexer) scanHexString() token {
	l.pos++
	var nibbles []byte
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			break
		}
		if !isWhitespace(c) {
			nibbles = append(nibbles, c)
		}
	}
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, '0')
	}
	out := make([]byte, 0, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		out = append(out, fromHex(nibbles[i])<<4|fromHex(nibbles[i+1]))
	}
	return token{kind: tokString, str: out}
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}
