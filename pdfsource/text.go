package pdfsource

import (
	"bufio"
	"bytes"
	"sort"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/wudi/pdfmark/render"
)

// matrix is a PDF affine transform [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

func translate(tx, ty float64) matrix { return matrix{1, 0, 0, 1, tx, ty} }

// textExtractor walks the show operators of a content stream and emits one
// item per shown string, positioned in page space.
type textExtractor struct {
	fonts map[string]*fontDecoder

	ctm      matrix
	stack    []matrix
	tm, tlm  matrix
	font     string
	size     float64
	leading  float64
	operands []token
	items    []render.TextItem
}

func extractText(streams [][]byte, fonts map[string]*fontDecoder) []render.TextItem {
	x := &textExtractor{fonts: fonts, ctm: identity, tm: identity, tlm: identity}
	for _, data := range streams {
		x.run(data)
	}
	return x.items
}

func (x *textExtractor) run(data []byte) {
	lx := newLexer(data)
	depth := 0
	var array []token
	for {
		tok := lx.next()
		switch tok.kind {
		case tokEOF:
			return
		case tokArrayStart:
			depth++
			array = array[:0]
			continue
		case tokArrayEnd:
			if depth > 0 {
				depth--
			}
			x.operands = append(x.operands, token{kind: tokArrayStart, str: joinStrings(array)})
			continue
		case tokKeyword:
			if depth > 0 {
				continue
			}
			x.operator(string(tok.str))
			x.operands = x.operands[:0]
			continue
		}
		if depth > 0 {
			array = append(array, tok)
			continue
		}
		x.operands = append(x.operands, tok)
	}
}

// joinStrings flattens a TJ array; large negative kerns become spaces.
func joinStrings(items []token) []byte {
	var out []byte
	for _, it := range items {
		switch it.kind {
		case tokString:
			out = append(out, it.str...)
		case tokNumber:
			if it.num < -200 {
				out = append(out, 0)
			}
		}
	}
	return out
}

func (x *textExtractor) nums(n int) ([]float64, bool) {
	if len(x.operands) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i, tok := range x.operands[len(x.operands)-n:] {
		if tok.kind != tokNumber {
			return nil, false
		}
		out[i] = tok.num
	}
	return out, true
}

func (x *textExtractor) operator(op string) {
	switch op {
	case "q":
		x.stack = append(x.stack, x.ctm)
	case "Q":
		if n := len(x.stack); n > 0 {
			x.ctm = x.stack[n-1]
			x.stack = x.stack[:n-1]
		}
	case "cm":
		if v, ok := x.nums(6); ok {
			x.ctm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.mul(x.ctm)
		}
	case "BT":
		x.tm, x.tlm = identity, identity
	case "Tf":
		if len(x.operands) >= 2 && x.operands[len(x.operands)-2].kind == tokName {
			x.font = string(x.operands[len(x.operands)-2].str)
			x.size = x.operands[len(x.operands)-1].num
		}
	case "TL":
		if v, ok := x.nums(1); ok {
			x.leading = v[0]
		}
	case "Td":
		if v, ok := x.nums(2); ok {
			x.moveLine(v[0], v[1])
		}
	case "TD":
		if v, ok := x.nums(2); ok {
			x.leading = -v[1]
			x.moveLine(v[0], v[1])
		}
	case "Tm":
		if v, ok := x.nums(6); ok {
			x.tm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			x.tlm = x.tm
		}
	case "T*":
		x.moveLine(0, -x.leading)
	case "Tj", "TJ":
		x.show()
	case "'":
		x.moveLine(0, -x.leading)
		x.show()
	case "\"":
		x.moveLine(0, -x.leading)
		x.show()
	}
}

func (x *textExtractor) moveLine(tx, ty float64) {
	x.tlm = translate(tx, ty).mul(x.tlm)
	x.tm = x.tlm
}

func (x *textExtractor) show() {
	if len(x.operands) == 0 {
		return
	}
	last := x.operands[len(x.operands)-1]
	if last.kind != tokString && last.kind != tokArrayStart {
		return
	}
	text := decodeTextBytes(last.str, x.fonts[x.font])
	if strings.TrimSpace(text) == "" {
		return
	}
	trm := x.tm.mul(x.ctm)
	px, py := trm.apply(0, 0)
	scale := x.size * (abs(trm[3]) + abs(trm[1]))
	if x.size == 0 {
		scale = abs(trm[3]) + abs(trm[1])
	}
	n := float64(utf8.RuneCountInString(text))
	width := n * scale * 0.5
	x.items = append(x.items, render.TextItem{Text: text, X: px, Y: py, Width: width, Height: scale})
	// Advance roughly so following Tj on the same line do not overlap.
	x.tm = translate(n*x.size*0.5, 0).mul(x.tm)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

type fontDecoder struct {
	cmap *toUnicodeMap
}

func decodeTextBytes(data []byte, decoder *fontDecoder) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	switch {
	case decoder != nil && decoder.cmap != nil:
		s = decoder.cmap.decode(data)
	case len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF:
		s = decodeUTF16BE(data[2:])
	default:
		runes := make([]rune, 0, len(data))
		for _, b := range data {
			runes = append(runes, rune(b))
		}
		s = string(runes)
	}
	return strings.ReplaceAll(s, "\x00", " ")
}

func decodeUTF16BE(data []byte) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	buf := make([]uint16, len(data)/2)
	for i := range buf {
		buf[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return string(utf16.Decode(buf))
}

type toUnicodeMap struct {
	entries map[string]string
	lengths []int
}

func parseToUnicodeCMap(data []byte) *toUnicodeMap {
	sc := bufio.NewScanner(bytes.NewReader(data))
	result := &toUnicodeMap{entries: make(map[string]string)}
	lengthSet := make(map[int]struct{})
	state := ""
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		switch {
		case strings.HasSuffix(line, "begincodespacerange"):
			state = "codespace"
			continue
		case strings.HasSuffix(line, "beginbfchar"):
			state = "bfchar"
			continue
		case strings.HasSuffix(line, "beginbfrange"):
			state = "bfrange"
			continue
		case strings.HasPrefix(line, "end"):
			state = ""
			continue
		}
		hexes := extractHexTokens(line)
		switch state {
		case "codespace":
			if len(hexes) >= 1 {
				lengthSet[len(hexToBytes(hexes[0]))] = struct{}{}
			}
		case "bfchar":
			if len(hexes) >= 2 {
				src := hexToBytes(hexes[0])
				result.entries[string(src)] = decodeUTF16BE(hexToBytes(hexes[1]))
				lengthSet[len(src)] = struct{}{}
			}
		case "bfrange":
			if len(hexes) < 3 {
				continue
			}
			srcStart, srcEnd := hexToBytes(hexes[0]), hexToBytes(hexes[1])
			length := len(srcStart)
			lengthSet[length] = struct{}{}
			startVal, endVal := bytesToInt(srcStart), bytesToInt(srcEnd)
			if strings.Contains(line, "[") {
				for i := 0; i <= endVal-startVal && 2+i < len(hexes); i++ {
					result.entries[string(intToBytes(startVal+i, length))] = decodeUTF16BE(hexToBytes(hexes[2+i]))
				}
				continue
			}
			dst := hexToBytes(hexes[2])
			dstVal := bytesToInt(dst)
			for i := 0; i <= endVal-startVal && i < 0x10000; i++ {
				result.entries[string(intToBytes(startVal+i, length))] = decodeUTF16BE(intToBytes(dstVal+i, len(dst)))
			}
		}
	}
	delete(lengthSet, 0)
	if len(lengthSet) == 0 {
		for k := range result.entries {
			lengthSet[len(k)] = struct{}{}
		}
	}
	for l := range lengthSet {
		result.lengths = append(result.lengths, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(result.lengths)))
	return result
}

func extractHexTokens(line string) []string {
	var tokens []string
	for {
		start := strings.Index(line, "<")
		if start == -1 {
			break
		}
		end := strings.Index(line[start+1:], ">")
		if end == -1 {
			break
		}
		tokens = append(tokens, strings.ReplaceAll(line[start+1:start+1+end], " ", ""))
		line = line[start+1+end+1:]
	}
	return tokens
}

func hexToBytes(hex string) []byte {
	if len(hex)%2 == 1 {
		hex += "0"
	}
	out := make([]byte, len(hex)/2)
	for i := 0; i < len(hex); i += 2 {
		out[i/2] = fromHex(hex[i])<<4 | fromHex(hex[i+1])
	}
	return out
}

func bytesToInt(b []byte) int {
	val := 0
	for _, by := range b {
		val = val<<8 | int(by)
	}
	return val
}

func intToBytes(value, length int) []byte {
	buf := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		buf[i] = byte(value)
		value >>= 8
	}
	return buf
}

func (m *toUnicodeMap) decode(data []byte) string {
	var out strings.Builder
	for len(data) > 0 {
		matched := false
		for _, l := range m.lengths {
			if len(data) < l {
				continue
			}
			if val, ok := m.entries[string(data[:l])]; ok {
				out.WriteString(val)
				data = data[l:]
				matched = true
				break
			}
		}
		if !matched {
			out.WriteRune(rune(data[0]))
			data = data[1:]
		}
	}
	return out.String()
}
