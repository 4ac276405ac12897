package pdfwriter

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Name is a PDF name object (/Name).
type Name string

// Ref is an indirect reference to an object number (generation 0).
type Ref int

// Dict is a PDF dictionary. Keys are written sorted.
type Dict map[string]any

// Stream is a dictionary followed by stream data; Length is set on write.
type Stream struct {
	Dict Dict
	Data []byte
}

// Str is a PDF literal string.
type Str string

func serializeObject(buf *bytes.Buffer, num int, obj any) {
	fmt.Fprintf(buf, "%d 0 obj\n", num)
	serializePrimitive(buf, obj)
	buf.WriteString("\nendobj\n")
}

func serializePrimitive(buf *bytes.Buffer, o any) {
	switch v := o.(type) {
	case nil:
		buf.WriteString("null")
	case Name:
		buf.WriteString("/" + string(v))
	case Ref:
		fmt.Fprintf(buf, "%d 0 R", int(v))
	case int:
		buf.WriteString(strconv.Itoa(v))
	case float64:
		buf.WriteString(formatNumber(v))
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case Str:
		buf.Write(escapeLiteralString([]byte(v)))
	case []any:
		buf.WriteByte('[')
		for i, it := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			serializePrimitive(buf, it)
		}
		buf.WriteByte(']')
	case Dict:
		buf.WriteString("<<")
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteString("/" + k + " ")
			serializePrimitive(buf, v[k])
		}
		buf.WriteString(">>")
	case *Stream:
		d := Dict{}
		for k, val := range v.Dict {
			d[k] = val
		}
		d["Length"] = len(v.Data)
		serializePrimitive(buf, d)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	default:
		buf.WriteString("null")
	}
}

// formatNumber writes reals without exponent and trailing zeros.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}
