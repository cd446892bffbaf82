package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	"github.com/pdfuse/pdfuse/ir/raw"
)

// serializeObject writes one object in PDF syntax, rewriting indirect
// references through remap. References to collected objects degrade to
// null rather than dangle.
func serializeObject(buf *bytes.Buffer, obj raw.Object, remap map[raw.ObjectRef]int) error {
	switch v := obj.(type) {
	case nil:
		buf.WriteString("null")
	case raw.NullObj:
		buf.WriteString("null")
	case raw.BoolObj:
		if v.V {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case raw.NumberObj:
		buf.WriteString(formatNumber(v))
	case raw.NameObj:
		writeName(buf, v.Val)
	case raw.StringObj:
		writeString(buf, v)
	case raw.RefObj:
		num, ok := remap[v.R]
		if !ok {
			buf.WriteString("null")
			return nil
		}
		fmt.Fprintf(buf, "%d 0 R", num)
	case *raw.ArrayObj:
		buf.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			if err := serializeObject(buf, item, remap); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *raw.DictObj:
		if err := writeDict(buf, v, remap); err != nil {
			return err
		}
	case *raw.StreamObj:
		v.Dict.Set("Length", raw.Int(int64(len(v.Data))))
		if err := writeDict(buf, v.Dict, remap); err != nil {
			return err
		}
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	default:
		return fmt.Errorf("unsupported object type %q", obj.Type())
	}
	return nil
}

func writeDict(buf *bytes.Buffer, dict *raw.DictObj, remap map[raw.ObjectRef]int) error {
	buf.WriteString("<<")
	for i, key := range dict.Keys() {
		if i > 0 {
			buf.WriteByte(' ')
		}
		writeName(buf, key)
		buf.WriteByte(' ')
		val, _ := dict.Get(key)
		if err := serializeObject(buf, val, remap); err != nil {
			return err
		}
	}
	buf.WriteString(">>")
	return nil
}

func writeName(buf *bytes.Buffer, name string) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c > '~' || c == '#' || isNameDelim(c) {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func isNameDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func writeString(buf *bytes.Buffer, s raw.StringObj) {
	if s.Hex {
		buf.WriteByte('<')
		dst := make([]byte, hex.EncodedLen(len(s.Bytes)))
		hex.Encode(dst, s.Bytes)
		buf.Write(bytes.ToUpper(dst))
		buf.WriteByte('>')
		return
	}
	buf.WriteByte('(')
	for _, c := range s.Bytes {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < ' ' || c > '~' {
				fmt.Fprintf(buf, `\%03o`, c)
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte(')')
}

// formatNumber emits PDF-legal numerals: no exponents, no trailing dot.
func formatNumber(n raw.NumberObj) string {
	if n.IsInt {
		return strconv.FormatInt(n.I, 10)
	}
	f := n.F
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "0"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
