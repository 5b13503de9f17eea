package rewrite

import (
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Kind identifies the JSON type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is an order-preserving JSON tree. Numbers and literals
// keep their original text so re-serializing does not change
// precision or spelling.
type Value struct {
	Kind   Kind
	Raw    string // null, bool and number literals
	Str    string // decoded string for KindString
	Items  []Value
	Fields []Field
}

// Field is one member of a JSON object.
type Field struct {
	Key   string
	Value Value
}

// ParseValue parses text as a single JSON value. ok is false when
// text is not valid JSON.
func ParseValue(text string) (v Value, ok bool) {
	if !gjson.Valid(text) {
		return Value{}, false
	}
	return fromResult(gjson.Parse(text)), true
}

func fromResult(r gjson.Result) Value {
	switch {
	case r.IsObject():
		v := Value{Kind: KindObject}
		r.ForEach(func(key, val gjson.Result) bool {
			v.Fields = append(v.Fields, Field{
				Key: key.Str, Value: fromResult(val),
			})
			return true
		})
		return v
	case r.IsArray():
		v := Value{Kind: KindArray}
		r.ForEach(func(_, val gjson.Result) bool {
			v.Items = append(v.Items, fromResult(val))
			return true
		})
		return v
	}
	switch r.Type {
	case gjson.String:
		return Value{Kind: KindString, Str: r.Str}
	case gjson.Number:
		return Value{Kind: KindNumber, Raw: r.Raw}
	case gjson.True, gjson.False:
		return Value{Kind: KindBool, Raw: r.Raw}
	default:
		return Value{Kind: KindNull, Raw: "null"}
	}
}

// Get returns the value of the first field named key.
func (v *Value) Get(key string) (*Value, bool) {
	if v.Kind != KindObject {
		return nil, false
	}
	for i := range v.Fields {
		if v.Fields[i].Key == key {
			return &v.Fields[i].Value, true
		}
	}
	return nil, false
}

// MapStrings applies fn to every string leaf in place. Object keys
// are left alone. It reports whether any leaf changed.
func (v *Value) MapStrings(fn func(string) string) bool {
	changed := false
	switch v.Kind {
	case KindString:
		if s := fn(v.Str); s != v.Str {
			v.Str = s
			changed = true
		}
	case KindArray:
		for i := range v.Items {
			if v.Items[i].MapStrings(fn) {
				changed = true
			}
		}
	case KindObject:
		for i := range v.Fields {
			if v.Fields[i].Value.MapStrings(fn) {
				changed = true
			}
		}
	}
	return changed
}

// AppendJSON appends the compact encoding of v to dst.
func (v *Value) AppendJSON(dst []byte) []byte {
	switch v.Kind {
	case KindString:
		return appendQuoted(dst, v.Str)
	case KindArray:
		dst = append(dst, '[')
		for i := range v.Items {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = v.Items[i].AppendJSON(dst)
		}
		return append(dst, ']')
	case KindObject:
		dst = append(dst, '{')
		for i := range v.Fields {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendQuoted(dst, v.Fields[i].Key)
			dst = append(dst, ':')
			dst = v.Fields[i].Value.AppendJSON(dst)
		}
		return append(dst, '}')
	default:
		return append(dst, v.Raw...)
	}
}

// AppendIndentJSON appends v with one member per line, each level
// indented by indent. Empty arrays and objects stay on one line.
func (v *Value) AppendIndentJSON(dst []byte, indent string) []byte {
	return v.appendIndent(dst, indent, 0)
}

func (v *Value) appendIndent(dst []byte, indent string, depth int) []byte {
	newline := func(d []byte, level int) []byte {
		d = append(d, '\n')
		return append(d, strings.Repeat(indent, level)...)
	}
	switch v.Kind {
	case KindArray:
		if len(v.Items) == 0 {
			return append(dst, "[]"...)
		}
		dst = append(dst, '[')
		for i := range v.Items {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = newline(dst, depth+1)
			dst = v.Items[i].appendIndent(dst, indent, depth+1)
		}
		dst = newline(dst, depth)
		return append(dst, ']')
	case KindObject:
		if len(v.Fields) == 0 {
			return append(dst, "{}"...)
		}
		dst = append(dst, '{')
		for i := range v.Fields {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = newline(dst, depth+1)
			dst = appendQuoted(dst, v.Fields[i].Key)
			dst = append(dst, ": "...)
			dst = v.Fields[i].Value.appendIndent(dst, indent, depth+1)
		}
		dst = newline(dst, depth)
		return append(dst, '}')
	default:
		return v.AppendJSON(dst)
	}
}

const hexDigits = "0123456789abcdef"

// appendQuoted writes s as a JSON string using the minimal escape
// set: quote, backslash and control characters. Everything else,
// including non-ASCII text and bytes that are not valid UTF-8, is
// copied through unchanged.
func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf || (c >= 0x20 && c != '"' && c != '\\') {
			i++
			continue
		}
		dst = append(dst, s[start:i]...)
		switch c {
		case '"', '\\':
			dst = append(dst, '\\', c)
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		default:
			dst = append(dst, '\\', 'u', '0', '0',
				hexDigits[c>>4], hexDigits[c&0xf])
		}
		i++
		start = i
	}
	dst = append(dst, s[start:]...)
	return append(dst, '"')
}
