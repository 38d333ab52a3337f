package ir

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for a value, for display, golden
// snapshots and stored content hashes. It is lossy: use Marshal where the
// value must come back unchanged.
//
// Differences from encoding/json:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping; only quote, backslash and control characters are escaped
//  3. Strings and keys are NFC normalized
//  4. Absent (nil) object fields are omitted; nil array elements become null
func MarshalCanonical(v Value) ([]byte, error) {
	return encoder{normalize: true}.marshal(v)
}

// Marshal produces deterministic JSON that ParseJSON decodes back to an
// Equal value. Keys are sorted and absent fields omitted as in
// MarshalCanonical, but strings are written as given and integral floats keep
// a fraction ("2.0"), so Float(2) does not come back as Int(2).
func Marshal(v Value) ([]byte, error) {
	return encoder{}.marshal(v)
}

type encoder struct {
	// normalize applies NFC to strings and keys and writes integral floats
	// like integers.
	normalize bool
}

func (e encoder) marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e encoder) write(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		e.writeString(buf, string(val))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("cannot serialize %v", f)
		}
		text := strconv.FormatFloat(f, 'g', -1, 64)
		if !e.normalize && !strings.ContainsAny(text, ".eE") {
			text += ".0"
		}
		buf.WriteString(text)
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.write(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		first := true
		for _, k := range val.SortedKeys() {
			if val[k] == nil {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			e.writeString(buf, k)
			buf.WriteByte(':')
			if err := e.write(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown value type: %T", v)
	}
	return nil
}

const hexDigits = "0123456789abcdef"

func (e encoder) writeString(buf *bytes.Buffer, s string) {
	if e.normalize {
		s = norm.NFC.String(s)
	}
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[r>>4])
			buf.WriteByte(hexDigits[r&0xF])
		default:
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}
