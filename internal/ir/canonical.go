package ir

import (
	"bytes"
	"encoding/json"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for an attribute set.
// CRITICAL: This is the ONLY serialization used for fingerprints.
//
// The attribute list is treated as a mapping:
//  1. Keys and values are cleaned (BOM removed, trimmed) and NFC normalized
//  2. Keys are sorted by UTF-16 code units, so input order never matters
//  3. No HTML escaping; U+2028 and U+2029 stay literal
//  4. A repeated key keeps its last value
func MarshalCanonical(attrs Attributes) []byte {
	m := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		m[norm.NFC.String(CleanField(attr.Key))] = norm.NFC.String(CleanField(attr.Value))
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalCanonicalString(k))
		buf.WriteByte(':')
		buf.Write(marshalCanonicalString(m[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// marshalCanonicalString encodes an already normalized string.
// Only control characters, backslash and quote are escaped.
func marshalCanonicalString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a Go string cannot fail.
	_ = enc.Encode(s)

	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return unescapeLineSeparators(out)
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes that
// encoding/json always emits back into literal characters, leaving an
// escaped backslash followed by "u2028" untouched.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' {
			out = append(out, data[i])
			continue
		}
		if i+5 < len(data) && string(data[i+1:i+5]) == "u202" && (data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		// Any other escape: copy the backslash and the escaped byte together
		// so an escaped backslash never pairs with what follows.
		out = append(out, data[i])
		if i+1 < len(data) {
			out = append(out, data[i+1])
			i++
		}
	}
	return out
}

// compareKeysRFC8785 orders keys by UTF-16 code units.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
