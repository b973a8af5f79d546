package staging

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// encodePayload renders the payload as a single JSON object whose bytes are
// all ASCII. Non-ASCII runes become \uXXXX escapes (surrogate pairs above the
// BMP), so the file reads identically as ISO-8859-1 or UTF-8.
func encodePayload(payload map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalizeMap(payload)); err != nil {
		return nil, err
	}
	raw := bytes.TrimRight(buf.Bytes(), "\n")

	out := make([]byte, 0, len(raw)+16)
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		raw = raw[size:]
		switch {
		case r < utf8.RuneSelf:
			out = append(out, byte(r))
		case r > 0xFFFF:
			r -= 0x10000
			out = appendEscape(out, 0xD800+(r>>10))
			out = appendEscape(out, 0xDC00+(r&0x3FF))
		default:
			out = appendEscape(out, r)
		}
	}
	return out, nil
}

func appendEscape(dst []byte, r rune) []byte {
	return fmt.Appendf(dst, `\u%04x`, r)
}

// normalizeMap coerces values that have no natural JSON form to strings.
func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.Format(time.RFC3339Nano)
	case map[string]any:
		return normalizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case encoding.TextMarshaler:
		b, err := t.MarshalText()
		if err != nil {
			return t
		}
		return string(b)
	case json.Marshaler:
		return marshalerValue(t)
	case fmt.Stringer:
		return t.String()
	default:
		return t
	}
}

// marshalerValue keeps a json.Marshaler as is unless it renders as a bare
// JSON number, as decimal types do; those are staged as strings.
func marshalerValue(m json.Marshaler) any {
	b, err := m.MarshalJSON()
	if err != nil {
		return m
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9')) {
		return string(b)
	}
	return m
}

// decodePayload parses a staged file. Files that are not valid UTF-8 were
// written by the legacy ISO-8859-1 writer and are transcoded first.
func decodePayload(b []byte) (map[string]any, error) {
	if !utf8.Valid(b) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
		if err != nil {
			return nil, fmt.Errorf("transcode latin-1: %w", err)
		}
		b = decoded
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("staged file is not a JSON object")
	}
	return convertNumbers(payload).(map[string]any), nil
}

// convertNumbers turns json.Number into int64 when integral, else float64.
func convertNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return i
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = convertNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = convertNumbers(e)
		}
		return t
	default:
		return t
	}
}
