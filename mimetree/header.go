package mimetree

import (
	"mime"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// Header is a case-insensitive multimap over a part's header fields.
type Header struct {
	message.Header
}

// First returns the first value of the named field, decoded and trimmed. The
// second result is false when the field is missing or its value is blank.
func (h Header) First(name string) (string, bool) {
	fields := h.FieldsByKey(name)
	if !fields.Next() {
		return "", false
	}
	v := strings.TrimSpace(decodedValue(fields))
	return v, v != ""
}

// All returns every non-blank value of the named field in document order.
func (h Header) All(name string) []string {
	var values []string
	fields := h.FieldsByKey(name)
	for fields.Next() {
		if v := strings.TrimSpace(decodedValue(fields)); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// Param extracts parameter key from the raw value of field. Parameters are
// split on ';', the key compares case-insensitively and the value is stripped
// of surrounding quotes and whitespace. Encoded words in the value are
// decoded. A blank value counts as absent.
func (h Header) Param(field, key string) (string, bool) {
	v, ok := ParseParam(h.Get(field), key)
	if !ok {
		return "", false
	}
	if decoded, err := wordDecoder.DecodeHeader(v); err == nil {
		v = strings.TrimSpace(decoded)
	}
	return v, v != ""
}

// ParseParam is Param on an already extracted header value.
func ParseParam(value, key string) (string, bool) {
	parts := strings.Split(value, ";")
	if len(parts) < 2 {
		return "", false
	}
	for _, part := range parts[1:] {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(k), key) {
			continue
		}
		v = strings.TrimSpace(v)
		v = strings.Trim(v, `"`)
		v = strings.Trim(v, `'`)
		v = strings.TrimSpace(v)
		if v == "" {
			return "", false
		}
		return v, true
	}
	return "", false
}

// decodedValue falls back to the raw value when the charset is unknown.
func decodedValue(fields message.HeaderFields) string {
	v, err := fields.Text()
	if err != nil {
		return fields.Value()
	}
	return v
}
