// Package request decodes the reseller order parameters: an XML
// document carrying the service id, quantity, the primary device value
// and an optional base64-encoded JSON object of secondary fields.
package request

import (
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformed       = errors.New("parameter or service id missing")
	ErrInvalidEncoding = errors.New("custom field must be base64 encoded")
	ErrInvalidJSON     = errors.New("custom field must decode to valid json")
)

// Field is one submitted secondary field. FieldMap keeps the fields in
// the order they appeared in the decoded JSON object, so "first
// submitted field" is well defined.
type Field struct {
	Name  string
	Value string
}

type FieldMap struct {
	fields []Field
	index  map[string]string
}

func (m FieldMap) Get(name string) (string, bool) {
	v, ok := m.index[name]
	return v, ok
}

func (m FieldMap) First() (Field, bool) {
	if len(m.fields) == 0 {
		return Field{}, false
	}
	return m.fields[0], true
}

func (m FieldMap) Fields() []Field { return m.fields }

func (m FieldMap) Len() int { return len(m.fields) }

// Order is a decoded order-placement request.
type Order struct {
	ServiceID int64
	Quantity  int
	Primary   string
	Fields    FieldMap
}

type orderParams struct {
	ID          *string `xml:"ID"`
	QNT         string  `xml:"QNT"`
	IMEI        string  `xml:"IMEI"`
	CUSTOMFIELD string  `xml:"CUSTOMFIELD"`
}

// DecodeOrder parses an order-placement parameters document. The ID
// element is mandatory; quantity defaults to 1 when absent or
// non-positive. An absent custom-field blob yields an empty field map.
func DecodeOrder(raw string) (Order, error) {
	var params orderParams
	if err := xml.Unmarshal([]byte(raw), &params); err != nil {
		return Order{}, ErrMalformed
	}
	if params.ID == nil {
		return Order{}, ErrMalformed
	}

	qty := atoiLenient(params.QNT)
	if qty <= 0 {
		qty = 1
	}

	fields, err := decodeCustomField(params.CUSTOMFIELD)
	if err != nil {
		return Order{}, err
	}

	return Order{
		ServiceID: int64(atoiLenient(*params.ID)),
		Quantity:  qty,
		Primary:   strings.TrimSpace(params.IMEI),
		Fields:    fields,
	}, nil
}

type statusParams struct {
	ID *string `xml:"ID"`
}

// DecodeStatus parses a status-lookup parameters document and returns
// the raw ID element: a single id for single lookups, a comma-separated
// list for bulk ones.
func DecodeStatus(raw string) (string, error) {
	var params statusParams
	if err := xml.Unmarshal([]byte(raw), &params); err != nil {
		return "", ErrMalformed
	}
	if params.ID == nil {
		return "", ErrMalformed
	}
	return strings.TrimSpace(*params.ID), nil
}

// decodeCustomField enforces a strict base64 round trip before touching
// the payload: decoding and re-encoding must reproduce the input, which
// rejects whitespace, padding tricks and foreign alphabets that a
// lenient decoder would let through.
func decodeCustomField(blob string) (FieldMap, error) {
	if blob == "" {
		return FieldMap{}, nil
	}
	if !isBase64Alphabet(blob) {
		return FieldMap{}, ErrInvalidEncoding
	}
	decoded, err := base64.StdEncoding.DecodeString(blob)
	if err != nil || base64.StdEncoding.EncodeToString(decoded) != blob {
		return FieldMap{}, ErrInvalidEncoding
	}
	return decodeFieldObject(decoded)
}

// decodeFieldObject decodes a JSON object into an ordered field map.
// json.Unmarshal into a Go map would lose key order, so the token
// stream is walked directly.
func decodeFieldObject(data []byte) (FieldMap, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return FieldMap{}, ErrInvalidJSON
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return FieldMap{}, ErrInvalidJSON
	}

	out := FieldMap{index: make(map[string]string)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return FieldMap{}, ErrInvalidJSON
		}
		key, ok := keyTok.(string)
		if !ok {
			return FieldMap{}, ErrInvalidJSON
		}

		var val any
		if err := dec.Decode(&val); err != nil {
			return FieldMap{}, ErrInvalidJSON
		}
		s := stringify(val)
		if _, dup := out.index[key]; !dup {
			out.fields = append(out.fields, Field{Name: key, Value: s})
		}
		out.index[key] = s
	}
	if _, err := dec.Token(); err != nil {
		return FieldMap{}, ErrInvalidJSON
	}
	return out, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func isBase64Alphabet(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '+' || r == '/' || r == '=':
		default:
			return false
		}
	}
	return true
}

func atoiLenient(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return i
}
