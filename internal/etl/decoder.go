package etl

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ── Decoder ────────────────────────────────────────────────
// Slices a raw line per the schema and coerces every field to its
// declared type. Failures stay on the field that caused them.

// Decode turns one raw line into a Record. It never fails as a whole:
// each field carries either a value or a *FieldError. Decode is pure.
func Decode(line RawLine, schema *Schema) Record {
	rec := Record{Line: line.Number, Fields: make([]FieldValue, 0, len(schema.Fields))}

	var tokens []string
	var chars fixedText
	switch schema.FileType {
	case FileTypeCSV:
		tokens = splitTokens(line.Text, schema.Delimiter)
	case FileTypeFixed:
		chars = newFixedText(line.Text)
	}

	for _, f := range schema.Fields {
		var raw string
		var ok bool
		if schema.FileType == FileTypeCSV {
			raw, ok = tokenAt(tokens, f.Position)
			raw = unquote(strings.TrimSpace(raw))
		} else {
			raw, ok = chars.rangeAt(f.Position, f.Size)
			raw = strings.TrimSpace(raw)
		}

		fv := FieldValue{Name: f.Name}
		if !ok {
			fv.Err = &FieldError{Kind: ErrMissingField, Line: line.Number, Field: f.Name, Err: missingDetail(schema, f, len(tokens), chars.len())}
			rec.Fields = append(rec.Fields, fv)
			continue
		}

		v, err := Coerce(f.Type, raw)
		if err != nil {
			fv.Err = &FieldError{Kind: ErrTypeMismatch, Line: line.Number, Field: f.Name, Raw: raw, Err: err}
		} else {
			fv.Value = v
		}
		rec.Fields = append(rec.Fields, fv)
	}
	return rec
}

// Coerce converts already-trimmed text to a value of type t.
func Coerce(t FieldType, text string) (Value, error) {
	switch t {
	case FieldString:
		return StringValue(text), nil
	case FieldInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			var ne *strconv.NumError
			if errors.As(err, &ne) && errors.Is(ne.Err, strconv.ErrRange) {
				return Value{}, fmt.Errorf("%q overflows int64", text)
			}
			return Value{}, fmt.Errorf("cannot parse %q as int", text)
		}
		return IntValue(n), nil
	case FieldFloat:
		f, err := parseDecimal(text)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case FieldBoolean:
		b, ok := parseBool(text)
		if !ok {
			return Value{}, fmt.Errorf("cannot parse %q as boolean", text)
		}
		return BooleanValue(b), nil
	}
	return Value{}, fmt.Errorf("unsupported field type %q", t)
}

// parseDecimal accepts plain decimal notation with an optional exponent.
// Hex floats, infinities, NaN and digit separators are rejected.
func parseDecimal(text string) (float64, error) {
	if text == "" || strings.ContainsAny(text, "xX_pPiInN") {
		return 0, fmt.Errorf("cannot parse %q as float", text)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, fmt.Errorf("cannot parse %q as float", text)
	}
	return f, nil
}

func parseBool(text string) (bool, bool) {
	switch strings.ToLower(text) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	}
	return false, false
}

// splitTokens splits a delimited line. An empty line has no tokens.
func splitTokens(text, delim string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, delim)
}

func tokenAt(tokens []string, position int) (string, bool) {
	if position < 1 || position > len(tokens) {
		return "", false
	}
	return tokens[position-1], true
}

// fixedText indexes a line by character. A line that is not valid UTF-8
// is indexed by byte, so single-byte legacy encodings slice without loss.
type fixedText struct {
	runes    []rune
	raw      string
	bytewise bool
}

func newFixedText(s string) fixedText {
	if utf8.ValidString(s) {
		return fixedText{runes: []rune(s)}
	}
	return fixedText{raw: s, bytewise: true}
}

func (t fixedText) len() int {
	if t.bytewise {
		return len(t.raw)
	}
	return len(t.runes)
}

// rangeAt returns characters [position, position+size) counted from 1.
func (t fixedText) rangeAt(position, size int) (string, bool) {
	start := position - 1
	end := start + size
	if start < 0 || end > t.len() {
		return "", false
	}
	if t.bytewise {
		return t.raw[start:end], true
	}
	return string(t.runes[start:end]), true
}

// unquote strips one pair of surrounding double quotes.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func missingDetail(schema *Schema, f FieldSpec, ntokens, nchars int) error {
	if schema.FileType == FileTypeCSV {
		return fmt.Errorf("token %d requested, line has %d", f.Position, ntokens)
	}
	return fmt.Errorf("range [%d,%d) requested, line has %d characters", f.Position, f.End(), nchars)
}
