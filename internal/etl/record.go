package etl

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// The decoder emits Records, the dispatcher consumes them.

// Value is a typed field value. Kind is empty for a field that failed to
// decode; such a value serializes as null.
type Value struct {
	Kind FieldType
	str  string
	num  int64
	flt  float64
	bln  bool
}

func StringValue(s string) Value { return Value{Kind: FieldString, str: s} }
func IntValue(n int64) Value { return Value{Kind: FieldInt, num: n} }
func FloatValue(f float64) Value { return Value{Kind: FieldFloat, flt: f} }
func BooleanValue(b bool) Value { return Value{Kind: FieldBoolean, bln: b} }
func (v Value) IsNull() bool { return v.Kind == "" }
func (v Value) String() string { return v.format() }
func (v Value) Str() string { return v.str }
func (v Value) Int() int64 { return v.num }
func (v Value) Float() float64 { return v.flt }
func (v Value) Bool() bool { return v.bln }

// Interface returns the Go value carried by v: string, int64, float64,
// bool, or nil for a failed field.
func (v Value) Interface() any {
	switch v.Kind {
	case FieldString:
		return v.str
	case FieldInt:
		return v.num
	case FieldFloat:
		return v.flt
	case FieldBoolean:
		return v.bln
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v Value) format() string {
	switch v.Kind {
	case FieldString:
		return v.str
	case FieldInt:
		return strconv.FormatInt(v.num, 10)
	case FieldFloat:
		return strconv.FormatFloat(v.flt, 'f', -1, 64)
	case FieldBoolean:
		return strconv.FormatBool(v.bln)
	default:
		return "null"
	}
}

// FieldValue is the outcome of decoding one field: a value or an error.
type FieldValue struct {
	Name  string
	Value Value
	Err   *FieldError
}

// Record is a single decoded line. Fields follow the schema order.
// A Record is never mutated after the decoder returns it.
type Record struct {
	Line   int
	Fields []FieldValue
}

// OK reports whether every field decoded.
func (r Record) OK() bool {
	for _, f := range r.Fields {
		if f.Err != nil {
			return false
		}
	}
	return true
}

// Errors returns the field failures in schema order.
func (r Record) Errors() []*FieldError {
	var errs []*FieldError
	for _, f := range r.Fields {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// FailedFields returns the names of fields that did not decode.
func (r Record) FailedFields() []string {
	var names []string
	for _, f := range r.Fields {
		if f.Err != nil {
			names = append(names, f.Name)
		}
	}
	return names
}

// Get returns the value decoded for name.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// MarshalJSON writes the record as an object in schema order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
