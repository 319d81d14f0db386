package etl_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"textingest/internal/etl"
)

func TestDecodeCSV(t *testing.T) {
	schema := mustParse(t, peopleJSON)

	rec := etl.Decode(etl.RawLine{Number: 1, Text: "34,Lisbon"}, schema)
	if !rec.OK() {
		t.Fatalf("unexpected errors: %v", rec.Errors())
	}
	if rec.Line != 1 || len(rec.Fields) != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if age, _ := rec.Get("age"); age.Kind != etl.FieldInt || age.Int() != 34 {
		t.Errorf("age = %+v", age)
	}
	if city, _ := rec.Get("city"); city.Str() != "Lisbon" {
		t.Errorf("city = %+v", city)
	}
}

func TestDecodeCSVTypeMismatch(t *testing.T) {
	schema := mustParse(t, peopleJSON)

	rec := etl.Decode(etl.RawLine{Number: 7, Text: "thirtyfour,Lisbon"}, schema)
	if rec.OK() {
		t.Fatal("expected a decode failure")
	}
	if got := rec.FailedFields(); !reflect.DeepEqual(got, []string{"age"}) {
		t.Fatalf("failed fields = %v", got)
	}
	fe := rec.Errors()[0]
	if !errors.Is(fe, etl.ErrTypeMismatch) || fe.Line != 7 || fe.Raw != "thirtyfour" {
		t.Errorf("unexpected field error: %+v", fe)
	}
	if city, _ := rec.Get("city"); city.Str() != "Lisbon" {
		t.Error("other fields should still decode")
	}
}

func TestDecodeCSVTrimAndQuotes(t *testing.T) {
	schema := mustParse(t, `{"file_type":"csv","delimiter":";","destination":"queue","storage_name":"q","fields":[
		{"name":"name","position":1,"size":1,"field_type":"string"},
		{"name":"score","position":2,"size":1,"field_type":"float"},
		{"name":"active","position":3,"size":1,"field_type":"boolean"}]}`)

	rec := etl.Decode(etl.RawLine{Number: 1, Text: ` "Ann Lee" ; 2.5 ; YES `}, schema)
	if !rec.OK() {
		t.Fatalf("unexpected errors: %v", rec.Errors())
	}
	name, _ := rec.Get("name")
	score, _ := rec.Get("score")
	active, _ := rec.Get("active")
	if name.Str() != "Ann Lee" || score.Float() != 2.5 || !active.Bool() {
		t.Errorf("unexpected values: %v %v %v", name, score, active)
	}
}

func TestDecodeMissingFields(t *testing.T) {
	schema := mustParse(t, peopleJSON)

	rec := etl.Decode(etl.RawLine{Number: 3, Text: "34"}, schema)
	if got := rec.FailedFields(); !reflect.DeepEqual(got, []string{"city"}) {
		t.Fatalf("failed fields = %v", got)
	}
	if !errors.Is(rec.Errors()[0], etl.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", rec.Errors()[0])
	}

	blank := etl.Decode(etl.RawLine{Number: 4, Text: ""}, schema)
	if len(blank.Fields) != 2 || len(blank.Errors()) != 2 {
		t.Fatalf("blank line should yield a record with every field missing: %+v", blank)
	}
	for _, fe := range blank.Errors() {
		if !errors.Is(fe, etl.ErrMissingField) {
			t.Errorf("expected ErrMissingField, got %v", fe)
		}
	}
}

func fixedSchema(t *testing.T) *etl.Schema {
	return mustParse(t, `{"file_type":"fixed","destination":"queue","storage_name":"q","fields":[
		{"name":"id","position":1,"size":4,"field_type":"int"},
		{"name":"name","position":5,"size":6,"field_type":"string"},
		{"name":"amount","position":11,"size":7,"field_type":"float"}]}`)
}

func TestDecodeFixedWidth(t *testing.T) {
	schema := fixedSchema(t)

	// "Zoë" is three characters but four bytes; slicing counts characters.
	rec := etl.Decode(etl.RawLine{Number: 1, Text: "0042" + "Zoë   " + " -12.50"}, schema)
	if !rec.OK() {
		t.Fatalf("unexpected errors: %v", rec.Errors())
	}
	id, _ := rec.Get("id")
	name, _ := rec.Get("name")
	amount, _ := rec.Get("amount")
	if id.Int() != 42 || name.Str() != "Zoë" || amount.Float() != -12.5 {
		t.Errorf("unexpected values: %v %q %v", id, name.Str(), amount)
	}
}

func TestDecodeFixedShortLine(t *testing.T) {
	schema := fixedSchema(t)

	rec := etl.Decode(etl.RawLine{Number: 2, Text: "0042Ann"}, schema)
	if got := rec.FailedFields(); !reflect.DeepEqual(got, []string{"name", "amount"}) {
		t.Fatalf("failed fields = %v", got)
	}
	if id, _ := rec.Get("id"); id.Int() != 42 {
		t.Errorf("in-range field should decode, got %v", id)
	}
	for _, fe := range rec.Errors() {
		if !errors.Is(fe, etl.ErrMissingField) {
			t.Errorf("expected ErrMissingField, got %v", fe)
		}
	}
}

func TestDecodeFixedRoundTrip(t *testing.T) {
	schema := mustParse(t, `{"file_type":"fixed","destination":"queue","storage_name":"q","fields":[
		{"name":"code","position":1,"size":3,"field_type":"string"},
		{"name":"city","position":4,"size":8,"field_type":"string"},
		{"name":"zip","position":12,"size":5,"field_type":"string"}]}`)
	line := "PT1Lisbon  01000"

	rec := etl.Decode(etl.RawLine{Number: 1, Text: line}, schema)
	var b strings.Builder
	for i, f := range schema.Fields {
		v := rec.Fields[i].Value.Str()
		b.WriteString(v + strings.Repeat(" ", f.Size-len([]rune(v))))
	}
	if b.String() != line {
		t.Errorf("re-encoded %q, want %q", b.String(), line)
	}
}

func TestDecodeFixedLatin1(t *testing.T) {
	schema := mustParse(t, `{"file_type":"fixed","destination":"queue","storage_name":"q","fields":[
		{"name":"name","position":1,"size":4,"field_type":"string"},
		{"name":"code","position":5,"size":2,"field_type":"string"}]}`)

	// 0xE9 is "é" in ISO-8859-1 and not valid UTF-8 on its own.
	line := "Jos\xe9AB"
	rec := etl.Decode(etl.RawLine{Number: 1, Text: line}, schema)
	if !rec.OK() {
		t.Fatalf("unexpected errors: %v", rec.Errors())
	}
	name, _ := rec.Get("name")
	code, _ := rec.Get("code")
	if name.Str() != "Jos\xe9" || code.Str() != "AB" {
		t.Fatalf("got name %q code %q", name.Str(), code.Str())
	}
	if name.Str()+code.Str() != line {
		t.Errorf("bytes not preserved: %q", name.Str()+code.Str())
	}

	short := etl.Decode(etl.RawLine{Number: 2, Text: "Jos\xe9A"}, schema)
	if got := short.FailedFields(); !reflect.DeepEqual(got, []string{"code"}) {
		t.Errorf("failed fields = %v", got)
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	schema := mustParse(t, peopleJSON)
	line := etl.RawLine{Number: 9, Text: "x,Porto"}
	a := etl.Decode(line, schema)
	b := etl.Decode(line, schema)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("decode is not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		typ  etl.FieldType
		in   string
		want any
		ok   bool
	}{
		{etl.FieldString, "", "", true},
		{etl.FieldInt, "-17", int64(-17), true},
		{etl.FieldInt, "+5", int64(5), true},
		{etl.FieldInt, "1.0", nil, false},
		{etl.FieldInt, "99999999999999999999", nil, false},
		{etl.FieldFloat, "3.25", 3.25, true},
		{etl.FieldFloat, "1e3", 1000.0, true},
		{etl.FieldFloat, "1,5", nil, false},
		{etl.FieldFloat, "NaN", nil, false},
		{etl.FieldFloat, "Inf", nil, false},
		{etl.FieldFloat, "0x1p3", nil, false},
		{etl.FieldBoolean, "TRUE", true, true},
		{etl.FieldBoolean, "0", false, true},
		{etl.FieldBoolean, "n", false, true},
		{etl.FieldBoolean, "maybe", nil, false},
	}
	for _, tt := range tests {
		v, err := etl.Coerce(tt.typ, tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("Coerce(%s, %q) err = %v", tt.typ, tt.in, err)
			continue
		}
		if tt.ok && v.Interface() != tt.want {
			t.Errorf("Coerce(%s, %q) = %v, want %v", tt.typ, tt.in, v.Interface(), tt.want)
		}
	}
}

func TestRecordMarshalJSON(t *testing.T) {
	schema := mustParse(t, peopleJSON)
	rec := etl.Decode(etl.RawLine{Number: 1, Text: "abc,Faro"}, schema)
	data, err := rec.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"age":null,"city":"Faro"}` {
		t.Errorf("got %s", data)
	}
}
