package etl

import "strings"

// ── Schema ─────────────────────────────────────────────────
// Declarative layout of one input file: how to slice each line,
// how to type each field, and where decoded records are routed.

// FileType selects how a raw line is sliced into fields.
type FileType string

const (
	FileTypeCSV   FileType = "csv"   // tokens split on Schema.Delimiter
	FileTypeFixed FileType = "fixed" // character ranges [position, position+size)
)

// Destination names the sink(s) a schema routes to.
type Destination string

const (
	DestinationQueue      Destination = "queue"
	DestinationRepository Destination = "repository"
	DestinationBoth       Destination = "both"
)

// SinkKind identifies one concrete sink.
type SinkKind string

const (
	SinkQueue      SinkKind = "queue"
	SinkRepository SinkKind = "repository"
)

// FieldType is the declared type of a field. The set is closed.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInt     FieldType = "int"
	FieldFloat   FieldType = "float"
	FieldBoolean FieldType = "boolean"
)

// FieldSpec describes one field of a schema.
type FieldSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Position    int       `json:"position" yaml:"position"`
	Size        int       `json:"size" yaml:"size"`
	Type        FieldType `json:"field_type" yaml:"field_type"`
}

// End returns the exclusive 1-based end of the field's fixed-width range.
func (f FieldSpec) End() int {
	return f.Position + f.Size
}

// Schema is the validated, immutable layout of a run. Build it with
// LoadSchema or ParseSchema; the zero value is not usable.
type Schema struct {
	Name        string      `json:"name" yaml:"name"`
	Version     int         `json:"version" yaml:"version"`
	FileType    FileType    `json:"file_type" yaml:"file_type"`
	Delimiter   string      `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	Destination Destination `json:"destination" yaml:"destination"`
	StorageName string      `json:"storage_name" yaml:"storage_name"`
	Fields      []FieldSpec `json:"fields" yaml:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field returns the spec for name.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Targets returns the sinks the schema routes to, queue first.
func (s *Schema) Targets() []SinkKind {
	return s.Destination.Targets()
}

// Targets returns the sinks implied by d, or nil when d is unknown.
func (d Destination) Targets() []SinkKind {
	switch d {
	case DestinationQueue:
		return []SinkKind{SinkQueue}
	case DestinationRepository:
		return []SinkKind{SinkRepository}
	case DestinationBoth:
		return []SinkKind{SinkQueue, SinkRepository}
	default:
		return nil
	}
}

// Has reports whether d routes to k.
func (d Destination) Has(k SinkKind) bool {
	for _, t := range d.Targets() {
		if t == k {
			return true
		}
	}
	return false
}

func parseFileType(s string) (FileType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "delimited":
		return FileTypeCSV, true
	case "fixed", "fixed-width", "fixed_width":
		return FileTypeFixed, true
	}
	return "", false
}

func parseDestination(s string) (Destination, bool) {
	switch d := Destination(strings.ToLower(strings.TrimSpace(s))); d {
	case DestinationQueue, DestinationRepository, DestinationBoth:
		return d, true
	}
	return "", false
}

func parseFieldType(s string) (FieldType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "text":
		return FieldString, true
	case "int", "integer":
		return FieldInt, true
	case "float", "double", "number", "decimal":
		return FieldFloat, true
	case "boolean", "bool":
		return FieldBoolean, true
	}
	return "", false
}
