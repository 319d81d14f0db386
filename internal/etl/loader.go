package etl

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SchemaFormat is the serialization of a schema source.
type SchemaFormat string

const (
	FormatAuto SchemaFormat = ""
	FormatJSON SchemaFormat = "json"
	FormatYAML SchemaFormat = "yaml"
)

// rawSchema mirrors the on-disk document before validation.
type rawSchema struct {
	Name        string     `json:"name" yaml:"name"`
	Version     int        `json:"version" yaml:"version"`
	FileType    string     `json:"file_type" yaml:"file_type"`
	Delimiter   *string    `json:"delimiter" yaml:"delimiter"`
	Destination string     `json:"destination" yaml:"destination"`
	StorageName string     `json:"storage_name" yaml:"storage_name"`
	Fields      []rawField `json:"fields" yaml:"fields"`
}

type rawField struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Position    int    `json:"position" yaml:"position"`
	Size        int    `json:"size" yaml:"size"`
	FieldType   string `json:"field_type" yaml:"field_type"`
}

// LoadSchema reads and validates the schema file at path. The format is
// taken from the extension (.json, .yaml, .yml) and sniffed otherwise.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SchemaError{Kind: ErrMalformed, Source: path, Detail: "cannot read schema", Err: err}
	}
	s, err := ParseSchema(data, formatFromExt(path))
	if err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			se.Source = path
		}
		return nil, err
	}
	return s, nil
}

// ParseSchema decodes and validates a schema document. All structural
// checks happen here so decoding only ever sees per-field data problems.
func ParseSchema(data []byte, format SchemaFormat) (*Schema, error) {
	if format == FormatAuto {
		format = sniffFormat(data)
	}

	var raw rawSchema
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &SchemaError{Kind: ErrMalformed, Detail: "invalid JSON", Err: err}
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &SchemaError{Kind: ErrMalformed, Detail: "invalid YAML", Err: err}
		}
	default:
		return nil, schemaErr(ErrMalformed, "", "unsupported schema format %q", format)
	}

	return raw.validate()
}

func (raw rawSchema) validate() (*Schema, error) {
	fileType, ok := parseFileType(raw.FileType)
	if !ok {
		return nil, schemaErr(ErrMalformed, "", "unknown file_type %q (expected csv or fixed)", raw.FileType)
	}

	s := &Schema{
		Name:        strings.TrimSpace(raw.Name),
		Version:     raw.Version,
		FileType:    fileType,
		StorageName: strings.TrimSpace(raw.StorageName),
	}

	if fileType == FileTypeCSV {
		if raw.Delimiter == nil || *raw.Delimiter == "" {
			return nil, schemaErr(ErrMalformed, "", "delimiter is required when file_type is csv")
		}
		s.Delimiter = *raw.Delimiter
	}

	dest, ok := parseDestination(raw.Destination)
	if !ok {
		return nil, schemaErr(ErrInvalidDestination, "", "unknown destination %q (expected queue, repository or both)", raw.Destination)
	}
	s.Destination = dest
	if s.StorageName == "" {
		return nil, schemaErr(ErrInvalidDestination, "", "storage_name is required for destination %q", dest)
	}

	if len(raw.Fields) == 0 {
		return nil, &SchemaError{Kind: ErrEmptyFields}
	}

	names := make(map[string]struct{}, len(raw.Fields))
	positions := make(map[int]string, len(raw.Fields))
	s.Fields = make([]FieldSpec, 0, len(raw.Fields))
	for i, rf := range raw.Fields {
		name := strings.TrimSpace(rf.Name)
		if name == "" {
			return nil, schemaErr(ErrInvalidField, "", "field #%d has no name", i+1)
		}
		if _, dup := names[name]; dup {
			return nil, schemaErr(ErrInvalidField, name, "duplicate field name")
		}
		names[name] = struct{}{}

		if rf.Position <= 0 {
			return nil, schemaErr(ErrInvalidField, name, "position must be positive, got %d", rf.Position)
		}
		if rf.Size <= 0 {
			return nil, schemaErr(ErrInvalidField, name, "size must be positive, got %d", rf.Size)
		}
		ft, ok := parseFieldType(rf.FieldType)
		if !ok {
			return nil, schemaErr(ErrInvalidField, name, "unknown field_type %q", rf.FieldType)
		}
		if other, dup := positions[rf.Position]; dup {
			return nil, schemaErr(ErrInvalidField, name, "position %d already used by %q", rf.Position, other)
		}
		positions[rf.Position] = name

		s.Fields = append(s.Fields, FieldSpec{
			Name:        name,
			Description: rf.Description,
			Position:    rf.Position,
			Size:        rf.Size,
			Type:        ft,
		})
	}

	if fileType == FileTypeFixed {
		if err := checkOverlap(s.Fields); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// checkOverlap rejects fixed-width fields whose ranges intersect.
func checkOverlap(fields []FieldSpec) error {
	sorted := make([]FieldSpec, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.Position < prev.End() {
			return schemaErr(ErrInvalidField, cur.Name,
				"range [%d,%d) overlaps %q [%d,%d)", cur.Position, cur.End(), prev.Name, prev.Position, prev.End())
		}
	}
	return nil
}

func formatFromExt(path string) SchemaFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatAuto
}

func sniffFormat(data []byte) SchemaFormat {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}
