// Package pdffill renders resolved field values into fixed-layout PDF
// documents. A Template is a JSON descriptor of named form fields, each a
// positioned fillable region on a page; Fill produces one fresh document
// per call, leaving the template reusable across rows.
package pdffill

import (
	"encoding/json"
	"fmt"
	"os"
)

// FieldKind distinguishes text fields from image fields.
type FieldKind string

const (
	TextField  FieldKind = "text"
	ImageField FieldKind = "image"
)

// Field is one named fillable region. Coordinates are millimeters from
// the page's top-left corner.
type Field struct {
	Name  string    `json:"name"`
	Kind  FieldKind `json:"kind"`           // default "text"
	Page  int       `json:"page,omitempty"` // 1-based, default 1
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	W     float64   `json:"w"`
	H     float64   `json:"h"`
	Font  string    `json:"font,omitempty"`  // core font, default Helvetica
	Size  float64   `json:"size,omitempty"`  // points, default 10
	Align string    `json:"align,omitempty"` // L, C, or R, default L
}

// Template describes one fillable document layout. It is parsed and
// validated once and never mutated by filling.
type Template struct {
	PageSize    string  `json:"pageSize,omitempty"`    // A4, Letter, Legal; default A4
	Orientation string  `json:"orientation,omitempty"` // P or L; default P
	Pages       int     `json:"pages,omitempty"`       // default: highest field page
	Fields      []Field `json:"fields"`
}

// LoadTemplate reads and validates a template descriptor file.
func LoadTemplate(path string) (*Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %q: %w", path, err)
	}
	return ParseTemplate(b)
}

// ParseTemplate parses and validates a template descriptor.
func ParseTemplate(b []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Template) validate() error {
	if len(t.Fields) == 0 {
		return fmt.Errorf("template has no fields")
	}
	seen := map[string]bool{}
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field %d: missing name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = true

		switch f.Kind {
		case "":
			f.Kind = TextField
		case TextField, ImageField:
		default:
			return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
		}
		if f.W <= 0 || f.H <= 0 {
			return fmt.Errorf("field %q: box must have positive width and height", f.Name)
		}
		if f.Page < 1 {
			f.Page = 1
		}
		if f.Page > t.Pages {
			t.Pages = f.Page
		}
	}
	if t.PageSize == "" {
		t.PageSize = "A4"
	}
	if t.Orientation == "" {
		t.Orientation = "P"
	}
	return nil
}

// FieldNames lists the template's form-field names in declaration order.
func (t *Template) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}
