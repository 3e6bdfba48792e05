package exceltopdf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yincangshiwei/ExcelToPDFTemplate/xlimg"
)

// FieldSpec declares where one template form field gets its value from.
// Exactly one of IsExcelCol and IsExcelImage must be true: a spec with
// both or neither set fails validation with ErrInvalidFieldSpec.
type FieldSpec struct {
	// Field is the target form-field name, set from the mapping key.
	Field string `json:"-" yaml:"-"`

	// IsExcelCol marks a text field read from one or more columns.
	IsExcelCol bool `json:"is_excel_col" yaml:"is_excel_col"`

	// IsExcelImage marks an image field resolved from the cell at the
	// configured column and the current row.
	IsExcelImage bool `json:"is_excel_image" yaml:"is_excel_image"`

	// Val is the source locator. For text fields: a comma-separated list
	// of column letters ("A" or "A,B"), or a ${...} expression evaluated
	// against the row's column values. For image fields: a single column
	// letter.
	Val string `json:"val" yaml:"val"`
}

// colListPattern matches a comma-separated list of column letters.
var colListPattern = regexp.MustCompile(`^[A-Za-z]+(\s*,\s*[A-Za-z]+)*$`)

// Validate checks the field spec for contradictions. It runs once at
// configuration load, never per row.
func (s FieldSpec) Validate() error {
	if s.IsExcelCol == s.IsExcelImage {
		return fmt.Errorf("field %q: exactly one of is_excel_col and is_excel_image must be set: %w", s.Field, ErrInvalidFieldSpec)
	}
	val := strings.TrimSpace(s.Val)
	if val == "" {
		return fmt.Errorf("field %q: empty val: %w", s.Field, ErrInvalidFieldSpec)
	}
	if s.IsExcelImage {
		if _, err := xlimg.NameToCol(val); err != nil {
			return fmt.Errorf("field %q: image locator must be a single column letter: %w", s.Field, ErrInvalidFieldSpec)
		}
		return nil
	}
	if isExpression(val) {
		return nil
	}
	if !colListPattern.MatchString(val) {
		return fmt.Errorf("field %q: val %q is neither a column list nor a ${...} expression: %w", s.Field, val, ErrInvalidFieldSpec)
	}
	return nil
}

// columns returns the zero-based column indexes of a plain column-list
// locator, or nil for expression locators.
func (s FieldSpec) columns() []int {
	if isExpression(strings.TrimSpace(s.Val)) {
		return nil
	}
	var cols []int
	for _, part := range strings.Split(s.Val, ",") {
		col, err := xlimg.NameToCol(part)
		if err != nil {
			return nil
		}
		cols = append(cols, col)
	}
	return cols
}

// Preset is a named batch configuration: source sheet layout, the field
// mapping, and output toggles. It is loaded once per batch and immutable
// during the run. The JSON shape matches the presets written by earlier
// versions of the tool; YAML is accepted by file extension.
type Preset struct {
	ExcelPath      string               `json:"excel_path" yaml:"excel_path"`
	TemplatePath   string               `json:"pdf_template_path" yaml:"pdf_template_path"`
	OutputDir      string               `json:"output_folder" yaml:"output_folder"`
	SheetName      string               `json:"sheet_name" yaml:"sheet_name"`
	TitleRow       int                  `json:"title_row" yaml:"title_row"`
	StartRow       int                  `json:"start_row" yaml:"start_row"`
	FilenameColumn string               `json:"filename_column" yaml:"filename_column"`
	FieldMapping   map[string]FieldSpec `json:"field_mapping" yaml:"field_mapping"`
	ColSeparator   string               `json:"col_separator" yaml:"col_separator"`
	OutputPNG      bool                 `json:"output_png" yaml:"output_png"`
	OutputPPT      bool                 `json:"output_ppt" yaml:"output_ppt"`
}

// DefaultPreset returns a Preset with the historical defaults: header on
// row 3, data starting on row 4, single-space column separator.
func DefaultPreset() *Preset {
	return &Preset{
		TitleRow:     3,
		StartRow:     4,
		ColSeparator: " ",
		FieldMapping: map[string]FieldSpec{},
	}
}

// LoadPreset reads and validates a preset file. The format is chosen by
// extension: .yaml/.yml is YAML, anything else is JSON. Schema violations
// fail here, before any row is processed.
func LoadPreset(path string) (*Preset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset %q: %w", path, err)
	}

	p := DefaultPreset()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, p)
	default:
		err = json.Unmarshal(b, p)
	}
	if err != nil {
		return nil, fmt.Errorf("parse preset %q: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Save writes the preset to a file, format chosen by extension as in
// LoadPreset.
func (p *Preset) Save(path string) error {
	var b []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err = yaml.Marshal(p)
	default:
		b, err = json.MarshalIndent(p, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode preset: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write preset %q: %w", path, err)
	}
	return nil
}

// Validate checks the whole preset, including every field spec.
func (p *Preset) Validate() error {
	if len(p.FieldMapping) == 0 {
		return fmt.Errorf("field mapping must not be empty: %w", ErrInvalidFieldSpec)
	}
	if p.StartRow < 1 {
		return fmt.Errorf("start_row must be at least 1, got %d: %w", p.StartRow, ErrInvalidFieldSpec)
	}
	if p.FilenameColumn != "" {
		if _, err := xlimg.NameToCol(p.FilenameColumn); err != nil {
			return fmt.Errorf("filename_column %q: %w", p.FilenameColumn, ErrInvalidFieldSpec)
		}
	}
	for name, spec := range p.FieldMapping {
		spec.Field = name
		if err := spec.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Specs returns the field specs with their Field names filled in, sorted
// by name for deterministic processing order.
func (p *Preset) Specs() []FieldSpec {
	specs := make([]FieldSpec, 0, len(p.FieldMapping))
	for name, spec := range p.FieldMapping {
		spec.Field = name
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Field < specs[j].Field })
	return specs
}

// requiredColumns returns the union of columns referenced by plain
// column-list text specs. These are the fields whose joint emptiness
// marks the end-of-data sentinel row.
func requiredColumns(specs []FieldSpec) []int {
	seen := map[int]bool{}
	var cols []int
	for _, s := range specs {
		if !s.IsExcelCol {
			continue
		}
		for _, c := range s.columns() {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	sort.Ints(cols)
	return cols
}
