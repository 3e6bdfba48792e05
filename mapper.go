package exceltopdf

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/yincangshiwei/ExcelToPDFTemplate/xlimg"
)

// ValueKind tags a ResolvedValue as text, image, or explicitly absent.
type ValueKind int

const (
	TextValue   ValueKind = iota // verbatim or computed cell text
	ImageValue                   // resolved image bytes
	AbsentValue                  // image field whose cell resolved to no image
)

// ResolvedValue is one field's value for one row. It is produced fresh
// per row and consumed immediately by the document filler.
type ResolvedValue struct {
	Kind  ValueKind
	Text  string
	Image xlimg.ImageRecord
}

// FieldMapper resolves field specs against sheet rows. Text fields read
// their columns verbatim (multiple columns joined by Separator) or
// evaluate a ${...} expression over the row's column values; image fields
// delegate to the image resolver.
type FieldMapper struct {
	Separator string

	programs sync.Map // expression string → compiled *vm.Program
}

// NewFieldMapper creates a FieldMapper with the given column separator.
func NewFieldMapper(separator string) *FieldMapper {
	return &FieldMapper{Separator: separator}
}

// MapRow resolves all field specs for one zero-based row. An image field
// whose cell resolves to no image yields an AbsentValue, never an error:
// not every row need carry an image.
func (m *FieldMapper) MapRow(sheet *Sheet, row int, specs []FieldSpec, idx *xlimg.ImageIndex) (map[string]ResolvedValue, error) {
	values := make(map[string]ResolvedValue, len(specs))
	for _, spec := range specs {
		if spec.IsExcelImage {
			values[spec.Field] = m.mapImage(sheet, row, spec, idx)
			continue
		}
		v, err := m.mapText(sheet, row, spec)
		if err != nil {
			return nil, err
		}
		values[spec.Field] = v
	}
	return values, nil
}

func (m *FieldMapper) mapImage(sheet *Sheet, row int, spec FieldSpec, idx *xlimg.ImageIndex) ResolvedValue {
	col, _ := xlimg.NameToCol(spec.Val) // validated at load
	ref := xlimg.NewCellRef(sheet.Index, row, col)
	rec, src := xlimg.Resolve(sheet.ImageCellText(row, col), ref, idx)
	if src == xlimg.SourceAbsent {
		return ResolvedValue{Kind: AbsentValue}
	}
	return ResolvedValue{Kind: ImageValue, Image: rec}
}

func (m *FieldMapper) mapText(sheet *Sheet, row int, spec FieldSpec) (ResolvedValue, error) {
	val := strings.TrimSpace(spec.Val)
	if inner, ok := extractExpression(val); ok {
		result, err := m.evaluate(inner, rowEnv(sheet, row))
		if err != nil {
			return ResolvedValue{}, fmt.Errorf("field %q: %w", spec.Field, err)
		}
		text := ""
		if result != nil {
			text = fmt.Sprint(result)
		}
		return ResolvedValue{Kind: TextValue, Text: text}, nil
	}

	var parts []string
	for _, letter := range strings.Split(val, ",") {
		col, err := xlimg.NameToCol(letter)
		if err != nil {
			return ResolvedValue{}, fmt.Errorf("field %q: %w", spec.Field, err)
		}
		parts = append(parts, sheet.CellValue(row, col))
	}
	return ResolvedValue{Kind: TextValue, Text: strings.Join(parts, m.Separator)}, nil
}

// rowEnv builds the expression environment for one row: every populated
// column keyed by its letter, plus "row" as the 1-based row number.
func rowEnv(sheet *Sheet, row int) map[string]any {
	env := map[string]any{"row": row + 1}
	if row >= 0 && row < len(sheet.rows) {
		for col, v := range sheet.rows[row] {
			env[xlimg.ColToName(col)] = v
		}
	}
	return env
}

// evaluate runs a cached compiled expression against the row environment.
func (m *FieldMapper) evaluate(expression string, env map[string]any) (any, error) {
	var program *vm.Program
	if cached, ok := m.programs.Load(expression); ok {
		program = cached.(*vm.Program)
	} else {
		compiled, err := expr.Compile(expression, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compile expression %q: %w", expression, err)
		}
		m.programs.Store(expression, compiled)
		program = compiled
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

// extractExpression returns the inner expression of a value like
// "${A + B}", or ("", false) for plain locators.
func extractExpression(val string) (string, bool) {
	if !strings.HasPrefix(val, "${") || !strings.HasSuffix(val, "}") {
		return "", false
	}
	inner := val[2 : len(val)-1]
	if strings.Contains(inner, "${") {
		return "", false
	}
	return inner, true
}

func isExpression(val string) bool {
	_, ok := extractExpression(val)
	return ok
}
