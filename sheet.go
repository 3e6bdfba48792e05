package exceltopdf

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/yincangshiwei/ExcelToPDFTemplate/xlimg"
)

// Sheet is a read-once snapshot of one worksheet: cell values and cell
// formulas cached in memory so the workbook file can be closed before row
// processing starts. It is immutable after OpenSheet returns.
type Sheet struct {
	Name  string
	Index int // zero-based position in the workbook, matches xlimg sheet indexes

	rows     [][]string
	formulas map[[2]int]string // (row, col) → formula without leading "="
	maxRow   int
}

// OpenSheet opens the workbook at path and snapshots the named sheet.
// An empty name selects the first sheet. The file handle is released
// before returning.
func OpenSheet(path, name string) (*Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %q: %w (%v)", path, xlimg.ErrMalformedWorkbook, err)
	}
	defer f.Close()

	list := f.GetSheetList()
	if len(list) == 0 {
		return nil, fmt.Errorf("workbook %q has no sheets: %w", path, xlimg.ErrMalformedWorkbook)
	}
	if name == "" {
		name = list[0]
	}
	index := -1
	for i, n := range list {
		if n == name {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("sheet %q not found in %q", name, path)
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read rows from sheet %q: %w", name, err)
	}

	s := &Sheet{
		Name:     name,
		Index:    index,
		rows:     rows,
		formulas: make(map[[2]int]string),
		maxRow:   len(rows),
	}

	// Scan the used range for formulas. DISPIMG cells often have an empty
	// cached value, so the value rows alone would miss them; the sheet
	// dimension covers formula-only cells.
	r1, c1, r2, c2 := s.usedRange(f)
	for r := r1; r <= r2; r++ {
		for c := c1; c <= c2; c++ {
			cellName := xlimg.ColToName(c) + fmt.Sprintf("%d", r+1)
			formula, err := f.GetCellFormula(name, cellName)
			if err == nil && formula != "" {
				s.formulas[[2]int{r, c}] = formula
				if r+1 > s.maxRow {
					s.maxRow = r + 1
				}
			}
		}
	}

	return s, nil
}

// usedRange returns the zero-based bounds to scan for formulas, from the
// sheet dimension when available, else from the value rows.
func (s *Sheet) usedRange(f *excelize.File) (r1, c1, r2, c2 int) {
	maxCol := 0
	for _, row := range s.rows {
		if len(row) > maxCol {
			maxCol = len(row)
		}
	}
	r2, c2 = len(s.rows)-1, maxCol-1

	dim, err := f.GetSheetDimension(s.Name)
	if err == nil && dim != "" {
		first, last, ok := strings.Cut(dim, ":")
		if !ok {
			last = first
		}
		fr, fc, err1 := xlimg.ParseCellName(strings.ReplaceAll(first, "$", ""))
		lr, lc, err2 := xlimg.ParseCellName(strings.ReplaceAll(last, "$", ""))
		if err1 == nil && err2 == nil {
			r1, c1 = fr, fc
			if lr > r2 {
				r2 = lr
			}
			if lc > c2 {
				c2 = lc
			}
		}
	}
	if r1 > 0 {
		r1 = 0 // values above the dimension origin still count
	}
	if c1 > 0 {
		c1 = 0
	}
	return r1, c1, r2, c2
}

// CellValue returns the cached cell value at a zero-based (row, col), or
// "" when the cell is outside the used range.
func (s *Sheet) CellValue(row, col int) string {
	if row < 0 || row >= len(s.rows) {
		return ""
	}
	r := s.rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// ImageCellText returns the text used for image resolution at a cell:
// the formula (with a leading "=") when one is present, else the value.
// DISPIMG references live in the formula, not the cached value.
func (s *Sheet) ImageCellText(row, col int) string {
	if formula, ok := s.formulas[[2]int{row, col}]; ok {
		return "=" + formula
	}
	return s.CellValue(row, col)
}

// MaxRow returns the number of rows in the used range.
func (s *Sheet) MaxRow() int {
	return s.maxRow
}

// RowEmpty reports whether the given columns of a row are all empty.
// With no columns listed it checks the entire row. This backs the
// row-end sentinel: the first such row ends the batch.
func (s *Sheet) RowEmpty(row int, cols []int) bool {
	if len(cols) == 0 {
		if row < 0 || row >= len(s.rows) {
			return true
		}
		for _, v := range s.rows[row] {
			if strings.TrimSpace(v) != "" {
				return false
			}
		}
		return true
	}
	for _, col := range cols {
		if strings.TrimSpace(s.CellValue(row, col)) != "" {
			return false
		}
	}
	return true
}
