package xlimg

import (
	"fmt"
	"strings"
)

// CellRef addresses a cell by zero-based sheet, row, and column index.
// All positions in this package use this convention; one-based source
// formats are normalized at ingestion.
type CellRef struct {
	Sheet int
	Row   int
	Col   int
}

// NewCellRef creates a CellRef with explicit sheet, row, col.
func NewCellRef(sheet, row, col int) CellRef {
	return CellRef{Sheet: sheet, Row: row, Col: col}
}

// Name returns the cell part like "A1" without the sheet.
func (c CellRef) Name() string {
	return ColToName(c.Col) + fmt.Sprintf("%d", c.Row+1)
}

// String formats the CellRef as "sheet0!A1".
func (c CellRef) String() string {
	return fmt.Sprintf("sheet%d!%s", c.Sheet, c.Name())
}

// ParseCellName parses "A1" into a zero-based (row, col) pair.
func ParseCellName(name string) (row, col int, err error) {
	if len(name) == 0 {
		return 0, 0, fmt.Errorf("empty cell name")
	}

	i := 0
	for i < len(name) && isAlpha(name[i]) {
		i++
	}
	if i == 0 || i == len(name) {
		return 0, 0, fmt.Errorf("invalid cell name: %q", name)
	}

	col, err = NameToCol(name[:i])
	if err != nil {
		return 0, 0, err
	}

	rowNum := 0
	for _, ch := range name[i:] {
		if ch < '0' || ch > '9' {
			return 0, 0, fmt.Errorf("invalid row in cell name: %q", name)
		}
		rowNum = rowNum*10 + int(ch-'0')
	}
	if rowNum < 1 {
		return 0, 0, fmt.Errorf("invalid row number in cell name: %q", name)
	}

	return rowNum - 1, col, nil // convert 1-based row to 0-based
}

func isAlpha(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// ColToName converts a 0-based column index to a column name.
// 0→"A", 25→"Z", 26→"AA", 702→"AAA"
func ColToName(col int) string {
	result := ""
	col++ // convert to 1-based for algorithm
	for col > 0 {
		col-- // adjust for 0-indexed letter
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}

// NameToCol converts a column name to a 0-based column index.
// "A"→0, "Z"→25, "AA"→26
func NameToCol(name string) (int, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return 0, fmt.Errorf("empty column name")
	}
	col := 0
	for _, ch := range name {
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("invalid column name: %q", name)
		}
		col = col*26 + int(ch-'A') + 1
	}
	return col - 1, nil
}
