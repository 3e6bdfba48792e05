package exceltopdf

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// workbookFixture describes one test workbook: literal cell values,
// cell formulas, and floating pictures anchored at cells.
type workbookFixture struct {
	Sheet    string
	Cells    map[string]string
	Formulas map[string]string
	Pictures map[string][]byte
}

func createWorkbook(t *testing.T, fx workbookFixture) string {
	t.Helper()
	if fx.Sheet == "" {
		fx.Sheet = "Sheet1"
	}

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", fx.Sheet))

	for cell, val := range fx.Cells {
		require.NoError(t, f.SetCellValue(fx.Sheet, cell, val))
	}
	for cell, formula := range fx.Formulas {
		require.NoError(t, f.SetCellFormula(fx.Sheet, cell, formula))
	}
	for cell, data := range fx.Pictures {
		require.NoError(t, f.AddPictureFromBytes(fx.Sheet, cell, &excelize.Picture{
			Extension: ".png",
			File:      data,
		}))
	}

	path := filepath.Join(t.TempDir(), "fixture.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func fixturePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 0xcc, G: 0x33, B: 0x33, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testPreset(mapping map[string]FieldSpec) *Preset {
	p := DefaultPreset()
	p.StartRow = 2
	p.TitleRow = 1
	p.FieldMapping = mapping
	return p
}
