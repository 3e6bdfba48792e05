package xlimg

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// testPNG generates a small solid-color PNG so individual images are
// distinguishable by bytes.
func testPNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var (
	redPNG   = color.RGBA{R: 255, A: 255}
	greenPNG = color.RGBA{G: 255, A: 255}
	bluePNG  = color.RGBA{B: 255, A: 255}
)

// createFloatingWorkbook builds a workbook with floating pictures anchored
// at the given cells (zero anchor offset, excelize default).
func createFloatingWorkbook(t *testing.T, pics map[string][]byte) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	cells := make([]string, 0, len(pics))
	for cell := range pics {
		cells = append(cells, cell)
	}
	sort.Strings(cells)
	for _, cell := range cells {
		require.NoError(t, f.AddPictureFromBytes("Sheet1", cell, &excelize.Picture{
			Extension: ".png",
			File:      pics[cell],
		}))
	}

	path := filepath.Join(t.TempDir(), "floating.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

const wpsCellImagesTmpl = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<etc:cellImages xmlns:etc="http://www.wps.cn/officeDocument/2017/etCustomData" xmlns:xdr="http://schemas.openxmlformats.org/drawingml/2006/spreadsheetDrawing" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">%s</etc:cellImages>`

const wpsCellImageEntry = `<etc:cellImage><xdr:pic><xdr:nvPicPr><xdr:cNvPr id="%d" name="%s"/><xdr:cNvPicPr/></xdr:nvPicPr><xdr:blipFill><a:blip r:embed="%s"/></xdr:blipFill><xdr:spPr/></xdr:pic></etc:cellImage>`

// wpsImage is one entry for addCellImages; entries with the same ID model
// the duplicate-identifier case.
type wpsImage struct {
	ID    string
	Bytes []byte
}

// addCellImages rewrites an xlsx archive in place, appending a WPS
// cellimages manifest referencing the given images. excelize cannot write
// this part, so the test grafts it at the container level.
func addCellImages(t *testing.T, path string, images []wpsImage) {
	t.Helper()

	src, err := zip.OpenReader(path)
	require.NoError(t, err)

	var out bytes.Buffer
	w := zip.NewWriter(&out)
	for _, f := range src.File {
		rc, err := f.Open()
		require.NoError(t, err)
		dst, err := w.Create(f.Name)
		require.NoError(t, err)
		_, err = io.Copy(dst, rc)
		require.NoError(t, err)
		rc.Close()
	}

	var entries, rels bytes.Buffer
	for i, img := range images {
		rid := fmt.Sprintf("rId%d", i+1)
		media := fmt.Sprintf("media/cellimage%d.png", i+1)
		fmt.Fprintf(&entries, wpsCellImageEntry, i+1, img.ID, rid)
		fmt.Fprintf(&rels, `<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="%s"/>`, rid, media)
		dst, err := w.Create("xl/" + media)
		require.NoError(t, err)
		_, err = dst.Write(img.Bytes)
		require.NoError(t, err)
	}

	ci, err := w.Create("xl/cellimages.xml")
	require.NoError(t, err)
	fmt.Fprintf(ci, wpsCellImagesTmpl, entries.String())

	rl, err := w.Create("xl/_rels/cellimages.xml.rels")
	require.NoError(t, err)
	fmt.Fprintf(rl, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">%s</Relationships>`, rels.String())

	require.NoError(t, src.Close())
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o644))
}

func TestBuildIndex_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip archive"), 0o644))

	_, err := BuildIndex(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedWorkbook)
}

func TestBuildIndex_MissingWorkbookPart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("unrelated.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	_, err = BuildIndex(path)
	assert.ErrorIs(t, err, ErrMalformedWorkbook)
}

func TestBuildIndex_FloatingAnchors(t *testing.T) {
	red := testPNG(t, redPNG)
	green := testPNG(t, greenPNG)
	path := createFloatingWorkbook(t, map[string][]byte{
		"B3": red,   // (row 2, col 1)
		"B6": green, // (row 5, col 1)
	})

	idx, err := BuildIndex(path)
	require.NoError(t, err)

	rec, ok := idx.AtAnchor(NewCellRef(0, 2, 1))
	require.True(t, ok)
	assert.Equal(t, red, rec.Bytes)
	assert.Equal(t, "png", rec.Ext)
	require.NotNil(t, rec.Anchor)
	assert.Equal(t, NewCellRef(0, 2, 1), *rec.Anchor)

	rec, ok = idx.AtAnchor(NewCellRef(0, 5, 1))
	require.True(t, ok)
	assert.Equal(t, green, rec.Bytes)

	// A cell between the two anchors must not resolve to either.
	_, ok = idx.AtAnchor(NewCellRef(0, 3, 1))
	assert.False(t, ok)
}

func TestBuildIndex_DuplicateAnchorFirstWins(t *testing.T) {
	red := testPNG(t, redPNG)
	green := testPNG(t, greenPNG)

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.AddPictureFromBytes("Sheet1", "C2", &excelize.Picture{Extension: ".png", File: red}))
	require.NoError(t, f.AddPictureFromBytes("Sheet1", "C2", &excelize.Picture{Extension: ".png", File: green}))
	path := filepath.Join(t.TempDir(), "dup.xlsx")
	require.NoError(t, f.SaveAs(path))

	idx, err := BuildIndex(path)
	require.NoError(t, err)

	rec, ok := idx.AtAnchor(NewCellRef(0, 1, 2))
	require.True(t, ok)
	assert.Equal(t, red, rec.Bytes, "first image at the anchor must be retained")
}

func TestBuildIndex_IDMap(t *testing.T) {
	red := testPNG(t, redPNG)
	blue := testPNG(t, bluePNG)
	path := createFloatingWorkbook(t, nil)
	addCellImages(t, path, []wpsImage{
		{ID: "ID_AAA", Bytes: red},
		{ID: "ID_BBB", Bytes: blue},
	})

	idx, err := BuildIndex(path)
	require.NoError(t, err)

	rec, ok := idx.ByID("ID_AAA")
	require.True(t, ok)
	assert.Equal(t, red, rec.Bytes)
	assert.Equal(t, "ID_AAA", rec.ID)
	assert.Nil(t, rec.Anchor)

	rec, ok = idx.ByID("ID_BBB")
	require.True(t, ok)
	assert.Equal(t, blue, rec.Bytes)

	_, ok = idx.ByID("ID_MISSING")
	assert.False(t, ok)

	assert.Equal(t, []string{"ID_AAA", "ID_BBB"}, idx.IDs())
}

func TestBuildIndex_DuplicateIDLastWins(t *testing.T) {
	red := testPNG(t, redPNG)
	blue := testPNG(t, bluePNG)
	path := createFloatingWorkbook(t, nil)
	addCellImages(t, path, []wpsImage{
		{ID: "ID_DUP", Bytes: red},
		{ID: "ID_DUP", Bytes: blue},
	})

	idx, err := BuildIndex(path)
	require.NoError(t, err)

	rec, ok := idx.ByID("ID_DUP")
	require.True(t, ok)
	assert.Equal(t, blue, rec.Bytes, "duplicate IDs overwrite, last wins")
}

func TestBuildIndex_CorruptImageSkipped(t *testing.T) {
	red := testPNG(t, redPNG)
	path := createFloatingWorkbook(t, nil)
	addCellImages(t, path, []wpsImage{
		{ID: "ID_GOOD", Bytes: red},
		{ID: "ID_BAD", Bytes: []byte("definitely not an image")},
	})

	idx, err := BuildIndex(path)
	require.NoError(t, err, "one corrupt image must not abort indexing")

	_, ok := idx.ByID("ID_GOOD")
	assert.True(t, ok)
	_, ok = idx.ByID("ID_BAD")
	assert.False(t, ok)
}

func TestBuildIndex_Idempotent(t *testing.T) {
	red := testPNG(t, redPNG)
	green := testPNG(t, greenPNG)
	path := createFloatingWorkbook(t, map[string][]byte{"D4": green})
	addCellImages(t, path, []wpsImage{{ID: "ID_X", Bytes: red}})

	first, err := BuildIndex(path)
	require.NoError(t, err)
	second, err := BuildIndex(path)
	require.NoError(t, err)

	assert.Equal(t, first.IDs(), second.IDs())
	assert.Equal(t, first.Anchors(), second.Anchors())
	for _, id := range first.IDs() {
		a, _ := first.ByID(id)
		b, _ := second.ByID(id)
		assert.Equal(t, a.Bytes, b.Bytes)
	}
	for _, ref := range first.Anchors() {
		a, _ := first.AtAnchor(ref)
		b, _ := second.AtAnchor(ref)
		assert.Equal(t, a.Bytes, b.Bytes)
	}
}

func TestBuildIndex_SheetIndex(t *testing.T) {
	path := createFloatingWorkbook(t, map[string][]byte{"A1": testPNG(t, redPNG)})

	idx, err := BuildIndex(path)
	require.NoError(t, err)

	i, ok := idx.SheetIndex("Sheet1")
	require.True(t, ok)
	assert.Equal(t, 0, i)
	_, ok = idx.SheetIndex("NoSuchSheet")
	assert.False(t, ok)
}
