package pdffill

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Document is one rendered PDF ready to be written out.
type Document struct {
	pdf *fpdf.Fpdf
}

// Write streams the document to w.
func (d *Document) Write(w io.Writer) error {
	return d.pdf.Output(w)
}

// WriteFile writes the document to path, creating parent directories.
func (d *Document) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	return d.pdf.OutputFileAndClose(path)
}

// Fill renders one document from the template and the per-row values.
// Text fields draw their value clipped to the field box; image fields
// scale the image to fit the box, preserving aspect ratio and centering
// it. Value keys with no matching template field are ignored, and fields
// with no value stay blank.
func Fill(tpl *Template, text map[string]string, images map[string][]byte) (*Document, error) {
	pdf := fpdf.New(tpl.Orientation, "mm", tpl.PageSize, "")
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for page := 1; page <= tpl.Pages; page++ {
		pdf.AddPage()
		for _, f := range tpl.Fields {
			if f.Page != page {
				continue
			}
			switch f.Kind {
			case TextField:
				val, ok := text[f.Name]
				if !ok || val == "" {
					continue
				}
				drawText(pdf, f, tr(val))
			case ImageField:
				data, ok := images[f.Name]
				if !ok || len(data) == 0 {
					continue
				}
				if err := drawImage(pdf, f, data); err != nil {
					return nil, fmt.Errorf("field %q: %w", f.Name, err)
				}
			}
		}
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}
	return &Document{pdf: pdf}, nil
}

func drawText(pdf *fpdf.Fpdf, f Field, val string) {
	font := f.Font
	if font == "" {
		font = "Helvetica"
	}
	size := f.Size
	if size == 0 {
		size = 10
	}
	align := f.Align
	if align == "" {
		align = "L"
	}
	pdf.SetFont(font, "", size)
	pdf.ClipRect(f.X, f.Y, f.W, f.H, false)
	pdf.SetXY(f.X, f.Y)
	pdf.CellFormat(f.W, f.H, val, "", 0, align+"M", false, 0, "")
	pdf.ClipEnd()
}

var imageTypes = map[string]string{
	"png":  "PNG",
	"jpeg": "JPG",
	"gif":  "GIF",
}

func drawImage(pdf *fpdf.Fpdf, f Field, data []byte) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	imgType, ok := imageTypes[format]
	if !ok {
		return fmt.Errorf("unsupported image format %q", format)
	}
	w, h, dx, dy := fitRect(f.W, f.H, float64(cfg.Width), float64(cfg.Height))

	name := fmt.Sprintf("%s-%d", f.Name, f.Page)
	opts := fpdf.ImageOptions{ImageType: imgType, ReadDpi: false}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	pdf.ImageOptions(name, f.X+dx, f.Y+dy, w, h, false, opts, 0, "")
	return nil
}

// fitRect scales an imgW x imgH image to fit inside a boxW x boxH box
// without distortion, returning the placed size and the offset that
// centers it in the box.
func fitRect(boxW, boxH, imgW, imgH float64) (w, h, dx, dy float64) {
	if imgW <= 0 || imgH <= 0 {
		return 0, 0, 0, 0
	}
	scale := math.Min(boxW/imgW, boxH/imgH)
	w = imgW * scale
	h = imgH * scale
	dx = (boxW - w) / 2
	dy = (boxH - h) / 2
	return w, h, dx, dy
}
