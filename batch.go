// Package exceltopdf fills PDF form templates from Excel worksheet rows.
// Each data row produces one document: text fields come from column
// values or expressions, image fields from embedded worksheet images
// resolved by the xlimg package. Row failures are collected per row and
// never abort the batch.
package exceltopdf

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/yincangshiwei/ExcelToPDFTemplate/convert"
	"github.com/yincangshiwei/ExcelToPDFTemplate/pdffill"
	"github.com/yincangshiwei/ExcelToPDFTemplate/xlimg"
)

// Filler renders one document from resolved row values.
type Filler interface {
	Fill(text map[string]string, images map[string][]byte) (Document, error)
}

// Document is a rendered document ready to be written out.
type Document interface {
	WriteFile(path string) error
}

// pdfFiller adapts a pdffill template to the Filler interface.
type pdfFiller struct {
	tpl *pdffill.Template
}

func (f pdfFiller) Fill(text map[string]string, images map[string][]byte) (Document, error) {
	return pdffill.Fill(f.tpl, text, images)
}

// Options configures a Batch. Zero values fall back to defaults at run
// time: DefaultPreset, slog.Default, no converter, the PDF filler built
// from the run's template path.
type Options struct {
	Preset    *Preset
	Converter convert.Converter
	Logger    *slog.Logger
	Filler    Filler
}

// Option mutates Options.
type Option func(*Options)

// WithPreset sets the batch configuration.
func WithPreset(p *Preset) Option {
	return func(o *Options) { o.Preset = p }
}

// WithConverter sets a post-write converter run on each output document.
func WithConverter(c convert.Converter) Option {
	return func(o *Options) { o.Converter = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithFiller replaces the PDF template filler. When set, the template
// path passed to Run is ignored.
func WithFiller(f Filler) Option {
	return func(o *Options) { o.Filler = f }
}

// Batch processes one worksheet into a set of filled documents.
type Batch struct {
	opts Options
}

// NewBatch creates a Batch from the given options.
func NewBatch(opts ...Option) *Batch {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.Preset == nil {
		o.Preset = DefaultPreset()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Batch{opts: o}
}

// Report summarizes one batch run.
type Report struct {
	Total     int // data rows processed
	Succeeded int // rows whose document was written

	Outputs   []string   // written document paths
	Converted []string   // paths produced by the converter
	Errors    []RowError // per-row failures, in row order
}

// Summary renders the report's one-line outcome.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d of %d rows succeeded", r.Succeeded, r.Total)
}

// Run processes every data row of the configured sheet. Configuration,
// template, and workbook problems are fatal and return an error with a
// nil report. Once row processing starts, failures are recorded as
// RowErrors in the report and the batch continues with the next row.
// Processing stops at the first row whose required text columns are all
// empty, or when ctx is done.
func (b *Batch) Run(ctx context.Context, excelPath, templatePath, outputDir string) (*Report, error) {
	p := b.opts.Preset
	if err := p.Validate(); err != nil {
		return nil, err
	}

	filler := b.opts.Filler
	if filler == nil {
		tpl, err := pdffill.LoadTemplate(templatePath)
		if err != nil {
			return nil, err
		}
		filler = pdfFiller{tpl: tpl}
	}

	idx, err := xlimg.BuildIndex(excelPath, xlimg.WithLogger(b.opts.Logger))
	if err != nil {
		return nil, err
	}
	sheet, err := OpenSheet(excelPath, p.SheetName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %q: %w", outputDir, err)
	}

	specs := p.Specs()
	required := requiredColumns(specs)
	mapper := NewFieldMapper(p.ColSeparator)
	report := &Report{}

	filenameCol := -1
	if p.FilenameColumn != "" {
		filenameCol, _ = xlimg.NameToCol(p.FilenameColumn)
	}

	for row := p.StartRow - 1; row <= sheet.MaxRow(); row++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if sheet.RowEmpty(row, required) {
			break
		}
		report.Total++

		if err := b.processRow(ctx, sheet, row, specs, idx, mapper, filler, filenameCol, outputDir, report); err != nil {
			report.Errors = append(report.Errors, *err)
			b.opts.Logger.Warn("row failed",
				slog.Int("row", err.Row),
				slog.String("stage", string(err.Stage)),
				slog.Any("error", err.Err))
		}
	}

	b.opts.Logger.Info("batch finished",
		slog.Int("total", report.Total),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", len(report.Errors)))
	return report, nil
}

func (b *Batch) processRow(ctx context.Context, sheet *Sheet, row int, specs []FieldSpec,
	idx *xlimg.ImageIndex, mapper *FieldMapper, filler Filler, filenameCol int,
	outputDir string, report *Report) *RowError {

	values, err := mapper.MapRow(sheet, row, specs, idx)
	if err != nil {
		return &RowError{Row: row + 1, Stage: StageMap, Err: err}
	}

	text := make(map[string]string)
	images := make(map[string][]byte)
	for name, v := range values {
		switch v.Kind {
		case TextValue:
			text[name] = v.Text
		case ImageValue:
			images[name] = v.Image.Bytes
		}
	}

	doc, err := filler.Fill(text, images)
	if err != nil {
		return &RowError{Row: row + 1, Stage: StageFill, Err: err}
	}

	outPath := filepath.Join(outputDir, b.outputName(sheet, row, filenameCol))
	if err := doc.WriteFile(outPath); err != nil {
		return &RowError{Row: row + 1, Stage: StageWrite, Err: err}
	}
	report.Outputs = append(report.Outputs, outPath)
	report.Succeeded++

	if b.opts.Converter != nil {
		produced, err := b.opts.Converter.Convert(ctx, outPath, outputDir)
		report.Converted = append(report.Converted, produced...)
		if err != nil {
			return &RowError{Row: row + 1, Stage: StageConvert, Err: err}
		}
	}
	return nil
}

// unsafeFilenameChars are replaced to keep output names portable.
var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// outputName picks the document file name for a row: the filename
// column's value when configured and non-empty, otherwise the 1-based
// row number with a short random suffix.
func (b *Batch) outputName(sheet *Sheet, row, filenameCol int) string {
	if filenameCol >= 0 {
		if name := strings.TrimSpace(sheet.CellValue(row, filenameCol)); name != "" {
			return unsafeFilenameChars.ReplaceAllString(name, "_") + ".pdf"
		}
	}
	return fmt.Sprintf("%d-%s.pdf", row+1, uuid.NewString()[:8])
}
