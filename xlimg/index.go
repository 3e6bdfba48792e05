// Package xlimg resolves images referenced by spreadsheet cells.
//
// An xlsx workbook can carry images through two incompatible conventions:
// ID-addressed images referenced from cell formulas via the WPS DISPIMG
// function (stored in the xl/cellimages.xml part), and position-addressed
// floating images anchored to a cell in the drawing layer. ImageIndex parses
// the workbook container once and builds an immutable lookup for each
// convention; Resolve picks between them with a fixed priority and never
// guesses.
package xlimg

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrMalformedWorkbook reports an unreadable or structurally invalid
// workbook archive. It is fatal: no indexing is attempted past it.
var ErrMalformedWorkbook = errors.New("malformed workbook archive")

// ImageRecord holds one resolved image. Records are owned by the ImageIndex
// that produced them and stay valid for its lifetime.
type ImageRecord struct {
	ID     string   // DISPIMG identifier; empty for position-addressed images
	Bytes  []byte   // raw image bytes as stored in the archive
	Ext    string   // sniffed format name ("png", "jpeg", ...)
	Anchor *CellRef // anchor cell for position-addressed images, else nil
}

// ImageIndex holds the two image lookups for one workbook. It is built
// exactly once per file and is read-only afterwards, so lookups are safe
// for concurrent use.
type ImageIndex struct {
	ids     map[string]ImageRecord
	anchors map[CellRef]ImageRecord
	sheets  map[string]int // sheet name → zero-based index
}

type indexOptions struct {
	logger *slog.Logger
}

// IndexOption configures BuildIndex.
type IndexOption func(*indexOptions)

// WithLogger sets the logger used for per-image warnings during indexing.
func WithLogger(l *slog.Logger) IndexOption {
	return func(o *indexOptions) { o.logger = l }
}

// BuildIndex parses the workbook archive at path and builds both image
// lookups in a single pass. The archive is released before returning.
//
// A single undecodable image is skipped with a warning rather than failing
// the build; only an unreadable archive is fatal (ErrMalformedWorkbook).
// Building twice from an unmodified file yields identical lookups.
func BuildIndex(filePath string, opts ...IndexOption) (*ImageIndex, error) {
	o := &indexOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("open workbook %q: %w (%v)", filePath, ErrMalformedWorkbook, err)
	}
	defer zr.Close()

	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[f.Name] = f
	}
	if _, ok := parts["xl/workbook.xml"]; !ok {
		return nil, fmt.Errorf("workbook %q: missing xl/workbook.xml: %w", filePath, ErrMalformedWorkbook)
	}

	idx := &ImageIndex{
		ids:     make(map[string]ImageRecord),
		anchors: make(map[CellRef]ImageRecord),
		sheets:  make(map[string]int),
	}

	if err := idx.buildIDMap(parts, o.logger); err != nil {
		return nil, err
	}
	if err := idx.buildAnchorMap(parts, o.logger); err != nil {
		return nil, err
	}
	return idx, nil
}

// ByID returns the ID-addressed image for a DISPIMG identifier.
func (x *ImageIndex) ByID(id string) (ImageRecord, bool) {
	rec, ok := x.ids[id]
	return rec, ok
}

// AtAnchor returns the floating image anchored exactly at ref.
func (x *ImageIndex) AtAnchor(ref CellRef) (ImageRecord, bool) {
	rec, ok := x.anchors[ref]
	return rec, ok
}

// SheetIndex returns the zero-based index for a sheet name.
func (x *ImageIndex) SheetIndex(name string) (int, bool) {
	i, ok := x.sheets[name]
	return i, ok
}

// IDs returns all indexed DISPIMG identifiers, sorted.
func (x *ImageIndex) IDs() []string {
	ids := make([]string, 0, len(x.ids))
	for id := range x.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Anchors returns all indexed floating-image anchors, sorted by sheet,
// row, then column.
func (x *ImageIndex) Anchors() []CellRef {
	refs := make([]CellRef, 0, len(x.anchors))
	for ref := range x.anchors {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Sheet != refs[j].Sheet {
			return refs[i].Sheet < refs[j].Sheet
		}
		if refs[i].Row != refs[j].Row {
			return refs[i].Row < refs[j].Row
		}
		return refs[i].Col < refs[j].Col
	})
	return refs
}

// relationship part structures (xl/_rels/*.rels)

type relationshipsXML struct {
	Rels []relationshipXML `xml:"Relationship"`
}

type relationshipXML struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

func (r relationshipsXML) byID() map[string]string {
	m := make(map[string]string, len(r.Rels))
	for _, rel := range r.Rels {
		m[rel.ID] = rel.Target
	}
	return m
}

type workbookXML struct {
	Sheets struct {
		Sheet []struct {
			Name string `xml:"name,attr"`
			RID  string `xml:"id,attr"`
		} `xml:"sheet"`
	} `xml:"sheets"`
}

// drawing part structures (xl/drawings/drawingN.xml, xl/cellimages.xml)

type drawingXML struct {
	TwoCell []anchorXML `xml:"twoCellAnchor"`
	OneCell []anchorXML `xml:"oneCellAnchor"`
}

type anchorXML struct {
	From anchorPosXML `xml:"from"`
	Pic  *picXML      `xml:"pic"`
}

type anchorPosXML struct {
	Col    int `xml:"col"`
	ColOff int `xml:"colOff"`
	Row    int `xml:"row"`
	RowOff int `xml:"rowOff"`
}

type picXML struct {
	NvPicPr struct {
		CNvPr struct {
			Name string `xml:"name,attr"`
		} `xml:"cNvPr"`
	} `xml:"nvPicPr"`
	BlipFill struct {
		Blip struct {
			Embed string `xml:"embed,attr"`
		} `xml:"blip"`
	} `xml:"blipFill"`
}

type cellImagesXML struct {
	CellImage []struct {
		Pic picXML `xml:"pic"`
	} `xml:"cellImage"`
}

// buildIDMap scans the WPS cellimages manifest, associating each DISPIMG
// identifier with its media bytes. IDs are generated unique by the
// authoring tool; a duplicate overwrites (last wins).
func (x *ImageIndex) buildIDMap(parts map[string]*zip.File, logger *slog.Logger) error {
	ciPart, ok := parts["xl/cellimages.xml"]
	relPart, relOK := parts["xl/_rels/cellimages.xml.rels"]
	if !ok || !relOK {
		return nil // no ID-addressed images in this workbook
	}

	var ci cellImagesXML
	if err := decodePart(ciPart, &ci); err != nil {
		return fmt.Errorf("parse xl/cellimages.xml: %w: %w", ErrMalformedWorkbook, err)
	}
	var rels relationshipsXML
	if err := decodePart(relPart, &rels); err != nil {
		return fmt.Errorf("parse cellimages rels: %w: %w", ErrMalformedWorkbook, err)
	}
	targets := rels.byID()

	for _, img := range ci.CellImage {
		id := img.Pic.NvPicPr.CNvPr.Name
		rid := img.Pic.BlipFill.Blip.Embed
		if id == "" || rid == "" {
			continue
		}
		target, ok := targets[rid]
		if !ok {
			logger.Warn("cellimage relationship missing", "id", id, "rid", rid)
			continue
		}
		rec, err := readImage(parts, resolveTarget("xl", target))
		if err != nil {
			logger.Warn("skipping undecodable embedded image", "id", id, "err", err)
			continue
		}
		rec.ID = id
		x.ids[id] = rec
	}
	return nil
}

// buildAnchorMap walks each sheet's drawing part and indexes floating
// images whose anchor sits exactly on a cell corner (zero positional
// offset). Anchors with fractional offsets are rejected, and only the
// first image at any given cell is retained.
func (x *ImageIndex) buildAnchorMap(parts map[string]*zip.File, logger *slog.Logger) error {
	var wb workbookXML
	if err := decodePart(parts["xl/workbook.xml"], &wb); err != nil {
		return fmt.Errorf("parse xl/workbook.xml: %w: %w", ErrMalformedWorkbook, err)
	}
	wbRelPart, ok := parts["xl/_rels/workbook.xml.rels"]
	if !ok {
		return fmt.Errorf("missing workbook rels: %w", ErrMalformedWorkbook)
	}
	var wbRels relationshipsXML
	if err := decodePart(wbRelPart, &wbRels); err != nil {
		return fmt.Errorf("parse workbook rels: %w: %w", ErrMalformedWorkbook, err)
	}
	sheetTargets := wbRels.byID()

	for i, sheet := range wb.Sheets.Sheet {
		x.sheets[sheet.Name] = i

		target, ok := sheetTargets[sheet.RID]
		if !ok {
			continue
		}
		sheetPart := resolveTarget("xl", target)
		if err := x.indexSheetDrawing(parts, sheetPart, i, logger); err != nil {
			return err
		}
	}
	return nil
}

// indexSheetDrawing indexes the floating images of one worksheet part.
func (x *ImageIndex) indexSheetDrawing(parts map[string]*zip.File, sheetPart string, sheetIdx int, logger *slog.Logger) error {
	relsName := path.Join(path.Dir(sheetPart), "_rels", path.Base(sheetPart)+".rels")
	relPart, ok := parts[relsName]
	if !ok {
		return nil // sheet has no relationships, hence no drawing
	}
	var rels relationshipsXML
	if err := decodePart(relPart, &rels); err != nil {
		return fmt.Errorf("parse %s: %w: %w", relsName, ErrMalformedWorkbook, err)
	}

	var drawingPart string
	for _, rel := range rels.Rels {
		if strings.HasSuffix(rel.Type, "/drawing") {
			drawingPart = resolveTarget(path.Dir(sheetPart), rel.Target)
			break
		}
	}
	if drawingPart == "" {
		return nil
	}
	dp, ok := parts[drawingPart]
	if !ok {
		return nil
	}

	var drawing drawingXML
	if err := decodePart(dp, &drawing); err != nil {
		return fmt.Errorf("parse %s: %w: %w", drawingPart, ErrMalformedWorkbook, err)
	}

	drawRelsName := path.Join(path.Dir(drawingPart), "_rels", path.Base(drawingPart)+".rels")
	embeds := map[string]string{}
	if drp, ok := parts[drawRelsName]; ok {
		var drawRels relationshipsXML
		if err := decodePart(drp, &drawRels); err != nil {
			return fmt.Errorf("parse %s: %w: %w", drawRelsName, ErrMalformedWorkbook, err)
		}
		embeds = drawRels.byID()
	}

	anchors := append(append([]anchorXML(nil), drawing.TwoCell...), drawing.OneCell...)
	for _, a := range anchors {
		if a.Pic == nil {
			continue
		}
		if a.From.ColOff != 0 || a.From.RowOff != 0 {
			continue // not aligned to a cell corner, not indexable by position
		}
		ref := CellRef{Sheet: sheetIdx, Row: a.From.Row, Col: a.From.Col}
		if _, taken := x.anchors[ref]; taken {
			// Known limitation: one image per anchor cell, first wins.
			logger.Warn("duplicate floating-image anchor, keeping first", "cell", ref.String())
			continue
		}
		target, ok := embeds[a.Pic.BlipFill.Blip.Embed]
		if !ok {
			continue
		}
		rec, err := readImage(parts, resolveTarget(path.Dir(drawingPart), target))
		if err != nil {
			logger.Warn("skipping undecodable floating image", "cell", ref.String(), "err", err)
			continue
		}
		anchor := ref
		rec.Anchor = &anchor
		x.anchors[ref] = rec
	}
	return nil
}

// readImage reads an archive part and sniffs its raster format.
func readImage(parts map[string]*zip.File, name string) (ImageRecord, error) {
	p, ok := parts[name]
	if !ok {
		return ImageRecord{}, fmt.Errorf("missing media part %q", name)
	}
	rc, err := p.Open()
	if err != nil {
		return ImageRecord{}, fmt.Errorf("open media part %q: %w", name, err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return ImageRecord{}, fmt.Errorf("read media part %q: %w", name, err)
	}
	_, ext, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return ImageRecord{}, fmt.Errorf("decode media part %q: %w", name, err)
	}
	return ImageRecord{Bytes: b, Ext: ext}, nil
}

func decodePart(p *zip.File, v any) error {
	rc, err := p.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

// resolveTarget resolves a relationship target against the directory of
// the part that owns the relationship ("media/image1.png" from xl/,
// "../media/image1.png" from xl/drawings/).
func resolveTarget(baseDir, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return path.Clean(path.Join(baseDir, target))
}
