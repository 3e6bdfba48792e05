package xlimg

import "regexp"

// ImageSource reports which lookup resolved a cell's image. The priority
// order is fixed: ID-addressed first, then exact position, then absent.
type ImageSource int

const (
	SourceAbsent   ImageSource = iota // no image resolves to this cell
	SourceID                          // matched a DISPIMG identifier
	SourcePosition                    // matched a floating-image anchor exactly
)

// String returns a human-readable name for the ImageSource.
func (s ImageSource) String() string {
	switch s {
	case SourceID:
		return "id"
	case SourcePosition:
		return "position"
	default:
		return "absent"
	}
}

// dispimgPattern matches the DISPIMG cell function, optionally namespaced:
// =DISPIMG("ID_xxx",1) or =_xlfn.DISPIMG("ID_xxx",1).
var dispimgPattern = regexp.MustCompile(`=(?:_xlfn\.)?DISPIMG\("([^"]+)"\s*,\s*\d+\s*\)`)

// DispimgID extracts the image identifier from a DISPIMG cell formula.
// It returns ("", false) when the text does not contain the function.
func DispimgID(cellText string) (string, bool) {
	m := dispimgPattern.FindStringSubmatch(cellText)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Resolve resolves one cell to an image with a fixed priority:
//
//  1. If cellText matches the DISPIMG pattern and the identifier is
//     indexed, the ID-addressed image wins regardless of position.
//  2. Otherwise the cell's reference is looked up as an exact anchor;
//     a one-cell offset is a miss, never a near match.
//  3. Otherwise the cell has no image.
//
// There is deliberately no fallback that scans unrelated images in the
// workbook: the two authoring conventions must not cross-contaminate.
// Resolve is a pure function of its inputs.
func Resolve(cellText string, ref CellRef, idx *ImageIndex) (ImageRecord, ImageSource) {
	if id, ok := DispimgID(cellText); ok {
		if rec, found := idx.ByID(id); found {
			return rec, SourceID
		}
	}
	if rec, found := idx.AtAnchor(ref); found {
		return rec, SourcePosition
	}
	return ImageRecord{}, SourceAbsent
}
