package exceltopdf

import (
	"errors"
	"fmt"
)

// ErrInvalidFieldSpec reports a contradictory field mapping. It is raised
// at configuration-load time, before any row is read.
var ErrInvalidFieldSpec = errors.New("invalid field spec")

// Stage identifies the pipeline step at which a per-row failure occurred.
type Stage string

const (
	StageMap     Stage = "map"     // resolving field values from the sheet
	StageFill    Stage = "fill"    // writing values into the template
	StageWrite   Stage = "write"   // writing the output document
	StageConvert Stage = "convert" // external conversion of the output
)

// RowError records an isolated per-row failure. Row errors are collected
// into the batch Report and never abort the remaining rows.
type RowError struct {
	Row   int   // 1-based sheet row number
	Stage Stage // pipeline step that failed
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %v", e.Row, e.Stage, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }
