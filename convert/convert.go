// Package convert defines the boundary to external document converters.
// Conversion is an opaque collaborator: a filled PDF goes in, derived
// artifacts (raster images, a slide file) come out, and any failure is
// isolated to the row that produced the document.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Converter converts one produced document into another format. outDir
// receives the artifacts; the returned paths list them. Implementations
// must honor ctx cancellation.
type Converter interface {
	Convert(ctx context.Context, pdfPath, outDir string) ([]string, error)
}

// CommandConverter runs an external conversion command. Occurrences of
// {pdf}, {out}, and {stem} in Args and Glob are replaced with the input
// path, the output directory, and the input's base name without extension.
type CommandConverter struct {
	Name string   // executable to run
	Args []string // argument templates
	Glob string   // pattern (relative to outDir) collecting the artifacts
}

// NewPNGConverter returns a converter that rasterizes each page to PNG
// via pdftoppm.
func NewPNGConverter() *CommandConverter {
	return &CommandConverter{
		Name: "pdftoppm",
		Args: []string{"-png", "-r", "144", "{pdf}", "{out}/{stem}"},
		Glob: "{stem}*.png",
	}
}

// NewSlideConverter returns a converter that produces a slide file via a
// headless LibreOffice run.
func NewSlideConverter() *CommandConverter {
	return &CommandConverter{
		Name: "soffice",
		Args: []string{"--headless", "--convert-to", "pptx", "--outdir", "{out}", "{pdf}"},
		Glob: "{stem}.pptx",
	}
}

// Convert runs the command and globs the produced artifacts.
func (c *CommandConverter) Convert(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	expand := strings.NewReplacer("{pdf}", pdfPath, "{out}", outDir, "{stem}", stem)

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = expand.Replace(a)
	}

	cmd := exec.CommandContext(ctx, c.Name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("convert %q with %s: %w: %s", filepath.Base(pdfPath), c.Name, err, msg)
		}
		return nil, fmt.Errorf("convert %q with %s: %w", filepath.Base(pdfPath), c.Name, err)
	}

	if c.Glob == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(outDir, expand.Replace(c.Glob)))
	if err != nil {
		return nil, fmt.Errorf("collect artifacts for %q: %w", filepath.Base(pdfPath), err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Multi chains converters; each runs in order and all artifacts are
// collected. The first failure aborts the chain for this document.
func Multi(convs ...Converter) Converter {
	return multiConverter(convs)
}

type multiConverter []Converter

func (m multiConverter) Convert(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	var all []string
	for _, c := range m {
		outs, err := c.Convert(ctx, pdfPath, outDir)
		if err != nil {
			return nil, err
		}
		all = append(all, outs...)
	}
	return all, nil
}

// WithTimeout bounds every Convert call of the wrapped converter with a
// per-call timeout; expiry is reported as the call's error.
func WithTimeout(c Converter, d time.Duration) Converter {
	return timeoutConverter{inner: c, timeout: d}
}

type timeoutConverter struct {
	inner   Converter
	timeout time.Duration
}

func (t timeoutConverter) Convert(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Convert(ctx, pdfPath, outDir)
}
