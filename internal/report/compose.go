package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/verte-zerg/massfit/internal/model"
)

// DefaultOutput is where the figure goes when no path is given.
const DefaultOutput = "RooFit_example.pdf"

const (
	canvasWidth  = 20 * vg.Centimeter
	canvasHeight = 20 * vg.Centimeter
	pullShare    = 0.35
)

// Compose draws main in the upper 65% and pull in the lower 35% of one canvas
// and writes it to path. The format follows the extension; no extension means
// PDF.
func Compose(main, pull *Frame, path string) error {
	if path == "" {
		path = DefaultOutput
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = "pdf"
	}
	c, err := draw.NewFormattedCanvas(canvasWidth, canvasHeight, format)
	if err != nil {
		return model.IOError("compose figure", path, err)
	}

	mp, err := main.Plot()
	if err != nil {
		return fmt.Errorf("draw main frame: %w", err)
	}
	pp, err := pull.Plot()
	if err != nil {
		return fmt.Errorf("draw pull frame: %w", err)
	}
	dc := draw.New(c)
	split := vg.Length(pullShare * float64(canvasHeight))
	mp.Draw(draw.Crop(dc, 0, 0, split, 0))
	pp.Draw(draw.Crop(dc, 0, 0, 0, split-canvasHeight))

	if err := writeCanvas(path, c); err != nil {
		return model.IOError("write figure", path, err)
	}
	return nil
}

func writeCanvas(path string, c vg.CanvasWriterTo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "figure-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("failed to create temp figure: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	writer := bufio.NewWriter(tmpFile)
	if _, err := c.WriteTo(writer); err != nil {
		return fmt.Errorf("failed to encode figure: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush figure: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close figure: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to write figure: %w", err)
	}
	return nil
}
