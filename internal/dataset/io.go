package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/pdf"
)

// Load reads one value per line. Blank lines and lines starting with '#' are
// skipped; any value outside the observable range is an error.
func Load(path string, obs *pdf.Observable) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, model.IOError("load dataset", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only dataset.
			_ = cerr
		}
	}()

	var values []float64
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		x, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, model.IOError("load dataset", path, fmt.Errorf("line %d: %w", line, err))
		}
		if !obs.Contains(x) {
			return nil, model.IOError("load dataset", path, fmt.Errorf("line %d: %g outside [%g, %g]", line, x, obs.Min, obs.Max))
		}
		values = append(values, x)
	}
	if err := scanner.Err(); err != nil {
		return nil, model.IOError("load dataset", path, err)
	}
	if len(values) == 0 {
		return nil, model.IOError("load dataset", path, fmt.Errorf("dataset is empty"))
	}
	return wrap(obs, values), nil
}

// Write stores the dataset at path, replacing any existing file atomically.
func (d *Dataset) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return model.IOError("write dataset", path, fmt.Errorf("failed to create dataset dir: %w", err))
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "toys-*.txt")
	if err != nil {
		return model.IOError("write dataset", path, fmt.Errorf("failed to create temp dataset: %w", err))
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	writer := bufio.NewWriter(tmpFile)
	if _, err := fmt.Fprintf(writer, "# %s [%g, %g]\n", d.obs.Name, d.obs.Min, d.obs.Max); err != nil {
		return model.IOError("write dataset", path, err)
	}
	buf := make([]byte, 0, 32)
	for _, x := range d.values {
		buf = strconv.AppendFloat(buf[:0], x, 'g', -1, 64)
		buf = append(buf, '\n')
		if _, err := writer.Write(buf); err != nil {
			return model.IOError("write dataset", path, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return model.IOError("write dataset", path, fmt.Errorf("failed to flush dataset: %w", err))
	}
	if err := tmpFile.Close(); err != nil {
		return model.IOError("write dataset", path, fmt.Errorf("failed to close dataset: %w", err))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return model.IOError("write dataset", path, err)
	}
	return nil
}
