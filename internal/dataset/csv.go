package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"ecommate/internal/domain"
)

var (
	// ErrDatasetNotFound is returned when the source table does not exist.
	ErrDatasetNotFound = errors.New("source dataset not found")
	// ErrMissingColumn is returned when the header lacks a required column.
	ErrMissingColumn = errors.New("source dataset missing column")
)

// LoadCSV reads (content, style) rows from a CSV file with a header line.
// Rows with blank content are skipped.
func LoadCSV(path, contentCol, styleCol string) ([]domain.SourceRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrDatasetNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	rows, err := Read(f, contentCol, styleCol)
	return rows, errors.Wrapf(err, "read %s", path)
}

// Read parses CSV rows from r.
func Read(r io.Reader, contentCol, styleCol string) ([]domain.SourceRow, error) {
	if contentCol == "" {
		contentCol = "content"
	}
	if styleCol == "" {
		styleCol = "style"
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.Wrapf(ErrMissingColumn, "empty file, want %q and %q", contentCol, styleCol)
	}
	if err != nil {
		return nil, err
	}
	ci, si := -1, -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		switch h {
		case contentCol:
			ci = i
		case styleCol:
			si = i
		}
	}
	if ci < 0 {
		return nil, errors.Wrapf(ErrMissingColumn, "%q", contentCol)
	}
	if si < 0 {
		return nil, errors.Wrapf(ErrMissingColumn, "%q", styleCol)
	}

	var rows []domain.SourceRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := domain.SourceRow{Content: field(rec, ci), Style: field(rec, si)}
		if row.Content == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
