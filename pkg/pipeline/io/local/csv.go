package local

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/jupyter/metrics-builder/pkg/pipeline/core"
)

const utf8BOM = "\ufeff"

// ReadRows reads every CSV record from r. The first record is the header.
//
// Records are not required to share a field count here; arity is checked when
// the rows are turned into a table so the error can name the row.
func ReadRows(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(rows) == 0 && len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], utf8BOM)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// FileSource reads a UTF-8 CSV file from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return s.Path }

func (s FileSource) Load(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return ReadRows(f)
}

// StringSource reads CSV content held in memory.
type StringSource struct {
	Label string
	Data  string
}

func (s StringSource) Name() string {
	if s.Label == "" {
		return "<string>"
	}
	return s.Label
}

func (s StringSource) Load(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadRows(strings.NewReader(s.Data))
}

// ReaderSource reads CSV content from an open stream. The stream is consumed
// by the first Load.
type ReaderSource struct {
	Label  string
	Reader io.Reader
}

func (s ReaderSource) Name() string {
	if s.Label == "" {
		return "<stream>"
	}
	return s.Label
}

func (s ReaderSource) Load(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadRows(s.Reader)
}

// FileSources wraps each path in a FileSource.
func FileSources(paths ...string) []core.Source {
	out := make([]core.Source, len(paths))
	for i, p := range paths {
		out[i] = FileSource{Path: p}
	}
	return out
}

// Sheet is anything with a header and rows, such as a table view or a merged
// metrics table.
type Sheet interface {
	Headers() []string
	Rows() iter.Seq[[]string]
}

// WriteCSV writes the header and every row of s to w.
func WriteCSV(w io.Writer, s Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Headers()); err != nil {
		return err
	}
	for row := range s.Rows() {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile creates (or truncates) path and writes s to it.
func WriteCSVFile(path string, s Sheet) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	if err := WriteCSV(f, s); err != nil {
		return err
	}
	return f.Close()
}
