package report

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

func writeParquet[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	w := parquet.NewGenericWriter[T](f)
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return f.Close()
}
