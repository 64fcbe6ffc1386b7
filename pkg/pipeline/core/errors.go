package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every typed error below unwraps to exactly one of these, so callers
// can branch with errors.Is and still print the failing source, column or row.
var (
	ErrEmptyInput         = errors.New("empty input")
	ErrUnrecognizedSchema = errors.New("unrecognized schema")
	ErrSchemaMismatch     = errors.New("schema mismatch")
	ErrUnknownColumn      = errors.New("unknown column")
	ErrWrongSchema        = errors.New("wrong schema")
	ErrValueParse         = errors.New("value parse error")
	ErrIndexOutOfRange    = errors.New("index out of range")
	ErrRowArity           = errors.New("row arity mismatch")
	ErrDuplicateColumn    = errors.New("duplicate column")
)

// ErrUnknownSchema is the name the deduplicator uses for an unrecognized header.
var ErrUnknownSchema = ErrUnrecognizedSchema

// ColumnError reports a lookup of a column that is not in the header.
type ColumnError struct {
	Column string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Column)
}

func (e *ColumnError) Unwrap() error { return ErrUnknownColumn }

// IndexError reports a row index outside [0, Len).
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("row index %d out of range [0,%d)", e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// RowError reports a structural problem with a raw row or header.
type RowError struct {
	Row    int // data row index, -1 for the header
	Column string
	Want   int
	Got    int
	Err    error
}

func (e *RowError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("header: %v %q", e.Err, e.Column)
	}
	return fmt.Sprintf("row %d: has %d cells, want %d", e.Row, e.Got, e.Want)
}

func (e *RowError) Unwrap() error { return e.Err }

// SchemaError reports a header that matches no known schema.
type SchemaError struct {
	Source  string
	Headers []string
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("unrecognized schema for headers [%s]", strings.Join(e.Headers, ", "))
	if e.Source != "" {
		return e.Source + ": " + msg
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return ErrUnrecognizedSchema }

// MismatchError reports a source whose schema differs from the one established
// for the build.
type MismatchError struct {
	Source string
	Index  int
	Want   string
	Got    string
}

func (e *MismatchError) Error() string {
	src := e.Source
	if src == "" {
		src = fmt.Sprintf("source #%d", e.Index)
	}
	return fmt.Sprintf("%s: cannot merge %s data into %s table", src, e.Got, e.Want)
}

func (e *MismatchError) Unwrap() error { return ErrSchemaMismatch }

// WrongSchemaError reports a query that needs a schema the table does not have.
type WrongSchemaError struct {
	Op   string
	Want string
	Got  string
}

func (e *WrongSchemaError) Error() string {
	return fmt.Sprintf("%s: requires %s data, table is %s", e.Op, e.Want, e.Got)
}

func (e *WrongSchemaError) Unwrap() error { return ErrWrongSchema }

// ValueError reports a cell that failed numeric or date parsing. Key, when
// set, names the row by its identifying cells.
type ValueError struct {
	Column string
	Row    int
	Key    string
	Value  string
	Err    error
}

func (e *ValueError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("row %d (%s) column %q: cannot parse %q: %v", e.Row, e.Key, e.Column, e.Value, e.Err)
	}
	return fmt.Sprintf("row %d column %q: cannot parse %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *ValueError) Unwrap() []error { return []error{ErrValueParse, e.Err} }
