package service

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection covers auth, network and API failures reaching the data source
	ErrConnection = errors.New("connection error")
	// ErrNotFound means the worksheet does not exist in the spreadsheet
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument rejects a malformed view request
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDataFormat marks a cell that could not be normalized
	ErrDataFormat = errors.New("data format error")
)

// DataFormatError describes one cell replaced by a default during
// normalization. It never aborts the pipeline.
type DataFormatError struct {
	Row    int // 1-based sheet row, header is row 1
	Column string
	Value  string
	Reason string
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("row %d column %q: %s (value %q)", e.Row, e.Column, e.Reason, e.Value)
}

func (e *DataFormatError) Unwrap() error {
	return ErrDataFormat
}

func connectionError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrConnection, op, err)
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
