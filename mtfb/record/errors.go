package record

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord is matched by every ingestion failure caused by the
// record content itself.
var ErrMalformedRecord = errors.New("malformed record")

// RecordError locates a malformed record. Line is 1-based; Field is the
// wire name of the offending field when known.
type RecordError struct {
	Line  int
	Field string
	Err   error
}

func (e *RecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record at line %d: field %s: %v", e.Line, e.Field, e.Err)
	}
	return fmt.Sprintf("record at line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}
