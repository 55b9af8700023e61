package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxLineSize bounds a single JSONL line.
const maxLineSize = 16 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode parses and schema-checks one JSON object. Failures are
// *RecordError values matching ErrMalformedRecord.
func Decode(data []byte) (RawRecord, error) {
	return decode(0, data)
}

func decode(line int, data []byte) (RawRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return RawRecord{}, &RecordError{Line: line, Field: typeErr.Field, Err: err}
		}
		return RawRecord{}, &RecordError{Line: line, Err: err}
	}
	if err := validate.Struct(&w); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return RawRecord{}, &RecordError{
				Line:  line,
				Field: fieldPath(fe.Namespace()),
				Err:   fmt.Errorf("failed %q check", fe.Tag()),
			}
		}
		return RawRecord{}, &RecordError{Line: line, Err: err}
	}
	return w.toRecord(), nil
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Reader streams records from line-delimited JSON. Blank lines are skipped.
// A malformed line does not stop the reader; the next call continues with
// the following line.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{sc: sc}
}

// Next returns the next record, or io.EOF when the input is exhausted.
func (r *Reader) Next() (RawRecord, error) {
	for r.sc.Scan() {
		r.line++
		data := bytes.TrimSpace(r.sc.Bytes())
		if len(data) == 0 {
			continue
		}
		return decode(r.line, data)
	}
	if err := r.sc.Err(); err != nil {
		return RawRecord{}, fmt.Errorf("read records after line %d: %w", r.line, err)
	}
	return RawRecord{}, io.EOF
}

// Line is the 1-based line number of the last line consumed.
func (r *Reader) Line() int { return r.line }

// ReadAll decodes every record and stops at the first error.
func ReadAll(r io.Reader) ([]RawRecord, error) {
	rd := NewReader(r)
	var out []RawRecord
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// ReadFile loads a whole JSONL split.
func ReadFile(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records %s: %w", path, err)
	}
	defer f.Close()
	recs, err := ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}
