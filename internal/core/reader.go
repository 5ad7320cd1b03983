package core

// reader.go splits an extract into records.
//
// Comma extracts are parsed as quoted CSV: fields may be wrapped in '"' and a
// doubled quote escapes a quote. Tab extracts have no quoting or escaping at
// all; records end at the detected terminator and fields split on every tab.
// In both cases the header record is skipped, the BOM is consumed and lines
// that are empty or hold only spaces are ignored.

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// MaxLineBytes bounds a single tab-delimited record.
const MaxLineBytes = 4 << 20

// RowReader yields the data records of an extract together with their line numbers.
type RowReader struct {
	csv  *csv.Reader
	scan *bufio.Scanner

	line       int // line of the last record returned, header is line 1
	headerDone bool
}

// NewRowReader reads r according to f. The first record is treated as the header.
func NewRowReader(r io.Reader, f Format) *RowReader {
	text := NewTextReader(r)
	rr := &RowReader{}

	if f.Delimiter == DelimiterTab {
		s := bufio.NewScanner(text)
		s.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
		s.Split(splitOn([]byte(string(f.LineEnding))))
		rr.scan = s
		return rr
	}

	c := csv.NewReader(text)
	c.Comma = rune(f.Delimiter)
	c.FieldsPerRecord = -1
	c.LazyQuotes = true
	rr.csv = c
	return rr
}

// Read returns the next data record and its 1-indexed line number.
// It returns io.EOF once the extract is exhausted.
func (r *RowReader) Read() ([]string, int, error) {
	for {
		fields, err := r.next()
		if err != nil {
			return nil, r.line, err
		}
		if !r.headerDone {
			r.headerDone = true
			continue
		}
		return fields, r.line, nil
	}
}

func (r *RowReader) next() ([]string, error) {
	if r.csv != nil {
		for {
			rec, err := r.csv.Read()
			if err != nil {
				var pe *csv.ParseError
				if errors.As(err, &pe) {
					r.line = pe.StartLine
				}
				return nil, err
			}
			r.line, _ = r.csv.FieldPos(0)
			if len(rec) == 1 && isBlank(rec[0]) {
				continue
			}
			return rec, nil
		}
	}

	for r.scan.Scan() {
		r.line++
		text := r.scan.Text()
		if isBlank(text) {
			continue
		}
		return strings.Split(text, "\t"), nil
	}
	if err := r.scan.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// isBlank reports whether a line holds nothing but spaces. Such lines are
// skipped like empty ones.
func isBlank(s string) bool {
	return strings.Trim(s, " \r") == ""
}

// splitOn is a bufio.SplitFunc that ends tokens at the exact terminator sep.
// A final unterminated record is still returned.
func splitOn(sep []byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.Index(data, sep); i >= 0 {
			return i + len(sep), data[:i], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
