package core

// sniff.go detects the line-ending and delimiter conventions of an extract.
//
// Detection is a pure function of the file bytes:
//   - Line ending: CRLF if "\r\n" occurs anywhere in the first sniffBytes bytes, else LF.
//   - Delimiter: tab if the header line holds strictly more tabs than commas, else comma.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultSniffBytes is the prefix inspected for the line ending.
const DefaultSniffBytes = 4096

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NewTextReader wraps r so that a leading byte order mark is consumed and
// invalid UTF-8 is replaced with U+FFFD.
func NewTextReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// Sniff inspects path and returns its format. sniffBytes <= 0 uses DefaultSniffBytes.
func Sniff(path string, sniffBytes int) (Format, error) {
	if sniffBytes <= 0 {
		sniffBytes = DefaultSniffBytes
	}

	f, err := os.Open(path)
	if err != nil {
		return Format{}, stageErr(StageSniff, ErrFormat, "FMT002", path, err)
	}
	defer f.Close()

	prefix, err := readPrefix(f, sniffBytes)
	if err != nil {
		return Format{}, stageErr(StageSniff, ErrFormat, "FMT002", path, fmt.Errorf("read prefix: %w", err))
	}
	if len(prefix) == 0 {
		return Format{}, stageErr(StageSniff, ErrFormat, "FMT001", path, errors.New("file is empty"))
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Format{}, stageErr(StageSniff, ErrFormat, "FMT002", path, err)
	}
	header, err := readHeaderLine(f)
	if err != nil {
		return Format{}, stageErr(StageSniff, ErrFormat, "FMT002", path, fmt.Errorf("read header: %w", err))
	}
	if strings.TrimSpace(header) == "" {
		return Format{}, stageErr(StageSniff, ErrFormat, "FMT001", path, errors.New("header line is empty"))
	}

	return Format{
		LineEnding: DetectLineEnding(prefix),
		Delimiter:  DetectDelimiter(header),
		HasBOM:     bytes.HasPrefix(prefix, utf8BOM),
		Header:     header,
	}, nil
}

// DetectLineEnding classifies a raw byte prefix.
func DetectLineEnding(prefix []byte) LineEnding {
	if bytes.Contains(prefix, []byte("\r\n")) {
		return LineEndingCRLF
	}
	return LineEndingLF
}

// DetectDelimiter picks tab only when tabs strictly outnumber commas.
func DetectDelimiter(header string) Delimiter {
	if strings.Count(header, "\t") > strings.Count(header, ",") {
		return DelimiterTab
	}
	return DelimiterComma
}

func readPrefix(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return buf[:read], err
}

// readHeaderLine decodes the first line, dropping the BOM and the terminator.
func readHeaderLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(NewTextReader(r)).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	return strings.TrimPrefix(line, "\ufeff"), nil
}
