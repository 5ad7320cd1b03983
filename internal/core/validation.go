package core

import "strings"

// ParseHeader splits a header line on the delimiter and trims each name.
func ParseHeader(header string, delim Delimiter) []string {
	header = strings.TrimPrefix(header, "\ufeff")
	cols := strings.Split(header, string(rune(delim)))
	for i, c := range cols {
		cols[i] = strings.TrimSpace(c)
	}
	return cols
}

// ValidateHeader checks that every expected column appears in the header by
// exact name. Extra columns are ignored. On failure the error lists every
// missing column in expected order, not just the first.
func ValidateHeader(path string, f Format, expected []string) ([]string, error) {
	observed := ParseHeader(f.Header, f.Delimiter)

	present := make(map[string]bool, len(observed))
	for _, c := range observed {
		present[c] = true
	}

	var missing []string
	for _, c := range expected {
		if !present[c] {
			missing = append(missing, c)
		}
	}

	if len(missing) > 0 {
		return observed, stageErr(StageSchema, ErrSchema, "SCH001", path,
			&MissingColumnsError{Missing: missing, Observed: observed})
	}
	return observed, nil
}
