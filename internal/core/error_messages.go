package core

// error_messages.go defines the stage error taxonomy and the operator-facing
// messages attached to each error code.
//
// Every stage failure is a *StageError. It unwraps to both a kind sentinel
// (ErrTransport, ErrTimeout, ErrFormat, ErrSchema, ErrLoad) and the underlying
// cause, so callers can test either with errors.Is / errors.As.
//
// # Error Codes Reference
//
//	XFER001 - Remote extract could not be opened (unreachable share, missing object, permission)
//	XFER002 - Local working copy could not be written (disk full, permission)
//	STAB001 - Extract size did not settle before the stability timeout
//	STAB002 - Stability wait cancelled
//	FMT001  - Extract is empty or its header line is blank
//	FMT002  - Extract could not be read
//	SCH001  - Expected header columns are missing
//	LOAD001 - A data row is malformed (too few fields)
//	LOAD002 - A quantity could not be parsed and rejection is configured
//	LOAD003 - The staging store failed (clear, bulk ingest or trim)

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds, one per stage of the taxonomy.
var (
	ErrTransport = errors.New("transport error")
	ErrTimeout   = errors.New("timeout error")
	ErrFormat    = errors.New("format error")
	ErrSchema    = errors.New("schema error")
	ErrLoad      = errors.New("load error")
)

// ErrRunInProgress is returned when a run is requested while another is in flight.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// StageError is the error returned by every failing stage.
type StageError struct {
	Stage StageName
	Kind  error  // one of the Err* kinds
	Code  string // e.g. SCH001
	Path  string // file the stage was working on
	Err   error  // underlying cause
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Stage))
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Path != "" {
		b.WriteString(" (")
		b.WriteString(e.Path)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stageErr(stage StageName, kind error, code, path string, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Code: code, Path: path, Err: err}
}

// MissingColumnsError lists every expected header column that was not found.
type MissingColumnsError struct {
	Missing  []string
	Observed []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing expected columns: %s (observed header: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Observed, ", "))
}

// RowError reports a data row the loader could not accept.
type RowError struct {
	Line   int    // 1-indexed line number in the extract, header is line 1
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// UserMessage provides operator-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var userMessages = map[string]UserMessage{
	"XFER001": {Message: "The remote extract could not be read", Action: "Check that the share or bucket is reachable and the extract exists", Code: "XFER001"},
	"XFER002": {Message: "The local working copy could not be written", Action: "Check free disk space and permissions on the import directory", Code: "XFER002"},
	"STAB001": {Message: "The extract kept changing size until the timeout", Action: "Check whether the producer is still writing; the next run will retry", Code: "STAB001"},
	"STAB002": {Message: "The stability wait was cancelled", Action: "Re-run the pipeline", Code: "STAB002"},
	"FMT001":  {Message: "The extract is empty or has no header line", Action: "Check the producer's last export", Code: "FMT001"},
	"FMT002":  {Message: "The extract could not be read as text", Action: "Check the local copy for corruption", Code: "FMT002"},
	"SCH001":  {Message: "The extract header is missing expected columns", Action: "Compare the extract header with SCHEMA_EXPECTED_COLUMNS", Code: "SCH001"},
	"LOAD001": {Message: "A data row has too few fields", Action: "Inspect the reported line in the extract", Code: "LOAD001"},
	"LOAD002": {Message: "A quantity value is not a number", Action: "Fix the extract or set LOAD_INVALID_QUANTITY=null", Code: "LOAD002"},
	"LOAD003": {Message: "The staging table could not be loaded", Action: "Check database connectivity; staging is not trustworthy until the next successful run", Code: "LOAD003"},
}

var unknownMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the run log for the original error",
	Code:    "ERR000",
}

// UserMessageFor maps an error to its operator message.
// Errors that are not stage errors map to ERR000.
func UserMessageFor(err error) UserMessage {
	var se *StageError
	if errors.As(err, &se) {
		if msg, ok := userMessages[se.Code]; ok {
			return msg
		}
	}
	return unknownMessage
}

// FormatUserError returns a single line with message, action and code.
func FormatUserError(err error) string {
	msg := UserMessageFor(err)
	return fmt.Sprintf("%s. %s. (Error: %s)", msg.Message, msg.Action, msg.Code)
}
