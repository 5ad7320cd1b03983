// Package core provides the ingestion logic for the on-hand inventory feed.
//
// An external ERP job drops a delimited extract (RPT_OnHand) on a share. This
// package copies it locally, waits for it to stop growing, works out how it is
// delimited, checks its header and bulk-loads it into a staging table. It is
// independent of any CLI or HTTP layer and can be driven by tests with a fake
// StagingStore.
//
// # Stages
//
// A [Pipeline] runs five stages in order, each hard-depending on the previous:
//
//  1. Transport: [Stager] copies the remote extract to the local working path.
//  2. Stability: [StabilityDetector] polls the size until two consecutive
//     samples match, or the timeout elapses.
//  3. Sniff: [Sniff] reports the line ending and delimiter.
//  4. Schema: [ValidateHeader] checks that every expected column is present.
//  5. Load: [Loader] parses the rows and hands them to a [StagingStore], which
//     clears the staging table, ingests the rows and trims text columns.
//
// The first failure ends the run; the staging table is only trustworthy after
// a run whose load stage succeeded.
//
// # Quantities
//
// The qty column is coerced by [ParseQuantity]: thousands separators are
// removed, empty text becomes NULL and the value is rounded to three decimals.
// Text that still is not a number follows the configured [QuantityMode].
//
// # Error Handling
//
// Every stage failure is a [*StageError] carrying a kind sentinel and a code:
//
//   - XFER001-XFER002: Transport errors (remote unreadable, local copy failed)
//   - STAB001-STAB002: Timeout errors (size never settled, wait cancelled)
//   - FMT001-FMT002: Format errors (empty extract, unreadable extract)
//   - SCH001: Schema errors (missing columns, all of them listed)
//   - LOAD001-LOAD003: Load errors (malformed row, bad quantity, store failure)
//
// [UserMessageFor] maps an error to operator guidance.
//
// # Runs
//
// Each run produces a [RunRecord] that is handed to every configured
// [RunRecorder] and to [Metrics]. [Scheduler] repeats runs on an interval
// without ever overlapping them.
package core
