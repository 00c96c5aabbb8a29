// Package core is the ingestion engine for delivery-platform CSV exports.
//
// It contains the domain logic independent of storage and transport: the
// pgx store, the CLI and the HTTP API all plug in through the [Store]
// interface and the [Service] entry point.
//
// # Pipeline
//
// [Service.ProcessFile] drives one file through these steps:
//
//  1. Validate the path (exists, regular, .csv, non-empty, within size limit)
//  2. Hash the content (SHA-256, streamed)
//  3. Read the header row and resolve the integration, either by name or
//     by scoring header overlap ([Resolver])
//  4. Skip the file if the dedup ledger already has its hash
//  5. Create a pending job
//  6. Stream rows through the [Mapper] and persist them, all in one
//     transaction together with the ledger entry
//  7. Mark the job completed or failed and notify the [Observer]
//
// [Service.Preview] runs the same steps up to the mapping of rows but writes
// nothing, for `process --dry-run` and POST /api/jobs/preview.
//
// # Integrations and formats
//
// An [Integration] carries an ordered [FieldMapping] of source column to
// [FieldSpec]. Each spec either names a transform from the transform
// package or falls back to built-in coercion by type. The integration's
// sourceFormat selects a [Format], a closed set of variants that apply the
// cross-field fixup and derive the order status:
//
//   - order_history: upstream status, else cancelling party, else completion flag
//   - aggregate_counts: customer cancellations, partner cancellations, good/bad
//   - segment_report: positive prep time is ACCEPTED, else COMPLETED
//   - generic: always ACCEPTED
//
// # Row policy
//
// A row with an empty required field, or an order row without
// platform_order_id, is skipped and counted. A transform failure, a CSV
// parse failure or a store failure aborts the whole file and rolls back
// every row written so far.
//
// # Error Handling
//
// Technical errors are mapped to operator-facing messages using [MapError].
// Each category has a code family: VAL, FILE, ING and DB.
package core
