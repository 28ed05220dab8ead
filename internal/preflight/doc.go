// Package preflight provides readiness checks for the external programs,
// services, and filesystem paths a sync run depends on.
//
// These checks run in two contexts:
//   - "podmirror sync" calls RunAll before starting the engine; a failed check
//     aborts the run before the watermark or work directory are touched.
//   - The CLI "podmirror check" and "podmirror status" commands display the
//     individual results.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
