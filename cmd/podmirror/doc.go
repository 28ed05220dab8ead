// Package main hosts the podmirror CLI entrypoint and command graph.
//
// The Cobra command tree wires configuration into the sync engine and exposes
// the maintenance operations around it: inspecting and resetting the
// watermark, rebuilding or publishing the feed out of band, reviewing the run
// ledger, and readiness checks. Heavy lifting lives in internal packages;
// commands here only resolve configuration and render results.
package main
