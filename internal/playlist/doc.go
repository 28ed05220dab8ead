// Package playlist models upstream playlist snapshots and selects the entries
// a sync run should process.
//
// A Source returns the playlist as observed right now. Positions are the only
// ordering signal guaranteed consistent within one snapshot, so Select compares
// them against the persisted watermark: entries strictly above it are
// candidates, processed newest first and truncated to the configured batch
// size. Title-derived episode codes are used for naming only, never for the
// watermark.
//
// Implementations live in the youtube (Data API v3) and ytdlp (flat playlist
// listing) subpackages.
package playlist
