// Package config loads, normalizes, and validates podmirror configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// YOUTUBE_API_KEY and GITHUB_TOKEN. The Config type centralizes every knob the
// sync engine and CLI need, so core packages receive values rather than
// reading the process environment themselves.
package config
