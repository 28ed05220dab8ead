// Package episodeid derives a stable season/episode identity from the free-form
// titles published by the upstream playlist.
//
// Extraction walks an ordered table of title patterns (compact "S8 E30",
// verbose "Season 8, Episode 30", cross notation "8x30") and returns the first
// match. Titles are NFKC-normalized first so full-width digits and letters
// parse the same as their ASCII forms. A title without a recognizable code is
// not an error; callers fall back to the upstream item identifier.
//
// Code.Name renders the canonical artifact base name (S08E30) that doubles as
// the feed sort key, and ParseName reverses it for names found on disk.
package episodeid
