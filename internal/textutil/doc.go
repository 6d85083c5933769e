// Package textutil provides slug derivation and filename sanitization for
// series directories and backup path segments.
//
// Slugs are ASCII-only: names are NFKD-decomposed, combining marks are
// stripped, and any remaining non-alphanumeric runs collapse into dashes.
// The same name therefore always maps to the same slug regardless of the
// accents the source metadata carried.
package textutil
