// Package normalisers turns uploaded procurement files into plain text.
// Each subpackage handles one family of MIME types; Registry picks the
// extractor for an upload and falls back to plain text for unknown text
// formats.
package normalisers
