// Package normalisers turns file content into raw records. Each
// subpackage handles specific MIME types; the Registry picks the
// highest-priority normaliser for a type.
package normalisers
