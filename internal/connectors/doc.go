// Package connectors builds source adapters from configuration. Each
// subpackage implements driven.SourceAdapter for one source type.
package connectors
