// Package migrations embeds the SQL units of the SQLite schema.
//
// Each file holds exactly one logical DDL unit and is executed whole, so
// trigger bodies containing BEGIN ... END need no statement splitting.
// Files are named <phase><seq>_<name>.sql and applied in lexical order:
//
//	a  engine configuration (re-applied on every open, not recorded)
//	b  base tables, parents before children
//	c  secondary indexes
//	d  full-text virtual tables
//	e  full-text sync triggers
//	f  schema version stamp
package migrations

import "embed"

// FS contains all SQL migration units embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
