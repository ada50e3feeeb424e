// Package migrations holds the SQL schema migrations, embedded so the server
// and the migrate command need no files on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
