package history

import "embed"

// Migrations holds the schema of the event and scan history database.
//
//go:embed *.sql
var Migrations embed.FS

// Dir is the directory inside Migrations that holds the files.
const Dir = "."
