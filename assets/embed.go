// assets/embed.go
//
// Embedded defaults shipped with the binary:
//   - catalog.yaml: the item catalog and difficulty table.
//   - sql/*.sql:    SQLite migrations, applied in lexical order.
package assets

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed catalog.yaml sql/*.sql
var FS embed.FS

// Catalog returns the embedded default catalog file.
func Catalog() ([]byte, error) {
	return FS.ReadFile("catalog.yaml")
}

// Migrations returns migration file names (sorted) and a reader for them.
func Migrations() ([]string, fs.FS, error) {
	sub, err := fs.Sub(FS, "sql")
	if err != nil {
		return nil, nil, err
	}
	names, err := fs.Glob(sub, "*.sql")
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(names)
	return names, sub, nil
}
