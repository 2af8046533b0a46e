// assets/embed.go
//
// Static files compiled into the binary:
//   - lessons.yaml: the default lesson catalogue.
//   - migrations/*.sql: schema for the results ledger, applied in name order.

package assets

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed lessons.yaml migrations/*.sql
var FS embed.FS

// Lessons returns the embedded lesson catalogue.
func Lessons() ([]byte, error) {
	return FS.ReadFile("lessons.yaml")
}

// Migration is one embedded SQL script.
type Migration struct {
	Name string
	SQL  string
}

// Migrations returns the embedded SQL scripts sorted by file name.
func Migrations() ([]Migration, error) {
	names, err := fs.Glob(FS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]Migration, 0, len(names))
	for _, n := range names {
		b, err := FS.ReadFile(n)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Name: n, SQL: string(b)})
	}
	return out, nil
}
