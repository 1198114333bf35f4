package intake

import (
	"io/fs"

	"github.com/goliatone/go-transcript-intake/migrations"
)

// GetMigrationsFS returns the embedded intake schema, including the SQLite
// variants under data/sql/migrations/sqlite.
func GetMigrationsFS() fs.FS {
	return migrations.FS()
}
