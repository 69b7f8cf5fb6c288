package lifecycle

import (
	"io/fs"

	"github.com/goliatone/go-lifecycle/internal/storage"
)

// GetMigrationsFS returns the embedded migration files, one directory per dialect.
func GetMigrationsFS() fs.FS {
	return storage.MigrationsFS()
}
