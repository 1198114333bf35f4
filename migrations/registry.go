// Package migrations embeds the intake schema and hands the tree for one SQL
// dialect to a persistence client.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	SourceLabel = "go-transcript-intake"

	migrationsRoot = "data/sql/migrations"
)

// Source is the migration tree of one dialect. Versions lists the file stems
// in apply order.
type Source struct {
	Dialect  string
	Path     string
	FS       fs.FS
	Versions []string
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

// Sources returns the postgres tree and its sqlite counterpart.
func Sources() ([]Source, error) {
	return sourcesFrom(FS())
}

func sourcesFrom(embedded fs.FS) ([]Source, error) {
	base, err := fs.Sub(embedded, migrationsRoot)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", migrationsRoot, err)
	}
	layout := []struct {
		dialect string
		dir     string
	}{
		{dialect: DialectPostgres, dir: "."},
		{dialect: DialectSQLite, dir: "sqlite"},
	}

	sources := make([]Source, 0, len(layout))
	for _, entry := range layout {
		fsys, path := base, migrationsRoot
		if entry.dir != "." {
			if fsys, err = fs.Sub(base, entry.dir); err != nil {
				return nil, fmt.Errorf("migrations: resolve %s tree: %w", entry.dialect, err)
			}
			path = migrationsRoot + "/" + entry.dir
		}
		versions, err := pairedVersions(fsys)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s (%s): %w", entry.dialect, path, err)
		}
		sources = append(sources, Source{Dialect: entry.dialect, Path: path, FS: fsys, Versions: versions})
	}
	return sources, nil
}

// pairedVersions requires a down file for every up file so a rollback is
// always possible.
func pairedVersions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(fsys, version+".down.sql"); err != nil {
			return nil, fmt.Errorf("%s has no down migration", up)
		}
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions, nil
}

// Register passes the sources of the requested dialects, or all of them when
// none are named, to fn. It fails when no source matches.
func Register(ctx context.Context, fn RegisterFunc, dialects ...string) ([]Source, error) {
	if fn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	sources, err := Sources()
	if err != nil {
		return nil, err
	}

	wanted := make([]string, 0, len(dialects))
	for _, dialect := range dialects {
		if dialect = strings.ToLower(strings.TrimSpace(dialect)); dialect != "" {
			wanted = append(wanted, dialect)
		}
	}

	registered := make([]Source, 0, len(sources))
	for _, source := range sources {
		if len(wanted) > 0 && !slices.Contains(wanted, source.Dialect) {
			continue
		}
		if err := fn(ctx, source.Dialect, SourceLabel, source.FS); err != nil {
			return registered, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
		registered = append(registered, source)
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("migrations: no migrations for dialects %v", wanted)
	}
	return registered, nil
}
