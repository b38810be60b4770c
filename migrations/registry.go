package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	dsync "github.com/boxyhq/go-dsync"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SourceLabel identifies go-dsync migrations inside a host's migrator.
	SourceLabel = "go-dsync"
)

// FilesystemSpec pairs one dialect with its migration tree.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc matches go-persistence-bun's RegisterSQLMigrations shape so a
// host can hand its migrator straight in.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

// Filesystems resolves the dialect migration trees from the embedded
// defaults, or from an explicit override filesystem laid out the same way
// (postgres files at the root, sqlite alternatives under sqlite/).
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := dsync.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: basePath + "/sqlite", FS: sqliteFS},
	}

	for _, fsys := range filesystems {
		matches, globErr := fs.Glob(fsys.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", fsys.Dialect, fsys.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", fsys.Dialect, fsys.Path)
		}
	}

	return filesystems, nil
}

// Register feeds each requested dialect's migration tree to registerFn.
// With no dialects given, every known dialect is registered.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}

	wanted := make(map[string]struct{}, len(dialects))
	for _, dialect := range dialects {
		trimmed := strings.TrimSpace(strings.ToLower(dialect))
		if trimmed != "" {
			wanted[trimmed] = struct{}{}
		}
	}

	filesystems, err := Filesystems()
	if err != nil {
		return err
	}

	for _, fsys := range filesystems {
		if len(wanted) > 0 {
			if _, ok := wanted[fsys.Dialect]; !ok {
				continue
			}
		}
		if err := registerFn(ctx, fsys.Dialect, SourceLabel, fsys.FS); err != nil {
			return fmt.Errorf("migrations: register %s (%s): %w", fsys.Dialect, fsys.Path, err)
		}
	}
	return nil
}

// migrationsRoot finds the directory holding the postgres *.up.sql files,
// either under the embedded data/sql/migrations prefix or at the root of an
// override filesystem.
func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	if sub, err := fs.Sub(root, "data/sql/migrations"); err == nil {
		if matches, globErr := fs.Glob(sub, "*.up.sql"); globErr == nil && len(matches) > 0 {
			return sub, "data/sql/migrations", nil
		}
	}
	if matches, err := fs.Glob(root, "*.up.sql"); err == nil && len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: no *.up.sql files found under data/sql/migrations or the filesystem root")
}
