package migrate

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const versionLayout = "20060102150405"

const (
	upMarker    = "-- +goose Up"
	downMarker  = "-- +goose Down"
	beginMarker = "-- +goose StatementBegin"
	endMarker   = "-- +goose StatementEnd"
)

var (
	fileNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	nonSlugRe  = regexp.MustCompile(`[^a-z0-9]+`)
)

// File is one migration on disk, identified by its goose version.
type File struct {
	Version int64
	Name    string
}

func (f File) Filename() string {
	return fmt.Sprintf("%d_%s.sql", f.Version, f.Name)
}

// CreateSQLMigration writes an empty migration into dir and returns its path.
// Versions are UTC timestamps, bumped past the newest file already in dir so
// two files created in the same second still apply in creation order.
func CreateSQLMigration(dir, name string) (string, error) {
	return createAt(dir, name, time.Now())
}

func createAt(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", errors.New("dir is required")
	}
	slug := strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	version, err := strconv.ParseInt(now.UTC().Format(versionLayout), 10, 64)
	if err != nil {
		return "", err
	}
	existing, err := scan(os.DirFS(dir))
	if err != nil {
		return "", err
	}
	if n := len(existing); n > 0 && existing[n-1].Version >= version {
		version = existing[n-1].Version + 1
	}

	file := File{Version: version, Name: slug}
	path := filepath.Join(dir, file.Filename())
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	body := strings.Join([]string{upMarker, beginMarker, "", endMarker, "", downMarker, beginMarker, "", endMarker, ""}, "\n")
	_, werr := out.WriteString(body)
	return path, multierr.Combine(werr, out.Close())
}

// scan lists the well-named migrations at the root of fsys by version and
// ignores everything else.
func scan(fsys fs.FS) ([]File, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []File
	for _, entry := range entries {
		m := fileNameRe.FindStringSubmatch(entry.Name())
		if entry.IsDir() || m == nil {
			continue
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		files = append(files, File{Version: version, Name: m[2]})
	}
	slices.SortFunc(files, func(a, b File) int { return cmp.Compare(a.Version, b.Version) })
	return files, nil
}

// ValidateDir checks the migrations checked into dir.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks every .sql file at the root of fsys and reports all
// problems together.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var problems error
	owners := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		m := fileNameRe.FindStringSubmatch(name)
		if m == nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: expected <YYYYMMDDHHMMSS>_<snake_name>.sql", name))
			continue
		}
		if _, err := time.Parse(versionLayout, m[1]); err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: version is not a timestamp", name))
		}
		if prev, dup := owners[m[1]]; dup {
			problems = multierr.Append(problems, fmt.Errorf("%s: version already used by %s", name, prev))
		}
		owners[m[1]] = name

		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		problems = multierr.Append(problems, checkAnnotations(name, string(data)))
	}
	return problems
}

func checkAnnotations(name, body string) error {
	up, down := strings.Index(body, upMarker), strings.Index(body, downMarker)
	var problems error
	switch {
	case up < 0:
		problems = multierr.Append(problems, fmt.Errorf("%s: missing %q", name, upMarker))
	case down < 0:
		problems = multierr.Append(problems, fmt.Errorf("%s: missing %q", name, downMarker))
	case down < up:
		problems = multierr.Append(problems, fmt.Errorf("%s: down section precedes up section", name))
	}
	depth := 0
	for _, line := range strings.Split(body, "\n") {
		switch strings.TrimSpace(line) {
		case beginMarker:
			depth++
		case endMarker:
			depth--
		}
		if depth < 0 || depth > 1 {
			break
		}
	}
	if depth != 0 {
		problems = multierr.Append(problems, fmt.Errorf("%s: unbalanced StatementBegin/StatementEnd", name))
	}
	return problems
}
