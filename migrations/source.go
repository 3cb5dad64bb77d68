package main

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed *.sql
var embeddedSQL embed.FS

// migrationPattern is the naming standard: zero-padded version, snake_case
// name, explicit direction. 001_create_research_jobs.up.sql.
var migrationPattern = regexp.MustCompile(`^(\d{3})_([a-z0-9_]+)\.(up|down)\.sql$`)

// errScriptsChanged guards up/down against a script set that no longer
// matches the one validated at startup.
var errScriptsChanged = errors.New("migration scripts changed since startup")

type (
	// migrationFile is one parsed migration script.
	migrationFile struct {
		Version   int
		Name      string
		Direction string
		Filename  string
		Checksum  string
	}

	// manifest is a validated view of a migration filesystem: every .sql
	// file parsed, checksummed and sorted by filename. A manifest only
	// exists in a valid state; loadManifest rejects anything else.
	manifest struct {
		files []migrationFile
	}
)

// loadManifest reads and validates every migration script in fsys.
// Non-SQL files are ignored; an SQL file that breaks the naming standard
// is an error, not a skip, so a typoed script cannot silently drop out
// of the set.
func loadManifest(fsys fs.FS) (*manifest, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	var files []migrationFile

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		file, err := parseMigrationFile(fsys, entry.Name())
		if err != nil {
			return nil, err
		}

		files = append(files, file)
	}

	if len(files) == 0 {
		return nil, errors.New("no migration scripts found")
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Filename < files[j].Filename
	})

	man := &manifest{files: files}
	if err := man.validate(); err != nil {
		return nil, err
	}

	return man, nil
}

func parseMigrationFile(fsys fs.FS, filename string) (migrationFile, error) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return migrationFile{}, fmt.Errorf(
			"migration %s does not match NNN_name.up.sql / NNN_name.down.sql", filename)
	}

	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return migrationFile{}, fmt.Errorf("migration %s: bad version: %w", filename, err)
	}

	content, err := fs.ReadFile(fsys, filename)
	if err != nil {
		return migrationFile{}, fmt.Errorf("read migration %s: %w", filename, err)
	}

	sum := sha256.Sum256(content)

	return migrationFile{
		Version:   version,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
		Checksum:  hex.EncodeToString(sum[:]),
	}, nil
}

// validate enforces the structural rules golang-migrate assumes: one name
// per version, an up and a down script for every version, and versions
// contiguous from 001.
func (m *manifest) validate() error {
	type pair struct {
		up, down bool
	}

	names := make(map[int]string)
	pairs := make(map[int]*pair)

	for _, f := range m.files {
		if prev, ok := names[f.Version]; ok && prev != f.Name {
			return fmt.Errorf("version %03d used by both %q and %q", f.Version, prev, f.Name)
		}

		names[f.Version] = f.Name

		p := pairs[f.Version]
		if p == nil {
			p = &pair{}
			pairs[f.Version] = p
		}

		if f.Direction == "up" {
			p.up = true
		} else {
			p.down = true
		}
	}

	versions := make([]int, 0, len(pairs))
	for v := range pairs {
		versions = append(versions, v)
	}

	sort.Ints(versions)

	for i, v := range versions {
		if v != i+1 {
			return fmt.Errorf("migration versions must be contiguous from 001: missing %03d", i+1)
		}
	}

	for _, v := range versions {
		p := pairs[v]
		if !p.up {
			return fmt.Errorf("version %03d (%s) has no up script", v, names[v])
		}

		if !p.down {
			return fmt.Errorf("version %03d (%s) has no down script", v, names[v])
		}
	}

	return nil
}

// Fingerprint digests the sorted (filename, checksum) pairs into one
// stable hex string. Two builds with identical scripts share a
// fingerprint regardless of build time or platform.
func (m *manifest) Fingerprint() string {
	h := sha256.New()

	for _, f := range m.files {
		fmt.Fprintf(h, "%s %s\n", f.Filename, f.Checksum)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// verify reloads fsys and compares fingerprints.
func (m *manifest) verify(fsys fs.FS) error {
	fresh, err := loadManifest(fsys)
	if err != nil {
		return err
	}

	if fresh.Fingerprint() != m.Fingerprint() {
		return errScriptsChanged
	}

	return nil
}

// maxVersion returns the highest script version in the set.
func (m *manifest) maxVersion() int {
	highest := 0

	for _, f := range m.files {
		if f.Version > highest {
			highest = f.Version
		}
	}

	return highest
}
