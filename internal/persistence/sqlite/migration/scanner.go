package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var fileNamePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// Migration is one versioned SQL file.
type Migration struct {
	Version     string
	Description string
	File        string
	SQL         string
	Checksum    string
}

func (m Migration) number() int {
	n, _ := strconv.Atoi(m.Version)
	return n
}

// Scan reads every .sql file at the root of fsys and returns them in version order.
func Scan(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		m, err := parseFile(fsys, entry.Name())
		if err != nil {
			return nil, err
		}
		if existing, ok := seen[m.number()]; ok {
			return nil, newMigrationError(m.Version, m.File, "scan",
				fmt.Errorf("%w: also defined by %s", ErrDuplicateVersion, existing))
		}
		seen[m.number()] = m.File
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].number() < migrations[j].number()
	})
	return migrations, nil
}

func parseFile(fsys fs.FS, name string) (Migration, error) {
	matches := fileNamePattern.FindStringSubmatch(name)
	if matches == nil {
		return Migration{}, newMigrationError("", name, "scan",
			fmt.Errorf("%w: expected {version}_{description}.sql", ErrInvalidMigrationFile))
	}
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return Migration{}, newMigrationError(matches[1], name, "read", err)
	}
	if len(statements(string(content))) == 0 {
		return Migration{}, newMigrationError(matches[1], name, "scan",
			fmt.Errorf("%w: no statements", ErrInvalidMigrationFile))
	}
	sum := sha256.Sum256(content)
	return Migration{
		Version:     matches[1],
		Description: strings.ReplaceAll(matches[2], "_", " "),
		File:        name,
		SQL:         string(content),
		Checksum:    hex.EncodeToString(sum[:]),
	}, nil
}

// statements strips "--" comments and splits the remainder on semicolons.
// Semicolons and dashes inside single-quoted literals are left alone.
func statements(sql string) []string {
	var lines []string
	for _, line := range strings.Split(sql, "\n") {
		if code := strings.TrimSpace(stripComment(line)); code != "" {
			lines = append(lines, code)
		}
	}

	var (
		out     []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}
	for _, r := range strings.Join(lines, "\n") {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == ';' && !quoted:
			flush()
			continue
		}
		current.WriteRune(r)
	}
	flush()
	return out
}

func stripComment(line string) string {
	quoted := false
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\'':
			quoted = !quoted
		case !quoted && line[i] == '-' && i+1 < len(line) && line[i+1] == '-':
			return line[:i]
		}
	}
	return line
}
