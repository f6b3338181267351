package migration

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Pair is a scaffolded up/down migration file pair. The version prefix is
// a UTC timestamp, which is what keeps concurrently authored migrations in
// a sane lexical order.
type Pair struct {
	Version  string
	Name     string
	UpPath   string
	DownPath string
}

// Scaffold creates an empty up/down migration pair in the given tree. The
// name becomes the file slug; the note, if any, lands in the file header.
func Scaffold(root string, tree Tree, name, note string) (*Pair, error) {
	if err := tree.Validate(); err != nil {
		return nil, err
	}
	slug := slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q yields an empty slug", name)
	}

	dir := tree.Dir(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migration tree directory: %w", err)
	}

	now := time.Now().UTC()
	version := now.Format("20060102150405")
	base := dir + string(os.PathSeparator) + version + "_" + slug
	pair := &Pair{
		Version:  version,
		Name:     name,
		UpPath:   base + ".up.sql",
		DownPath: base + ".down.sql",
	}

	header := fmt.Sprintf("-- %s (%s tree)\n-- created %s\n", name, tree, now.Format(time.RFC3339))
	if note != "" {
		header += "-- " + note + "\n"
	}
	if err := os.WriteFile(pair.UpPath, []byte(header+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write up migration: %w", err)
	}
	if err := os.WriteFile(pair.DownPath, []byte(header+"-- rollback\n\n"), 0o644); err != nil {
		_ = os.Remove(pair.UpPath)
		return nil, fmt.Errorf("write down migration: %w", err)
	}
	return pair, nil
}

// List returns the base names of a tree's migrations in lexical order,
// which for timestamped versions is also application order
func List(root string, tree Tree) ([]string, error) {
	if err := tree.Validate(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(tree.Dir(root))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migration tree: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if base, ok := strings.CutSuffix(entry.Name(), ".up.sql"); ok {
			names = append(names, base)
		}
	}
	sort.Strings(names)
	return names, nil
}

// slugify lowercases a migration name and collapses every run of spaces,
// dashes and underscores into a single underscore. Anything else is
// dropped.
func slugify(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			pending = true
		}
	}
	return b.String()
}
