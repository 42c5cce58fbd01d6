package gallery

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Discovery finds and parses example files under configured roots.
type Discovery struct {
	roots    []string
	required map[string]bool
}

// NewDiscovery creates a Discovery over the given roots. Slugs listed in
// required mark examples whose execution failure fails the whole build.
func NewDiscovery(roots []string, required []string) *Discovery {
	req := make(map[string]bool, len(required))
	for _, slug := range required {
		req[slug] = true
	}
	return &Discovery{roots: roots, required: req}
}

// Discover walks all roots and returns parsed examples sorted by title.
// Files without cell markers are skipped; duplicate slugs are an error.
func (d *Discovery) Discover() ([]*Example, error) {
	var examples []*Example
	bySlug := make(map[string]string) // slug -> first path

	for _, root := range d.roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", root, err)
		}
		err = filepath.WalkDir(absRoot, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				// Skip hidden directories like .git.
				if name := entry.Name(); strings.HasPrefix(name, ".") && path != absRoot {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}

			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if !HasCellMarkers(src) {
				slog.Debug("Skipping file without cell markers", "path", path)
				return nil
			}

			ex, err := Parse(path, src)
			if err != nil {
				return err
			}
			if prev, dup := bySlug[ex.Slug]; dup {
				return fmt.Errorf("duplicate example slug %q: %s and %s", ex.Slug, prev, path)
			}
			bySlug[ex.Slug] = path

			if rel, relErr := filepath.Rel(absRoot, path); relErr == nil {
				ex.RelPath = rel
			} else {
				ex.RelPath = entry.Name()
			}
			ex.Required = d.required[ex.Slug]

			examples = append(examples, ex)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(examples, func(i, j int) bool { return examples[i].Title < examples[j].Title })
	return examples, nil
}
