package gallery

import (
	"fmt"
	"strings"
)

// cellMarker starts a prose cell; comment lines after it are markdown until
// the first non-comment line, which opens a code cell.
const cellMarker = "// %%"

// Parse parses example source written in the cell convention. The first prose
// cell must start with a level-1 markdown heading; its first paragraph line
// becomes the summary.
func Parse(path string, src []byte) (*Example, error) {
	lines := strings.Split(string(src), "\n")

	var cells []Cell
	var prose, code []string
	inProse := false

	flushProse := func() {
		if text := strings.TrimSpace(strings.Join(prose, "\n")); text != "" {
			cells = append(cells, Cell{Kind: CellProse, Text: text})
		}
		prose = prose[:0]
	}
	flushCode := func() {
		if text := strings.Trim(strings.Join(code, "\n"), "\n"); strings.TrimSpace(text) != "" {
			cells = append(cells, Cell{Kind: CellCode, Text: text})
		}
		code = code[:0]
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Build constraints and package clauses are plumbing, not content.
		if i < 4 && (strings.HasPrefix(trimmed, "//go:build") || strings.HasPrefix(trimmed, "// +build")) {
			continue
		}

		if trimmed == cellMarker {
			flushCode()
			flushProse()
			inProse = true
			continue
		}

		if inProse {
			if rest, ok := strings.CutPrefix(trimmed, "//"); ok {
				prose = append(prose, strings.TrimPrefix(rest, " "))
				continue
			}
			flushProse()
			inProse = false
		}
		code = append(code, line)
	}
	flushCode()
	flushProse()

	if len(cells) == 0 || cells[0].Kind != CellProse {
		return nil, fmt.Errorf("%s: example must open with a prose cell (%q)", path, cellMarker)
	}

	title, summary := headerOf(cells[0].Text)
	if title == "" {
		return nil, fmt.Errorf("%s: first prose cell must carry a level-1 heading", path)
	}

	return &Example{
		Slug:    Slugify(title),
		Title:   title,
		Summary: summary,
		Path:    path,
		Cells:   cells,
		Hash:    ContentHash(src),
	}, nil
}

// headerOf extracts the title and the first paragraph line from the opening
// prose cell.
func headerOf(text string) (title, summary string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "# "); ok && title == "" {
			title = strings.TrimSpace(rest)
			continue
		}
		if title != "" && !strings.HasPrefix(line, "#") {
			summary = line
			return title, summary
		}
	}
	return title, summary
}

// HasCellMarkers reports whether source looks like an example file at all.
func HasCellMarkers(src []byte) bool {
	for _, line := range strings.Split(string(src), "\n") {
		if strings.TrimSpace(line) == cellMarker {
			return true
		}
	}
	return false
}
