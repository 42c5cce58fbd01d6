// Package gallery models example pages: source files written in the cell
// convention, discovered from configured roots and optionally backed by a
// runnable implementation.
package gallery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// CellKind distinguishes prose from code cells.
type CellKind string

const (
	CellProse CellKind = "prose"
	CellCode  CellKind = "code"
)

// Cell is one alternating unit of an example file: markdown prose or code.
type Cell struct {
	Kind CellKind
	Text string
}

// Example is a parsed gallery page.
type Example struct {
	Slug     string
	Title    string
	Summary  string
	Path     string // absolute source path
	RelPath  string // path relative to its root, for display
	Cells    []Cell
	Hash     string // sha256 of the source bytes
	Required bool   // a failing required example fails the build
}

// ContentHash returns the hex sha256 of source bytes, used for incremental
// build decisions.
func ContentHash(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

// Runner executes an example, writing its captured output to stdout and any
// generated files (charts, images) into artifactDir.
type Runner interface {
	Run(ctx context.Context, stdout io.Writer, artifactDir string) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, stdout io.Writer, artifactDir string) error

func (f RunnerFunc) Run(ctx context.Context, stdout io.Writer, artifactDir string) error {
	return f(ctx, stdout, artifactDir)
}
