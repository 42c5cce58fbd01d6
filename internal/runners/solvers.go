// Package runners implements the runnable backends of the built-in gallery
// pages. Each runner writes the output shown on its page and drops artifacts
// (charts) into the page directory.
package runners

import (
	"context"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/josch/gallerize/internal/linalg"
)

// SolversSlug is the slug of the linear solvers walkthrough page.
const SolversSlug = "linear-equation-solvers"

// SolversRunner reproduces the linear solvers walkthrough: an exactly
// solvable system, the failure cases, and a least-squares fit.
type SolversRunner struct{}

func (SolversRunner) Run(_ context.Context, stdout io.Writer, _ string) error {
	// The exactly solvable 2x2 system.
	a := mat.NewDense(2, 2, []float64{1, 2, 4, 6})
	y := mat.NewVecDense(2, []float64{3, 6})
	fmt.Fprintln(stdout, "A=")
	fmt.Fprintf(stdout, "%v\n", mat.Formatted(a))
	fmt.Fprintf(stdout, "y=%v\n", mat.Formatted(y.T()))

	x, err := linalg.SolveViaInverse(a, y)
	if err != nil {
		return fmt.Errorf("inverse solve: %w", err)
	}
	fmt.Fprintf(stdout, "x (via inverse, don't!) = %v\n", mat.Formatted(x.T()))

	x, err = linalg.Solve(a, y)
	if err != nil {
		return fmt.Errorf("direct solve: %w", err)
	}
	fmt.Fprintf(stdout, "x (direct solve) = %v\n", mat.Formatted(x.T()))

	// Non-square systems have no exact solution path.
	wide := mat.NewDense(2, 3, []float64{1, 2, 5, 4, 6, 1})
	if _, err := linalg.Solve(wide, y); err != nil {
		fmt.Fprintf(stdout, "1) %v\n", err)
	}
	if _, err := linalg.SolveViaInverse(wide, y); err != nil {
		fmt.Fprintf(stdout, "2) %v\n", err)
	}

	// But least squares still finds an x.
	res, err := linalg.LeastSquares(wide, y)
	if err != nil {
		return fmt.Errorf("least squares (wide): %w", err)
	}
	printLeastSquares(stdout, wide, res)

	// And for the overdetermined fit it minimizes the residual.
	tall := mat.NewDense(3, 2, []float64{1, 1, 6, 1, 4, 6})
	yTall := mat.NewVecDense(3, []float64{3, 6, 8})
	res, err = linalg.LeastSquares(tall, yTall)
	if err != nil {
		return fmt.Errorf("least squares (tall): %w", err)
	}
	printLeastSquares(stdout, tall, res)

	return nil
}

func printLeastSquares(stdout io.Writer, a *mat.Dense, res *linalg.LeastSquaresResult) {
	fmt.Fprintf(stdout, "x=%v\n", mat.Formatted(res.X.T()))
	fmt.Fprintf(stdout, "residual norm=%.6g\n", res.ResidualNorm)
	fmt.Fprintf(stdout, "rank=%d\n", res.Rank)

	rows, _ := a.Dims()
	ax := mat.NewVecDense(rows, nil)
	ax.MulVec(a, res.X)
	fmt.Fprintf(stdout, "A * x = %v\n", mat.Formatted(ax.T()))
}
