// Package linalg implements the linear equation solvers demonstrated by the
// linear-solvers gallery page: exact solving, the explicit-inverse route, and
// least squares for systems without an exact solution.
package linalg

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular marks systems whose matrix cannot be inverted or solved exactly.
var ErrSingular = errors.New("matrix is singular")

// DimensionError reports input shapes that rule out the requested operation.
type DimensionError struct {
	Op   string
	Rows int
	Cols int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s requires a square matrix, got %dx%d", e.Op, e.Rows, e.Cols)
}

// Solve solves the square system A·x = y exactly.
func Solve(a *mat.Dense, y *mat.VecDense) (*mat.VecDense, error) {
	r, c := a.Dims()
	if r != c {
		return nil, &DimensionError{Op: "solve", Rows: r, Cols: c}
	}
	x := mat.NewVecDense(c, nil)
	if err := x.SolveVec(a, y); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return x, nil
}

// SolveViaInverse computes x = A⁻¹·y. The gallery page shows this route only
// to warn against it; Solve is numerically preferable.
func SolveViaInverse(a *mat.Dense, y *mat.VecDense) (*mat.VecDense, error) {
	r, c := a.Dims()
	if r != c {
		return nil, &DimensionError{Op: "invert", Rows: r, Cols: c}
	}
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	x := mat.NewVecDense(c, nil)
	x.MulVec(&inv, y)
	return x, nil
}

// LeastSquaresResult carries the minimizer of ‖A·x − y‖ together with the
// residual norm and the rank of A.
type LeastSquaresResult struct {
	X            *mat.VecDense
	ResidualNorm float64
	Rank         int
}

// LeastSquares finds the x minimizing ‖A·x − y‖ for any m×n A, including
// singular and non-square systems that Solve rejects.
func LeastSquares(a *mat.Dense, y *mat.VecDense) (*LeastSquaresResult, error) {
	m, n := a.Dims()
	if y.Len() != m {
		return nil, fmt.Errorf("dimension mismatch: A is %dx%d but y has %d entries", m, n, y.Len())
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("svd factorization failed")
	}

	const rcond = 1e-15
	values := svd.Values(nil)
	rank := 0
	if len(values) > 0 {
		tol := rcond * values[0] * float64(max(m, n))
		for _, sv := range values {
			if sv > tol {
				rank++
			}
		}
	}

	xv := mat.NewVecDense(n, nil)
	svd.SolveVecTo(xv, y, rank)

	// Residual ‖A·x − y‖.
	resid := mat.NewVecDense(m, nil)
	resid.MulVec(a, xv)
	resid.SubVec(resid, y)

	return &LeastSquaresResult{
		X:            xv,
		ResidualNorm: mat.Norm(resid, 2),
		Rank:         rank,
	}, nil
}
