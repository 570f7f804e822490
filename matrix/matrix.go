package matrix

import (
	"math"
	"math/cmplx"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/matrix"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Identity returns n x n identity matrix.
// It panics if n is not positive.
func Identity(n int) *mat.Dense {
	eye, err := matrix.NewDenseValIdentity(n, 1.0)
	if err != nil {
		panic(err)
	}

	return eye
}

// Diag returns a square matrix with vals on its diagonal.
func Diag(vals ...float64) *mat.Dense {
	m := mat.NewDense(len(vals), len(vals), nil)
	for i, v := range vals {
		m.Set(i, i, v)
	}

	return m
}

// DiagSym returns a symmetric matrix with vals on its diagonal.
func DiagSym(vals ...float64) *mat.SymDense {
	m := mat.NewSymDense(len(vals), nil)
	for i, v := range vals {
		m.SetSym(i, i, v)
	}

	return m
}

// Sym returns a symmetric copy of m computed as (m + m')/2.
// It panics if m is not square.
func Sym(m mat.Matrix) *mat.SymDense {
	r, c := m.Dims()
	if r != c {
		panic(mat.ErrSquare)
	}

	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return s
}

// Block assembles a matrix from a 2x2 grid of blocks [[a, b], [c, d]].
// Any of b, c or d may be nil in which case the block is filled with zeros.
func Block(a, b, c, d mat.Matrix) *mat.Dense {
	ar, ac := a.Dims()
	br, bc := 0, 0
	if b != nil {
		br, bc = b.Dims()
		if br != ar {
			panic(mat.ErrShape)
		}
	}
	cr := 0
	if c != nil {
		var cc int
		cr, cc = c.Dims()
		if cc != ac {
			panic(mat.ErrShape)
		}
	}
	if d != nil {
		dr, dc := d.Dims()
		if cr != 0 && dr != cr {
			panic(mat.ErrShape)
		}
		cr = dr
		if bc != 0 && dc != bc {
			panic(mat.ErrShape)
		}
		bc = dc
	}

	out := mat.NewDense(ar+cr, ac+bc, nil)
	out.Slice(0, ar, 0, ac).(*mat.Dense).Copy(a)
	if b != nil {
		out.Slice(0, ar, ac, ac+bc).(*mat.Dense).Copy(b)
	}
	if c != nil && cr > 0 {
		out.Slice(ar, ar+cr, 0, ac).(*mat.Dense).Copy(c)
	}
	if d != nil && cr > 0 && bc > 0 {
		out.Slice(ar, ar+cr, ac, ac+bc).(*mat.Dense).Copy(d)
	}

	return out
}

// PadCols returns a copy of m with zero columns appended so it has cols columns.
// It panics if m already has more than cols columns.
func PadCols(m mat.Matrix, cols int) *mat.Dense {
	r, c := m.Dims()
	if c > cols {
		panic(mat.ErrShape)
	}

	out := mat.NewDense(r, cols, nil)
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(m)

	return out
}

// PadRows returns a copy of m with zero rows appended so it has rows rows.
// It panics if m already has more than rows rows.
func PadRows(m mat.Matrix, rows int) *mat.Dense {
	r, c := m.Dims()
	if r > rows {
		panic(mat.ErrShape)
	}

	out := mat.NewDense(rows, c, nil)
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(m)

	return out
}

// Rank returns numerical rank of m.
// It returns error wrapping control.ErrSynthesis if the SVD factorization fails.
// Singular values smaller than max(r, c) * eps * largest singular value are treated as zero.
func Rank(m mat.Matrix) (int, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDNone); !ok {
		return 0, errors.Wrap(control.ErrSynthesis, "SVD factorization failed")
	}

	vals := svd.Values(nil)
	if len(vals) == 0 {
		return 0, nil
	}

	r, c := m.Dims()
	tol := float64(max(r, c)) * floats.Max(vals) * eps

	rank := 0
	for _, v := range vals {
		if v > tol {
			rank++
		}
	}

	return rank, nil
}

// Eigenvalues returns eigenvalues of square matrix m.
// It returns error wrapping control.ErrSynthesis if the decomposition fails.
func Eigenvalues(m mat.Matrix) ([]complex128, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(m, mat.EigenNone); !ok {
		return nil, errors.Wrap(control.ErrSynthesis, "eigen decomposition failed")
	}

	return eig.Values(nil), nil
}

// SpectralRadius returns the largest eigenvalue magnitude of square matrix m.
func SpectralRadius(m mat.Matrix) (float64, error) {
	vals, err := Eigenvalues(m)
	if err != nil {
		return 0, err
	}

	rho := 0.0
	for _, v := range vals {
		rho = math.Max(rho, cmplx.Abs(v))
	}

	return rho, nil
}

// IsFinite returns true if none of the elements of m are NaN or Inf.
func IsFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	return true
}

// Flatten returns elements of m in row-major order.
func Flatten(m mat.Matrix) []float64 {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, m.At(i, j))
		}
	}

	return data
}

const eps = 2.220446049250313e-16
