package estimate

import (
	"testing"

	"github.com/milosgajdos/go-control"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNew(t *testing.T) {
	assert := assert.New(t)

	val := mat.NewVecDense(3, []float64{1.0, 2.0, 0.5})
	cov := mat.NewSymDense(3, nil)

	s, err := New(val, cov, 2)
	assert.NotNil(s)
	assert.NoError(err)

	testCases := map[string]struct {
		val mat.Vector
		cov mat.Symmetric
		np  int
	}{
		"nil val":      {nil, cov, 2},
		"cov mismatch": {val, mat.NewSymDense(2, nil), 2},
		"no plant":     {val, cov, 0},
		"too many":     {val, cov, 4},
	}

	for name, tc := range testCases {
		s, err := New(tc.val, tc.cov, tc.np)
		assert.Nil(s, name)
		assert.ErrorIs(err, control.ErrInterface, name)
	}
}

func TestSplit(t *testing.T) {
	assert := assert.New(t)

	val := mat.NewVecDense(3, []float64{1.0, 2.0, 0.5})
	cov := mat.NewSymDense(3, []float64{1, 0, 0, 0, 2, 0, 0, 0, 3})

	s, err := New(val, cov, 2)
	assert.NoError(err)

	assert.True(mat.Equal(val, s.Val()))
	assert.True(mat.Equal(cov, s.Cov()))
	assert.True(mat.Equal(mat.NewVecDense(2, []float64{1.0, 2.0}), s.Plant()))
	assert.True(mat.Equal(mat.NewVecDense(1, []float64{0.5}), s.Disturbance()))

	// returned values are copies
	s.Plant().(*mat.VecDense).SetVec(0, 100)
	assert.Equal(1.0, s.Val().AtVec(0))

	s, err = New(val, cov, 3)
	assert.NoError(err)
	assert.Nil(s.Disturbance())
}
