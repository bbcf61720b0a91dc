package response

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval(t *testing.T) {
	pz := PoleZero{
		Zeros:    []complex128{0, 0},
		Poles:    []complex128{complex(-0.1, 0.1), complex(-0.1, -0.1)},
		Constant: 100,
	}

	h := pz.Eval(1)
	s := complex(0, 2*math.Pi)
	want := complex(100, 0) * s * s / ((s - complex(-0.1, 0.1)) * (s - complex(-0.1, -0.1)))
	assert.InDelta(t, real(want), real(h), 1e-9)
	assert.InDelta(t, imag(want), imag(h), 1e-9)
}

func TestToVelocity(t *testing.T) {
	pz := PoleZero{
		Zeros:    []complex128{0, 0, 0},
		Poles:    []complex128{complex(-1, 0)},
		Constant: 5,
	}

	vel, err := pz.ToVelocity()
	require.NoError(t, err)
	assert.Len(t, vel.Zeros, 2)
	assert.Equal(t, pz.Poles, vel.Poles)
	assert.Equal(t, pz.Constant, vel.Constant)

	// Original untouched.
	assert.Len(t, pz.Zeros, 3)

	noOrigin := PoleZero{Zeros: []complex128{complex(-1, 0)}, Constant: 1}
	_, err = noOrigin.ToVelocity()
	assert.Error(t, err)
}

func TestPreFilter(t *testing.T) {
	pf := PreFilter{0.001, 0.005, 45, 50}

	assert.Equal(t, 0.0, pf.value(0))
	assert.Equal(t, 0.0, pf.value(0.0005))
	assert.Equal(t, 1.0, pf.value(1))
	assert.Equal(t, 1.0, pf.value(45))
	assert.Equal(t, 0.0, pf.value(55))
	assert.InDelta(t, 0.5, pf.value(0.003), 1e-9)
	assert.InDelta(t, 0.5, pf.value(47.5), 1e-9)
}

func TestPreFilterValidate(t *testing.T) {
	assert.NoError(t, PreFilter{0.001, 0.005, 45, 50}.validate())
	assert.Error(t, PreFilter{0.005, 0.001, 45, 50}.validate())
	assert.Error(t, PreFilter{-1, 0.005, 45, 50}.validate())
	assert.Error(t, PreFilter{}.validate())
}

func TestRemoveFlatResponse(t *testing.T) {
	const rate = 100.0
	n := 2000
	gain := 250.0

	data := make([]float64, n)
	for i := range data {
		data[i] = gain * math.Sin(2*math.Pi*1*float64(i)/rate)
	}

	pz := PoleZero{Constant: gain}
	out, err := Remove(data, 1/rate, pz, PreFilter{0.001, 0.005, 45, 50}, 60)
	require.NoError(t, err)
	require.Len(t, out, n)

	// A constant response scales the trace; removal recovers the unit sine.
	var sum float64
	for _, v := range out[200 : n-200] {
		sum += v * v
	}
	got := math.Sqrt(sum / float64(n-400))
	assert.InDelta(t, 1/math.Sqrt2, got, 0.05)
}

func TestRemoveWaterLevelBoundsGain(t *testing.T) {
	const rate = 100.0
	n := 1000
	data := make([]float64, n)
	for i := range data {
		data[i] = math.Sin(2 * math.Pi * 5 * float64(i) / rate)
	}

	// One zero at the origin kills the response at DC; the water level must
	// keep the division finite there.
	pz := PoleZero{Zeros: []complex128{0}, Poles: []complex128{complex(-40, 0)}, Constant: 1}
	out, err := Remove(data, 1/rate, pz, PreFilter{0.001, 0.005, 45, 50}, 60)
	require.NoError(t, err)
	for i, v := range out {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "sample %d", i)
	}

	wl := cmplx.Abs(pz.Eval(0))
	assert.Less(t, wl, 1e-12)
}

func TestRemoveValidation(t *testing.T) {
	pf := PreFilter{0.001, 0.005, 45, 50}

	_, err := Remove(nil, 0.01, PoleZero{Constant: 1}, pf, 60)
	assert.Error(t, err)

	_, err = Remove([]float64{1, 2}, 0.01, PoleZero{}, pf, 60)
	assert.Error(t, err)

	_, err = Remove([]float64{1, 2}, 0.01, PoleZero{Constant: 1}, PreFilter{1, 0.5, 45, 50}, 60)
	assert.Error(t, err)
}
