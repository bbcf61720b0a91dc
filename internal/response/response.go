// Package response removes instrument transfer functions from waveforms.
//
// A response is modelled as poles, zeros and an overall constant in the
// Laplace domain (radians per second). Responses are read from SAC pole-zero
// files, SEED RESP files, or FDSN StationXML, and removed by water-level
// stabilized spectral division with a cosine pre-filter.
package response

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// PoleZero is an instrument transfer function in the analog (Laplace) domain.
// Constant is the product of the normalization factor A0 and the overall
// sensitivity, giving counts per input unit.
type PoleZero struct {
	Zeros    []complex128
	Poles    []complex128
	Constant float64
}

// Eval returns the transfer function value at the given frequency in Hz.
func (pz PoleZero) Eval(freq float64) complex128 {
	s := complex(0, 2*math.Pi*freq)
	h := complex(pz.Constant, 0)
	for _, z := range pz.Zeros {
		h *= s - z
	}
	for _, p := range pz.Poles {
		h /= s - p
	}
	return h
}

// ToVelocity converts a displacement response to a velocity response by
// removing one zero at the origin. Errors if no such zero exists.
func (pz PoleZero) ToVelocity() (PoleZero, error) {
	for i, z := range pz.Zeros {
		if z == 0 {
			out := PoleZero{
				Zeros:    make([]complex128, 0, len(pz.Zeros)-1),
				Poles:    pz.Poles,
				Constant: pz.Constant,
			}
			out.Zeros = append(out.Zeros, pz.Zeros[:i]...)
			out.Zeros = append(out.Zeros, pz.Zeros[i+1:]...)
			return out, nil
		}
	}
	return PoleZero{}, fmt.Errorf("response has no zero at the origin")
}

// PreFilter is a four-corner frequency taper [f1, f2, f3, f4] applied to the
// spectrum during deconvolution: zero below f1 and above f4, unity between f2
// and f3, cosine ramps in between.
type PreFilter [4]float64

func (pf PreFilter) value(f float64) float64 {
	f1, f2, f3, f4 := pf[0], pf[1], pf[2], pf[3]
	switch {
	case f <= f1 || f >= f4:
		return 0
	case f >= f2 && f <= f3:
		return 1
	case f < f2:
		return 0.5 * (1 - math.Cos(math.Pi*(f-f1)/(f2-f1)))
	default:
		return 0.5 * (1 + math.Cos(math.Pi*(f-f3)/(f4-f3)))
	}
}

func (pf PreFilter) validate() error {
	if !(pf[0] < pf[1] && pf[1] < pf[2] && pf[2] < pf[3]) {
		return fmt.Errorf("pre-filter corners %v not strictly increasing", [4]float64(pf))
	}
	if pf[0] < 0 {
		return fmt.Errorf("pre-filter corner %g below zero", pf[0])
	}
	return nil
}

// Remove deconvolves the instrument response from the trace and returns the
// corrected samples. The spectrum is divided by the response evaluated on the
// FFT grid, stabilized by a water level in dB below the response peak, and
// shaped by the pre-filter. The input is not modified.
func Remove(data []float64, delta float64, pz PoleZero, preFilt PreFilter, waterLevelDB float64) ([]float64, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("remove response: empty trace")
	}
	if pz.Constant == 0 {
		return nil, fmt.Errorf("remove response: zero constant")
	}
	if err := preFilt.validate(); err != nil {
		return nil, fmt.Errorf("remove response: %w", err)
	}

	// Pad to twice the trace length to keep the circular deconvolution from
	// wrapping energy around the ends.
	nfft := nextPow2(2 * n)
	padded := make([]float64, nfft)
	copy(padded, data)

	fft := fourier.NewFFT(nfft)
	spec := fft.Coefficients(nil, padded)

	df := 1 / (float64(nfft) * delta)
	resp := make([]complex128, len(spec))
	peak := 0.0
	for k := range resp {
		resp[k] = pz.Eval(float64(k) * df)
		if a := cmplx.Abs(resp[k]); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return nil, fmt.Errorf("remove response: transfer function vanishes everywhere")
	}

	// Clip the response magnitude at the water level so the division cannot
	// blow up where the instrument has no sensitivity.
	wl := peak * math.Pow(10, -waterLevelDB/20)
	for k, h := range resp {
		a := cmplx.Abs(h)
		switch {
		case a == 0:
			resp[k] = complex(wl, 0)
		case a < wl:
			resp[k] = h * complex(wl/a, 0)
		}
	}

	for k := range spec {
		taper := preFilt.value(float64(k) * df)
		spec[k] = spec[k] / resp[k] * complex(taper, 0)
	}

	out := fft.Sequence(nil, spec)
	scale := 1 / float64(nfft)
	result := make([]float64, n)
	for i := range result {
		result[i] = out[i] * scale
	}
	return result, nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
