package transform

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

func init() {
	RegisterScaler("log2", func() Scaler { return &LogScaler{Base: 2, name: "Log2 Scaler"} })
	RegisterScaler("log10", func() Scaler { return &LogScaler{Base: 10, name: "Log10 Scaler"} })
	RegisterScaler("ln", func() Scaler { return &LogScaler{Base: math.E, name: "Natural Log Scaler"} })
	RegisterScaler("glog", func() Scaler { return NewGLogScaler(0.5) })
	RegisterScaler("arcsinh", func() Scaler { return &ArcsinhScaler{} })
}

// applyElementwise returns a copy of m with fn applied to every finite cell.
func applyElementwise(m *mat.Dense, fn func(float64) float64) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) {
				out.Set(i, j, v)
				continue
			}
			out.Set(i, j, fn(v))
		}
	}
	return out
}

// LogScaler applies a logarithm of the given base. Zeros in the raw data
// would map to -Inf; those cells are clamped to 0 so that downstream
// imputation still sees them as the missing-data marker.
type LogScaler struct {
	Base float64
	name string
}

// Fit is a no-op; log scaling has no parameters to learn.
func (s *LogScaler) Fit(*mat.Dense) error { return nil }

// Transform applies the logarithm elementwise.
func (s *LogScaler) Transform(m *mat.Dense) (*mat.Dense, error) {
	logBase := math.Log(s.Base)
	return applyElementwise(m, func(v float64) float64 {
		out := math.Log(v) / logBase
		if math.IsInf(out, -1) {
			return 0
		}
		return out
	}), nil
}

func (s *LogScaler) String() string { return s.name }

func (s *LogScaler) Explanation() string {
	return "Log scaling compresses the dynamic range of intensities and makes fold changes additive."
}

// GLogScaler is the generalised log, which tolerates zero and negative
// values. Lambda controls the shape of the function.
type GLogScaler struct {
	Lambda float64
}

// NewGLogScaler returns a GLogScaler with the given shape parameter.
func NewGLogScaler(lambda float64) *GLogScaler { return &GLogScaler{Lambda: lambda} }

// Fit is a no-op; the shape parameter is supplied, not learned.
func (s *GLogScaler) Fit(*mat.Dense) error { return nil }

// Transform applies log(x^lambda - 1) / lambda elementwise.
func (s *GLogScaler) Transform(m *mat.Dense) (*mat.Dense, error) {
	return applyElementwise(m, func(v float64) float64 {
		return math.Log(math.Pow(v, s.Lambda)-1) / s.Lambda
	}), nil
}

func (s *GLogScaler) String() string { return "Generalised Log Scaler" }

func (s *GLogScaler) Explanation() string {
	return "The generalised log handles zero and negative values that a plain logarithm cannot."
}

// ArcsinhScaler applies the inverse hyperbolic sine, which also tolerates
// zero and negative values.
type ArcsinhScaler struct{}

// Fit is a no-op.
func (s *ArcsinhScaler) Fit(*mat.Dense) error { return nil }

// Transform applies arcsinh elementwise.
func (s *ArcsinhScaler) Transform(m *mat.Dense) (*mat.Dense, error) {
	return applyElementwise(m, math.Asinh), nil
}

func (s *ArcsinhScaler) String() string { return "Arcsinh Scaler" }

func (s *ArcsinhScaler) Explanation() string {
	return "Arcsinh behaves like a logarithm for large values while remaining defined at zero."
}
