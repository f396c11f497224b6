package transform

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

func init() {
	RegisterNormaliser("standard", func() Normaliser { return &StandardNormaliser{} })
	RegisterNormaliser("minmax", func() Normaliser { return &MinMaxNormaliser{} })
	RegisterNormaliser("power", func() Normaliser { return &PowerNormaliser{} })
}

// StandardNormaliser centres each sample column to mean 0 and scales it
// to unit standard deviation.
type StandardNormaliser struct {
	means, stds []float64
}

// Fit records per-column mean and population standard deviation,
// ignoring missing cells.
func (n *StandardNormaliser) Fit(m *mat.Dense) error {
	_, c := m.Dims()
	n.means = make([]float64, c)
	n.stds = make([]float64, c)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, m)
		n.means[j] = nanMean(col)
		n.stds[j] = nanStd(col, n.means[j])
	}
	return nil
}

// Transform applies (x - mean) / std per column.
func (n *StandardNormaliser) Transform(m *mat.Dense) (*mat.Dense, error) {
	if n.means == nil {
		return nil, ErrNotFitted
	}
	r, c := m.Dims()
	if c != len(n.means) {
		return nil, ErrShape
	}
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			out.Set(i, j, (m.At(i, j)-n.means[j])/n.stds[j])
		}
	}
	return out, nil
}

func (n *StandardNormaliser) String() string { return "Standard Scaler" }

func (n *StandardNormaliser) Explanation() string {
	return "Each sample is centred to zero mean and scaled to unit variance."
}

// MinMaxNormaliser rescales each sample column to the [0, 1] range.
type MinMaxNormaliser struct {
	mins, maxs []float64
}

// Fit records per-column minima and maxima, ignoring missing cells.
func (n *MinMaxNormaliser) Fit(m *mat.Dense) error {
	_, c := m.Dims()
	n.mins = make([]float64, c)
	n.maxs = make([]float64, c)
	for j := 0; j < c; j++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		col := mat.Col(nil, j, m)
		for _, v := range col {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		n.mins[j], n.maxs[j] = lo, hi
	}
	return nil
}

// Transform applies (x - min) / (max - min) per column.
func (n *MinMaxNormaliser) Transform(m *mat.Dense) (*mat.Dense, error) {
	if n.mins == nil {
		return nil, ErrNotFitted
	}
	r, c := m.Dims()
	if c != len(n.mins) {
		return nil, ErrShape
	}
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		span := n.maxs[j] - n.mins[j]
		for i := 0; i < r; i++ {
			out.Set(i, j, (m.At(i, j)-n.mins[j])/span)
		}
	}
	return out, nil
}

func (n *MinMaxNormaliser) String() string { return "Min-Max Scaler" }

func (n *MinMaxNormaliser) Explanation() string {
	return "Each sample is rescaled onto the unit interval."
}

// PowerNormaliser applies a per-column Yeo-Johnson power transform with
// the lambda that maximises the transform's log-likelihood, then
// standardises the result. This pulls skewed expression distributions
// towards a normal shape.
type PowerNormaliser struct {
	lambdas     []float64
	means, stds []float64
}

// Fit estimates the Yeo-Johnson lambda for each column and records the
// post-transform mean and standard deviation for standardisation.
func (n *PowerNormaliser) Fit(m *mat.Dense) error {
	_, c := m.Dims()
	n.lambdas = make([]float64, c)
	n.means = make([]float64, c)
	n.stds = make([]float64, c)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, m)
		lambda := fitYeoJohnsonLambda(col)
		n.lambdas[j] = lambda
		t := make([]float64, len(col))
		for i, v := range col {
			t[i] = yeoJohnson(v, lambda)
		}
		n.means[j] = nanMean(t)
		n.stds[j] = nanStd(t, n.means[j])
	}
	return nil
}

// Transform applies the fitted Yeo-Johnson transform and standardises
// each column.
func (n *PowerNormaliser) Transform(m *mat.Dense) (*mat.Dense, error) {
	if n.lambdas == nil {
		return nil, ErrNotFitted
	}
	r, c := m.Dims()
	if c != len(n.lambdas) {
		return nil, ErrShape
	}
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			v := yeoJohnson(m.At(i, j), n.lambdas[j])
			out.Set(i, j, (v-n.means[j])/n.stds[j])
		}
	}
	return out, nil
}

func (n *PowerNormaliser) String() string { return "Power Scaler" }

func (n *PowerNormaliser) Explanation() string {
	return "A Yeo-Johnson power transform reshapes each sample towards a normal distribution."
}

// yeoJohnson evaluates the Yeo-Johnson transform at x for shape lambda.
func yeoJohnson(x, lambda float64) float64 {
	switch {
	case math.IsNaN(x):
		return x
	case x >= 0 && lambda != 0:
		return (math.Pow(x+1, lambda) - 1) / lambda
	case x >= 0:
		return math.Log1p(x)
	case lambda != 2:
		return -(math.Pow(1-x, 2-lambda) - 1) / (2 - lambda)
	default:
		return -math.Log1p(-x)
	}
}

// yeoJohnsonLogLikelihood is the profile log-likelihood of lambda for the
// observed values in xs.
func yeoJohnsonLogLikelihood(xs []float64, lambda float64) float64 {
	t := make([]float64, 0, len(xs))
	jac := 0.0
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		t = append(t, yeoJohnson(x, lambda))
		sign := 1.0
		if x < 0 {
			sign = -1.0
		}
		jac += sign * math.Log1p(math.Abs(x))
	}
	if len(t) < 2 {
		return math.Inf(-1)
	}
	mean := nanMean(t)
	variance := 0.0
	for _, v := range t {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(t))
	if variance <= 0 {
		return math.Inf(-1)
	}
	return -0.5*float64(len(t))*math.Log(variance) + (lambda-1)*jac
}

// fitYeoJohnsonLambda maximises the log-likelihood over [-5, 5] by
// golden-section search. The likelihood is unimodal in lambda, so the
// search converges to the MLE.
func fitYeoJohnsonLambda(xs []float64) float64 {
	const (
		lo, hi = -5.0, 5.0
		phi    = 0.6180339887498949
		tol    = 1e-6
	)
	a, b := lo, hi
	c := b - phi*(b-a)
	d := a + phi*(b-a)
	fc := yeoJohnsonLogLikelihood(xs, c)
	fd := yeoJohnsonLogLikelihood(xs, d)
	for b-a > tol {
		if fc > fd {
			b, d, fd = d, c, fc
			c = b - phi*(b-a)
			fc = yeoJohnsonLogLikelihood(xs, c)
		} else {
			a, c, fc = c, d, fd
			d = a + phi*(b-a)
			fd = yeoJohnsonLogLikelihood(xs, d)
		}
	}
	return (a + b) / 2
}

// nanStd is the population standard deviation ignoring missing cells.
func nanStd(xs []float64, mean float64) float64 {
	sum, n := 0.0, 0
	for _, v := range xs {
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		sum += d * d
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(n))
}
