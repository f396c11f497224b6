package transform

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNonFinite is returned when a reducer is given NaN or Inf values;
// callers are expected to drop incomplete genes first.
var ErrNonFinite = errors.New("transform: non-finite values in input")

func init() {
	RegisterReducer("pca", func() Reducer { return &PCA{} })
}

// PCA projects samples onto the principal components of the
// samples-by-genes matrix. The pipeline's matrices are genes-by-samples,
// so Fit and Transform work on the transpose: each sample is one
// observation, each gene one feature.
type PCA struct {
	vectors *mat.Dense
	means   []float64
	vars    []float64
}

// Fit computes the principal component vectors of m's transpose.
func (p *PCA) Fit(m *mat.Dense) error {
	x, err := transposeFinite(m)
	if err != nil {
		return err
	}
	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return errors.New("transform: principal component decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	p.vectors = &vecs
	p.vars = pc.VarsTo(nil)

	_, c := x.Dims()
	p.means = make([]float64, c)
	for j := 0; j < c; j++ {
		p.means[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	return nil
}

// Transform returns the samples-by-components score matrix for m.
func (p *PCA) Transform(m *mat.Dense) (*mat.Dense, error) {
	if p.vectors == nil {
		return nil, ErrNotFitted
	}
	x, err := transposeFinite(m)
	if err != nil {
		return nil, err
	}
	r, c := x.Dims()
	if c != len(p.means) {
		return nil, ErrShape
	}
	centred := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			centred.Set(i, j, x.At(i, j)-p.means[j])
		}
	}
	var scores mat.Dense
	scores.Mul(centred, p.vectors)
	return &scores, nil
}

// ExplainedVariance returns the fraction of total variance captured by
// each component.
func (p *PCA) ExplainedVariance() []float64 {
	if p.vars == nil {
		return nil
	}
	total := 0.0
	for _, v := range p.vars {
		total += v
	}
	out := make([]float64, len(p.vars))
	for i, v := range p.vars {
		out[i] = v / total
	}
	return out
}

func (p *PCA) String() string { return "PCA" }

func (p *PCA) Explanation() string {
	return "Principal component analysis projects samples onto the directions of greatest variance."
}

func transposeFinite(m *mat.Dense) (*mat.Dense, error) {
	r, c := m.Dims()
	out := mat.NewDense(c, r, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, ErrNonFinite
			}
			out.Set(j, i, v)
		}
	}
	return out, nil
}
