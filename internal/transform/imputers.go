package transform

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ErrAllRowsDropped is returned when no row survives the KNN observation
// threshold, leaving nothing to fit neighbours against.
var ErrAllRowsDropped = errors.New("transform: all rows below observation threshold")

func init() {
	RegisterImputer("mean", func() Imputer { return &MeanImputer{} })
	RegisterImputer("knn", func() Imputer { return NewKNNImputer() })
}

// MeanImputer replaces missing values with the column mean of the fitted
// data. Zeros count as missing, same as in KNNImputer.
type MeanImputer struct {
	means []float64
}

// Fit records per-column means, ignoring missing cells.
func (im *MeanImputer) Fit(m *mat.Dense) error {
	clean := zerosToNaN(m)
	_, c := clean.Dims()
	im.means = make([]float64, c)
	for j := 0; j < c; j++ {
		im.means[j] = nanMean(mat.Col(nil, j, clean))
	}
	return nil
}

// Transform returns a copy of m with missing cells replaced by the
// fitted column means.
func (im *MeanImputer) Transform(m *mat.Dense) (*mat.Dense, error) {
	if im.means == nil {
		return nil, ErrNotFitted
	}
	r, c := m.Dims()
	if c != len(im.means) {
		return nil, ErrShape
	}
	clean := zerosToNaN(m)
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := clean.At(i, j)
			if math.IsNaN(v) {
				v = im.means[j]
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

func (im *MeanImputer) String() string { return "Mean Imputation" }

func (im *MeanImputer) Explanation() string {
	return "Missing values are replaced with the mean of the observed values in the same sample."
}

// KNNImputer fills missing values from the K nearest genes by
// nan-Euclidean distance. Zeros are treated as missing, and genes
// observed in fewer than SampleThreshold of the samples are dropped
// entirely (their rows transform to all-missing), matching the behaviour
// the pipeline has always had for hopeless rows.
type KNNImputer struct {
	K               int
	SampleThreshold float64

	fit *mat.Dense // surviving rows of the fitted data, zeros already NaN
}

// NewKNNImputer returns a KNNImputer with k=5 neighbours and a 0.5
// observation threshold.
func NewKNNImputer() *KNNImputer {
	return &KNNImputer{K: 5, SampleThreshold: 0.5}
}

// Fit stores the rows of m that pass the observation threshold as the
// neighbour pool.
func (im *KNNImputer) Fit(m *mat.Dense) error {
	clean := zerosToNaN(m)
	r, c := clean.Dims()
	min := im.SampleThreshold * float64(c)
	var rows [][]float64
	for i := 0; i < r; i++ {
		row := mat.Row(nil, i, clean)
		if observed(row) >= min {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return ErrAllRowsDropped
	}
	im.fit = mat.NewDense(len(rows), c, nil)
	for i, row := range rows {
		im.fit.SetRow(i, row)
	}
	return nil
}

// Transform imputes missing cells of m from the fitted neighbour pool.
// Rows below the observation threshold come back as all-NaN so callers
// can drop them.
func (im *KNNImputer) Transform(m *mat.Dense) (*mat.Dense, error) {
	if im.fit == nil {
		return nil, ErrNotFitted
	}
	r, c := m.Dims()
	if _, fc := im.fit.Dims(); fc != c {
		return nil, ErrShape
	}
	clean := zerosToNaN(m)
	out := mat.NewDense(r, c, nil)
	min := im.SampleThreshold * float64(c)
	for i := 0; i < r; i++ {
		row := mat.Row(nil, i, clean)
		if observed(row) < min {
			for j := 0; j < c; j++ {
				out.Set(i, j, math.NaN())
			}
			continue
		}
		for j := 0; j < c; j++ {
			v := row[j]
			if !math.IsNaN(v) {
				out.Set(i, j, v)
				continue
			}
			out.Set(i, j, im.neighbourMean(row, j))
		}
	}
	return out, nil
}

// neighbourMean averages column j over the K fitted rows nearest to row.
// Falls back to the fitted column mean when no neighbour observes j.
func (im *KNNImputer) neighbourMean(row []float64, j int) float64 {
	type cand struct {
		dist  float64
		value float64
	}
	fr, _ := im.fit.Dims()
	var cands []cand
	for i := 0; i < fr; i++ {
		other := im.fit.RawRowView(i)
		if math.IsNaN(other[j]) {
			continue
		}
		d := nanEuclidean(row, other)
		if math.IsNaN(d) {
			continue
		}
		cands = append(cands, cand{dist: d, value: other[j]})
	}
	if len(cands) == 0 {
		return nanMean(mat.Col(nil, j, im.fit))
	}
	sort.Slice(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })
	k := im.K
	if k > len(cands) {
		k = len(cands)
	}
	sum := 0.0
	for _, c := range cands[:k] {
		sum += c.value
	}
	return sum / float64(k)
}

func (im *KNNImputer) String() string { return "KNN Imputation" }

func (im *KNNImputer) Explanation() string {
	return "Missing values are estimated from the genes with the most similar expression profiles."
}

// nanEuclidean is the Euclidean distance over co-observed coordinates,
// scaled up by the fraction of coordinates that were usable. NaN when the
// vectors share no observed coordinate.
func nanEuclidean(a, b []float64) float64 {
	sum := 0.0
	present := 0
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		d := a[i] - b[i]
		sum += d * d
		present++
	}
	if present == 0 {
		return math.NaN()
	}
	return math.Sqrt(float64(len(a)) / float64(present) * sum)
}

func zerosToNaN(m *mat.Dense) *mat.Dense {
	return applyElementwise(m, func(v float64) float64 {
		if v == 0 {
			return math.NaN()
		}
		return v
	})
}

func observed(row []float64) float64 {
	n := 0
	for _, v := range row {
		if !math.IsNaN(v) {
			n++
		}
	}
	return float64(n)
}

func nanMean(xs []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range xs {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
