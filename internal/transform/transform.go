package transform

// Package transform holds the preprocessing stages of the analysis
// pipeline. Every stage follows the same fit/transform contract over a
// genes-by-samples matrix, and each kind of stage has a name registry so
// entrypoints can construct stages from configuration strings.

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotFitted is returned by Transform before Fit has been called.
	ErrNotFitted = errors.New("transform: not fitted")
	// ErrShape is returned when a matrix does not match the fitted shape.
	ErrShape = errors.New("transform: shape mismatch")
)

// Transformer is the common fit/transform contract. String returns the
// human-readable name used in reports; Explanation returns an optional
// sentence describing when the method is appropriate.
type Transformer interface {
	Fit(m *mat.Dense) error
	Transform(m *mat.Dense) (*mat.Dense, error)
	fmt.Stringer
	Explanation() string
}

// Scaler rescales raw intensities onto an analysable scale.
type Scaler interface{ Transformer }

// Imputer fills in missing values.
type Imputer interface{ Transformer }

// Normaliser maps data onto a common distribution across samples.
type Normaliser interface{ Transformer }

// Reducer projects samples into a low-dimensional space. Transform
// returns a samples-by-components score matrix.
type Reducer interface {
	Transformer
	ExplainedVariance() []float64
}

// FitTransform fits t to m and returns the transformed matrix.
func FitTransform(t Transformer, m *mat.Dense) (*mat.Dense, error) {
	if err := t.Fit(m); err != nil {
		return nil, err
	}
	return t.Transform(m)
}

var (
	scalers     = map[string]func() Scaler{}
	imputers    = map[string]func() Imputer{}
	normalisers = map[string]func() Normaliser{}
	reducers    = map[string]func() Reducer{}
)

// RegisterScaler registers a scaler factory under name. Last registration wins.
func RegisterScaler(name string, fn func() Scaler) { scalers[name] = fn }

// RegisterImputer registers an imputer factory under name.
func RegisterImputer(name string, fn func() Imputer) { imputers[name] = fn }

// RegisterNormaliser registers a normaliser factory under name.
func RegisterNormaliser(name string, fn func() Normaliser) { normalisers[name] = fn }

// RegisterReducer registers a reducer factory under name.
func RegisterReducer(name string, fn func() Reducer) { reducers[name] = fn }

// NewScaler constructs the scaler registered under name.
func NewScaler(name string) (Scaler, error) {
	fn, ok := scalers[name]
	if !ok {
		return nil, fmt.Errorf("transform: unknown scaler %q", name)
	}
	return fn(), nil
}

// NewImputer constructs the imputer registered under name.
func NewImputer(name string) (Imputer, error) {
	fn, ok := imputers[name]
	if !ok {
		return nil, fmt.Errorf("transform: unknown imputer %q", name)
	}
	return fn(), nil
}

// NewNormaliser constructs the normaliser registered under name.
func NewNormaliser(name string) (Normaliser, error) {
	fn, ok := normalisers[name]
	if !ok {
		return nil, fmt.Errorf("transform: unknown normaliser %q", name)
	}
	return fn(), nil
}

// NewReducer constructs the reducer registered under name.
func NewReducer(name string) (Reducer, error) {
	fn, ok := reducers[name]
	if !ok {
		return nil, fmt.Errorf("transform: unknown reducer %q", name)
	}
	return fn(), nil
}

// ScalerNames lists registered scaler names, sorted.
func ScalerNames() []string { return sortedKeys(scalers) }

// ImputerNames lists registered imputer names, sorted.
func ImputerNames() []string { return sortedKeys(imputers) }

// NormaliserNames lists registered normaliser names, sorted.
func NormaliserNames() []string { return sortedKeys(normalisers) }

// ReducerNames lists registered reducer names, sorted.
func ReducerNames() []string { return sortedKeys(reducers) }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
