package transform

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestStandardNormaliser(t *testing.T) {
	m := mat.NewDense(4, 2, []float64{
		1, 100,
		2, 200,
		3, 300,
		4, 400,
	})
	n := &StandardNormaliser{}
	out, err := FitTransform(n, m)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	for j := 0; j < 2; j++ {
		col := mat.Col(nil, j, out)
		mean := nanMean(col)
		if math.Abs(mean) > 1e-12 {
			t.Fatalf("column %d mean = %v, want 0", j, mean)
		}
		if sd := nanStd(col, mean); math.Abs(sd-1) > 1e-12 {
			t.Fatalf("column %d std = %v, want 1", j, sd)
		}
	}
}

func TestMinMaxNormaliser(t *testing.T) {
	m := mat.NewDense(3, 1, []float64{2, 4, 6})
	n := &MinMaxNormaliser{}
	out, err := FitTransform(n, m)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	if out.At(0, 0) != 0 || out.At(2, 0) != 1 {
		t.Fatalf("expected endpoints 0 and 1, got %v and %v", out.At(0, 0), out.At(2, 0))
	}
	if out.At(1, 0) != 0.5 {
		t.Fatalf("expected midpoint 0.5, got %v", out.At(1, 0))
	}
}

func TestPowerNormaliserStandardises(t *testing.T) {
	// Strongly right-skewed column; after the power transform the column
	// must come back standardised.
	vals := []float64{0.1, 0.2, 0.3, 0.5, 1, 2, 5, 10, 20, 50}
	m := mat.NewDense(len(vals), 1, vals)
	n := &PowerNormaliser{}
	out, err := FitTransform(n, m)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	col := mat.Col(nil, 0, out)
	mean := nanMean(col)
	if math.Abs(mean) > 1e-9 {
		t.Fatalf("mean = %v, want 0", mean)
	}
	if sd := nanStd(col, mean); math.Abs(sd-1) > 1e-9 {
		t.Fatalf("std = %v, want 1", sd)
	}
	// Monotonicity must be preserved.
	for i := 1; i < len(col); i++ {
		if col[i] <= col[i-1] {
			t.Fatalf("transform not monotonic at %d: %v <= %v", i, col[i], col[i-1])
		}
	}
}

func TestYeoJohnsonIdentityLambda(t *testing.T) {
	// lambda = 1 leaves non-negative values unchanged.
	for _, x := range []float64{0, 0.5, 1, 10} {
		if got := yeoJohnson(x, 1); math.Abs(got-x) > 1e-12 {
			t.Fatalf("yeoJohnson(%v, 1) = %v", x, got)
		}
	}
	// lambda = 0 is log1p for non-negative values.
	if got := yeoJohnson(math.E-1, 0); math.Abs(got-1) > 1e-12 {
		t.Fatalf("yeoJohnson(e-1, 0) = %v, want 1", got)
	}
	// Negative branch at lambda = 2.
	if got := yeoJohnson(-(math.E - 1), 2); math.Abs(got+1) > 1e-12 {
		t.Fatalf("yeoJohnson(-(e-1), 2) = %v, want -1", got)
	}
}
