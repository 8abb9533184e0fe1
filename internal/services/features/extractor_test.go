package features

import (
	"math"
	"testing"
)

func TestPctReturns(t *testing.T) {
	got := PctReturns([]float64{100, 110, 99, 0, 5})
	if len(got) != 4 {
		t.Fatalf("len = %d", len(got))
	}
	if math.Abs(got[0]-0.10) > 1e-12 || math.Abs(got[1]+0.10) > 1e-12 {
		t.Fatalf("returns = %v", got)
	}
	if !math.IsNaN(got[3]) {
		t.Fatalf("return after zero close should be NaN, got %v", got[3])
	}
	if clean := CleanReturns(got); len(clean) != 3 {
		t.Fatalf("CleanReturns kept %d", len(clean))
	}
	if PctReturns([]float64{1}) != nil {
		t.Fatal("single close must give no returns")
	}
}

func TestRealizedVolatility(t *testing.T) {
	// alternating +1%/-1%: sample sd ~ 0.01 * sqrt(n/(n-1))
	rets := make([]float64, 100)
	for i := range rets {
		if i%2 == 0 {
			rets[i] = 0.01
		} else {
			rets[i] = -0.01
		}
	}
	got := RealizedVolatility(rets, 0, 252)
	want := 0.01 * math.Sqrt(100.0/99.0) * math.Sqrt(252)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("vol = %v, want %v", got, want)
	}
	if RealizedVolatility(rets, 200, 252) != 0 {
		t.Fatal("window longer than data must give 0")
	}
}

func TestPeriodsPerYear(t *testing.T) {
	if PeriodsPerYear("1D") != 252 || PeriodsPerYear("") != 252 {
		t.Fatal("daily should be 252")
	}
	if PeriodsPerYear("5m") <= PeriodsPerYear("1D") {
		t.Fatal("intraday must annualize with more periods")
	}
}
