package scene

import (
	"math"
	"testing"
)

func TestUnitCubeProportions(t *testing.T) {
	p := CalculateProportions([]float64{1, 1, 1})

	for name, ratio := range map[string]float64{
		"xy": p.RatioXY, "xz": p.RatioXZ, "yz": p.RatioYZ,
	} {
		if math.Abs(ratio-1.0) > 1e-9 {
			t.Errorf("ratio %s = %v, want 1.0", name, ratio)
		}
	}
	if !p.IsCubic {
		t.Error("unit cube should be cubic")
	}
	if p.IsFlat || p.IsTall || p.IsWide {
		t.Errorf("unit cube got flat=%v tall=%v wide=%v, want all false", p.IsFlat, p.IsTall, p.IsWide)
	}
	if math.Abs(p.Volume-1.0) > 1e-9 {
		t.Errorf("volume = %v, want 1", p.Volume)
	}
	if math.Abs(p.SurfaceArea-6.0) > 1e-9 {
		t.Errorf("surface area = %v, want 6", p.SurfaceArea)
	}
}

func TestEmptyInputDefaultsToUnitCube(t *testing.T) {
	p := CalculateProportions(nil)
	if !p.IsCubic || p.Volume != 1.0 {
		t.Errorf("empty input should yield unit-cube result, got %+v", p)
	}
}

func TestZeroDimensionsDoNotProduceInfinities(t *testing.T) {
	p := CalculateProportions([]float64{0, 0, 0})
	for _, v := range []float64{p.RatioXY, p.RatioXZ, p.RatioYZ, p.Volume, p.SurfaceArea} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("zero dimensions produced NaN/Inf: %+v", p)
		}
	}
}

func TestFlagAssignments(t *testing.T) {
	tests := []struct {
		name string
		dims []float64
		flat bool
		tall bool
		wide bool
	}{
		{"tower", []float64{0.3, 0.3, 3.0}, false, true, false},
		{"phone", []float64{0.4, 0.8, 0.05}, true, false, false},
		{"table top", []float64{2, 1.5, 0.1}, true, false, false},
		{"plank", []float64{5, 1, 1}, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := CalculateProportions(tt.dims)
			if p.IsFlat != tt.flat || p.IsTall != tt.tall || p.IsWide != tt.wide {
				t.Errorf("dims %v: got flat=%v tall=%v wide=%v, want flat=%v tall=%v wide=%v",
					tt.dims, p.IsFlat, p.IsTall, p.IsWide, tt.flat, tt.tall, tt.wide)
			}
		})
	}
}

func TestFlatAndTallAreMutuallyExclusive(t *testing.T) {
	// Sweep a grid of dimension triples; the flags must never both fire.
	steps := []float64{0.01, 0.05, 0.2, 0.5, 1, 2, 5, 20}
	for _, x := range steps {
		for _, y := range steps {
			for _, z := range steps {
				p := CalculateProportions([]float64{x, y, z})
				if p.IsFlat && p.IsTall {
					t.Fatalf("dims [%v %v %v]: flat and tall both true", x, y, z)
				}
			}
		}
	}
}

func TestDominantAxis(t *testing.T) {
	tests := []struct {
		dims []float64
		want string
	}{
		{[]float64{3, 1, 1}, "x"},
		{[]float64{1, 3, 1}, "y"},
		{[]float64{1, 1, 3}, "z"},
		{[]float64{2, 2, 2}, "x"}, // tie-break order x before y before z
		{[]float64{1, 2, 2}, "y"},
	}
	for _, tt := range tests {
		p := CalculateProportions(tt.dims)
		if p.DominantAxis != tt.want {
			t.Errorf("dims %v: dominant axis %q, want %q", tt.dims, p.DominantAxis, tt.want)
		}
	}
}
