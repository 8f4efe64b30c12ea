package scene

// dimensionEpsilon guards the ratio divisions against zero-sized axes.
const dimensionEpsilon = 1e-6

// Shape flag thresholds. The detector's archetype weights assume these
// exact bounds; change them together with the pattern rules.
const (
	flatRatio      = 0.2
	tallRatio      = 2.0
	wideRatio      = 2.0
	cubicMaxSpread = 1.5
)

// CalculateProportions derives ratios and shape flags from object
// dimensions. It always returns a value: dimensions are clamped to a
// small positive epsilon, and anything that is not a 3-vector is
// treated as a unit cube.
func CalculateProportions(dimensions []float64) ProportionInfo {
	x, y, z := 1.0, 1.0, 1.0
	if len(dimensions) == 3 {
		x, y, z = dimensions[0], dimensions[1], dimensions[2]
	}

	x = clampDim(x)
	y = clampDim(y)
	z = clampDim(z)

	info := ProportionInfo{
		RatioXY:     x / y,
		RatioXZ:     x / z,
		RatioYZ:     y / z,
		Volume:      x * y * z,
		SurfaceArea: 2 * (x*y + x*z + y*z),
	}

	info.IsFlat = z < flatRatio*min2(x, y)
	info.IsTall = z > tallRatio*max2(x, y)
	info.IsWide = x > wideRatio*max2(y, z)
	info.IsCubic = max3(x, y, z)/min3(x, y, z) < cubicMaxSpread

	// Argmax with x/y/z tie-break order.
	info.DominantAxis = "x"
	if y > x && y >= z {
		info.DominantAxis = "y"
	} else if z > x && z > y {
		info.DominantAxis = "z"
	}

	return info
}

func clampDim(v float64) float64 {
	if v < dimensionEpsilon {
		return dimensionEpsilon
	}
	return v
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min3(a, b, c float64) float64 {
	return min2(a, min2(b, c))
}

func max3(a, b, c float64) float64 {
	return max2(a, max2(b, c))
}
