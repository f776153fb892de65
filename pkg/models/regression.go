package models

import "math"

// line is y = intercept + slope*x.
type line struct {
	slope, intercept float64
}

func (l line) at(x float64) float64 { return l.intercept + l.slope*x }

// fitLine computes the ordinary least squares line through (xs, ys) using
// centered sums. It needs at least two distinct x values.
func fitLine(xs, ys []float64) (line, bool) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return line{}, false
	}
	mx, my := mean(xs), mean(ys)
	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - mx
		sxx += dx * dx
		sxy += dx * (ys[i] - my)
	}
	if sxx == 0 {
		return line{}, false
	}
	slope := sxy / sxx
	return line{slope: slope, intercept: my - slope*mx}, true
}

// goodness returns the mean absolute error and coefficient of determination
// of l over the samples. A series with no variance that l fits exactly has
// R² = 1; one it does not fit has R² = 0.
func goodness(l line, xs, ys []float64) (mae, r2 float64) {
	my := mean(ys)
	var absErr, ssRes, ssTot float64
	for i := range xs {
		res := ys[i] - l.at(xs[i])
		absErr += math.Abs(res)
		ssRes += res * res
		d := ys[i] - my
		ssTot += d * d
	}
	mae = absErr / float64(len(xs))

	const eps = 1e-12
	switch {
	case ssTot <= eps && ssRes <= eps:
		r2 = 1
	case ssTot <= eps:
		r2 = 0
	default:
		r2 = 1 - ssRes/ssTot
	}
	return mae, r2
}

func mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// sampleStdDev is the standard deviation with Bessel's correction.
func sampleStdDev(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	m := mean(series)
	var sumSq float64
	for _, v := range series {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(series)-1))
}
