package scoring

// Points maps a similarity in [0,1] to round points. Thresholds are
// left-inclusive and evaluated top-down.
func Points(sim float64) int {
	switch {
	case sim >= 1.0:
		return 50
	case sim >= 0.75:
		return 30
	case sim >= 0.50:
		return 20
	case sim >= 0.25:
		return 10
	default:
		return 0
	}
}
