package detect

import "math"

// PointDistance returns the euclidean distance between two detections'
// anchor coordinates.
func PointDistance(a, b Detection) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// BBoxIoU returns the intersection-over-union of two bbox detections.
func BBoxIoU(a, b Detection) float64 {
	interW := math.Max(0, math.Min(a.X+a.Width, b.X+b.Width)-math.Max(a.X, b.X))
	interH := math.Max(0, math.Min(a.Y+a.Height, b.Y+b.Height)-math.Max(a.Y, b.Y))
	interArea := interW * interH
	union := a.Width*a.Height + b.Width*b.Height - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

// BBoxCenterDistance returns the distance between two boxes' centers.
func BBoxCenterDistance(a, b Detection) float64 {
	ac := Point(a.X+a.Width/2, a.Y+a.Height/2, nil)
	bc := Point(b.X+b.Width/2, b.Y+b.Height/2, nil)
	return PointDistance(ac, bc)
}
