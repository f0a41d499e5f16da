package facematch

import "image"

// ComputeIoU calculates Intersection over Union between two rectangles.
func ComputeIoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0 // No intersection
	}

	intersection := area(inter)
	union := area(a) + area(b) - intersection
	if union <= 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

func area(r image.Rectangle) int {
	if r.Empty() {
		return 0
	}
	return r.Dx() * r.Dy()
}

// ClampRegion clips r to the frame bounds. The second result is false when
// the clipped region is smaller than minSize on either axis.
func ClampRegion(r, bounds image.Rectangle, minSize int) (image.Rectangle, bool) {
	r = r.Canon().Intersect(bounds)
	if r.Dx() < minSize || r.Dy() < minSize {
		return image.Rectangle{}, false
	}
	return r, true
}

// SuppressDuplicates drops regions overlapping an earlier kept region by at
// least threshold IoU. Input order decides which region survives.
func SuppressDuplicates(regions []image.Rectangle, threshold float64) []image.Rectangle {
	kept := make([]image.Rectangle, 0, len(regions))
	for _, r := range regions {
		dup := false
		for _, k := range kept {
			if ComputeIoU(r, k) >= threshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, r)
		}
	}
	return kept
}

// BBoxToRect converts an [x1, y1, x2, y2] pixel bounding box into a rectangle.
func BBoxToRect(bbox []float64) (image.Rectangle, bool) {
	if len(bbox) != 4 {
		return image.Rectangle{}, false
	}
	return image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])), true
}
