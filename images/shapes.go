// Package images - Image decoding, tensor packing and box geometry.
package images

import "image"

// Rect is a lightweight bounding box in pixel coordinates.
type Rect struct {
	// X2,Y2 are inclusive: the box covers X2-X1+1 columns.
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Area returns the number of pixels covered by r, counting both edges.
func (r Rect) Area() int {
	w, h := r.X2-r.X1+1, r.Y2-r.Y1+1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Image converts r to an image.Rectangle (exclusive max corner).
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2+1, r.Y2+1)
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// IoU = Area of Intersection / Area of Union, in [0, 1]: 1 for identical
// boxes, 0 for disjoint ones.
//
// Both corners are inclusive, so every width and height carries a "+1":
// a box from x=0 to x=9 is 10 pixels wide. This matches the pixel
// convention of darknet-style post-processing and means two boxes that
// share only an edge column still overlap by one pixel.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	rect1 := Rect{X1: 0, Y1: 0, X2: 9, Y2: 9}   // 10x10
//	rect2 := Rect{X1: 5, Y1: 5, X2: 14, Y2: 14} // 10x10
//
//	iou := CalculateIoU(rect1, rect2) // intersection 5x5=25, union 100+100-25=175, iou≈0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	// Intersection corners: latest start, earliest end.
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interW := ix2 - ix1 + 1
	interH := iy2 - iy1 + 1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return float32(interArea) / float32(unionArea)
}
