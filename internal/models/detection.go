package models

import (
	"fmt"
	"image"
)

// Detection is one object instance reported by the model for a single frame.
type Detection struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Box is a bounding box in source frame pixels.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func BoxFromRect(r image.Rectangle) Box {
	return Box{
		X1: float64(r.Min.X),
		Y1: float64(r.Min.Y),
		X2: float64(r.Max.X),
		Y2: float64(r.Max.Y),
	}
}

func (b Box) Width() float64  { return b.X2 - b.X1 }
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

func (b Box) String() string {
	return fmt.Sprintf("[%.1f, %.1f, %.1f, %.1f]", b.X1, b.Y1, b.X2, b.Y2)
}
