package detector

import (
	"context"
	"errors"
	"image"

	"signdetect/internal/models"
)

var (
	ErrBadModel     = errors.New("can't load model")
	ErrNotConnected = errors.New("detector server not connected")
	ErrEmptyFrame   = errors.New("empty frame")
)

// Detector runs a model over one frame. Returned detections carry class ids,
// confidences and pixel boxes; class names are resolved by the caller.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Detection, error)
	Close() error
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context, img image.Image) ([]models.Detection, error)

func (f Func) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	return f(ctx, img)
}

func (f Func) Close() error { return nil }

// ScoreFilter drops detections below min confidence.
func ScoreFilter(dets []models.Detection, min float64) []models.Detection {
	out := make([]models.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= min {
			out = append(out, d)
		}
	}
	return out
}

// ClampBox keeps a box inside bounds.
func ClampBox(b models.Box, bounds image.Rectangle) models.Box {
	clamp := func(v float64, lo, hi int) float64 {
		if v < float64(lo) {
			return float64(lo)
		}
		if v > float64(hi) {
			return float64(hi)
		}
		return v
	}

	return models.Box{
		X1: clamp(b.X1, bounds.Min.X, bounds.Max.X),
		Y1: clamp(b.Y1, bounds.Min.Y, bounds.Max.Y),
		X2: clamp(b.X2, bounds.Min.X, bounds.Max.X),
		Y2: clamp(b.Y2, bounds.Min.Y, bounds.Max.Y),
	}
}
