package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"signdetect/internal/detlog"
	"signdetect/internal/models"
	"signdetect/processing/detector"
	"signdetect/processing/overlay"
)

// Namer resolves class ids to display names.
type Namer interface {
	Name(id int) string
}

// Recorder persists detections.
type Recorder interface {
	Write(dets []models.Detection) error
}

type FrameResult struct {
	Index      int
	Image      *image.RGBA
	Detections []models.Detection
	Lines      []string
	// LogErr is set when the detections could not be recorded. The frame
	// itself is still valid.
	LogErr error
}

type Pipeline struct {
	det    detector.Detector
	labels Namer
	rec    Recorder
	logger *slog.Logger

	mu            sync.RWMutex
	minConfidence float64
	latency       time.Duration
	fps           uint
	frameCount    uint
	lastFpsUpdate time.Time
}

func New(det detector.Detector, labels Namer, rec Recorder, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		det:           det,
		labels:        labels,
		rec:           rec,
		logger:        logger.With("component", "pipeline"),
		lastFpsUpdate: time.Now(),
	}
}

func (p *Pipeline) SetMinConfidence(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minConfidence = math.Max(0, math.Min(1, v))
}

func (p *Pipeline) MinConfidence() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.minConfidence
}

// Stats returns the processing time of the last frame and the frame rate
// over the last full second.
func (p *Pipeline) Stats() (time.Duration, uint) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latency, p.fps
}

func (p *Pipeline) record(start time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.latency = now.Sub(start)
	p.frameCount++
	if now.Sub(p.lastFpsUpdate) >= time.Second {
		p.fps = p.frameCount
		p.frameCount = 0
		p.lastFpsUpdate = now
	}
}

// Process runs inference on one frame, annotates it and records its
// detections.
func (p *Pipeline) Process(ctx context.Context, frame image.Image) (FrameResult, error) {
	start := time.Now()

	dets, err := p.det.Detect(ctx, frame)
	if err != nil {
		return FrameResult{}, fmt.Errorf("inference failed: %w", err)
	}

	dets = detector.ScoreFilter(dets, p.MinConfidence())
	for i := range dets {
		dets[i].ClassName = p.labels.Name(dets[i].ClassID)
	}

	res := FrameResult{
		Image:      overlay.Annotate(frame, dets),
		Detections: dets,
		Lines:      make([]string, len(dets)),
	}

	for i, d := range dets {
		res.Lines[i] = detlog.Line(d)
	}

	if p.rec != nil {
		if err := p.rec.Write(dets); err != nil {
			p.logger.Error("Can't record detections", "error", err)
			res.LogErr = err
		}
	}

	p.record(start)
	return res, nil
}
