package pipeline

import (
	"context"
	"errors"
	"fmt"

	"signdetect/processing/capture"
)

type Progress struct {
	Frame int
	Total int
}

func (pr Progress) Known() bool {
	return pr.Total > 0
}

// Percent is in [0, 100]. Unknown totals report 0.
func (pr Progress) Percent() float64 {
	if !pr.Known() {
		return 0
	}
	v := float64(pr.Frame) * 100 / float64(pr.Total)
	if v > 100 {
		return 100
	}
	return v
}

type Summary struct {
	Frames     int
	Detections int
	// EndOfStream is true when the source ran out of frames, false when
	// the run was cancelled.
	EndOfStream bool
	// ReadErr is the read failure that ended the stream, if any.
	ReadErr error
}

// Run starts s and processes frames until the stream ends or ctx is
// cancelled. onFrame is called from the calling goroutine after each frame.
// A stream read failure ends the run like a normal end of stream once the
// frames queued before it are processed.
func (p *Pipeline) Run(ctx context.Context, s capture.VideoStreamer, onFrame func(FrameResult, Progress)) (Summary, error) {
	var sum Summary

	if err := s.Start(); err != nil {
		return sum, fmt.Errorf("can't open source: %w", err)
	}
	defer s.Stop()

	total := capture.TotalFrames(s)
	frames := s.FrameChan()
	errs := s.ErrorChan()

	for {
		if ctx.Err() != nil {
			p.logger.Info("Run cancelled", "frames", sum.Frames)
			return sum, nil
		}

		select {
		case <-ctx.Done():
			p.logger.Info("Run cancelled", "frames", sum.Frames)
			return sum, nil

		case err, ok := <-errs:
			// frames decoded before the failure are still queued; keep
			// reading until the streamer closes the frame channel
			errs = nil
			if ok && err != nil {
				p.logger.Warn("Stream read failed, treating as end of stream", "error", err)
				sum.ReadErr = err
			}

		case frame, ok := <-frames:
			if !ok {
				if sum.ReadErr == nil {
					sum.ReadErr = pendingErr(errs)
				}
				sum.EndOfStream = true
				p.logger.Info("End of stream", "frames", sum.Frames, "detections", sum.Detections)
				return sum, nil
			}
			if frame == nil {
				continue
			}

			res, err := p.Process(ctx, frame)
			if err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					return sum, nil
				}
				return sum, err
			}

			sum.Frames++
			sum.Detections += len(res.Detections)
			res.Index = sum.Frames

			if onFrame != nil {
				onFrame(res, Progress{Frame: sum.Frames, Total: total})
			}
		}
	}
}

// pendingErr picks up a read error sent just before the frame channel
// closed.
func pendingErr(errs <-chan error) error {
	if errs == nil {
		return nil
	}
	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}
