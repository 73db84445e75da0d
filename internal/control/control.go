package control

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"signdetect/internal/session"
	"signdetect/processing/capture"
	"signdetect/processing/pipeline"
)

var (
	ErrNoSource      = errors.New("source not found")
	ErrSourceUnread  = errors.New("can't read from source")
	ErrNoCameraGiven = errors.New("no camera selected")
)

// View is everything the controller needs from the window. Implementations
// must be safe to call from any goroutine.
type View interface {
	ShowFrame(img image.Image)
	ClearFrame()
	SetStatus(msg string)
	SetProgress(percent float64)
	AppendLog(line string)
	ShowError(err error)
	ApplyPalette(p session.Palette)
}

// StreamerFactory builds an unstarted streamer for a file path or a camera
// device.
type StreamerFactory func(source capture.SourceType, target string) (capture.VideoStreamer, error)

// Controller dispatches the window's commands. At most one run (image,
// video or camera) is active; starting a new one cancels the previous.
type Controller struct {
	state       *session.State
	pipe        *pipeline.Pipeline
	view        View
	newStreamer StreamerFactory
	logger      *slog.Logger

	baseCtx context.Context
	stopAll context.CancelFunc

	mu     sync.Mutex
	gen    int
	cancel context.CancelFunc
	done   chan struct{}
}

func New(state *session.State, pipe *pipeline.Pipeline, view View, factory StreamerFactory, logger *slog.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		state:       state,
		pipe:        pipe,
		view:        view,
		newStreamer: factory,
		logger:      logger.With("component", "control"),
		baseCtx:     ctx,
		stopAll:     cancel,
	}
}

func (c *Controller) State() *session.State {
	return c.state
}

// OpenFile runs the pipeline over an image once or over a video until it
// ends. An empty path means the picker was cancelled.
func (c *Controller) OpenFile(path string) error {
	if path == "" {
		c.view.SetStatus("No file selected")
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		err = fmt.Errorf("%w: %s", ErrNoSource, path)
		c.fail(err)
		return err
	}

	source := capture.SourceFor(path)
	c.state.SetCameraActive(false)
	c.launch(source, path, filepath.Base(path))
	return nil
}

// StartCamera does nothing while the camera is already running.
func (c *Controller) StartCamera(device string) error {
	if device == "" {
		c.fail(ErrNoCameraGiven)
		return ErrNoCameraGiven
	}
	if c.state.CameraActive() {
		return nil
	}

	c.state.SetCameraActive(true)
	c.launch(capture.SourceCamera, device, device)
	return nil
}

// StopCamera cancels the camera run. The loop exits before processing
// another frame.
func (c *Controller) StopCamera() {
	if !c.state.CameraActive() {
		return
	}
	c.state.SetCameraActive(false)

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (c *Controller) ToggleTheme() session.Theme {
	t := c.state.ToggleTheme()
	c.view.ApplyPalette(c.state.Palette())
	c.logger.Debug("Theme changed", "theme", t)
	return t
}

// Busy reports whether a run is in progress.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Wait blocks until the current run, if any, has finished.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Shutdown cancels any run and waits for it.
func (c *Controller) Shutdown() {
	c.state.SetCameraActive(false)
	c.stopAll()
	c.Wait()
}

func (c *Controller) fail(err error) {
	c.logger.Error("Operation failed", "error", err)
	c.view.SetStatus("Error: " + err.Error())
	c.view.ShowError(err)
}

func (c *Controller) launch(source capture.SourceType, target, name string) {
	ctx, cancel := context.WithCancel(c.baseCtx)
	done := make(chan struct{})

	c.mu.Lock()
	prevCancel, prevDone := c.cancel, c.done
	c.gen++
	gen := c.gen
	c.cancel, c.done = cancel, done
	c.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}

	go func() {
		defer close(done)
		defer cancel()

		if prevDone != nil {
			<-prevDone
		}

		c.run(ctx, source, target, name)

		if source == capture.SourceCamera {
			c.mu.Lock()
			if c.gen == gen {
				c.state.SetCameraActive(false)
			}
			c.mu.Unlock()
		}
	}()
}

func (c *Controller) run(ctx context.Context, source capture.SourceType, target, name string) {
	logger := c.logger.With("source", source, "target", target)

	s, err := c.newStreamer(source, target)
	if err != nil {
		c.fail(fmt.Errorf("can't open %s: %w", name, err))
		return
	}

	c.view.SetStatus(fmt.Sprintf("Processing %s...", name))
	c.view.SetProgress(0)
	logger.Info("Run started")

	logErrShown := false
	sum, err := c.pipe.Run(ctx, s, func(res pipeline.FrameResult, pr pipeline.Progress) {
		c.view.ShowFrame(res.Image)
		for _, line := range res.Lines {
			c.view.AppendLog(line)
		}
		if res.LogErr != nil && !logErrShown {
			logErrShown = true
			c.view.ShowError(fmt.Errorf("can't write detection log: %w", res.LogErr))
		}
		if pr.Known() {
			c.view.SetProgress(pr.Percent())
		}
	})

	switch {
	case err != nil:
		c.fail(err)
	case sum.ReadErr != nil && sum.Frames == 0:
		c.fail(fmt.Errorf("%w %s: %v", ErrSourceUnread, name, sum.ReadErr))
	case sum.EndOfStream && source != capture.SourceCamera && sum.ReadErr != nil:
		c.view.SetStatus(fmt.Sprintf("Done: %s, %d frames, %d detections (stopped early: %v)", name, sum.Frames, sum.Detections, sum.ReadErr))
		logger.Warn("Run ended early", "frames", sum.Frames, "error", sum.ReadErr)
	case sum.EndOfStream && source != capture.SourceCamera:
		c.view.SetProgress(100)
		c.view.SetStatus(fmt.Sprintf("Done: %s, %d frames, %d detections", name, sum.Frames, sum.Detections))
		logger.Info("Run finished", "frames", sum.Frames, "detections", sum.Detections)
	default:
		if source == capture.SourceCamera {
			c.view.ClearFrame()
		}
		c.view.SetStatus(fmt.Sprintf("Stopped: %s", name))
		logger.Info("Run stopped", "frames", sum.Frames)
	}
}
