package control

import (
	"context"
	"encoding/csv"
	"errors"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signdetect/internal/detlog"
	"signdetect/internal/labels"
	"signdetect/internal/models"
	"signdetect/internal/session"
	"signdetect/processing/capture"
	"signdetect/processing/detector"
	"signdetect/processing/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeView struct {
	mu       sync.Mutex
	frames   int
	cleared  int
	status   []string
	progress []float64
	logs     []string
	errs     []error
	palettes []session.Palette
}

func (v *fakeView) ShowFrame(image.Image) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frames++
}

func (v *fakeView) ClearFrame() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cleared++
}

func (v *fakeView) SetStatus(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status = append(v.status, s)
}

func (v *fakeView) AppendLog(l string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.logs = append(v.logs, l)
}

func (v *fakeView) ShowError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs = append(v.errs, err)
}

func (v *fakeView) SetProgress(p float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.progress = append(v.progress, p)
}

func (v *fakeView) ApplyPalette(p session.Palette) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.palettes = append(v.palettes, p)
}

func (v *fakeView) frameCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frames
}

func (v *fakeView) lastProgress() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.progress) == 0 {
		return -1
	}
	return v.progress[len(v.progress)-1]
}

type fakeStreamer struct {
	n        int
	infinite bool
	readErr  error

	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
	stopOnce  sync.Once
}

func newFakeStreamer(n int) *fakeStreamer {
	return &fakeStreamer{
		n:         n,
		frameChan: make(chan image.Image),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}
}

func (fs *fakeStreamer) Start() error {
	go func() {
		defer close(fs.frameChan)
		for i := 0; fs.infinite || i < fs.n; i++ {
			select {
			case fs.frameChan <- image.NewRGBA(image.Rect(0, 0, 32, 24)):
			case <-fs.stopChan:
				return
			}
		}
		if fs.readErr != nil {
			fs.errChan <- fs.readErr
		}
	}()
	return nil
}

func (fs *fakeStreamer) Stop() {
	fs.stopOnce.Do(func() { close(fs.stopChan) })
}

func (fs *fakeStreamer) FrameChan() <-chan image.Image { return fs.frameChan }
func (fs *fakeStreamer) ErrorChan() <-chan error       { return fs.errChan }

func (fs *fakeStreamer) TotalFrames() int {
	if fs.infinite {
		return 0
	}
	return fs.n
}

type harness struct {
	ctrl    *Controller
	view    *fakeView
	logPath string
	rec     *detlog.Logger

	mu        sync.Mutex
	requested []capture.SourceType
	streamers map[capture.SourceType]func() (capture.VideoStreamer, error)
}

func newHarness(t *testing.T, dets ...models.Detection) *harness {
	t.Helper()

	h := &harness{
		view:      &fakeView{},
		logPath:   filepath.Join(t.TempDir(), "detections.csv"),
		streamers: map[capture.SourceType]func() (capture.VideoStreamer, error){},
	}

	rec, err := detlog.Open(h.logPath)
	require.NoError(t, err)
	h.rec = rec
	t.Cleanup(func() { rec.Close() })

	det := detector.Func(func(ctx context.Context, img image.Image) ([]models.Detection, error) {
		out := make([]models.Detection, len(dets))
		copy(out, dets)
		return out, nil
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipe := pipeline.New(det, labels.Default(), rec, logger)

	factory := func(source capture.SourceType, target string) (capture.VideoStreamer, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.requested = append(h.requested, source)
		build, ok := h.streamers[source]
		if !ok {
			return nil, capture.ErrUnknownSource
		}
		return build()
	}

	h.ctrl = New(session.New(session.ThemeLight), pipe, h.view, factory, logger)
	t.Cleanup(h.ctrl.Shutdown)
	return h
}

func (h *harness) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requested)
}

func (h *harness) rows(t *testing.T) [][]string {
	t.Helper()
	f, err := os.Open(h.logPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	return path
}

var stop = models.Detection{ClassID: 14, Confidence: 0.9, Box: models.Box{X1: 1, Y1: 1, X2: 10, Y2: 10}}

func TestOpenFileCancelled(t *testing.T) {
	h := newHarness(t, stop)

	require.NoError(t, h.ctrl.OpenFile(""))
	h.ctrl.Wait()

	assert.Equal(t, 0, h.calls())
	assert.Empty(t, h.view.errs)
	assert.Len(t, h.rows(t), 1)
}

func TestOpenFileMissing(t *testing.T) {
	h := newHarness(t, stop)
	before, err := os.ReadFile(h.logPath)
	require.NoError(t, err)

	err = h.ctrl.OpenFile(filepath.Join(t.TempDir(), "ghost.mp4"))
	assert.ErrorIs(t, err, ErrNoSource)
	h.ctrl.Wait()

	assert.Equal(t, 0, h.calls())
	require.Len(t, h.view.errs, 1)
	assert.ErrorIs(t, h.view.errs[0], ErrNoSource)

	after, err := os.ReadFile(h.logPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOpenImage(t *testing.T) {
	h := newHarness(t, stop, models.Detection{ClassID: 99, Confidence: 0.333, Box: models.Box{X2: 5, Y2: 5}})
	h.streamers[capture.SourceImage] = func() (capture.VideoStreamer, error) { return newFakeStreamer(1), nil }

	require.NoError(t, h.ctrl.OpenFile(touch(t, "sign.JPG")))
	h.ctrl.Wait()

	assert.Equal(t, []capture.SourceType{capture.SourceImage}, h.requested)
	assert.Equal(t, 1, h.view.frameCount())
	assert.Empty(t, h.view.errs)
	assert.Equal(t, []string{
		"Stop (0.90) at [1.0, 1.0, 10.0, 10.0]",
		"Unknown (0.33) at [0.0, 0.0, 5.0, 5.0]",
	}, h.view.logs)

	rows := h.rows(t)
	require.Len(t, rows, 3)
	assert.Equal(t, "0.90", rows[1][1])
	assert.Equal(t, "Unknown", rows[2][0])
	assert.Equal(t, "0.33", rows[2][1])
}

func TestOpenVideoEndToEnd(t *testing.T) {
	h := newHarness(t, stop)
	h.streamers[capture.SourceVideo] = func() (capture.VideoStreamer, error) { return newFakeStreamer(3), nil }

	require.NoError(t, h.ctrl.OpenFile(touch(t, "clip.mp4")))
	h.ctrl.Wait()
	assert.False(t, h.ctrl.Busy())

	assert.Equal(t, 3, h.view.frameCount())
	assert.Equal(t, 100.0, h.view.lastProgress())
	assert.Len(t, h.rows(t), 4)
	assert.Contains(t, h.view.status[len(h.view.status)-1], "3 frames")
}

func TestVideoReadErrorKeepsDecodedFrames(t *testing.T) {
	h := newHarness(t, stop)
	h.streamers[capture.SourceVideo] = func() (capture.VideoStreamer, error) {
		s := newFakeStreamer(4)
		s.readErr = io.ErrUnexpectedEOF
		return s, nil
	}

	require.NoError(t, h.ctrl.OpenFile(touch(t, "clip.mp4")))
	h.ctrl.Wait()

	assert.Empty(t, h.view.errs)
	assert.Equal(t, 4, h.view.frameCount())
	assert.Len(t, h.rows(t), 5)
	assert.Contains(t, h.view.status[len(h.view.status)-1], "stopped early")
}

func TestStreamerFactoryFailure(t *testing.T) {
	h := newHarness(t, stop)
	h.streamers[capture.SourceVideo] = func() (capture.VideoStreamer, error) {
		return nil, capture.ErrNoVideoStream
	}

	require.NoError(t, h.ctrl.OpenFile(touch(t, "clip.mkv")))
	h.ctrl.Wait()

	require.Len(t, h.view.errs, 1)
	assert.ErrorIs(t, h.view.errs[0], capture.ErrNoVideoStream)
	assert.Len(t, h.rows(t), 1)
}

func TestCameraStartStop(t *testing.T) {
	h := newHarness(t, stop)
	h.streamers[capture.SourceCamera] = func() (capture.VideoStreamer, error) {
		s := newFakeStreamer(0)
		s.infinite = true
		return s, nil
	}

	require.NoError(t, h.ctrl.StartCamera("/dev/video0"))
	assert.True(t, h.ctrl.State().CameraActive())
	assert.True(t, h.ctrl.Busy())

	// a second start while running is ignored
	require.NoError(t, h.ctrl.StartCamera("/dev/video0"))

	require.Eventually(t, func() bool { return h.view.frameCount() >= 3 }, 5*time.Second, 5*time.Millisecond)

	h.ctrl.StopCamera()
	assert.False(t, h.ctrl.State().CameraActive())
	h.ctrl.Wait()

	seen := h.view.frameCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, seen, h.view.frameCount())

	assert.Equal(t, 1, h.calls())
	assert.Equal(t, 1, h.view.cleared)
	assert.Empty(t, h.view.errs)

	// the camera can be started again after a stop
	require.NoError(t, h.ctrl.StartCamera("/dev/video0"))
	assert.True(t, h.ctrl.State().CameraActive())
	h.ctrl.StopCamera()
	h.ctrl.Wait()
	assert.Equal(t, 2, h.calls())
}

func TestCameraUnavailable(t *testing.T) {
	h := newHarness(t, stop)
	h.streamers[capture.SourceCamera] = func() (capture.VideoStreamer, error) {
		s := newFakeStreamer(0)
		s.readErr = errors.New("no such device")
		return s, nil
	}

	require.NoError(t, h.ctrl.StartCamera("/dev/video9"))
	h.ctrl.Wait()

	require.Len(t, h.view.errs, 1)
	assert.ErrorIs(t, h.view.errs[0], ErrSourceUnread)
	assert.False(t, h.ctrl.State().CameraActive())
}

func TestStartCameraWithoutDevice(t *testing.T) {
	h := newHarness(t, stop)

	assert.ErrorIs(t, h.ctrl.StartCamera(""), ErrNoCameraGiven)
	assert.Equal(t, 0, h.calls())
}

func TestOpenFileCancelsCamera(t *testing.T) {
	h := newHarness(t, stop)

	var cameraStopped atomic.Bool
	h.streamers[capture.SourceCamera] = func() (capture.VideoStreamer, error) {
		s := newFakeStreamer(0)
		s.infinite = true
		go func() {
			<-s.stopChan
			cameraStopped.Store(true)
		}()
		return s, nil
	}
	h.streamers[capture.SourceImage] = func() (capture.VideoStreamer, error) { return newFakeStreamer(1), nil }

	require.NoError(t, h.ctrl.StartCamera("/dev/video0"))
	require.Eventually(t, func() bool { return h.view.frameCount() >= 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.OpenFile(touch(t, "sign.png")))
	h.ctrl.Wait()

	assert.False(t, h.ctrl.State().CameraActive())
	assert.Eventually(t, cameraStopped.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, 100.0, h.view.lastProgress())
}

func TestToggleThemeTwice(t *testing.T) {
	h := newHarness(t)
	original := h.ctrl.State().Palette()

	assert.Equal(t, session.ThemeDark, h.ctrl.ToggleTheme())
	assert.Equal(t, session.ThemeLight, h.ctrl.ToggleTheme())

	require.Len(t, h.view.palettes, 2)
	assert.NotEqual(t, original, h.view.palettes[0])
	assert.Equal(t, original, h.view.palettes[1])
}
