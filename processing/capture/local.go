package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	bytesPerPixel = 4
	standardFps   = 30
)

// LocalFileStreamer decodes a video file with an ffmpeg subprocess that
// writes raw rgba frames to stdout.
type LocalFileStreamer struct {
	stopOnce sync.Once
	killOnce sync.Once

	path      string
	targetFPS uint

	width  int
	height int

	totalFrames int

	cmd       *exec.Cmd
	stderr    bytes.Buffer
	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
}

// NewLocalStreamer probes path and scales output to scaledWidth. A
// scaledHeight of 0 keeps the source aspect ratio.
func NewLocalStreamer(path string, targetFPS uint, scaledWidth int, scaledHeight int) (*LocalFileStreamer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	info, err := probeVideo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}

	w, h := fitSize(info.width, info.height, scaledWidth, scaledHeight)

	return &LocalFileStreamer{
		path:        path,
		targetFPS:   targetFPS,
		width:       w,
		height:      h,
		totalFrames: info.frameCount(targetFPS),
		frameChan:   make(chan image.Image, 10),
		errChan:     make(chan error, 1),
		stopChan:    make(chan struct{}),
	}, nil
}

// fitSize picks output dimensions. Odd sizes are rounded down because most
// scalers reject them.
func fitSize(srcW, srcH, w, h int) (int, int) {
	if w <= 0 {
		w = srcW
	}
	if h <= 0 {
		if srcW > 0 {
			h = w * srcH / srcW
		} else {
			h = w
		}
	}
	return max(w&^1, 2), max(h&^1, 2)
}

func (ls *LocalFileStreamer) Start() error {
	filter := fmt.Sprintf("scale=%d:%d", ls.width, ls.height)
	if ls.targetFPS > 0 {
		filter = fmt.Sprintf("fps=%d,%s", ls.targetFPS, filter)
	}

	args := []string{
		"-v", "error",
		"-i", ls.path,
		"-vf", filter,
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	}

	ls.cmd = exec.Command("ffmpeg", args...)
	ls.cmd.Stderr = &ls.stderr

	stdout, err := ls.cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := ls.cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	go ls.readFrames(stdout)

	return nil
}

func (ls *LocalFileStreamer) readFrames(stdout io.ReadCloser) {
	defer close(ls.frameChan)
	defer close(ls.errChan)
	defer stdout.Close()
	defer ls.stopCmdOut()

	fps := ls.targetFPS
	if fps == 0 {
		fps = standardFps
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ls.stopChan:
			return

		case <-ticker.C:
			img, err := readRGBAFrame(stdout, ls.width, ls.height)
			if errors.Is(err, io.EOF) {
				// ffmpeg closes stdout on decode failures too
				if err := ls.wait(); err != nil {
					ls.errChan <- fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(ls.stderr.String()))
				}
				return
			}
			if err != nil {
				select {
				case <-ls.stopChan:
				default:
					ls.errChan <- fmt.Errorf("read error: %w", err)
				}
				return
			}

			select {
			case ls.frameChan <- img:
			case <-ls.stopChan:
				return
			}
		}
	}
}

// readRGBAFrame reads exactly one frame. A clean end of stream before the
// first byte is io.EOF; a truncated frame is io.ErrUnexpectedEOF.
func readRGBAFrame(r io.Reader, width, height int) (*image.RGBA, error) {
	pix := make([]byte, width*height*bytesPerPixel)
	if _, err := io.ReadFull(r, pix); err != nil {
		return nil, err
	}

	return &image.RGBA{
		Pix:    pix,
		Stride: width * bytesPerPixel,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// wait reaps an ffmpeg that exited on its own and returns its exit status.
func (ls *LocalFileStreamer) wait() error {
	var err error
	ls.killOnce.Do(func() {
		if ls.cmd != nil && ls.cmd.Process != nil {
			err = ls.cmd.Wait()
		}
	})
	return err
}

func (ls *LocalFileStreamer) stopCmdOut() {
	ls.killOnce.Do(func() {
		if ls.cmd != nil && ls.cmd.Process != nil {
			ls.cmd.Process.Kill()
			ls.cmd.Wait()
		}
	})
}

func (ls *LocalFileStreamer) Stop() {
	ls.stopOnce.Do(func() {
		close(ls.stopChan)
		ls.stopCmdOut()
	})
}

func (ls *LocalFileStreamer) FrameChan() <-chan image.Image { return ls.frameChan }
func (ls *LocalFileStreamer) ErrorChan() <-chan error       { return ls.errChan }
func (ls *LocalFileStreamer) TotalFrames() int              { return ls.totalFrames }

type probeData struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		NbFrames     string `json:"nb_frames"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type videoInfo struct {
	width    int
	height   int
	frames   int
	fps      float64
	duration float64
}

// frameCount estimates how many frames ffmpeg emits at targetFPS.
func (vi videoInfo) frameCount(targetFPS uint) int {
	if targetFPS == 0 || (vi.fps > 0 && math.Abs(vi.fps-float64(targetFPS)) < 0.01) {
		if vi.frames > 0 {
			return vi.frames
		}
		return int(math.Round(vi.duration * vi.fps))
	}
	return int(math.Round(vi.duration * float64(targetFPS)))
}

func probeVideo(path string) (videoInfo, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,nb_frames,avg_frame_rate:format=duration",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return videoInfo{}, err
	}

	return parseProbe(output)
}

func parseProbe(output []byte) (videoInfo, error) {
	var data probeData
	if err := json.Unmarshal(output, &data); err != nil {
		return videoInfo{}, err
	}

	if len(data.Streams) == 0 {
		return videoInfo{}, ErrNoVideoStream
	}

	s := data.Streams[0]
	info := videoInfo{width: s.Width, height: s.Height}
	info.frames, _ = strconv.Atoi(s.NbFrames)
	info.duration, _ = strconv.ParseFloat(data.Format.Duration, 64)
	info.fps = parseRate(s.AvgFrameRate)

	return info, nil
}

// parseRate reads ffprobe rationals like "30000/1001".
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
