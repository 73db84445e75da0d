package capture

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"sync"
)

// FFmpegWebcamStreamer captures a live device. Frames the consumer is not
// ready for are dropped so the display never lags behind the camera.
type FFmpegWebcamStreamer struct {
	stopOnce sync.Once
	killOnce sync.Once

	deviceName string
	width      int
	height     int
	targetFPS  uint

	cmd       *exec.Cmd
	stderr    bytes.Buffer
	frameChan chan image.Image
	errChan   chan error

	stopChan chan struct{}
}

func NewFFmpegWebcam(deviceName string, targetFps uint, scaledWidth int, scaledHeight int) *FFmpegWebcamStreamer {
	if scaledHeight <= 0 {
		scaledHeight = scaledWidth * 3 / 4
	}
	if targetFps == 0 {
		targetFps = standardFps
	}

	w, h := fitSize(scaledWidth, scaledHeight, scaledWidth, scaledHeight)

	return &FFmpegWebcamStreamer{
		deviceName: deviceName,
		width:      w,
		height:     h,
		targetFPS:  targetFps,

		frameChan: make(chan image.Image),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}
}

func webcamInputArgs(goos, device string) []string {
	switch goos {
	case "windows":
		return []string{"-f", "dshow", "-i", fmt.Sprintf("video=%s", device)}
	case "darwin":
		return []string{"-f", "avfoundation", "-i", device}
	default:
		return []string{"-f", "v4l2", "-i", device}
	}
}

func (ws *FFmpegWebcamStreamer) args(goos string) []string {
	args := []string{"-v", "error"}
	args = append(args, webcamInputArgs(goos, ws.deviceName)...)
	return append(args,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", ws.targetFPS, ws.width, ws.height),
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	)
}

func (ws *FFmpegWebcamStreamer) Start() error {
	ws.cmd = exec.Command("ffmpeg", ws.args(runtime.GOOS)...)
	ws.cmd.Stderr = &ws.stderr

	stdout, err := ws.cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := ws.cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w. Details: %s", err, ws.stderr.String())
	}

	go ws.readLoop(stdout)

	return nil
}

func (ws *FFmpegWebcamStreamer) readLoop(stdout io.ReadCloser) {
	defer close(ws.frameChan)
	defer close(ws.errChan)
	defer stdout.Close()
	defer ws.stopCmdOut()

	for {
		select {
		case <-ws.stopChan:
			return

		default:
			img, err := readRGBAFrame(stdout, ws.width, ws.height)
			if err != nil {
				select {
				case <-ws.stopChan:
				default:
					ws.errChan <- fmt.Errorf("camera %s read error: %w", ws.deviceName, err)
				}
				return
			}

			select {
			case ws.frameChan <- img:
			default:
			}
		}
	}
}

func (ws *FFmpegWebcamStreamer) stopCmdOut() {
	ws.killOnce.Do(func() {
		if ws.cmd != nil && ws.cmd.Process != nil {
			ws.cmd.Process.Kill()
			ws.cmd.Wait()
		}
	})
}

func (ws *FFmpegWebcamStreamer) Stop() {
	ws.stopOnce.Do(func() {
		close(ws.stopChan)
		ws.stopCmdOut()
	})
}

func (ws *FFmpegWebcamStreamer) FrameChan() <-chan image.Image { return ws.frameChan }
func (ws *FFmpegWebcamStreamer) ErrorChan() <-chan error       { return ws.errChan }

var (
	dshowDeviceRe = regexp.MustCompile(`"([^"]+)"\s+\(video\)`)
	avfDeviceRe   = regexp.MustCompile(`\[(\d+)\] ([^\n]+)`)
)

func ListCameras() ([]string, error) {
	switch runtime.GOOS {
	case "windows":
		cmd := exec.Command("ffmpeg", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		cmd.Run()
		return parseDshowDevices(stderr.String()), nil

	case "darwin":
		cmd := exec.Command("ffmpeg", "-f", "avfoundation", "-list_devices", "true", "-i", "")
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		cmd.Run()
		return parseAVFoundationDevices(stderr.String()), nil

	default:
		devices, err := filepath.Glob("/dev/video*")
		if err != nil {
			return nil, err
		}
		sort.Strings(devices)
		return devices, nil
	}
}

func parseDshowDevices(output string) []string {
	var cameras []string
	seen := make(map[string]bool)

	for _, m := range dshowDeviceRe.FindAllStringSubmatch(output, -1) {
		name := m[1]
		if name != "dummy" && !seen[name] {
			cameras = append(cameras, name)
			seen[name] = true
		}
	}
	return cameras
}

// parseAVFoundationDevices returns device indexes from the video section
// of ffmpeg's listing; audio devices follow and are ignored.
func parseAVFoundationDevices(output string) []string {
	video, _, _ := bytes.Cut([]byte(output), []byte("audio devices"))

	var cameras []string
	for _, m := range avfDeviceRe.FindAllStringSubmatch(string(video), -1) {
		cameras = append(cameras, m[1])
	}
	return cameras
}
