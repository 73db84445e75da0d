package ui

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"signdetect/internal/config"
	"signdetect/internal/control"
	"signdetect/internal/session"
	"signdetect/internal/ui/cwidget"
	"signdetect/processing/capture"
	"signdetect/processing/pipeline"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

const (
	windowTitle = "Traffic Signs Detection"
	maxLogLines = 500

	loadingCameras = "Loading cameras..."
	noCameras      = "No cameras found"
)

// DetectApp is the main window. It implements control.View; every View
// method may be called from a worker goroutine and hands its work to the
// fyne thread.
type DetectApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config     *config.Config
	configPath string
	pipe       *pipeline.Pipeline
	ctrl       *control.Controller
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	videoCanvas  *canvas.Image
	statusLabel  *widget.Label
	progressBar  *widget.ProgressBar
	latencyLabel *widget.Label
	fpsLabel     *widget.Label
	logList      *widget.List
	deviceSelect *widget.Select

	// logLines is only touched on the fyne thread.
	logLines []string

	frameMu sync.Mutex
	pending image.Image
}

func CreateApp(cfg *config.Config, configPath string, state *session.State, pipe *pipeline.Pipeline, factory control.StreamerFactory, logger *slog.Logger) *DetectApp {
	a := app.New()
	w := a.NewWindow(windowTitle)

	w.Resize(fyne.NewSize(800, 600))

	ctx, cancel := context.WithCancel(context.Background())

	da := &DetectApp{
		fyneApp:    a,
		mainWin:    w,
		config:     cfg,
		configPath: configPath,
		pipe:       pipe,
		logger:     logger.With("component", "ui"),
		ctx:        ctx,
		cancel:     cancel,
	}
	da.ctrl = control.New(state, pipe, da, factory, logger)

	a.Settings().SetTheme(newPaletteTheme(state.Palette()))

	return da
}

func (a *DetectApp) Run() {
	a.videoCanvas = canvas.NewImageFromImage(nil)
	a.videoCanvas.FillMode = canvas.ImageFillContain
	a.videoCanvas.SetMinSize(fyne.NewSize(480, 360))

	a.latencyLabel = widget.NewLabel(a.formatLatency(0))
	a.fpsLabel = widget.NewLabel(a.formatFPS(0))

	a.statusLabel = widget.NewLabel("Select an image, a video or start the camera")
	a.statusLabel.Truncation = fyne.TextTruncateEllipsis

	a.progressBar = widget.NewProgressBar()
	a.progressBar.Max = 100

	a.logList = widget.NewList(
		func() int { return len(a.logLines) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, o fyne.CanvasObject) {
			o.(*widget.Label).SetText(a.logLines[id])
		},
	)

	videoContainer := container.NewBorder(
		container.NewHBox(a.fpsLabel, widget.NewSeparator(), a.latencyLabel),
		container.NewVBox(a.progressBar, a.statusLabel),
		nil, nil,
		a.videoCanvas,
	)

	logPanel := container.NewBorder(
		widget.NewLabelWithStyle("Detections", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		nil, nil, nil,
		a.logList,
	)

	content := container.NewVSplit(videoContainer, logPanel)
	content.SetOffset(0.75)

	split := container.NewHSplit(
		container.NewPadded(a.sidebar()),
		container.NewPadded(content),
	)
	split.SetOffset(0.3)

	a.mainWin.SetContent(split)

	a.mainWin.SetCloseIntercept(func() {
		a.quit()
	})

	a.loadCameras()

	go a.runPlayerLoop()
	go a.runStatLoop()

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

func (a *DetectApp) sidebar() fyne.CanvasObject {
	a.deviceSelect = widget.NewSelect([]string{loadingCameras}, func(s string) {
		if s != loadingCameras && s != noCameras {
			a.config.SetDevice(s)
		}
	})
	a.deviceSelect.SetSelected(loadingCameras)
	a.deviceSelect.Disable()

	return container.NewVBox(
		widget.NewLabelWithStyle("Source", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewSeparator(),
		widget.NewButtonWithIcon("Select Image/Video", theme.FolderOpenIcon(), func() {
			a.pickFile(func(path string) {
				a.ctrl.OpenFile(path)
			})
		}),
		widget.NewLabel("Camera:"),
		a.deviceSelect,
		container.NewGridWithColumns(2,
			widget.NewButtonWithIcon("Start Camera", theme.MediaPlayIcon(), func() {
				a.ctrl.StartCamera(a.config.GetDevice())
			}),
			widget.NewButtonWithIcon("Stop Camera", theme.MediaStopIcon(), func() {
				a.ctrl.StopCamera()
			}),
		),
		widget.NewSeparator(),
		a.settings(),
		widget.NewSeparator(),
		widget.NewButtonWithIcon("Toggle Theme", theme.ColorPaletteIcon(), func() {
			t := a.ctrl.ToggleTheme()
			a.config.SetTheme(t.String())
		}),
		widget.NewButtonWithIcon("Quit", theme.LogoutIcon(), func() {
			a.quit()
		}),
	)
}

// settings apply to the next run; the confidence floor applies at once.
func (a *DetectApp) settings() fyne.CanvasObject {
	fpsInput := cwidget.NewIntInput(
		"FPS",
		"Enter integer",
		int(a.config.GetFPS()),
		func(i int) {
			a.config.SetFPS(uint(i))
		},
	)

	widthInput := cwidget.NewIntInput(
		"Width",
		"Enter integer",
		a.config.GetWidth(),
		func(i int) {
			a.config.SetWidth(i)
		},
	)

	heightInput := cwidget.NewIntInput(
		"Height",
		"Enter integer",
		a.config.GetHeight(),
		func(i int) {
			a.config.SetHeight(i)
		},
	)

	confInput := cwidget.NewPercentInput(
		"Confidence",
		"0-100",
		a.pipe.MinConfidence(),
		func(v float64) {
			a.config.SetConfidence(float32(v))
			a.pipe.SetMinConfidence(v)
		},
	)

	return container.NewVBox(
		widget.NewLabelWithStyle("Settings", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		fpsInput,
		widthInput,
		heightInput,
		confInput,
	)
}

func (a *DetectApp) loadCameras() {
	go func() {
		devices, err := capture.ListCameras()

		fyne.Do(func() {
			switch {
			case err != nil:
				a.ShowError(fmt.Errorf("can't list cameras: %w", err))
				a.deviceSelect.Options = []string{noCameras}
			case len(devices) == 0:
				a.deviceSelect.Options = []string{noCameras}
				a.deviceSelect.SetSelected(noCameras)
			default:
				a.deviceSelect.Options = devices
				a.deviceSelect.Enable()

				selected := devices[0]
				for _, d := range devices {
					if d == a.config.GetDevice() {
						selected = d
					}
				}
				a.deviceSelect.SetSelected(selected)
			}
			a.deviceSelect.Refresh()
		})
	}()
}

func (a *DetectApp) quit() {
	a.cancel()
	a.ctrl.Shutdown()

	if err := a.config.Save(a.configPath); err != nil {
		a.logger.Error("Can't save config", "error", err)
	}

	a.fyneApp.Quit()
}

// runPlayerLoop paints the newest frame at the capture rate and drops the
// ones in between.
func (a *DetectApp) runPlayerLoop() {
	fps := a.config.GetFPS()
	if fps == 0 {
		fps = config.DefaultTargetFPS
	}
	displayTicker := time.NewTicker(time.Second / time.Duration(fps))
	defer displayTicker.Stop()

	for {
		select {
		case <-displayTicker.C:
			a.frameMu.Lock()
			frame := a.pending
			a.pending = nil
			a.frameMu.Unlock()

			if frame != nil {
				fyne.Do(func() {
					a.videoCanvas.Image = frame
					a.videoCanvas.Refresh()
				})
			}

		case <-a.ctx.Done():
			return
		}
	}
}

func (a *DetectApp) runStatLoop() {
	uiTicker := time.NewTicker(time.Millisecond * 200)
	defer uiTicker.Stop()

	for {
		select {
		case <-uiTicker.C:
			latency, fps := a.pipe.Stats()
			fyne.Do(func() {
				a.latencyLabel.SetText(a.formatLatency(latency))
				a.fpsLabel.SetText(a.formatFPS(fps))
			})
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *DetectApp) formatFPS(v uint) string {
	return fmt.Sprintf("FPS: %d", v)
}

func (a *DetectApp) formatLatency(v time.Duration) string {
	return fmt.Sprintf("Latency: %d ms", v.Milliseconds())
}

func (a *DetectApp) ShowFrame(img image.Image) {
	a.frameMu.Lock()
	defer a.frameMu.Unlock()
	a.pending = img
}

func (a *DetectApp) ClearFrame() {
	a.frameMu.Lock()
	a.pending = nil
	a.frameMu.Unlock()

	fyne.Do(func() {
		a.videoCanvas.Image = nil
		a.videoCanvas.Refresh()
	})
}

func (a *DetectApp) SetStatus(msg string) {
	fyne.Do(func() {
		a.statusLabel.SetText(msg)
	})
}

func (a *DetectApp) SetProgress(percent float64) {
	fyne.Do(func() {
		a.progressBar.SetValue(percent)
	})
}

func (a *DetectApp) AppendLog(line string) {
	fyne.Do(func() {
		a.logLines = appendCapped(a.logLines, line, maxLogLines)
		a.logList.Refresh()
		a.logList.ScrollToBottom()
	})
}

func (a *DetectApp) ShowError(err error) {
	fyne.Do(func() {
		dialog.ShowError(err, a.mainWin)
	})
}

func (a *DetectApp) ApplyPalette(p session.Palette) {
	fyne.Do(func() {
		a.fyneApp.Settings().SetTheme(newPaletteTheme(p))
	})
}

// appendCapped keeps the last limit lines.
func appendCapped(lines []string, line string, limit int) []string {
	lines = append(lines, line)
	if over := len(lines) - limit; over > 0 {
		lines = append(lines[:0], lines[over:]...)
	}
	return lines
}
