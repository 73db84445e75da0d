package ui

import (
	"bytes"
	"errors"
	"os/exec"
	"runtime"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
)

var errNoNativePicker = errors.New("no native file picker available")

const pickerTitle = "Select Image or Video"

var mediaExtensions = []string{
	".png", ".jpg", ".jpeg", ".bmp", ".gif", ".tif", ".tiff", ".webp",
	".mp4", ".avi", ".mov", ".mkv", ".webm", ".m4v",
}

func patternsOf(exts []string) []string {
	out := make([]string, len(exts))
	for i, ext := range exts {
		out[i] = "*" + ext
	}
	return out
}

func zenityFilter() string {
	return "Images and videos | " + strings.Join(patternsOf(mediaExtensions), " ")
}

func windowsFilter() string {
	return "Images and videos|" + strings.Join(patternsOf(mediaExtensions), ";") + "|All files|*.*"
}

// pickerCommand returns the argv of the first native picker found on goos.
func pickerCommand(goos string, lookPath func(string) (string, error)) ([]string, error) {
	switch goos {
	case "windows":
		if _, err := lookPath("powershell"); err != nil {
			return nil, errNoNativePicker
		}
		script := "Add-Type -AssemblyName System.Windows.Forms;" +
			"$d = New-Object System.Windows.Forms.OpenFileDialog;" +
			"$d.Title = '" + pickerTitle + "';" +
			"$d.Filter = '" + windowsFilter() + "';" +
			"if ($d.ShowDialog() -eq 'OK') { $d.FileName }"
		return []string{"powershell", "-NoProfile", "-STA", "-Command", script}, nil

	case "darwin":
		if _, err := lookPath("osascript"); err != nil {
			return nil, errNoNativePicker
		}
		return []string{"osascript", "-e", `POSIX path of (choose file with prompt "` + pickerTitle + `")`}, nil

	default:
		if _, err := lookPath("zenity"); err == nil {
			return []string{"zenity", "--file-selection", "--title=" + pickerTitle, "--file-filter=" + zenityFilter()}, nil
		}
		if _, err := lookPath("kdialog"); err == nil {
			return []string{"kdialog", "--getopenfilename", ".", strings.Join(patternsOf(mediaExtensions), " "), "--title", pickerTitle}, nil
		}
		return nil, errNoNativePicker
	}
}

// nativePick blocks until the dialog closes. A cancelled dialog returns ""
// and no error.
func nativePick() (string, error) {
	argv, err := pickerCommand(runtime.GOOS, exec.LookPath)
	if err != nil {
		return "", err
	}

	var stdout bytes.Buffer
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = &stdout

	runErr := cmd.Run()
	path := strings.TrimSpace(stdout.String())

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return "", runErr
	}
	// zenity, kdialog and osascript exit non-zero on cancel
	return path, nil
}

// pickFile calls onPicked on the fyne thread with the chosen path, or ""
// when the user cancelled.
func (a *DetectApp) pickFile(onPicked func(string)) {
	go func() {
		path, err := nativePick()
		if err == nil {
			fyne.Do(func() { onPicked(path) })
			return
		}

		a.logger.Debug("Falling back to fyne file dialog", "reason", err)
		fyne.Do(func() {
			d := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
				if err != nil {
					a.ShowError(err)
					return
				}
				if reader == nil {
					onPicked("")
					return
				}
				defer reader.Close()
				onPicked(reader.URI().Path())
			}, a.mainWin)
			d.SetFilter(storage.NewExtensionFileFilter(mediaExtensions))
			d.Resize(fyne.NewSize(700, 500))
			d.Show()
		})
	}()
}
