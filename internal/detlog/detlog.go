package detlog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"signdetect/internal/models"
)

var Header = []string{"Sign Name", "Confidence", "Bounding Box"}

// Logger appends one CSV row per detection. Rows are never rewritten.
type Logger struct {
	mu   sync.Mutex
	path string
	f    *os.File
	rows int
}

// Open truncates the file at path and writes the header row.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to open detection log %s: %w", path, err)
	}

	l := &Logger{path: path, f: f}
	if err := l.writeRecords([][]string{Header}); err != nil {
		f.Close()
		return nil, err
	}

	return l, nil
}

func (l *Logger) Path() string {
	return l.path
}

// Rows is the number of detection rows written since Open.
func (l *Logger) Rows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows
}

// Write appends one row per detection. Each row reaches the file in a single
// write call so a failure never leaves half a row behind.
func (l *Logger) Write(dets []models.Detection) error {
	if len(dets) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, d := range dets {
		if err := l.writeRecords([][]string{Record(d)}); err != nil {
			return err
		}
		l.rows++
	}

	return nil
}

func (l *Logger) writeRecords(records [][]string) error {
	if l.f == nil {
		return os.ErrClosed
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("unable to encode detection row: %w", err)
	}

	if _, err := l.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("unable to write detection row: %w", err)
	}

	return nil
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64)
}

func Record(d models.Detection) []string {
	return []string{d.ClassName, FormatConfidence(d.Confidence), d.Box.String()}
}

// Line is the human readable form shown in the log panel.
func Line(d models.Detection) string {
	return fmt.Sprintf("%s (%s) at %s", d.ClassName, FormatConfidence(d.Confidence), d.Box)
}
