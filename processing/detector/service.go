package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"signdetect/internal/models"

	"github.com/gorilla/websocket"
)

// remoteResult is one detection as sent by the detection server. Box is
// normalized [y1, x1, y2, x2].
type remoteResult struct {
	ClassID    int       `json:"class_id"`
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

// RemoteDetector sends frames as JPEG over a websocket and waits for the
// JSON reply. The connection is dialed on first use and redialed on the
// next call after a failure.
type RemoteDetector struct {
	serverURL string
	timeout   time.Duration
	quality   int
	logger    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewRemoteDetector(serverURL string, timeout time.Duration, logger *slog.Logger) *RemoteDetector {
	return &RemoteDetector{
		serverURL: serverURL,
		timeout:   timeout,
		quality:   85,
		logger:    logger.With("component", "remote-detector"),
	}
}

func (d *RemoteDetector) connect(ctx context.Context) error {
	if d.conn != nil {
		return nil
	}

	d.logger.Info("Connecting to detector server", "url", d.serverURL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	d.conn = conn
	d.logger.Info("Connected to detection server")
	return nil
}

func (d *RemoteDetector) deadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	if d.timeout > 0 {
		return time.Now().Add(d.timeout)
	}
	return time.Time{}
}

func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, fmt.Errorf("JPEG encode error: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.connect(ctx); err != nil {
		return nil, err
	}

	dl := d.deadline(ctx)
	d.conn.SetWriteDeadline(dl)
	d.conn.SetReadDeadline(dl)

	if err := d.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		d.drop(err)
		return nil, fmt.Errorf("send frame: %w", err)
	}

	_, message, err := d.conn.ReadMessage()
	if err != nil {
		d.drop(err)
		return nil, fmt.Errorf("read result: %w", err)
	}

	var results []remoteResult
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, fmt.Errorf("JSON decode error: %w", err)
	}

	return toDetections(results, img.Bounds()), nil
}

func (d *RemoteDetector) drop(err error) {
	d.logger.Warn("Connection lost", "error", err)
	d.conn.Close()
	d.conn = nil
}

func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}

	d.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := d.conn.Close()
	d.conn = nil
	return err
}

func toDetections(results []remoteResult, bounds image.Rectangle) []models.Detection {
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	dets := make([]models.Detection, 0, len(results))
	for _, r := range results {
		if len(r.Box) != 4 {
			continue
		}

		box := models.Box{
			X1: float64(bounds.Min.X) + float64(r.Box[1])*w,
			Y1: float64(bounds.Min.Y) + float64(r.Box[0])*h,
			X2: float64(bounds.Min.X) + float64(r.Box[3])*w,
			Y2: float64(bounds.Min.Y) + float64(r.Box[2])*h,
		}

		dets = append(dets, models.Detection{
			ClassID:    r.ClassID,
			ClassName:  r.Label,
			Confidence: float64(r.Confidence),
			Box:        ClampBox(box, bounds),
		})
	}
	return dets
}
