package onnx

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"signdetect/internal/config"
	"signdetect/internal/models"
	"signdetect/processing/detector"

	"gocv.io/x/gocv"
)

// Detector runs an Ultralytics YOLOv8 ONNX export through OpenCV's DNN
// module. The net is not safe for concurrent use so calls are serialized.
type Detector struct {
	mu sync.Mutex

	net         gocv.Net
	outputNames []string
	params      gocv.ImageToBlobParams

	confThreshold float32
	nmsThreshold  float32

	logger *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) (*Detector, error) {
	logger = logger.With("component", "onnx-detector")
	path := cfg.ModelPath()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", detector.ErrBadModel, path, err)
	}

	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("%w: %s", detector.ErrBadModel, path)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("can't set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("can't set target: %w", err)
	}

	names := outputLayerNames(&net)
	if len(names) == 0 {
		net.Close()
		return nil, fmt.Errorf("%w: no output layers in %s", detector.ErrBadModel, path)
	}
	logger.Debug("Model info", "model", path, "output layers", names)

	size := cfg.Model.InputSize
	if size <= 0 {
		size = 640
	}

	return &Detector{
		net:         net,
		outputNames: names,
		params: gocv.NewImageToBlobParams(
			1.0/255.0,
			image.Pt(size, size),
			gocv.NewScalar(0, 0, 0, 0),
			true,
			gocv.MatTypeCV32F,
			gocv.DataLayoutNCHW,
			gocv.PaddingModeLetterbox,
			gocv.NewScalar(114, 114, 114, 0),
		),
		confThreshold: cfg.Model.ConfidenceThreshold,
		nmsThreshold:  cfg.Model.NMSThreshold,
		logger:        logger,
	}, nil
}

func outputLayerNames(net *gocv.Net) []string {
	var names []string
	for _, i := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(i)
		name := layer.GetName()
		layer.Close()
		if name != "_input" {
			names = append(names, name)
		}
	}
	return names
}

func (d *Detector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, detector.ErrEmptyFrame
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImageWithParams(mat, d.params)
	defer blob.Close()

	d.net.SetInput(blob, "")

	outputs := d.net.ForwardLayers(d.outputNames)
	defer func() {
		for _, output := range outputs {
			output.Close()
		}
	}()

	if len(outputs) == 0 {
		return nil, errors.New("model produced no output")
	}

	dets := d.decode(outputs[0], image.Pt(mat.Cols(), mat.Rows()))

	offset := img.Bounds().Min
	for i := range dets {
		dets[i].Box.X1 += float64(offset.X)
		dets[i].Box.Y1 += float64(offset.Y)
		dets[i].Box.X2 += float64(offset.X)
		dets[i].Box.Y2 += float64(offset.Y)
	}

	return dets, nil
}

// decode turns the [1, 4+classes, anchors] YOLOv8 output into detections in
// image coordinates.
func (d *Detector) decode(output gocv.Mat, imgSize image.Point) []models.Detection {
	// ultralytics exports are channel-major, rows need to be anchors
	transposed := gocv.NewMat()
	defer transposed.Close()
	gocv.TransposeND(output, []int{0, 2, 1}, &transposed)

	rows := transposed.Reshape(1, transposed.Size()[1])
	defer rows.Close()

	cols := rows.Cols()
	if cols <= 4 {
		return nil
	}

	var (
		boxes       []image.Rectangle
		confidences []float32
		classIDs    []int
	)

	for i := 0; i < rows.Rows(); i++ {
		func() {
			row := rows.RowRange(i, i+1)
			defer row.Close()

			// columns 4: hold the per-class scores
			scores := row.ColRange(4, cols)
			defer scores.Close()

			_, confidence, _, classLoc := gocv.MinMaxLoc(scores)
			if confidence < d.confThreshold {
				return
			}

			// columns 0..3 are center x, center y, width, height
			cx, cy := row.GetFloatAt(0, 0), row.GetFloatAt(0, 1)
			halfW, halfH := row.GetFloatAt(0, 2)/2, row.GetFloatAt(0, 3)/2

			boxes = append(boxes, image.Rect(
				int(cx-halfW), int(cy-halfH),
				int(cx+halfW), int(cy+halfH),
			))
			confidences = append(confidences, confidence)
			classIDs = append(classIDs, classLoc.X)
		}()
	}

	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.confThreshold, d.nmsThreshold)
	if len(indices) == 0 {
		return nil
	}

	kept := make([]image.Rectangle, len(indices))
	for i, j := range indices {
		kept[i] = boxes[j]
	}
	kept = d.params.BlobRectsToImageRects(kept, imgSize)

	bounds := image.Rectangle{Max: imgSize}
	dets := make([]models.Detection, len(indices))
	for i, j := range indices {
		dets[i] = models.Detection{
			ClassID:    classIDs[j],
			Confidence: float64(confidences[j]),
			Box:        detector.ClampBox(models.BoxFromRect(kept[i]), bounds),
		}
	}

	d.logger.Debug("Frame decoded", "candidates", len(boxes), "kept", len(dets))
	return dets
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
