// Package dnn implements nn.ObjectDetector on top of OpenCV's DNN module.
// The expected model is a YOLO-family network exported to ONNX, with a JSON
// sidecar (nn.ModelConfig) describing input geometry and class names.
package dnn

import (
	"fmt"
	"image"
	"os"

	"github.com/cyclopcam/logs"
	"github.com/emvision/emvision/pkg/nn"
	"gocv.io/x/gocv"
)

type Detector struct {
	log    logs.Log
	net    gocv.Net
	config *nn.ModelConfig
	params *nn.DetectionParams
}

// NewDetector loads a YOLO ONNX model and its config sidecar.
// A missing or unreadable artifact returns nn.ErrModelUnavailable (wrapped),
// which is fatal for the whole service: nothing downstream can run without
// a detector.
func NewDetector(log logs.Log, modelPath, configPath string, params *nn.DetectionParams) (*Detector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", nn.ErrModelUnavailable, err)
	}
	config, err := nn.LoadModelConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: config %v", nn.ErrModelUnavailable, err)
	}
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to read %v", nn.ErrModelUnavailable, modelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	if params == nil {
		params = nn.NewDetectionParams()
	}
	log.Infof("Loaded detection model %v (%vx%v, %v classes)", modelPath, config.Width, config.Height, len(config.Classes))
	return &Detector{
		log:    log,
		net:    net,
		config: config,
		params: params,
	}, nil
}

func (d *Detector) Close() {
	d.net.Close()
}

func (d *Detector) Config() *nn.ModelConfig {
	return d.config
}

// Detect runs the network on a BGR frame and returns detections in frame
// pixel coordinates, clamped to the frame bounds.
func (d *Detector) Detect(frame gocv.Mat) ([]nn.ObjectDetection, error) {
	if frame.Empty() {
		return []nn.ObjectDetection{}, nil
	}
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(d.config.Width, d.config.Height),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading network output: %w", err)
	}
	// YOLOv5 ONNX output is [1, rows, 5+nclasses]
	rowLen := 5 + len(d.config.Classes)
	if len(data)%rowLen != 0 {
		return nil, fmt.Errorf("unexpected network output size %v for %v classes", len(data), len(d.config.Classes))
	}

	scaleX := float32(frame.Cols()) / float32(d.config.Width)
	scaleY := float32(frame.Rows()) / float32(d.config.Height)
	raw := decodeRows(data, rowLen, scaleX, scaleY, d.params.ProbabilityThreshold)

	return d.applyNMS(raw, frame.Cols(), frame.Rows()), nil
}

// One raw candidate box, before non-maximum suppression
type candidate struct {
	box        nn.Rect
	class      int
	confidence float32
}

// decodeRows parses raw YOLO output rows (cx, cy, w, h, objectness,
// class scores...) into candidates above the probability threshold.
// Box coordinates are scaled from network-input space to frame space.
func decodeRows(data []float32, rowLen int, scaleX, scaleY, probThreshold float32) []candidate {
	candidates := []candidate{}
	for i := 0; i+rowLen <= len(data); i += rowLen {
		row := data[i : i+rowLen]
		objectness := row[4]
		if objectness < probThreshold {
			continue
		}
		bestClass := 0
		bestScore := float32(0)
		for c, score := range row[5:] {
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		confidence := objectness * bestScore
		if confidence < probThreshold {
			continue
		}
		cx := row[0] * scaleX
		cy := row[1] * scaleY
		w := row[2] * scaleX
		h := row[3] * scaleY
		candidates = append(candidates, candidate{
			box: nn.Rect{
				X:      int(cx - w/2),
				Y:      int(cy - h/2),
				Width:  int(w),
				Height: int(h),
			},
			class:      bestClass,
			confidence: confidence,
		})
	}
	return candidates
}

func (d *Detector) applyNMS(raw []candidate, frameWidth, frameHeight int) []nn.ObjectDetection {
	if len(raw) == 0 {
		return []nn.ObjectDetection{}
	}
	boxes := make([]image.Rectangle, 0, len(raw))
	scores := make([]float32, 0, len(raw))
	for _, c := range raw {
		boxes = append(boxes, c.box.ToImageRect())
		scores = append(scores, c.confidence)
	}
	keep := gocv.NMSBoxes(boxes, scores, d.params.ProbabilityThreshold, d.params.NmsIouThreshold)

	detections := []nn.ObjectDetection{}
	for _, idx := range keep {
		c := raw[idx]
		box := nn.RectFromImageRect(boxes[idx]).Clamp(frameWidth, frameHeight)
		if box.IsEmpty() {
			continue
		}
		detections = append(detections, nn.ObjectDetection{
			Class:      c.class,
			Confidence: c.confidence,
			Box:        box,
		})
	}
	return detections
}
