package pipeline

import (
	"fmt"
	"os"
	"time"

	"github.com/emvision/emvision/pkg/vehicle"
	"gocv.io/x/gocv"
)

// DetectImage runs a single detection pass over a still image and returns
// one Detection record per located vehicle. The per-detection loop index is
// used as the tracked id, so the flicker signal has a single sample and the
// siren decision rests on the confirmation model alone staying false.
func (p *Pipeline) DetectImage(imagePath, sourceID string) ([]vehicle.Detection, error) {
	img, err := p.readImage(imagePath)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	detections, err := p.detectAndClassify(img, sourceID, imagePath)
	if err != nil {
		return nil, err
	}
	p.log.Infof("Image %v: %v vehicles detected", imagePath, len(detections))
	return detections, nil
}

// AnnotateImage writes a JPEG overlay of the detections in an image and
// returns the output path. It runs detection and classification end to end
// itself, independent of any earlier DetectImage call on the same file.
// An empty outputPath selects <dir>/annotated/annotated_<stem>.jpg.
func (p *Pipeline) AnnotateImage(imagePath, outputPath string) (string, error) {
	img, err := p.readImage(imagePath)
	if err != nil {
		return "", err
	}
	defer img.Close()

	detections, err := p.detectAndClassify(img, "", imagePath)
	if err != nil {
		return "", err
	}

	if outputPath == "" {
		outputPath = annotatedMediaPath(imagePath, ".jpg")
	}
	if err := ensureParentDir(outputPath); err != nil {
		return "", err
	}

	annotated := img.Clone()
	defer annotated.Close()
	p.annotator.Draw(&annotated, detections)
	if !gocv.IMWrite(outputPath, annotated) {
		return "", fmt.Errorf("failed to write annotated image %v", outputPath)
	}
	return outputPath, nil
}

func (p *Pipeline) readImage(imagePath string) (gocv.Mat, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", ErrInvalidMedia, err)
	}
	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("%w: could not decode %v", ErrInvalidMedia, imagePath)
	}
	return img, nil
}

// detectAndClassify is the shared single-frame pass: detect, then classify
// siren state per box using the detection index as the tracked id.
func (p *Pipeline) detectAndClassify(img gocv.Mat, sourceID, mediaReference string) ([]vehicle.Detection, error) {
	objects, err := p.detector.Detect(img)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	detections := make([]vehicle.Detection, 0, len(objects))
	for i, obj := range objects {
		detections = append(detections, vehicle.Detection{
			SourceID:       sourceID,
			VehicleType:    vehicle.TypeForClass(obj.Class),
			SirenOn:        p.classifySirenAt(img, obj.Box, i),
			BoundingBox:    obj.Box,
			Confidence:     obj.Confidence,
			MediaReference: mediaReference,
			Timestamp:      now,
		})
	}
	return detections, nil
}
