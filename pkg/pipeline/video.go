package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/emvision/emvision/pkg/dedup"
	"github.com/emvision/emvision/pkg/vehicle"
	"gocv.io/x/gocv"
)

// VideoResult is the outcome of one completed video job
type VideoResult struct {
	// Detections is the deduplicated set: the best sighting per spatial
	// bucket, in no particular order.
	Detections []vehicle.Detection
	// AnnotatedPath is the written overlay video: same resolution, frame
	// rate and frame count as the source.
	AnnotatedPath string
	// FrameCount is the number of frames read (and written)
	FrameCount int
}

// ProcessVideo runs the frame loop over a stored video: detect and classify
// every frame, annotate and write every frame, and feed the deduplicator on
// stride-aligned frames. Reader and writer are released on every exit path.
// A mid-loop error fails the whole job; records gathered before the failure
// are not returned.
func (p *Pipeline) ProcessVideo(videoPath, sourceID, jobID string) (*VideoResult, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMedia, err)
	}
	capture, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMedia, err)
	}
	defer capture.Close()
	if !capture.IsOpened() {
		return nil, fmt.Errorf("%w: could not open %v", ErrInvalidMedia, videoPath)
	}

	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))
	fps := int(capture.Get(gocv.VideoCaptureFPS))
	codec := capture.CodecString()
	if codec == "" {
		codec = "mp4v"
	}

	annotatedPath := annotatedMediaPath(videoPath, filepath.Ext(videoPath))
	if err := ensureParentDir(annotatedPath); err != nil {
		return nil, err
	}
	writer, err := openVideoWriter(annotatedPath, codec, float64(fps), width, height)
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	// Fresh temporal state per job
	p.classifier.ResetHistory()
	best := dedup.NewDeduplicator(p.opts.BucketCell)

	frame := gocv.NewMat()
	defer frame.Close()

	frameIdx := 0
	for {
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			// Source exhausted. This ends the loop, it is not an error.
			break
		}

		objects, err := p.detector.Detect(frame)
		if err != nil {
			return nil, fmt.Errorf("detection failed at frame %v: %w", frameIdx, err)
		}

		now := time.Now().UTC()
		detections := make([]vehicle.Detection, 0, len(objects))
		for i, obj := range objects {
			detections = append(detections, vehicle.Detection{
				SourceID:       sourceID,
				VehicleType:    vehicle.TypeForClass(obj.Class),
				SirenOn:        p.classifySirenAt(frame, obj.Box, i),
				BoundingBox:    obj.Box,
				Confidence:     obj.Confidence,
				MediaReference: videoPath,
				Timestamp:      now,
			})
		}

		annotated := frame.Clone()
		p.annotator.Draw(&annotated, detections)
		err = writer.Write(annotated)
		annotated.Close()
		if err != nil {
			return nil, fmt.Errorf("writing annotated frame %v: %w", frameIdx, err)
		}

		if frameIdx%p.opts.SampleStride == 0 {
			for _, det := range detections {
				if !best.Improves(det) {
					continue
				}
				framePath, err := p.saveReferenceFrame(frame, jobID, frameIdx)
				if err != nil {
					return nil, err
				}
				det.MediaReference = framePath
				best.Put(det)
			}
		}
		frameIdx++
	}

	result := &VideoResult{
		Detections:    best.Detections(),
		AnnotatedPath: annotatedPath,
		FrameCount:    frameIdx,
	}
	p.log.Infof("Video %v: %v frames processed, %v unique vehicles", videoPath, frameIdx, len(result.Detections))
	return result, nil
}

// openVideoWriter opens the annotated-video destination. VideoWriterFile
// only returns an error for malformed parameters; a codec the output backend
// cannot encode leaves the writer unopened and every Write a silent no-op,
// so the open state must be checked explicitly or a failed job would look
// like a successful one.
func openVideoWriter(path, codec string, fps float64, width, height int) (*gocv.VideoWriter, error) {
	writer, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("opening output video %v: %w", path, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("opening output video %v: writer failed to open (codec %q)", path, codec)
	}
	return writer, nil
}

// saveReferenceFrame stores an unannotated copy of the current frame, to be
// referenced by a deduplicated detection record
func (p *Pipeline) saveReferenceFrame(frame gocv.Mat, jobID string, frameIdx int) (string, error) {
	dir := filepath.Join(p.opts.UploadDir, "frames", jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	framePath := filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", frameIdx))
	if !gocv.IMWrite(framePath, frame) {
		return "", fmt.Errorf("failed to save reference frame %v", framePath)
	}
	return framePath, nil
}
