// Package pipeline orchestrates the detection flow: locate emergency
// vehicles in an image or video, infer siren activity per vehicle, draw
// overlays, and (for video) deduplicate repeated sightings into a small set
// of representative detections.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyclopcam/logs"
	"github.com/emvision/emvision/pkg/annotate"
	"github.com/emvision/emvision/pkg/nn"
	"github.com/emvision/emvision/pkg/siren"
	"gocv.io/x/gocv"
)

// ErrInvalidMedia means the source image or video is missing or unreadable.
// The whole request is rejected; no partial result is produced.
var ErrInvalidMedia = errors.New("invalid media")

type Options struct {
	SampleStride int           // Deduplication runs on every Nth video frame. Annotation runs on every frame regardless.
	BucketCell   int           // Spatial quantization cell for deduplication, in pixels
	UploadDir    string        // Root directory for saved reference frames
	Siren        siren.Options // Siren classifier tunables
}

func DefaultOptions() Options {
	return Options{
		SampleStride: 30,
		BucketCell:   100,
		UploadDir:    "uploads",
		Siren:        siren.DefaultOptions(),
	}
}

// Pipeline runs detection jobs. It owns a siren classifier instance, and with
// it the per-region temporal state, so a Pipeline must not run two jobs
// concurrently. Create one Pipeline per concurrent job; the detector can be
// shared.
type Pipeline struct {
	log        logs.Log
	detector   nn.ObjectDetector
	classifier *siren.Classifier
	annotator  *annotate.Annotator
	opts       Options
}

// New creates a Pipeline. The detector is required. sirenModelPath is
// optional: if the artifact is missing the classifier degrades to reporting
// every siren as off, and the pipeline still runs.
func New(log logs.Log, detector nn.ObjectDetector, sirenModelPath string, opts Options) *Pipeline {
	return &Pipeline{
		log:        log,
		detector:   detector,
		classifier: siren.NewClassifier(log, sirenModelPath, opts.Siren),
		annotator:  annotate.NewAnnotator(),
		opts:       opts,
	}
}

// SirenAvailable reports whether the siren confirmation model loaded
func (p *Pipeline) SirenAvailable() bool {
	return p.classifier.Available()
}

// Close releases the classifier. The detector is owned by the caller.
func (p *Pipeline) Close() {
	p.classifier.Close()
}

// classifySirenAt crops the vehicle region out of the frame and runs the
// siren classifier on it. Empty regions are never a siren sighting.
func (p *Pipeline) classifySirenAt(frame gocv.Mat, box nn.Rect, trackedID int) bool {
	clamped := box.Clamp(frame.Cols(), frame.Rows())
	if clamped.IsEmpty() {
		return false
	}
	region := frame.Region(clamped.ToImageRect())
	defer region.Close()
	return p.classifier.Classify(region, trackedID)
}

// annotatedMediaPath is <dir>/annotated/annotated_<stem><ext> next to the
// source file
func annotatedMediaPath(sourcePath, ext string) string {
	dir := filepath.Dir(sourcePath)
	stem := filepath.Base(sourcePath)
	stem = stem[:len(stem)-len(filepath.Ext(stem))]
	return filepath.Join(dir, "annotated", fmt.Sprintf("annotated_%v%v", stem, ext))
}

func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
