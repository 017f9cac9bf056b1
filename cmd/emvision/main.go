package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/emvision/emvision/pkg/dnn"
	"github.com/emvision/emvision/pkg/pipeline"
	"github.com/emvision/emvision/pkg/vehicle"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("emvision", "Detect emergency vehicles and siren activity in an image or video")
	input := parser.String("i", "input", &argparse.Options{Help: "Input image or video file", Required: true})
	source := parser.String("s", "source", &argparse.Options{Help: "Source identifier attached to detection records", Required: false, Default: "cli"})
	modelPath := parser.String("m", "model", &argparse.Options{Help: "Path to detection model (ONNX)", Required: false, Default: "models/vehicles.onnx"})
	configPath := parser.String("c", "config", &argparse.Options{Help: "Path to detection model config JSON", Required: false, Default: "models/vehicles.json"})
	sirenPath := parser.String("", "siren", &argparse.Options{Help: "Path to siren confirmation model (optional)", Required: false, Default: "models/siren.onnx"})
	uploadDir := parser.String("", "uploads", &argparse.Options{Help: "Directory for saved reference frames", Required: false, Default: "uploads"})
	stride := parser.Int("", "stride", &argparse.Options{Help: "Deduplication sampling stride, in frames", Required: false, Default: 30})
	cell := parser.Int("", "cell", &argparse.Options{Help: "Deduplication bucket cell size, in pixels", Required: false, Default: 100})
	annotate := parser.Flag("a", "annotate", &argparse.Options{Help: "Also write an annotated copy of an input image"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	detector, err := dnn.NewDetector(logger, *modelPath, *configPath, nil)
	check(err)
	defer detector.Close()

	opts := pipeline.DefaultOptions()
	opts.SampleStride = *stride
	opts.BucketCell = *cell
	opts.UploadDir = *uploadDir

	pipe := pipeline.New(logger, detector, *sirenPath, opts)
	defer pipe.Close()

	var detections []vehicle.Detection
	if imageExtensions[strings.ToLower(filepath.Ext(*input))] {
		detections, err = pipe.DetectImage(*input, *source)
		check(err)
		if *annotate {
			outPath, err := pipe.AnnotateImage(*input, "")
			check(err)
			logger.Infof("Annotated image written to %v", outPath)
		}
	} else {
		tracker := pipeline.NewJobTracker()
		job := tracker.Create()
		check(tracker.Start(job.ID))
		result, err := pipe.ProcessVideo(*input, *source, job.ID)
		if err != nil {
			if failErr := tracker.Fail(job.ID, err.Error()); failErr != nil {
				logger.Warnf("Recording job failure: %v", failErr)
			}
			check(err)
		}
		check(tracker.Complete(job.ID))
		detections = result.Detections
		logger.Infof("Annotated video written to %v", result.AnnotatedPath)
	}

	// Buckets come back unordered; sort for stable output
	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	check(encoder.Encode(detections))
}
