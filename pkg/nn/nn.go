package nn

import (
	"encoding/json"
	"errors"
	"os"

	"gocv.io/x/gocv"
)

// Package nn is the neural network interface layer.
// Concrete detection backends live in their own packages (eg pkg/dnn).

const DefaultProbabilityThreshold = 0.5
const DefaultNmsIouThreshold = 0.45

// ErrModelUnavailable is returned when a detection model artifact cannot be
// located or loaded. The pipeline cannot run without a detector, so callers
// should treat this as fatal.
var ErrModelUnavailable = errors.New("detection model unavailable")

// ObjectDetection is an object that a neural network has found in an image
type ObjectDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Rect    `json:"box"`
}

// NN object detection parameters
type DetectionParams struct {
	ProbabilityThreshold float32 // Value between 0 and 1. Lower values will find more objects. Zero value will use the default.
	NmsIouThreshold      float32 // Value between 0 and 1. Lower values will merge more objects together into one. Zero value will use the default.
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ProbabilityThreshold: DefaultProbabilityThreshold,
		NmsIouThreshold:      DefaultNmsIouThreshold,
	}
}

// ObjectDetector is given an image, and returns zero or more detected objects.
// "Nothing found" is an empty slice, never an error.
type ObjectDetector interface {
	// Close closes the detector (you MUST call this when finished, because there
	// are OpenCV objects underneath)
	Close()

	// Detect returns a list of objects detected in the frame.
	// The frame is an 8-bit BGR image.
	// Returned boxes are clamped to the frame bounds.
	Detect(frame gocv.Mat) ([]ObjectDetection, error)

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the detector has been created.
	Config() *ModelConfig
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "yolov5"
	Width        int      `json:"width"`        // eg 640
	Height       int      `json:"height"`       // eg 640
	Classes      []string `json:"classes"`      // eg ["ambulance", "fire_truck", ...]
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, err
	}
	return config, nil
}
