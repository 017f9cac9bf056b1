// Package siren decides whether the warning light system of a detected
// vehicle region is active. Two independent signals must agree: a temporal
// flicker test over red/blue mask intensity, and a learned confirmation
// model. False positives are costlier than false negatives, so the signals
// are combined conjunctively.
package siren

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/cyclopcam/logs"
	"gocv.io/x/gocv"
)

// ErrClassifierUnavailable means the confirmation model artifact was missing
// or unreadable at construction. This is not fatal: the classifier degrades
// to reporting "siren off" for every region, and exposes Available() so
// callers can tell the difference.
var ErrClassifierUnavailable = errors.New("siren classifier model unavailable")

type Options struct {
	WindowSize       int     // Number of intensity samples kept per tracked region
	MinSamples       int     // Minimum samples before the flicker test is trusted
	FlickerThreshold float64 // Population stddev above which the region is considered flashing
	InputSize        int     // Confirmation model input is InputSize x InputSize
	ConfirmThreshold float32 // Model output above which the siren is confirmed
}

func DefaultOptions() Options {
	return Options{
		WindowSize:       15,
		MinSamples:       5,
		FlickerThreshold: 25,
		InputSize:        128,
		ConfirmThreshold: 0.5,
	}
}

// Classifier holds the confirmation network and the per-region intensity
// histories. The history store is owned by this instance, so concurrent jobs
// must each use their own Classifier.
type Classifier struct {
	log       logs.Log
	opts      Options
	net       gocv.Net
	available bool
	history   map[int]*intensityWindow
}

// NewClassifier loads the confirmation model. A missing or unreadable
// artifact is logged and leaves the classifier permanently degraded
// (Available() == false, every classification false) rather than failing.
func NewClassifier(log logs.Log, modelPath string, opts Options) *Classifier {
	c := &Classifier{
		log:     log,
		opts:    opts,
		history: map[int]*intensityWindow{},
	}
	if _, err := os.Stat(modelPath); err != nil {
		log.Warnf("%v (%v), siren detection disabled", ErrClassifierUnavailable, err)
		return c
	}
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		log.Warnf("%v (failed to read %v), siren detection disabled", ErrClassifierUnavailable, modelPath)
		return c
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	c.net = net
	c.available = true
	log.Infof("Loaded siren confirmation model %v", modelPath)
	return c
}

// Available reports whether the confirmation model loaded. When false,
// Classify is a constant function returning false.
func (c *Classifier) Available() bool {
	return c.available
}

func (c *Classifier) Close() {
	if c.available {
		c.net.Close()
		c.available = false
	}
}

// ResetHistory discards all per-region intensity histories. Called at the
// start of a video job so temporal state never leaks between jobs.
func (c *Classifier) ResetHistory() {
	c.history = map[int]*intensityWindow{}
}

// Classify decides whether the siren/light bar in a vehicle region is active.
// trackedID identifies the region across calls for the temporal signal; the
// classifier performs no identity resolution itself, so the quality of the
// flicker test depends entirely on the caller keeping ids stable.
// Failures analyzing a region are logged and resolve to false for that
// region only. This must never abort a broader detection pass.
func (c *Classifier) Classify(region gocv.Mat, trackedID int) bool {
	if !c.available {
		return false
	}
	if region.Empty() {
		return false
	}
	on, err := c.evaluate(region, trackedID)
	if err != nil {
		c.log.Errorf("Siren evaluation failed for region %v: %v", trackedID, err)
		return false
	}
	return on
}

func (c *Classifier) evaluate(region gocv.Mat, trackedID int) (result bool, err error) {
	// OpenCV raises panics through gocv on malformed input. Contain them
	// here so one bad region cannot take down the frame loop.
	defer func() {
		if r := recover(); r != nil {
			result = false
			err = fmt.Errorf("region analysis panic: %v", r)
		}
	}()

	intensity, err := c.maskIntensity(region)
	if err != nil {
		return false, err
	}
	flashing := c.updateFlicker(trackedID, intensity)
	confirmed, err := c.confirm(region)
	if err != nil {
		return false, err
	}
	return flashing && confirmed, nil
}

// maskIntensity reduces a BGR region to a single scalar: the mean of the
// combined red and blue hue masks. Red needs two ranges because its hue
// wraps around 0/180 in OpenCV's 8-bit HSV encoding.
func (c *Classifier) maskIntensity(region gocv.Mat) (float64, error) {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(region, &hsv, gocv.ColorBGRToHSV)

	redLow := gocv.NewMat()
	defer redLow.Close()
	gocv.InRangeWithScalar(hsv, gocv.NewScalar(0, 120, 150, 0), gocv.NewScalar(10, 255, 255, 0), &redLow)

	redHigh := gocv.NewMat()
	defer redHigh.Close()
	gocv.InRangeWithScalar(hsv, gocv.NewScalar(170, 120, 150, 0), gocv.NewScalar(180, 255, 255, 0), &redHigh)

	red := gocv.NewMat()
	defer red.Close()
	gocv.BitwiseOr(redLow, redHigh, &red)

	blue := gocv.NewMat()
	defer blue.Close()
	gocv.InRangeWithScalar(hsv, gocv.NewScalar(90, 100, 100, 0), gocv.NewScalar(130, 255, 255, 0), &blue)

	// The red and blue hue ranges are disjoint, so this add never saturates
	combined := gocv.NewMat()
	defer combined.Close()
	gocv.Add(red, blue, &combined)

	return combined.Mean().Val1, nil
}

// updateFlicker appends an intensity sample to the window for trackedID and
// evaluates the flicker test. Below MinSamples the variance is not trusted
// and the answer is always false.
func (c *Classifier) updateFlicker(trackedID int, intensity float64) bool {
	window := c.history[trackedID]
	if window == nil {
		window = newIntensityWindow(c.opts.WindowSize)
		c.history[trackedID] = window
	}
	window.Append(intensity)
	if window.Len() < c.opts.MinSamples {
		return false
	}
	return window.StdDev() > c.opts.FlickerThreshold
}

// confirm runs the learned model over the region
func (c *Classifier) confirm(region gocv.Mat) (bool, error) {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(region, &resized, image.Pt(c.opts.InputSize, c.opts.InputSize), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0/255.0, image.Pt(c.opts.InputSize, c.opts.InputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	c.net.SetInput(blob, "")
	output := c.net.Forward("")
	defer output.Close()

	return output.GetFloatAt(0, 0) > c.opts.ConfirmThreshold, nil
}
