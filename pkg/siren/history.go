package siren

import "math"

// intensityWindow is a bounded, ordered window of mask intensity samples for
// one tracked region. Appending beyond capacity evicts the oldest sample.
type intensityWindow struct {
	capacity int
	samples  []float64
}

func newIntensityWindow(capacity int) *intensityWindow {
	return &intensityWindow{
		capacity: capacity,
		samples:  make([]float64, 0, capacity),
	}
}

func (w *intensityWindow) Append(v float64) {
	if len(w.samples) == w.capacity {
		copy(w.samples, w.samples[1:])
		w.samples[len(w.samples)-1] = v
	} else {
		w.samples = append(w.samples, v)
	}
}

func (w *intensityWindow) Len() int {
	return len(w.samples)
}

// Values returns the window contents, oldest first
func (w *intensityWindow) Values() []float64 {
	return w.samples
}

// StdDev is the population standard deviation over the current window
func (w *intensityWindow) StdDev() float64 {
	n := len(w.samples)
	if n == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range w.samples {
		mean += v
	}
	mean /= float64(n)
	variance := 0.0
	for _, v := range w.samples {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)
	return math.Sqrt(variance)
}
