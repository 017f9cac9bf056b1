// Package dedup reduces a stream of per-frame detections into one
// representative detection per coarse spatial bucket. The bucket key
// quantizes position by a cell size, so two sightings of the same vehicle a
// few pixels apart collapse into one record - and, as a documented
// limitation, so do two distinct vehicles of the same type inside one cell.
package dedup

import (
	"github.com/emvision/emvision/pkg/vehicle"
)

// DefaultCellSize is the quantization cell in pixels. It trades dedup
// precision for simplicity; tune per deployment via NewDeduplicator.
const DefaultCellSize = 100

// Key identifies one spatial bucket
type Key struct {
	Type  vehicle.Type
	CellX int
	CellY int
}

// Deduplicator keeps the highest-confidence detection seen per bucket.
// One instance lives for the duration of one video job.
type Deduplicator struct {
	cellSize int
	best     map[Key]vehicle.Detection
}

func NewDeduplicator(cellSize int) *Deduplicator {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Deduplicator{
		cellSize: cellSize,
		best:     map[Key]vehicle.Detection{},
	}
}

func (d *Deduplicator) KeyFor(det vehicle.Detection) Key {
	return Key{
		Type:  det.VehicleType,
		CellX: det.BoundingBox.X / d.cellSize,
		CellY: det.BoundingBox.Y / d.cellSize,
	}
}

// Improves reports whether det would become the best detection of its
// bucket: either the bucket is unseen, or det's confidence is strictly
// greater than the stored best. Callers use this to decide whether to save a
// reference frame before committing with Put.
func (d *Deduplicator) Improves(det vehicle.Detection) bool {
	existing, ok := d.best[d.KeyFor(det)]
	if !ok {
		return true
	}
	return det.Confidence > existing.Confidence
}

// Put stores det as the best detection for its bucket
func (d *Deduplicator) Put(det vehicle.Detection) {
	d.best[d.KeyFor(det)] = det
}

func (d *Deduplicator) Len() int {
	return len(d.best)
}

// Detections returns the best detection of every bucket, in no particular
// order. Sort on the caller's side if a stable order is needed.
func (d *Deduplicator) Detections() []vehicle.Detection {
	out := make([]vehicle.Detection, 0, len(d.best))
	for _, det := range d.best {
		out = append(out, det)
	}
	return out
}
