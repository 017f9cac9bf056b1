// Package annotate draws human-reviewable detection overlays. The annotator
// is stateless and deterministic: identical detections on identical frames
// produce byte-identical output.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/emvision/emvision/pkg/vehicle"
	"gocv.io/x/gocv"
)

// Fixed styling. Changing any of these changes every rendered frame, so
// treat them as part of the output contract.
var (
	colorActive   = color.RGBA{R: 0, G: 255, B: 0}     // siren active
	colorInactive = color.RGBA{R: 255, G: 0, B: 0}     // siren inactive
	colorLabel    = color.RGBA{R: 255, G: 255, B: 255} // label text
)

const (
	strokeWidth   = 2
	fontFace      = gocv.FontHersheySimplex
	fontScale     = 0.6
	fontThickness = 2
	statusActive  = "SIREN ON"
	statusOff     = "SIREN OFF"
)

type Annotator struct{}

func NewAnnotator() *Annotator {
	return &Annotator{}
}

// Draw renders every detection onto img in place
func (a *Annotator) Draw(img *gocv.Mat, detections []vehicle.Detection) {
	for _, d := range detections {
		a.drawOne(img, d)
	}
}

func (a *Annotator) drawOne(img *gocv.Mat, d vehicle.Detection) {
	statusColor := colorInactive
	status := statusOff
	if d.SirenOn {
		statusColor = colorActive
		status = statusActive
	}
	box := d.BoundingBox.ToImageRect()
	gocv.Rectangle(img, box, statusColor, strokeWidth)

	label := labelText(d, status)
	textSize := gocv.GetTextSize(label, fontFace, fontScale, fontThickness)
	bg := labelBackground(box, textSize)
	gocv.Rectangle(img, bg, statusColor, -1)
	gocv.PutText(img, label, image.Pt(box.Min.X, bg.Max.Y-5), fontFace, fontScale, colorLabel, fontThickness)
}

func labelText(d vehicle.Detection, status string) string {
	return fmt.Sprintf("%v %v %.2f", strings.ToUpper(d.VehicleType.String()), status, d.Confidence)
}

// labelBackground is the filled rectangle behind the label, sized to the
// measured text extent, directly above the top edge of the box. Clamped so
// it never extends past the top of the frame.
func labelBackground(box image.Rectangle, textSize image.Point) image.Rectangle {
	top := box.Min.Y - textSize.Y - 10
	if top < 0 {
		top = 0
	}
	bottom := top + textSize.Y + 10
	return image.Rect(box.Min.X, top, box.Min.X+textSize.X, bottom)
}
