package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRectBasics(t *testing.T) {
	r := Rect{X: 10, Y: 20, Width: 30, Height: 40}
	require.Equal(t, 40, r.X2())
	require.Equal(t, 60, r.Y2())
	require.Equal(t, 1200, r.Area())
	require.Equal(t, Point{X: 25, Y: 40}, r.Center())
	require.False(t, r.IsEmpty())
	require.True(t, Rect{Width: 0, Height: 5}.IsEmpty())
}

func TestRectIntersectionUnion(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	b := Rect{X: 5, Y: 5, Width: 10, Height: 10}
	require.Equal(t, Rect{X: 5, Y: 5, Width: 5, Height: 5}, a.Intersection(b))
	require.Equal(t, Rect{X: 0, Y: 0, Width: 15, Height: 15}, a.Union(b))

	c := Rect{X: 100, Y: 100, Width: 5, Height: 5}
	require.Equal(t, 0, a.Intersection(c).Area())
}

func TestRectIOU(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	require.InDelta(t, 1.0, a.IOU(a), 1e-6)
	b := Rect{X: 5, Y: 0, Width: 10, Height: 10}
	// overlap 50, union 150
	require.InDelta(t, 50.0/150.0, a.IOU(b), 1e-6)
}

func TestRectClamp(t *testing.T) {
	r := Rect{X: -10, Y: -5, Width: 30, Height: 20}
	c := r.Clamp(100, 100)
	require.Equal(t, Rect{X: 0, Y: 0, Width: 20, Height: 15}, c)

	r = Rect{X: 90, Y: 95, Width: 30, Height: 20}
	c = r.Clamp(100, 100)
	require.Equal(t, Rect{X: 90, Y: 95, Width: 10, Height: 5}, c)

	// entirely outside the frame clamps to empty
	r = Rect{X: 200, Y: 200, Width: 10, Height: 10}
	require.True(t, r.Clamp(100, 100).IsEmpty())
}

func TestRectImageRectRoundTrip(t *testing.T) {
	r := Rect{X: 10, Y: 20, Width: 30, Height: 40}
	require.Equal(t, r, RectFromImageRect(r.ToImageRect()))
}

func TestPointDistance(t *testing.T) {
	a := Point{X: 0, Y: 0}
	b := Point{X: 3, Y: 4}
	require.InDelta(t, 5.0, float64(a.Distance(b)), 1e-5)
}
