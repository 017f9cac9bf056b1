package vehicle

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/emvision/emvision/pkg/nn"
	"github.com/stretchr/testify/require"
)

func TestTypeForClass(t *testing.T) {
	require.Equal(t, TypeAmbulance, TypeForClass(0))
	require.Equal(t, TypeFireTruck, TypeForClass(1))
	require.Equal(t, TypePoliceCar, TypeForClass(2))
	require.Equal(t, TypeTrafficEnforcement, TypeForClass(3))

	// Unknown ids fall back to ambulance
	require.Equal(t, TypeAmbulance, TypeForClass(4))
	require.Equal(t, TypeAmbulance, TypeForClass(99))
	require.Equal(t, TypeAmbulance, TypeForClass(-1))
}

func TestDetectionJSONContract(t *testing.T) {
	d := Detection{
		SourceID:       "cam-7",
		VehicleType:    TypeFireTruck,
		SirenOn:        true,
		BoundingBox:    nn.Rect{X: 10, Y: 20, Width: 30, Height: 40},
		Confidence:     0.87,
		MediaReference: "/media/frames/abc/frame_000030.jpg",
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	b, err := json.Marshal(d)
	require.NoError(t, err)

	m := map[string]any{}
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, "fire_truck", m["vehicle_type"])
	require.Equal(t, true, m["siren_on"])
	require.Contains(t, m, "source_id")
	require.Contains(t, m, "bounding_box")
	require.Contains(t, m, "confidence_score")
	require.Contains(t, m, "media_reference")

	box := m["bounding_box"].(map[string]any)
	require.Equal(t, 10.0, box["x"])
	require.Equal(t, 40.0, box["h"])
}
