// Package vehicle holds the emergency vehicle domain model: the vehicle
// taxonomy, the mapping from detector class ids, and the Detection record
// that the pipeline hands to its callers.
package vehicle

import (
	"time"

	"github.com/emvision/emvision/pkg/nn"
)

// Type is the category of emergency vehicle
type Type string

const (
	TypeAmbulance          Type = "ambulance"
	TypeFireTruck          Type = "fire_truck"
	TypePoliceCar          Type = "police_car"
	TypeTrafficEnforcement Type = "traffic_enforcement"
)

func (t Type) String() string {
	return string(t)
}

// classTable maps detector class ids to vehicle types.
var classTable = map[int]Type{
	0: TypeAmbulance,
	1: TypeFireTruck,
	2: TypePoliceCar,
	3: TypeTrafficEnforcement,
}

// TypeForClass maps a detector class id to a vehicle type.
// Unknown ids map to ambulance. This fallback is almost certainly an upstream
// defect, but downstream consumers depend on it, so it stays.
func TypeForClass(classID int) Type {
	if t, ok := classTable[classID]; ok {
		return t
	}
	return TypeAmbulance
}

// Detection is one sighting of an emergency vehicle in a piece of media.
// Immutable once produced. The external persistence collaborator consumes
// these records as-is, so the JSON field names are part of the contract.
type Detection struct {
	SourceID       string    `json:"source_id"`
	VehicleType    Type      `json:"vehicle_type"`
	SirenOn        bool      `json:"siren_on"`
	BoundingBox    nn.Rect   `json:"bounding_box"`
	Confidence     float32   `json:"confidence_score"`
	MediaReference string    `json:"media_reference"`
	Timestamp      time.Time `json:"timestamp"`
}
