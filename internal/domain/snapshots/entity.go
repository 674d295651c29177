package snapshots

// Coordinates is a point in scene space.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Snapshot is an annotation found on a scene node marking a defect location.
type Snapshot struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	Coordinates Coordinates `json:"coordinates"`
}
