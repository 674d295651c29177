package defects

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bryanwahyu/defect-tracker/internal/domain/snapshots"
)

// SourceKind tells where a set of defects was loaded from.
type SourceKind string

const (
	SourceGLB  SourceKind = "glb"
	SourceJSON SourceKind = "json"
	SourceNone SourceKind = "none"
)

// Reasons reported when a load produced no defects.
const (
	ReasonNoFile      = "No GLB/JSON defect file found. Ensure the processed folder contains either a Snapshot-enabled GLB or defects.json."
	ReasonNoSnapshots = "No Snapshot metadata found inside the GLB file."
)

// Defect is the normalized unit shown to the user.
type Defect struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	SourceFile  string  `json:"source_file"`
}

// FromSnapshot converts an extracted snapshot, tagging it with the scan file name.
func FromSnapshot(s snapshots.Snapshot, scanPath string) Defect {
	return Defect{
		ID:          s.ID,
		Description: s.Label,
		X:           s.Coordinates.X,
		Y:           s.Coordinates.Y,
		Z:           s.Coordinates.Z,
		SourceFile:  filepath.Base(scanPath),
	}
}

// LoadResult is the outcome of the defect selection policy.
type LoadResult struct {
	Defects    []Defect
	SourcePath string
	Kind       SourceKind
	// Reason is set when Defects is empty.
	Reason string
}

// Found reports whether any source file was located, even an empty one.
func (r LoadResult) Found() bool { return r.SourcePath != "" }

// PreparedRecord is the database-ready shape of a defect.
type PreparedRecord struct {
	DefectID    string  `json:"defect_id"`
	Description string  `json:"description"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	SourceFile  string  `json:"source_file"`
	WKTPoint    string  `json:"wkt_point"`
}

// Prepare builds the database-ready records, keeping input order.
func Prepare(list []Defect) []PreparedRecord {
	out := make([]PreparedRecord, 0, len(list))
	for _, d := range list {
		out = append(out, PreparedRecord{
			DefectID:    d.ID,
			Description: d.Description,
			X:           d.X,
			Y:           d.Y,
			Z:           d.Z,
			SourceFile:  d.SourceFile,
			WKTPoint:    WKTPoint(d.X, d.Y, d.Z),
		})
	}
	return out
}

// WKTPoint renders a 3D point as well-known text, e.g. "POINT Z (1.0 2.5 -3.0)".
func WKTPoint(x, y, z float64) string {
	return fmt.Sprintf("POINT Z (%s %s %s)", FormatCoord(x), FormatCoord(y), FormatCoord(z))
}

// FormatCoord prints the shortest representation of f that keeps a fractional part.
func FormatCoord(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if strings.ContainsAny(s, ".eEnN") {
		return s
	}
	return s + ".0"
}
