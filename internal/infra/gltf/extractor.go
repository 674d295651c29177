package gltf

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/bryanwahyu/defect-tracker/internal/domain/snapshots"
)

// Extractor finds Snapshot annotations on scene nodes.
type Extractor struct {
	Logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{Logger: logger}
}

// ExtractFile reads a .glb/.gltf file and returns its snapshots.
func (e *Extractor) ExtractFile(path string) ([]snapshots.Snapshot, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	out := e.Extract(doc)
	e.Logger.Debug("snapshots extracted", "path", path, "count", len(out))
	return out, nil
}

// Extract walks the "nodes" array of a glTF JSON document in order. Nodes without
// a snapshot or without a resolvable coordinate are skipped; duplicates are kept.
func (e *Extractor) Extract(doc []byte) []snapshots.Snapshot {
	out := []snapshots.Snapshot{}
	nodes := gjson.GetBytes(doc, "nodes")
	if !nodes.IsArray() {
		return out
	}
	idx := -1
	nodes.ForEach(func(_, node gjson.Result) bool {
		idx++
		name := node.Get("name").String()

		snap, ok := snapshotFromExtras(node.Get("extras"))
		if !ok {
			snap, ok = snapshotFromName(name)
		}
		if !ok {
			return true
		}

		coords, ok := resolveCoordinates(snap, node.Get("translation"))
		if !ok {
			e.Logger.Debug("snapshot skipped: no coordinates", "node", idx, "name", name)
			return true
		}

		out = append(out, snapshots.Snapshot{
			ID:          resolveID(snap, name, idx),
			Label:       resolveLabel(snap, name),
			Coordinates: coords,
		})
		return true
	})
	return out
}

func snapshotFromExtras(extras gjson.Result) (gjson.Result, bool) {
	data, ok := asObject(extras)
	if !ok {
		return gjson.Result{}, false
	}
	snap := firstTruthy(data, "Snapshot", "snapshot")
	return asObject(snap)
}

func snapshotFromName(name string) (gjson.Result, bool) {
	if !strings.Contains(name, "Snapshot") {
		return gjson.Result{}, false
	}
	segments := strings.Split(name, "/")
	raw, err := sjson.Set(`{}`, "id", segments[len(segments)-1])
	if err != nil {
		return gjson.Result{}, false
	}
	raw, err = sjson.Set(raw, "label", name)
	if err != nil {
		return gjson.Result{}, false
	}
	return gjson.Parse(raw), true
}

// asObject accepts an object, or a string holding a JSON object. Empty objects count as absent.
func asObject(r gjson.Result) (gjson.Result, bool) {
	if r.Type == gjson.String {
		if !gjson.Valid(r.Str) {
			return gjson.Result{}, false
		}
		r = gjson.Parse(r.Str)
	}
	if !r.IsObject() || !truthy(r) {
		return gjson.Result{}, false
	}
	return r, true
}

func resolveCoordinates(snap, translation gjson.Result) (snapshots.Coordinates, bool) {
	coords := firstTruthy(snap, "coordinates", "Coordinates")
	switch {
	case coords.IsObject():
		x, okX := toFloat(eitherCase(coords, "x"))
		y, okY := toFloat(eitherCase(coords, "y"))
		z, okZ := toFloat(eitherCase(coords, "z"))
		if !okX || !okY || !okZ {
			return snapshots.Coordinates{}, false
		}
		return snapshots.Coordinates{X: x, Y: y, Z: z}, true
	case coords.IsArray() && len(coords.Array()) >= 3:
		return vector(coords.Array()[:3])
	}

	if translation.IsArray() {
		if items := translation.Array(); len(items) == 3 {
			return vector(items)
		}
	}
	return snapshots.Coordinates{}, false
}

func vector(items []gjson.Result) (snapshots.Coordinates, bool) {
	var v [3]float64
	for i := range v {
		f, ok := toFloat(items[i])
		if !ok {
			return snapshots.Coordinates{}, false
		}
		v[i] = f
	}
	return snapshots.Coordinates{X: v[0], Y: v[1], Z: v[2]}, true
}

func resolveID(snap gjson.Result, name string, idx int) string {
	if id := firstTruthy(snap, "id", "Id", "ID"); id.Exists() {
		return id.String()
	}
	if name != "" {
		return name
	}
	return "snapshot_" + strconv.Itoa(idx)
}

func resolveLabel(snap gjson.Result, name string) string {
	if label := firstTruthy(snap, "label", "description"); label.Exists() {
		return label.String()
	}
	if name != "" {
		return name
	}
	return "Snapshot"
}

// eitherCase prefers the lower-case key and falls back to the upper-case one
// only when the lower-case key is absent or null.
func eitherCase(obj gjson.Result, key string) gjson.Result {
	if r := obj.Get(key); r.Exists() && r.Type != gjson.Null {
		return r
	}
	return obj.Get(strings.ToUpper(key))
}

// firstTruthy returns the first value under keys that is not null, false, zero or empty.
func firstTruthy(obj gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := obj.Get(k); truthy(r) {
			return r
		}
	}
	return gjson.Result{}
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	case gjson.JSON:
		if r.IsArray() {
			return len(r.Array()) > 0
		}
		return len(r.Map()) > 0
	}
	return true
}

func toFloat(r gjson.Result) (float64, bool) {
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Num
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		f = v
	case gjson.True:
		f = 1
	case gjson.False:
		f = 0
	default:
		return 0, false
	}
	// NaN and Inf cannot be encoded as JSON.
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
